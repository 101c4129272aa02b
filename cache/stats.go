package cache

import (
	"sort"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// Stats is a point-in-time copy of cache counters.
type Stats struct {
	TotalRequests uint64 `json:"total_requests"`
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Sets          uint64 `json:"sets"`
	Deletes       uint64 `json:"deletes"`
	Invalidations uint64 `json:"invalidations"`
	// Degraded counts lookups answered without the remote tier because it failed.
	Degraded uint64 `json:"degraded"`
}

// HitRate returns hits as a percentage of lookups, in [0, 100]. Zero when nothing was looked up.
func (s Stats) HitRate() float64 {
	lookups := s.Hits + s.Misses
	if lookups == 0 {
		return 0
	}
	return float64(s.Hits) / float64(lookups) * 100
}

type counters struct {
	hits          atomic.Uint64
	misses        atomic.Uint64
	sets          atomic.Uint64
	deletes       atomic.Uint64
	invalidations atomic.Uint64
	degraded      atomic.Uint64
}

func (c *counters) snapshot() Stats {
	s := Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Sets:          c.sets.Load(),
		Deletes:       c.deletes.Load(),
		Invalidations: c.invalidations.Load(),
		Degraded:      c.degraded.Load(),
	}
	s.TotalRequests = s.Hits + s.Misses
	return s
}

func (c *counters) reset() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.sets.Store(0)
	c.deletes.Store(0)
	c.invalidations.Store(0)
	c.degraded.Store(0)
}

// StatsTracker keeps per-tenant and global counters. Every record call updates both
// with atomic increments, so concurrent callers never lose updates.
type StatsTracker struct {
	global  counters
	tenants *xsync.MapOf[string, *counters]
}

// NewStatsTracker returns an empty tracker.
func NewStatsTracker() *StatsTracker {
	return &StatsTracker{tenants: xsync.NewMapOf[string, *counters]()}
}

func (t *StatsTracker) tenant(tenantID string) *counters {
	c, _ := t.tenants.LoadOrCompute(tenantID, func() *counters { return &counters{} })
	return c
}

// RecordHit counts a lookup that found a value.
func (t *StatsTracker) RecordHit(tenantID string) {
	t.tenant(tenantID).hits.Add(1)
	t.global.hits.Add(1)
}

// RecordMiss counts a lookup that found nothing, degraded lookups included.
func (t *StatsTracker) RecordMiss(tenantID string) {
	t.tenant(tenantID).misses.Add(1)
	t.global.misses.Add(1)
}

// RecordSet counts a stored value.
func (t *StatsTracker) RecordSet(tenantID string) {
	t.tenant(tenantID).sets.Add(1)
	t.global.sets.Add(1)
}

// RecordDelete counts a delete that removed an entry.
func (t *StatsTracker) RecordDelete(tenantID string) {
	t.tenant(tenantID).deletes.Add(1)
	t.global.deletes.Add(1)
}

// RecordDegraded counts a lookup the remote tier could not answer.
func (t *StatsTracker) RecordDegraded(tenantID string) {
	t.tenant(tenantID).degraded.Add(1)
	t.global.degraded.Add(1)
}

// RecordInvalidation adds count evicted entries. Zero is accepted and changes nothing.
func (t *StatsTracker) RecordInvalidation(tenantID string, count int) {
	if count <= 0 {
		return
	}
	t.tenant(tenantID).invalidations.Add(uint64(count))
	t.global.invalidations.Add(uint64(count))
}

// Snapshot returns the counters for tenantID, or the global aggregate when tenantID is empty.
// Unknown tenants yield zero stats.
func (t *StatsTracker) Snapshot(tenantID string) Stats {
	if tenantID == "" {
		return t.global.snapshot()
	}
	c, ok := t.tenants.Load(tenantID)
	if !ok {
		return Stats{}
	}
	return c.snapshot()
}

// Reset zeroes the counters of tenantID. An empty tenantID resets the global aggregate
// and every tenant.
func (t *StatsTracker) Reset(tenantID string) {
	if tenantID != "" {
		if c, ok := t.tenants.Load(tenantID); ok {
			c.reset()
		}
		return
	}
	t.global.reset()
	t.tenants.Range(func(_ string, c *counters) bool {
		c.reset()
		return true
	})
}

// Tenants lists every tenant that has recorded at least one operation, sorted.
func (t *StatsTracker) Tenants() []string {
	tenants := make([]string, 0, t.tenants.Size())
	t.tenants.Range(func(id string, _ *counters) bool {
		tenants = append(tenants, id)
		return true
	})
	sort.Strings(tenants)
	return tenants
}
