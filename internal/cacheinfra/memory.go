package cacheinfra

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

// generationStripes is the number of write generation counters keys are spread over.
const generationStripes = 64

// MemoryStore is the in-process tier. Entries live in an xsync.MapOf, so readers and
// writers of different keys rarely contend. Expiry is lazy: a dead entry is removed by
// the first read that observes it, and optionally by a periodic sweep.
type MemoryStore struct {
	entries *xsync.MapOf[string, Entry]
	cfg     MemoryConfig
	clock   Clock

	// generations are bumped by every write and delete of a key hashing to the stripe,
	// so a copy read elsewhere before the change can be refused.
	generations [generationStripes]atomic.Uint64

	evictions atomic.Uint64
	evicting  atomic.Bool

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryStore builds an in-process store. A nil clock uses the wall clock.
func NewMemoryStore(cfg MemoryConfig, clock Clock) *MemoryStore {
	if clock == nil {
		clock = SystemClock()
	}

	m := &MemoryStore{
		entries: xsync.NewMapOf[string, Entry](),
		cfg:     cfg,
		clock:   clock,
	}

	if cfg.EvictionInterval > 0 {
		m.stop = make(chan struct{})
		m.done = make(chan struct{})
		go m.sweepLoop(cfg.EvictionInterval)
	}

	return m
}

// Get returns the live value of key, removing it if it has expired.
func (m *MemoryStore) Get(_ context.Context, key string) Lookup {
	e, ok := m.entries.Load(key)
	if !ok {
		return Lookup{}
	}

	now := m.clock.Now()
	if e.Expired(now) {
		m.removeIfExpired(key, now)
		return Lookup{}
	}

	return Lookup{Value: e.Value, Outcome: OutcomeHit}
}

// Set stores value. A ttl <= 0 never expires.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	now := m.clock.Now()
	e := Entry{Key: key, Value: value, CreatedAt: now}
	if ttl > 0 {
		e.ExpiresAt = now.Add(ttl)
	}
	m.store(e)
}

// Generation returns the write generation of key. Pass it to Populate after reading the
// value from elsewhere.
func (m *MemoryStore) Generation(key string) uint64 {
	return m.stripe(key).Load()
}

// Populate stores e, whose expiry has already been computed, unless key was written or
// deleted since gen was taken. It reports whether e was stored.
func (m *MemoryStore) Populate(e Entry, gen uint64) bool {
	stripe := m.stripe(e.Key)
	stored := false
	m.entries.Compute(e.Key, func(old Entry, loaded bool) (Entry, bool) {
		if stripe.Load() != gen {
			return old, !loaded
		}
		stored = true
		return e, false
	})
	if stored {
		m.enforceCapacity()
	}
	return stored
}

func (m *MemoryStore) store(e Entry) {
	m.stripe(e.Key).Add(1)
	m.entries.Store(e.Key, e)
	m.enforceCapacity()
}

func (m *MemoryStore) enforceCapacity() {
	if m.cfg.Capacity > 0 && m.entries.Size() > m.cfg.Capacity {
		m.evict()
	}
}

// Delete removes key and reports whether a live entry was removed.
func (m *MemoryStore) Delete(_ context.Context, key string) bool {
	m.stripe(key).Add(1)
	e, ok := m.entries.LoadAndDelete(key)
	return ok && !e.Expired(m.clock.Now())
}

// Fence bumps every write generation, refusing all populations in flight. Used when
// keys are invalidated by pattern and cannot be listed individually.
func (m *MemoryStore) Fence() {
	for i := range m.generations {
		m.generations[i].Add(1)
	}
}

func (m *MemoryStore) stripe(key string) *atomic.Uint64 {
	return &m.generations[xxhash.Sum64String(key)%generationStripes]
}

// Exists reports whether key holds a live value.
func (m *MemoryStore) Exists(ctx context.Context, key string) bool {
	return m.Get(ctx, key).Hit()
}

// Keys lists live keys starting with prefix.
func (m *MemoryStore) Keys(_ context.Context, prefix string) []string {
	now := m.clock.Now()
	var keys []string
	m.entries.Range(func(key string, e Entry) bool {
		if strings.HasPrefix(key, prefix) && !e.Expired(now) {
			keys = append(keys, key)
		}
		return true
	})
	return keys
}

// Len returns the number of stored entries, expired ones not yet removed included.
func (m *MemoryStore) Len() int {
	return m.entries.Size()
}

// Evictions returns how many live entries were dropped to honour Capacity.
func (m *MemoryStore) Evictions() uint64 {
	return m.evictions.Load()
}

// Sweep removes every expired entry and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	now := m.clock.Now()
	removed := 0
	m.entries.Range(func(key string, e Entry) bool {
		if e.Expired(now) && m.removeIfExpired(key, now) {
			removed++
		}
		return true
	})
	return removed
}

// Close stops the sweep goroutine, if any.
func (m *MemoryStore) Close() error {
	m.closeOnce.Do(func() {
		if m.stop != nil {
			close(m.stop)
			<-m.done
		}
	})
	return nil
}

// removeIfExpired deletes key only if the stored entry is still expired, so a fresh
// overwrite racing with the removal survives.
func (m *MemoryStore) removeIfExpired(key string, now time.Time) bool {
	removed := false
	m.entries.Compute(key, func(old Entry, loaded bool) (Entry, bool) {
		if !loaded {
			return old, true
		}
		removed = old.Expired(now)
		return old, removed
	})
	return removed
}

func (m *MemoryStore) evict() {
	if !m.evicting.CompareAndSwap(false, true) {
		return
	}
	defer m.evicting.Store(false)

	if m.Sweep() > 0 && m.entries.Size() <= m.cfg.Capacity {
		return
	}

	overflow := m.entries.Size() - m.cfg.Capacity
	target := m.cfg.Capacity * m.cfg.EvictionPercentage / 100
	if target < overflow {
		target = overflow
	}
	if target < 1 {
		target = 1
	}

	removed := 0
	m.entries.Range(func(key string, _ Entry) bool {
		if _, ok := m.entries.LoadAndDelete(key); ok {
			removed++
			m.evictions.Add(1)
		}
		return removed < target
	})
}

func (m *MemoryStore) sweepLoop(interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-m.stop:
			return
		}
	}
}
