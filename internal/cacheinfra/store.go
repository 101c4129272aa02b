package cacheinfra

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Outcome tags the result of a lookup.
type Outcome uint8

const (
	// OutcomeMiss means the key is absent or expired.
	OutcomeMiss Outcome = iota
	// OutcomeHit means Value holds the stored bytes.
	OutcomeHit
	// OutcomeUnavailable means the in-process tier missed and the remote tier could not
	// answer. Callers treat it as a miss; it exists so the degradation can be counted.
	OutcomeUnavailable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHit:
		return "hit"
	case OutcomeUnavailable:
		return "unavailable"
	default:
		return "miss"
	}
}

// Lookup is the tagged result of Store.Get.
type Lookup struct {
	Value   []byte
	Outcome Outcome
}

// Hit reports whether the lookup found a live value.
func (l Lookup) Hit() bool { return l.Outcome == OutcomeHit }

// Entry is a stored value with its expiry. A zero ExpiresAt never expires.
type Entry struct {
	Key       string
	Value     []byte
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the entry is dead at now.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Store is the key-value contract the cache service is built on. Implementations never
// return errors: infrastructure failures are absorbed and reported through Lookup.
type Store interface {
	Get(ctx context.Context, key string) Lookup
	// Set stores value. A ttl <= 0 stores an entry that never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string) bool
	Exists(ctx context.Context, key string) bool
	// Keys returns a snapshot of live keys starting with prefix.
	Keys(ctx context.Context, prefix string) []string
}

// Clock supplies the current time. Any clockwork.Clock satisfies it, so tests pass a
// clockwork.FakeClock.
type Clock interface {
	Now() time.Time
}

// SystemClock returns the wall clock.
func SystemClock() Clock { return clockwork.NewRealClock() }
