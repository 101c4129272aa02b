package cacheinfra

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrRemoteTimeout is reported when a remote call exceeds RemoteConfig.Timeout.
var ErrRemoteTimeout = errors.New("remote cache call timed out")

// TieredStore consults the in-process tier first and the remote tier on a local miss,
// populating the local tier from remote hits. The remote tier may be nil.
//
// Every remote call is bounded by a timeout and guarded by a circuit breaker. Failures
// are logged and the operation continues against the local tier only: Get reports
// OutcomeUnavailable, writes and deletes still apply locally, Keys lists local keys.
type TieredStore struct {
	local   *MemoryStore
	remote  *RedisStore
	breaker *gobreaker.CircuitBreaker
	timeout  time.Duration
	localTTL time.Duration
	clock    Clock
	logger   *zap.Logger

	// afterRemoteGet runs between a remote hit and the local copy; tests use it to
	// interleave writers.
	afterRemoteGet func(key string)
}

// TieredOption customises a TieredStore.
type TieredOption func(*TieredStore)

// WithTieredLogger sets the logger used for degraded operations.
func WithTieredLogger(logger *zap.Logger) TieredOption {
	return func(t *TieredStore) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithTieredClock sets the clock used to compute local expiries of remote hits.
func WithTieredClock(clock Clock) TieredOption {
	return func(t *TieredStore) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// NewTieredStore combines local and remote. remote may be nil, in which case cfg is ignored.
func NewTieredStore(local *MemoryStore, remote *RedisStore, cfg RemoteConfig, opts ...TieredOption) *TieredStore {
	t := &TieredStore{
		local:    local,
		remote:   remote,
		timeout:  cfg.Timeout,
		localTTL: cfg.LocalTTL,
		clock:    SystemClock(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}

	if remote != nil {
		t.breaker = newBreaker("cache-remote", cfg.Breaker, t.logger)
	}

	return t
}

func newBreaker(name string, cfg BreakerConfig, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			if cfg.FailureThreshold <= 0 {
				return counts.ConsecutiveFailures > 0
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("cache remote breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrRemoteNotFound)
		},
	})
}

// Local exposes the in-process tier.
func (t *TieredStore) Local() *MemoryStore { return t.local }

// Get serves key from the local tier, falling back to the remote tier. A remote hit is
// copied locally, expiring with the remote entry or after RemoteConfig.LocalTTL,
// whichever comes first. The copy is dropped if key was written or deleted meanwhile.
func (t *TieredStore) Get(ctx context.Context, key string) Lookup {
	if l := t.local.Get(ctx, key); l.Hit() {
		return l
	}
	if t.remote == nil {
		return Lookup{}
	}

	gen := t.local.Generation(key)

	type remoteHit struct {
		value []byte
		ttl   time.Duration
	}

	res, err := t.call(ctx, "get", key, func(ctx context.Context) (any, error) {
		value, ttl, err := t.remote.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		return remoteHit{value: value, ttl: ttl}, nil
	})
	if errors.Is(err, ErrRemoteNotFound) {
		return Lookup{}
	}
	if err != nil {
		return Lookup{Outcome: OutcomeUnavailable}
	}

	hit := res.(remoteHit)
	if t.afterRemoteGet != nil {
		t.afterRemoteGet(key)
	}

	ttl := hit.ttl
	if t.localTTL > 0 && (ttl <= 0 || ttl > t.localTTL) {
		ttl = t.localTTL
	}
	now := t.clock.Now()
	e := Entry{Key: key, Value: hit.value, CreatedAt: now}
	if ttl > 0 {
		e.ExpiresAt = now.Add(ttl)
	}
	t.local.Populate(e, gen)

	return Lookup{Value: hit.value, Outcome: OutcomeHit}
}

// Set writes through both tiers. A remote failure leaves the local write in place.
func (t *TieredStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	t.local.Set(ctx, key, value, ttl)
	if t.remote == nil {
		return
	}
	_, _ = t.call(ctx, "set", key, func(ctx context.Context) (any, error) {
		return nil, t.remote.Set(ctx, key, value, ttl)
	})
}

// Delete removes key from both tiers and reports whether either held it.
func (t *TieredStore) Delete(ctx context.Context, key string) bool {
	deleted := t.local.Delete(ctx, key)
	if t.remote == nil {
		return deleted
	}
	res, err := t.call(ctx, "delete", key, func(ctx context.Context) (any, error) {
		return t.remote.Delete(ctx, key)
	})
	if err != nil {
		return deleted
	}
	return deleted || res.(bool)
}

// Exists checks the local tier, then the remote one.
func (t *TieredStore) Exists(ctx context.Context, key string) bool {
	if t.local.Exists(ctx, key) {
		return true
	}
	if t.remote == nil {
		return false
	}
	res, err := t.call(ctx, "exists", key, func(ctx context.Context) (any, error) {
		return t.remote.Exists(ctx, key)
	})
	if err != nil {
		return false
	}
	return res.(bool)
}

// Keys merges local keys with a remote scan. A failed scan yields local keys only.
func (t *TieredStore) Keys(ctx context.Context, prefix string) []string {
	keys := t.local.Keys(ctx, prefix)
	if t.remote == nil {
		return keys
	}

	res, err := t.call(ctx, "scan", prefix, func(ctx context.Context) (any, error) {
		return t.remote.Keys(ctx, prefix)
	})
	if err != nil {
		return keys
	}

	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		seen[k] = struct{}{}
	}
	for _, k := range res.([]string) {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// LocalKeys lists live in-process keys with prefix.
func (t *TieredStore) LocalKeys(prefix string) []string {
	return t.local.Keys(context.Background(), prefix)
}

// DeleteLocal drops key from the in-process tier only.
func (t *TieredStore) DeleteLocal(key string) bool {
	return t.local.Delete(context.Background(), key)
}

// FenceLocal stops remote reads already in flight from copying their values into the
// in-process tier.
func (t *TieredStore) FenceLocal() {
	t.local.Fence()
}

// Ping checks the remote tier through the breaker. Nil when there is no remote tier.
func (t *TieredStore) Ping(ctx context.Context) error {
	if t.remote == nil {
		return nil
	}
	_, err := t.call(ctx, "ping", "", func(ctx context.Context) (any, error) {
		return nil, t.remote.Ping(ctx)
	})
	return err
}

// Close stops the local sweep goroutine. The remote client is owned by the caller.
func (t *TieredStore) Close() error {
	return t.local.Close()
}

// call runs fn against the remote tier under the breaker and the configured timeout.
// Errors other than ErrRemoteNotFound are logged here.
func (t *TieredStore) call(ctx context.Context, op, key string, fn func(context.Context) (any, error)) (any, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	res, err := t.breaker.Execute(func() (any, error) {
		return fn(ctx)
	})
	if err == nil || errors.Is(err, ErrRemoteNotFound) {
		return res, err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		err = ErrRemoteTimeout
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		t.logger.Debug("cache remote skipped",
			zap.String("op", op),
			zap.String("key", key),
			zap.Error(err),
		)
	} else {
		t.logger.Warn("cache remote degraded to local tier",
			zap.String("op", op),
			zap.String("key", key),
			zap.Error(err),
		)
	}

	return nil, err
}
