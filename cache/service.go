package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmgilman/go/errors"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-tenant-cache/internal/cacheinfra"
)

// Service is the tenant-scoped cache. No operation fails because of the cache
// infrastructure: a remote outage degrades to the in-process tier. Only values that
// cannot be encoded are reported as errors.
type Service interface {
	// Get returns the msgpack encoded value stored under key, or false on a miss.
	Get(ctx context.Context, key string, opts Options) ([]byte, bool)
	// Set encodes value with msgpack and stores it.
	Set(ctx context.Context, key string, value any, opts Options) error
	Delete(ctx context.Context, key string, opts Options) bool
	Exists(ctx context.Context, key string, opts Options) bool
	// InvalidatePattern removes every key of the tenant containing pattern and returns
	// how many entries were removed.
	InvalidatePattern(ctx context.Context, pattern string, opts Options) int
	// Fetch returns the stored value, calling fetch and storing its result on a miss.
	Fetch(ctx context.Context, key string, opts Options, fetch func(context.Context) (any, error)) ([]byte, error)
	Stats(tenantID string) Stats
	ResetStats(tenantID string)
}

var _ Service = (*IntelligentService)(nil)

// IntelligentService implements Service over a two-tier store.
type IntelligentService struct {
	cfg     Config
	codec   KeyCodec
	store   *cacheinfra.TieredStore
	tracker *StatsTracker
	logger  *zap.Logger
	clock   Clock
	group   singleflight.Group

	client     redis.UniversalClient
	ownsClient bool
	bus        *cacheinfra.RedisBus
	origin     string
	busTimeout time.Duration
}

// New validates cfg and builds the service. When cfg.Remote is set the Redis tier is
// enabled, and so is peer invalidation if cfg.Remote.Channel is not empty. A Redis server
// that cannot be reached at start up is not an error.
func New(cfg Config, opts ...Option) (*IntelligentService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &IntelligentService{
		cfg:     cfg,
		codec:   NewKeyCodec(cfg.KeyPrefix),
		tracker: NewStatsTracker(),
		logger:  zap.NewNop(),
		clock:   cacheinfra.SystemClock(),
		origin:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(s)
	}

	local := cacheinfra.NewMemoryStore(cfg.Memory, s.clock)

	if cfg.Remote == nil {
		s.store = cacheinfra.NewTieredStore(local, nil, cacheinfra.RemoteConfig{}, cacheinfra.WithTieredClock(s.clock))
		return s, nil
	}

	if s.client == nil {
		s.client = cacheinfra.NewRedisClient(*cfg.Remote)
		s.ownsClient = true
	}

	remote := cacheinfra.NewRedisStore(s.client, cfg.Remote.KeyPrefix)
	s.store = cacheinfra.NewTieredStore(local, remote, *cfg.Remote,
		cacheinfra.WithTieredLogger(s.logger.Named("store")),
		cacheinfra.WithTieredClock(s.clock),
	)

	if cfg.Remote.Channel != "" {
		s.busTimeout = cfg.Remote.Timeout
		s.bus = cacheinfra.NewRedisBus(s.client, cfg.Remote.Channel, s.origin, s.logger.Named("bus"))

		ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeout(cfg.Remote.Timeout))
		defer cancel()
		if err := s.bus.Subscribe(ctx, s.applyPeerInvalidation); err != nil {
			s.logger.Warn("peer invalidation pending, subscribe will be retried on reconnect",
				zap.String("channel", cfg.Remote.Channel),
				zap.Error(err),
			)
		}
	}

	return s, nil
}

func subscribeTimeout(remote time.Duration) time.Duration {
	if d := 4 * remote; d > time.Second {
		return d
	}
	return time.Second
}

// Codec returns the key codec in use.
func (s *IntelligentService) Codec() KeyCodec { return s.codec }

// Tracker returns the statistics tracker, for sharing with other components.
func (s *IntelligentService) Tracker() *StatsTracker { return s.tracker }

// Origin returns the identifier stamped on invalidation messages sent by this service.
func (s *IntelligentService) Origin() string { return s.origin }

// Get returns the encoded value of key for the resolved tenant. Remote failures count
// as a degraded miss.
func (s *IntelligentService) Get(ctx context.Context, key string, opts Options) ([]byte, bool) {
	tenant := s.tenant(ctx, opts)

	l := s.store.Get(ctx, s.codec.Encode(tenant, key))
	switch l.Outcome {
	case cacheinfra.OutcomeHit:
		s.tracker.RecordHit(tenant)
		return l.Value, true
	case cacheinfra.OutcomeUnavailable:
		s.tracker.RecordDegraded(tenant)
	}

	s.tracker.RecordMiss(tenant)
	return nil, false
}

// Set encodes value with msgpack, stores it for the resolved tenant and tells peers to
// drop their copies. Only encoding failures are returned.
func (s *IntelligentService) Set(ctx context.Context, key string, value any, opts Options) error {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return serializationError(key, err)
	}

	tenant := s.tenant(ctx, opts)
	s.store.Set(ctx, s.codec.Encode(tenant, key), data, s.ttl(opts))
	s.tracker.RecordSet(tenant)
	s.publish(ctx, cacheinfra.InvalidationMessage{TenantID: tenant, Key: key})

	return nil
}

// Delete removes key and reports whether an entry was removed.
func (s *IntelligentService) Delete(ctx context.Context, key string, opts Options) bool {
	tenant := s.tenant(ctx, opts)

	deleted := s.store.Delete(ctx, s.codec.Encode(tenant, key))
	if deleted {
		s.tracker.RecordDelete(tenant)
	}
	s.publish(ctx, cacheinfra.InvalidationMessage{TenantID: tenant, Key: key})

	return deleted
}

// Exists reports whether key holds a live value for the resolved tenant.
func (s *IntelligentService) Exists(ctx context.Context, key string, opts Options) bool {
	return s.store.Exists(ctx, s.codec.Encode(s.tenant(ctx, opts), key))
}

// InvalidatePattern deletes every key of the resolved tenant whose logical part contains
// pattern, in both tiers, and returns how many entries were removed. The empty pattern
// flushes the tenant.
func (s *IntelligentService) InvalidatePattern(ctx context.Context, pattern string, opts Options) int {
	tenant := s.tenant(ctx, opts)

	candidates := s.store.Keys(ctx, s.codec.TenantPrefix(tenant))
	removed := 0
	for _, key := range SelectForInvalidation(s.codec, tenant, pattern, candidates) {
		if s.store.Delete(ctx, key) {
			removed++
		}
	}

	s.tracker.RecordInvalidation(tenant, removed)
	s.publish(ctx, cacheinfra.InvalidationMessage{TenantID: tenant, Pattern: pattern})

	s.logger.Debug("invalidated cache pattern",
		zap.String("tenant", tenant),
		zap.String("pattern", pattern),
		zap.Int("candidates", len(candidates)),
		zap.Int("removed", removed),
	)

	return removed
}

// Fetch returns the value of key, calling fetch on a miss and storing its encoded
// result. Concurrent misses of one key share a single fetch, which keeps running if
// the caller that started it gives up. Fetch errors are returned and never cached.
func (s *IntelligentService) Fetch(ctx context.Context, key string, opts Options, fetch func(context.Context) (any, error)) ([]byte, error) {
	if fetch == nil {
		return nil, ErrNilFetch
	}
	if data, ok := s.Get(ctx, key, opts); ok {
		return data, nil
	}

	tenant := s.tenant(ctx, opts)
	namespaced := s.codec.Encode(tenant, key)

	ch := s.group.DoChan(namespaced, func() (any, error) {
		// The flight is shared, so one caller giving up must not fail the others.
		ctx := context.WithoutCancel(ctx)

		// A caller that missed just before another flight stored the value finds it here.
		if l := s.store.Get(ctx, namespaced); l.Hit() {
			return l.Value, nil
		}
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		data, err := msgpack.Marshal(value)
		if err != nil {
			return nil, serializationError(key, err)
		}
		s.store.Set(ctx, namespaced, data, s.ttl(opts))
		s.tracker.RecordSet(tenant)
		s.publish(ctx, cacheinfra.InvalidationMessage{TenantID: tenant, Key: key})
		return data, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Health reports whether the remote tier answers. Cache operations keep working either
// way; this is meant for readiness checks.
func (s *IntelligentService) Health(ctx context.Context) error {
	err := s.store.Ping(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, cacheinfra.ErrRemoteTimeout):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
}

// Stats returns a snapshot of the counters of tenantID, or of every tenant for "".
func (s *IntelligentService) Stats(tenantID string) Stats {
	return s.tracker.Snapshot(tenantID)
}

// ResetStats zeroes the counters of tenantID, or every counter for "".
func (s *IntelligentService) ResetStats(tenantID string) {
	s.tracker.Reset(tenantID)
}

// Close stops background work and releases the Redis client when the service built it.
func (s *IntelligentService) Close() error {
	var firstErr error
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			firstErr = err
		}
	}
	if err := s.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if s.ownsClient {
		if err := s.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return errors.Wrap(firstErr, errors.CodeInternal, "closing cache service")
	}
	return nil
}

func (s *IntelligentService) tenant(ctx context.Context, opts Options) string {
	return ResolveTenant(ctx, opts.TenantID, s.cfg.DefaultTenant)
}

func (s *IntelligentService) ttl(opts Options) time.Duration {
	switch {
	case opts.TTL < 0:
		return 0
	case opts.TTL == 0:
		return s.cfg.DefaultTTL
	default:
		return opts.TTL
	}
}

// publish tells peers to drop their in-process copies. Failures only cost freshness on
// peers, so they are logged.
func (s *IntelligentService) publish(ctx context.Context, msg cacheinfra.InvalidationMessage) {
	if s.bus == nil {
		return
	}
	msg.Prefix = s.codec.Prefix()

	if s.busTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.busTimeout)
		defer cancel()
	}

	if err := s.bus.Publish(ctx, msg); err != nil {
		s.logger.Warn("failed to publish cache invalidation",
			zap.String("tenant", msg.TenantID),
			zap.String("key", msg.Key),
			zap.String("pattern", msg.Pattern),
			zap.Error(err),
		)
	}
}

func (s *IntelligentService) applyPeerInvalidation(msg cacheinfra.InvalidationMessage) {
	if msg.Prefix != s.codec.Prefix() {
		return
	}

	var keys []string
	if msg.Key != "" {
		keys = []string{s.codec.Encode(msg.TenantID, msg.Key)}
	} else {
		s.store.FenceLocal()
		candidates := s.store.LocalKeys(s.codec.TenantPrefix(msg.TenantID))
		keys = SelectForInvalidation(s.codec, msg.TenantID, msg.Pattern, candidates)
	}

	removed := 0
	for _, key := range keys {
		if s.store.DeleteLocal(key) {
			removed++
		}
	}

	s.logger.Debug("applied peer invalidation",
		zap.String("origin", msg.Origin),
		zap.String("tenant", msg.TenantID),
		zap.String("key", msg.Key),
		zap.String("pattern", msg.Pattern),
		zap.Int("removed", removed),
	)
}
