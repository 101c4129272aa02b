package cache

import (
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/goliatone/go-tenant-cache/internal/cacheinfra"
)

// NoExpiration stores an entry that never expires regardless of Config.DefaultTTL.
const NoExpiration time.Duration = -1

// Options carries the per-call settings of every Service operation.
type Options struct {
	// TenantID scopes the operation. Empty falls back to the tenant stored in the
	// context by WithTenant, then to Config.DefaultTenant.
	TenantID string

	// TTL applies to writes. Zero uses Config.DefaultTTL; NoExpiration (or any negative
	// value) never expires.
	TTL time.Duration
}

// ForTenant is shorthand for Options{TenantID: tenantID}.
func ForTenant(tenantID string) Options {
	return Options{TenantID: tenantID}
}

// Clock supplies the current time to the stores.
type Clock = cacheinfra.Clock

// Option customises an IntelligentService.
type Option func(*IntelligentService)

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *IntelligentService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(clock Clock) Option {
	return func(s *IntelligentService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithRedisClient supplies the client used for the remote tier and the invalidation bus.
// The caller keeps ownership. Without it a client is built from Config.Remote and closed
// by Close.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(s *IntelligentService) {
		s.client = client
	}
}

// WithStatsTracker shares tracker with other components, e.g. repository decorators.
func WithStatsTracker(tracker *StatsTracker) Option {
	return func(s *IntelligentService) {
		if tracker != nil {
			s.tracker = tracker
		}
	}
}

// WithOrigin sets the identifier this process stamps on invalidation messages.
// Defaults to a random UUID.
func WithOrigin(origin string) Option {
	return func(s *IntelligentService) {
		if origin != "" {
			s.origin = origin
		}
	}
}
