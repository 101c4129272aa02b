package cacheinfra

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config holds the storage configuration for every tier the cache can use.
type Config struct {
	Memory MemoryConfig

	// Remote enables the Redis tier. Nil keeps the cache in-process only.
	Remote *RemoteConfig

	// Query configures the sturdyc backed query-result cache.
	Query QueryConfig
}

// MemoryConfig sizes the in-process tier.
type MemoryConfig struct {
	// Capacity is the maximum number of entries kept in process. Must be greater than 0.
	Capacity int

	// EvictionPercentage is the share of entries dropped when Capacity is exceeded.
	// Expired entries go first. Must be between 1-100.
	EvictionPercentage int

	// EvictionInterval enables a periodic sweep of expired entries.
	// Zero relies on lazy expiry alone.
	EvictionInterval time.Duration
}

// RemoteConfig configures the Redis tier and the invalidation channel.
type RemoteConfig struct {
	Addrs        []string
	Username     string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int

	// KeyPrefix namespaces every key this process writes to Redis.
	KeyPrefix string

	// Timeout bounds every remote call. On expiry the call degrades to in-process only.
	Timeout time.Duration

	// Channel is the pub/sub channel used to fan invalidations out to peers.
	// Empty disables peer invalidation.
	Channel string

	// LocalTTL caps how long an entry copied from Redis is served from process memory,
	// bounding staleness when peer invalidations are missed. Zero keeps the remote expiry.
	LocalTTL time.Duration

	Breaker BreakerConfig
}

// BreakerConfig mirrors the gobreaker settings guarding the remote tier.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// QueryConfig holds the sturdyc options used by the query-result cache.
type QueryConfig struct {
	// Capacity defines the maximum number of entries that the cache can store.
	Capacity int

	// NumShards determines the number of cache shards for concurrent access.
	NumShards int

	// TTL is the time-to-live for cached query results.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the cache reaches its capacity.
	EvictionPercentage int

	// EarlyRefresh configures early refresh behavior. Nil disables it.
	EarlyRefresh *EarlyRefreshConfig

	// MissingRecordStorage lets sturdyc remember keys whose fetch reported
	// sturdyc.ErrNotFound, preventing repeated lookups of absent rows.
	MissingRecordStorage bool

	// EvictionInterval sets how often sturdyc checks for expired entries.
	// Zero value uses the default interval.
	EvictionInterval time.Duration
}

// EarlyRefreshConfig configures early refresh behavior.
type EarlyRefreshConfig struct {
	MinAsyncRefreshTime time.Duration
	MaxAsyncRefreshTime time.Duration
	SyncRefreshTime     time.Duration
	RetryBaseDelay      time.Duration
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
// The remote tier is disabled.
func DefaultConfig() Config {
	return Config{
		Memory: MemoryConfig{
			Capacity:           10000,
			EvictionPercentage: 10,
		},
		Query: QueryConfig{
			Capacity:           10000,
			NumShards:          256,
			TTL:                5 * time.Minute,
			EvictionPercentage: 10,
			EarlyRefresh: &EarlyRefreshConfig{
				MinAsyncRefreshTime: 10 * time.Second,
				MaxAsyncRefreshTime: 20 * time.Second,
				SyncRefreshTime:     30 * time.Second,
				RetryBaseDelay:      100 * time.Millisecond,
			},
			MissingRecordStorage: true,
		},
	}
}

// DefaultRemoteConfig returns remote settings for a single Redis node at addr.
func DefaultRemoteConfig(addr string) *RemoteConfig {
	return &RemoteConfig{
		Addrs:        []string{addr},
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "cache:",
		Timeout:      250 * time.Millisecond,
		Channel:      "cache:invalidations",
		LocalTTL:     time.Minute,
		Breaker: BreakerConfig{
			MaxRequests:      5,
			Interval:         30 * time.Second,
			Timeout:          10 * time.Second,
			FailureThreshold: 0.6,
			MinRequests:      5,
		},
	}
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Memory),
		validation.Field(&c.Remote),
		validation.Field(&c.Query),
	)
}

// Validate implements validation.Validatable.
func (c MemoryConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&c.EvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.EvictionInterval, validation.Min(0)),
	)
}

// Validate implements validation.Validatable.
func (c RemoteConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addrs, validation.Required, validation.Each(validation.Required)),
		validation.Field(&c.DB, validation.Min(0)),
		validation.Field(&c.PoolSize, validation.Min(0)),
		validation.Field(&c.MinIdleConns, validation.Min(0)),
		validation.Field(&c.KeyPrefix, validation.By(noGlob)),
		validation.Field(&c.Timeout, validation.Required, validation.Min(1)),
		validation.Field(&c.LocalTTL, validation.Min(0)),
		validation.Field(&c.Breaker),
	)
}

// Validate implements validation.Validatable.
func (c BreakerConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.FailureThreshold, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.Interval, validation.Min(0)),
		validation.Field(&c.Timeout, validation.Min(0)),
	)
}

// Validate implements validation.Validatable.
func (c QueryConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&c.NumShards, validation.Required, validation.Min(1)),
		validation.Field(&c.TTL, validation.Required, validation.Min(1)),
		validation.Field(&c.EvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.EarlyRefresh),
	)
}

// Validate implements validation.Validatable.
func (c EarlyRefreshConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MinAsyncRefreshTime, validation.Min(0)),
		validation.Field(&c.MaxAsyncRefreshTime, validation.Min(0)),
		validation.Field(&c.SyncRefreshTime, validation.Min(0)),
		validation.Field(&c.RetryBaseDelay, validation.Min(0)),
	)
}

// noGlob rejects Redis glob metacharacters; the prefix is used verbatim in SCAN patterns.
func noGlob(value any) error {
	s, _ := value.(string)
	if strings.ContainsAny(s, `*?[]\`) {
		return errors.New("must not contain glob characters")
	}
	return nil
}
