package cache

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/jmgilman/go/errors"

	"github.com/goliatone/go-tenant-cache/internal/cacheinfra"
)

// DefaultTenant is the tenant used when neither Options nor the context name one.
const DefaultTenant = "global"

type (
	// MemoryConfig sizes the in-process tier.
	MemoryConfig = cacheinfra.MemoryConfig
	// RemoteConfig configures the Redis tier and peer invalidation.
	RemoteConfig = cacheinfra.RemoteConfig
	// BreakerConfig mirrors the gobreaker settings guarding the Redis tier.
	BreakerConfig = cacheinfra.BreakerConfig
	// QueryConfig holds the sturdyc options used by the query-result cache.
	QueryConfig = cacheinfra.QueryConfig
	// EarlyRefreshConfig mirrors the underlying sturdyc early refresh options.
	EarlyRefreshConfig = cacheinfra.EarlyRefreshConfig
)

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	// KeyPrefix is the leading segment of every namespaced key.
	KeyPrefix string

	// DefaultTenant is used for operations that carry no tenant.
	DefaultTenant string

	// DefaultTTL applies when Options.TTL is zero. Zero stores entries that never expire.
	DefaultTTL time.Duration

	Memory MemoryConfig

	// Remote enables the Redis tier. Nil keeps the cache in-process only.
	Remote *RemoteConfig

	// Query configures the query-result cache used by repository decorators.
	Query QueryConfig
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	infra := cacheinfra.DefaultConfig()
	return Config{
		KeyPrefix:     DefaultKeyPrefix,
		DefaultTenant: DefaultTenant,
		Memory:        infra.Memory,
		Query:         infra.Query,
	}
}

// DefaultRemoteConfig returns remote settings for a single Redis node at addr.
func DefaultRemoteConfig(addr string) *RemoteConfig {
	return cacheinfra.DefaultRemoteConfig(addr)
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.KeyPrefix, validation.Required, validation.By(noDelimiter)),
		validation.Field(&c.DefaultTenant, validation.Required),
		validation.Field(&c.DefaultTTL, validation.Min(0)),
	)
	if err == nil {
		err = c.toInternal().Validate()
	}
	if err != nil {
		return errors.Wrap(err, errors.CodeInvalidConfig, "invalid cache configuration")
	}
	return nil
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Memory: c.Memory,
		Remote: c.Remote,
		Query:  c.Query,
	}
}

func noDelimiter(value any) error {
	s, _ := value.(string)
	if strings.Contains(s, keyDelimiter) {
		return validation.NewError("validation_key_prefix", "must not contain "+keyDelimiter)
	}
	return nil
}
