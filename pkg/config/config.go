// Package config loads cache.Config from a file and the environment.
//
// Keys mirror the Config fields in snake_case, e.g.
//
//	key_prefix: tenant
//	default_ttl: 5m
//	memory:
//	  capacity: 10000
//	remote:
//	  addrs: [localhost:6379]
//	  timeout: 250ms
//	query:
//	  early_refresh:
//	    enabled: true
//
// Every key can be overridden with a TENANTCACHE_ variable, dots replaced by
// underscores: TENANTCACHE_REMOTE_ADDRS="redis-a:6379 redis-b:6379".
package config

import (
	"strings"

	"github.com/jmgilman/go/errors"
	"github.com/spf13/viper"

	"github.com/goliatone/go-tenant-cache/cache"
)

// EnvPrefix is the prefix of the environment overrides.
const EnvPrefix = "TENANTCACHE"

// Load reads path (YAML, JSON or TOML, by extension) and the environment into a validated
// cache.Config. An empty path reads the environment only. Unset keys keep the values of
// cache.DefaultConfig. The Redis tier is enabled when remote.addrs is not empty.
func Load(path string) (cache.Config, error) {
	v := New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cache.Config{}, errors.Wrap(err, errors.CodeInvalidConfig, "reading cache configuration file")
		}
	}

	cfg := Decode(v)
	if err := cfg.Validate(); err != nil {
		return cache.Config{}, err
	}
	return cfg, nil
}

// New returns a viper instance carrying the cache defaults and the environment bindings.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	def := cache.DefaultConfig()
	remote := cache.DefaultRemoteConfig("")
	early := def.Query.EarlyRefresh

	v.SetDefault("key_prefix", def.KeyPrefix)
	v.SetDefault("default_tenant", def.DefaultTenant)
	v.SetDefault("default_ttl", def.DefaultTTL)

	v.SetDefault("memory.capacity", def.Memory.Capacity)
	v.SetDefault("memory.eviction_percentage", def.Memory.EvictionPercentage)
	v.SetDefault("memory.eviction_interval", def.Memory.EvictionInterval)

	v.SetDefault("remote.addrs", []string{})
	v.SetDefault("remote.username", "")
	v.SetDefault("remote.password", "")
	v.SetDefault("remote.db", remote.DB)
	v.SetDefault("remote.pool_size", remote.PoolSize)
	v.SetDefault("remote.min_idle_conns", remote.MinIdleConns)
	v.SetDefault("remote.key_prefix", remote.KeyPrefix)
	v.SetDefault("remote.timeout", remote.Timeout)
	v.SetDefault("remote.channel", remote.Channel)
	v.SetDefault("remote.local_ttl", remote.LocalTTL)
	v.SetDefault("remote.breaker.max_requests", remote.Breaker.MaxRequests)
	v.SetDefault("remote.breaker.interval", remote.Breaker.Interval)
	v.SetDefault("remote.breaker.timeout", remote.Breaker.Timeout)
	v.SetDefault("remote.breaker.failure_threshold", remote.Breaker.FailureThreshold)
	v.SetDefault("remote.breaker.min_requests", remote.Breaker.MinRequests)

	v.SetDefault("query.capacity", def.Query.Capacity)
	v.SetDefault("query.num_shards", def.Query.NumShards)
	v.SetDefault("query.ttl", def.Query.TTL)
	v.SetDefault("query.eviction_percentage", def.Query.EvictionPercentage)
	v.SetDefault("query.eviction_interval", def.Query.EvictionInterval)
	v.SetDefault("query.missing_record_storage", def.Query.MissingRecordStorage)
	v.SetDefault("query.early_refresh.enabled", early != nil)
	if early != nil {
		v.SetDefault("query.early_refresh.min_async_refresh_time", early.MinAsyncRefreshTime)
		v.SetDefault("query.early_refresh.max_async_refresh_time", early.MaxAsyncRefreshTime)
		v.SetDefault("query.early_refresh.sync_refresh_time", early.SyncRefreshTime)
		v.SetDefault("query.early_refresh.retry_base_delay", early.RetryBaseDelay)
	}
}

// Decode builds a cache.Config from v without validating it.
func Decode(v *viper.Viper) cache.Config {
	cfg := cache.Config{
		KeyPrefix:     v.GetString("key_prefix"),
		DefaultTenant: v.GetString("default_tenant"),
		DefaultTTL:    v.GetDuration("default_ttl"),
		Memory: cache.MemoryConfig{
			Capacity:           v.GetInt("memory.capacity"),
			EvictionPercentage: v.GetInt("memory.eviction_percentage"),
			EvictionInterval:   v.GetDuration("memory.eviction_interval"),
		},
		Query: cache.QueryConfig{
			Capacity:             v.GetInt("query.capacity"),
			NumShards:            v.GetInt("query.num_shards"),
			TTL:                  v.GetDuration("query.ttl"),
			EvictionPercentage:   v.GetInt("query.eviction_percentage"),
			EvictionInterval:     v.GetDuration("query.eviction_interval"),
			MissingRecordStorage: v.GetBool("query.missing_record_storage"),
		},
	}

	if v.GetBool("query.early_refresh.enabled") {
		cfg.Query.EarlyRefresh = &cache.EarlyRefreshConfig{
			MinAsyncRefreshTime: v.GetDuration("query.early_refresh.min_async_refresh_time"),
			MaxAsyncRefreshTime: v.GetDuration("query.early_refresh.max_async_refresh_time"),
			SyncRefreshTime:     v.GetDuration("query.early_refresh.sync_refresh_time"),
			RetryBaseDelay:      v.GetDuration("query.early_refresh.retry_base_delay"),
		}
	}

	if addrs := v.GetStringSlice("remote.addrs"); len(addrs) > 0 {
		cfg.Remote = &cache.RemoteConfig{
			Addrs:        addrs,
			Username:     v.GetString("remote.username"),
			Password:     v.GetString("remote.password"),
			DB:           v.GetInt("remote.db"),
			PoolSize:     v.GetInt("remote.pool_size"),
			MinIdleConns: v.GetInt("remote.min_idle_conns"),
			KeyPrefix:    v.GetString("remote.key_prefix"),
			Timeout:      v.GetDuration("remote.timeout"),
			Channel:      v.GetString("remote.channel"),
			LocalTTL:     v.GetDuration("remote.local_ttl"),
			Breaker: cache.BreakerConfig{
				MaxRequests:      v.GetUint32("remote.breaker.max_requests"),
				Interval:         v.GetDuration("remote.breaker.interval"),
				Timeout:          v.GetDuration("remote.breaker.timeout"),
				FailureThreshold: v.GetFloat64("remote.breaker.failure_threshold"),
				MinRequests:      v.GetUint32("remote.breaker.min_requests"),
			},
		}
	}

	return cfg
}
