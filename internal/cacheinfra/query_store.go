package cacheinfra

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/viccon/sturdyc"
)

// ToSturdycOptions converts the QueryConfig to sturdyc.Option slice.
// Capacity, NumShards, TTL, and EvictionPercentage are passed directly
// to sturdyc.New() and are not included in the options.
func (c QueryConfig) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option

	if c.EarlyRefresh != nil {
		options = append(options, sturdyc.WithEarlyRefreshes(
			c.EarlyRefresh.MinAsyncRefreshTime,
			c.EarlyRefresh.MaxAsyncRefreshTime,
			c.EarlyRefresh.SyncRefreshTime,
			c.EarlyRefresh.RetryBaseDelay,
		))
	}

	if c.MissingRecordStorage {
		options = append(options, sturdyc.WithMissingRecordStorage())
	}

	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}

	return options
}

// QueryStore caches query results with sturdyc. Concurrent fetches of the same key are
// coalesced into one call to the source of truth.
type QueryStore struct {
	client *sturdyc.Client[any]
}

// NewQueryStore validates cfg and initializes a sturdyc client with it.
func NewQueryStore(cfg QueryConfig) (*QueryStore, error) {
	if err := validation.Validate(cfg); err != nil {
		return nil, err
	}

	client := sturdyc.New[any](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &QueryStore{client: client}, nil
}

// GetOrFetch returns the cached value for key, calling fetchFn on a miss and caching its result.
func (s *QueryStore) GetOrFetch(ctx context.Context, key string, fetchFn func(context.Context) (any, error)) (any, error) {
	return s.client.GetOrFetch(ctx, key, fetchFn)
}

// Delete removes a single entry.
func (s *QueryStore) Delete(_ context.Context, key string) error {
	s.client.Delete(key)
	return nil
}

// InvalidateKeys removes every listed key.
func (s *QueryStore) InvalidateKeys(_ context.Context, keys []string) error {
	for _, key := range keys {
		s.client.Delete(key)
	}
	return nil
}

// Keys returns a snapshot of every cached key.
func (s *QueryStore) Keys(_ context.Context) []string {
	return s.client.ScanKeys()
}
