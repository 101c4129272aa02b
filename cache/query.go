package cache

import (
	"context"
	"fmt"

	"github.com/jmgilman/go/errors"

	"github.com/goliatone/go-tenant-cache/internal/cacheinfra"
)

// KeySerializer builds a cache key from a method name + arbitrary args.
// It is responsible for producing stable keys across calls.
type KeySerializer interface {
	SerializeKey(method string, args ...any) string
}

// FetchFn is the function signature QueryCache expects when fetching from the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// QueryCache is the read-through cache for query results used by repository decorators.
// Values are kept as Go values, not encoded, and concurrent fetches of a key are coalesced.
type QueryCache interface {
	// GetOrFetch returns the value cached under key, calling fetchFn on a miss. fetchFn
	// must not be nil.
	GetOrFetch(ctx context.Context, key string, fetchFn func(context.Context) (any, error)) (any, error)
	Delete(ctx context.Context, key string) error
	// InvalidateKeys removes every listed key. Missing keys are ignored.
	InvalidateKeys(ctx context.Context, keys []string) error
	// Keys returns a snapshot of every cached key.
	Keys(ctx context.Context) []string
}

// NewQueryCache constructs the default sturdyc backed QueryCache.
func NewQueryCache(cfg QueryConfig) (QueryCache, error) {
	store, err := cacheinfra.NewQueryStore(cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "invalid query cache configuration")
	}
	return store, nil
}

// GetOrFetch is a type-safe wrapper function that provides generic support for QueryCache.
// A nil cached result yields the zero value of T.
func GetOrFetch[T any](ctx context.Context, qc QueryCache, key string, fetchFn FetchFn[T]) (T, error) {
	var zero T
	if fetchFn == nil {
		return zero, ErrNilFetch
	}

	result, err := qc.GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		return fetchFn(ctx)
	})
	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}

	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("%w: key %q holds %T, want %T", ErrInvalidResultType, key, result, zero)
	}
	return typed, nil
}

// DeleteMatching removes every query cache key selected by selectFn in one call and
// returns how many were removed. Nothing is counted when the cache rejects the batch.
func DeleteMatching(ctx context.Context, qc QueryCache, selectFn func(keys []string) []string) int {
	selected := selectFn(qc.Keys(ctx))
	if len(selected) == 0 {
		return 0
	}
	if err := qc.InvalidateKeys(ctx, selected); err != nil {
		return 0
	}
	return len(selected)
}
