package cache

import (
	"context"

	"github.com/vmihailenco/msgpack/v5"
)

// GetAs reads key and decodes it into T. The boolean is false on a miss. A stored value
// that does not decode into T is reported as ErrSerialization.
func GetAs[T any](ctx context.Context, svc Service, key string, opts Options) (T, bool, error) {
	var value T

	data, ok := svc.Get(ctx, key, opts)
	if !ok {
		return value, false, nil
	}
	if err := msgpack.Unmarshal(data, &value); err != nil {
		return value, false, serializationError(key, err)
	}
	return value, true, nil
}

// Remember returns the cached value of key, calling fetch and caching its result on a miss.
// Errors from fetch are returned as is and nothing is cached.
func Remember[T any](ctx context.Context, svc Service, key string, opts Options, fetch FetchFn[T]) (T, error) {
	var value T
	if fetch == nil {
		return value, ErrNilFetch
	}

	data, err := svc.Fetch(ctx, key, opts, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return value, err
	}
	if err := msgpack.Unmarshal(data, &value); err != nil {
		return value, serializationError(key, err)
	}
	return value, nil
}
