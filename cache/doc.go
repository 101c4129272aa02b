// Package cache provides a tenant-scoped application cache and the helpers used to cache
// repository query results.
//
// # Overview
//
// The package exports two caches with different jobs:
//
//   - Service (IntelligentService): a key-value cache partitioned by tenant, with TTLs,
//     substring invalidation and per-tenant statistics. Values are msgpack encoded, so
//     they can live in Redis and be shared across processes.
//   - QueryCache: a read-through cache for Go values returned by repositories, backed by
//     sturdyc. Concurrent fetches of the same key are coalesced.
//
// # Basic Usage
//
//	svc, err := cache.New(cache.DefaultConfig(), cache.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer svc.Close()
//
//	opts := cache.Options{TenantID: "acme", TTL: 5 * time.Minute}
//	if err := svc.Set(ctx, "product:42", product, opts); err != nil {
//		return err // only values msgpack cannot encode end up here
//	}
//
//	p, ok, err := cache.GetAs[Product](ctx, svc, "product:42", opts)
//
//	removed := svc.InvalidatePattern(ctx, "product:", opts)
//	stats := svc.Stats("acme")
//
// # Tenants and Keys
//
// Every logical key is stored under {prefix}:{tenant}:{key}. The tenant segment is
// escaped, so tenants can never read or invalidate each other's entries. The tenant of an
// operation is Options.TenantID, else the tenant stored with WithTenant, else
// Config.DefaultTenant.
//
// # Failure Semantics
//
// The cache fails open. When Config.Remote is set, every Redis call is bounded by
// RemoteConfig.Timeout and guarded by a circuit breaker; failures are logged and the
// operation continues against the in-process tier. Get reports a miss, writes apply
// locally. The only error a caller sees is ErrSerialization.
//
// # Query Results
//
// Repository decorators build keys with a KeySerializer and read through GetOrFetch:
//
//	serializer := cache.NewDefaultKeySerializer()
//	key := serializer.SerializeKey("GetByID", "user-123")
//	user, err := cache.GetOrFetch(ctx, queryCache, key, func(ctx context.Context) (User, error) {
//		return repository.GetByID(ctx, "user-123")
//	})
//
// Function arguments are keyed by pointer, which is only stable within one process.
// Arguments longer than DefaultMaxArgLength are replaced by their xxhash digest.
//
// For the repository decorator itself, see the repositorycache package.
package cache
