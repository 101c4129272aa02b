// Package repositorycache provides a tenant-aware caching decorator for go-repository-bun
// repositories.
//
// # Overview
//
// CachedRepository wraps a repository.Repository[T] and serves its read methods from a
// cache.QueryCache. Writes go straight to the base repository and, when they succeed,
// invalidate the calling tenant's cached reads for the resource.
//
// # Basic Usage
//
//	queryCache, err := cache.NewQueryCache(cfg.Query)
//	if err != nil {
//		return err
//	}
//
//	users := repositorycache.New[User](base, queryCache, cache.NewDefaultKeySerializer(),
//		repositorycache.WithResource("users"),
//		repositorycache.WithStatsTracker(svc.Tracker()),
//	)
//
//	ctx = cache.WithTenant(ctx, "acme")
//	user, err := users.GetByID(ctx, "user-123")
//	records, total, err := users.List(ctx)
//
// # Keys
//
// Keys have the form {prefix}:{tenant}:{resource}::{method}::{args}::{query}. The tenant is read
// from the context (see cache.WithTenant) and falls back to WithDefaultTenant. The
// resource defaults to the snake_case name of T.
//
// # Cached and Pass-through Operations
//
// Get, GetByID, GetByIdentifier, List and Count are cached. List caches records and total
// as a unit. The *Tx methods, Raw and RawTx always reach the base repository so a
// transaction observes its own writes.
//
// Select criteria are closures and have no stable identity, so a read that passes
// criteria is only cached when the context names the query:
//
//	byEmail := repositorycache.WithQueryKey(ctx, "by-email:"+email)
//	user, err := users.Get(byEmail, repository.SelectBy("email", "=", email))
//
// Without a name the read goes to the base repository every time.
//
// # Invalidation
//
// Create, CreateMany and GetOrCreate drop the tenant's Get, List and Count entries for the
// resource. Update, Upsert and every delete variant drop all of the tenant's entries for
// the resource. Invalidate does the same on demand. Failed writes invalidate nothing.
//
// # Errors
//
// Errors from the base repository are returned unchanged and never cached.
package repositorycache
