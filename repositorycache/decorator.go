package repositorycache

import (
	"context"
	"sync/atomic"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/goliatone/go-tenant-cache/cache"
)

// Interface assertion to ensure CachedRepository implements Repository[T]
var _ repository.Repository[any] = (*CachedRepository[any])(nil)

const (
	methodGet             = "Get"
	methodGetByID         = "GetByID"
	methodGetByIdentifier = "GetByIdentifier"
	methodList            = "List"
	methodCount           = "Count"
)

// listResult wraps the tuple result from List operations for caching
type listResult[T any] struct {
	Records []T
	Total   int
}

// CachedRepository decorates a base repository with tenant-scoped query caching.
//
// Read results are cached under {prefix}:{tenant}:{resource}::{method}::{args}. The tenant
// comes from cache.WithTenant on the request context. Writes only invalidate the calling
// tenant's keys for this resource; other tenants keep their cached results.
type CachedRepository[T any] struct {
	base          repository.Repository[T]
	cache         cache.QueryCache
	keySerializer cache.KeySerializer
	codec         cache.KeyCodec
	resource      string
	defaultTenant string
	tracker       *cache.StatsTracker
	logger        *zap.Logger
}

type settings struct {
	resource      string
	codec         cache.KeyCodec
	defaultTenant string
	tracker       *cache.StatsTracker
	logger        *zap.Logger
}

// Option customises a CachedRepository.
type Option func(*settings)

// WithResource overrides the resource segment of the keys. Defaults to the snake_case
// name of the record type.
func WithResource(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.resource = toSnake(name)
		}
	}
}

// WithKeyCodec sets the codec used to namespace keys by tenant.
func WithKeyCodec(codec cache.KeyCodec) Option {
	return func(s *settings) {
		s.codec = codec
	}
}

// WithDefaultTenant sets the tenant used when the context carries none.
func WithDefaultTenant(tenantID string) Option {
	return func(s *settings) {
		if tenantID != "" {
			s.defaultTenant = tenantID
		}
	}
}

// WithStatsTracker records query cache hits, misses and invalidations in tracker.
func WithStatsTracker(tracker *cache.StatsTracker) Option {
	return func(s *settings) {
		s.tracker = tracker
	}
}

// WithLogger sets the logger used for invalidation diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a new CachedRepository that wraps the base repository with caching
func New[T any](base repository.Repository[T], queryCache cache.QueryCache, keySerializer cache.KeySerializer, opts ...Option) *CachedRepository[T] {
	s := settings{
		codec:         cache.NewKeyCodec(""),
		defaultTenant: cache.DefaultTenant,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.resource == "" {
		s.resource = resourceName[T]()
	}

	return &CachedRepository[T]{
		base:          base,
		cache:         queryCache,
		keySerializer: keySerializer,
		codec:         s.codec,
		resource:      s.resource,
		defaultTenant: s.defaultTenant,
		tracker:       s.tracker,
		logger:        s.logger,
	}
}

// Resource returns the resource segment used in this repository's keys.
func (c *CachedRepository[T]) Resource() string {
	return c.resource
}

// Get retrieves a single record using the provided criteria, with caching
func (c *CachedRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	return readThrough(ctx, c, methodGet, criteria, func(ctx context.Context) (T, error) {
		return c.base.Get(ctx, criteria...)
	})
}

// GetByID retrieves a record by ID with optional criteria, with caching
func (c *CachedRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	return readThrough(ctx, c, methodGetByID, criteria, func(ctx context.Context) (T, error) {
		return c.base.GetByID(ctx, id, criteria...)
	}, id)
}

// List retrieves multiple records using the provided criteria, with caching
func (c *CachedRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	res, err := readThrough(ctx, c, methodList, criteria, func(ctx context.Context) (listResult[T], error) {
		records, total, err := c.base.List(ctx, criteria...)
		return listResult[T]{Records: records, Total: total}, err
	})
	if err != nil {
		return nil, 0, err
	}
	return res.Records, res.Total, nil
}

// Count returns the number of records matching the criteria, with caching
func (c *CachedRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	return readThrough(ctx, c, methodCount, criteria, func(ctx context.Context) (int, error) {
		return c.base.Count(ctx, criteria...)
	})
}

// GetByIdentifier retrieves a record by identifier with optional criteria, with caching
func (c *CachedRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return readThrough(ctx, c, methodGetByIdentifier, criteria, func(ctx context.Context) (T, error) {
		return c.base.GetByIdentifier(ctx, identifier, criteria...)
	}, identifier)
}

// Create creates a new record. Write operations pass through to base repository
func (c *CachedRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.Create(ctx, record, criteria...)
	if err == nil {
		c.invalidateAfterCreate(ctx)
	}
	return result, err
}

// CreateTx creates a new record within a transaction
func (c *CachedRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.CreateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.invalidateAfterCreate(ctx)
	}
	return result, err
}

// CreateMany creates multiple records
func (c *CachedRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateMany(ctx, records, criteria...)
	if err == nil {
		c.invalidateAfterCreate(ctx)
	}
	return result, err
}

// CreateManyTx creates multiple records within a transaction
func (c *CachedRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.invalidateAfterCreate(ctx)
	}
	return result, err
}

// GetOrCreate gets a record or creates it if it doesn't exist
func (c *CachedRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	result, err := c.base.GetOrCreate(ctx, record)
	if err == nil {
		c.invalidateAfterCreate(ctx)
	}
	return result, err
}

// GetOrCreateTx gets a record or creates it if it doesn't exist within a transaction
func (c *CachedRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	result, err := c.base.GetOrCreateTx(ctx, tx, record)
	if err == nil {
		c.invalidateAfterCreate(ctx)
	}
	return result, err
}

// Update updates a record
func (c *CachedRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Update(ctx, record, criteria...)
	if err == nil {
		c.invalidateResource(ctx)
	}
	return result, err
}

// UpdateTx updates a record within a transaction
func (c *CachedRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpdateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.invalidateResource(ctx)
	}
	return result, err
}

// UpdateMany updates multiple records
func (c *CachedRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateMany(ctx, records, criteria...)
	if err == nil {
		c.invalidateResource(ctx)
	}
	return result, err
}

// UpdateManyTx updates multiple records within a transaction
func (c *CachedRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.invalidateResource(ctx)
	}
	return result, err
}

// Upsert inserts or updates a record
func (c *CachedRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Upsert(ctx, record, criteria...)
	if err == nil {
		c.invalidateResource(ctx)
	}
	return result, err
}

// UpsertTx inserts or updates a record within a transaction
func (c *CachedRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpsertTx(ctx, tx, record, criteria...)
	if err == nil {
		c.invalidateResource(ctx)
	}
	return result, err
}

// UpsertMany inserts or updates multiple records
func (c *CachedRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertMany(ctx, records, criteria...)
	if err == nil {
		c.invalidateResource(ctx)
	}
	return result, err
}

// UpsertManyTx inserts or updates multiple records within a transaction
func (c *CachedRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.invalidateResource(ctx)
	}
	return result, err
}

// Delete deletes a record
func (c *CachedRepository[T]) Delete(ctx context.Context, record T) error {
	err := c.base.Delete(ctx, record)
	if err == nil {
		c.invalidateResource(ctx)
	}
	return err
}

// DeleteTx deletes a record within a transaction
func (c *CachedRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.base.DeleteTx(ctx, tx, record)
	if err == nil {
		c.invalidateResource(ctx)
	}
	return err
}

// DeleteMany deletes multiple records based on criteria
func (c *CachedRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteMany(ctx, criteria...)
	if err == nil {
		c.invalidateResource(ctx)
	}
	return err
}

// DeleteManyTx deletes multiple records based on criteria within a transaction
func (c *CachedRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteManyTx(ctx, tx, criteria...)
	if err == nil {
		c.invalidateResource(ctx)
	}
	return err
}

// DeleteWhere deletes records based on criteria
func (c *CachedRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteWhere(ctx, criteria...)
	if err == nil {
		c.invalidateResource(ctx)
	}
	return err
}

// DeleteWhereTx deletes records based on criteria within a transaction
func (c *CachedRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteWhereTx(ctx, tx, criteria...)
	if err == nil {
		c.invalidateResource(ctx)
	}
	return err
}

// ForceDelete force deletes a record (bypassing soft delete)
func (c *CachedRepository[T]) ForceDelete(ctx context.Context, record T) error {
	err := c.base.ForceDelete(ctx, record)
	if err == nil {
		c.invalidateResource(ctx)
	}
	return err
}

// ForceDeleteTx force deletes a record within a transaction (bypassing soft delete)
func (c *CachedRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.base.ForceDeleteTx(ctx, tx, record)
	if err == nil {
		c.invalidateResource(ctx)
	}
	return err
}

// GetTx bypasses the cache; reads inside a transaction must see its own writes.
func (c *CachedRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetTx(ctx, tx, criteria...)
}

// GetByIDTx reads by ID inside tx, bypassing the cache.
func (c *CachedRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIDTx(ctx, tx, id, criteria...)
}

// ListTx lists inside tx, bypassing the cache.
func (c *CachedRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return c.base.ListTx(ctx, tx, criteria...)
}

// CountTx counts inside tx, bypassing the cache.
func (c *CachedRepository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	return c.base.CountTx(ctx, tx, criteria...)
}

// GetByIdentifierTx reads by identifier inside tx, bypassing the cache.
func (c *CachedRepository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIdentifierTx(ctx, tx, identifier, criteria...)
}

// Raw executes a raw SQL query and returns the results. Raw queries are never cached.
func (c *CachedRepository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	return c.base.Raw(ctx, sql, args...)
}

// RawTx executes a raw SQL query within a transaction and returns the results
func (c *CachedRepository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	return c.base.RawTx(ctx, tx, sql, args...)
}

// Handlers returns the model handlers from the base repository
func (c *CachedRepository[T]) Handlers() repository.ModelHandlers[T] {
	return c.base.Handlers()
}

// Invalidate drops every cached read of this resource for the tenant in ctx and returns
// how many entries were removed.
func (c *CachedRepository[T]) Invalidate(ctx context.Context) int {
	return c.invalidate(ctx, c.resourcePrefix())
}

func (c *CachedRepository[T]) tenant(ctx context.Context) string {
	return cache.ResolveTenant(ctx, "", c.defaultTenant)
}

func (c *CachedRepository[T]) resourcePrefix() string {
	return c.resource + cache.KeySeparator
}

func (c *CachedRepository[T]) key(tenant, method string, args ...any) string {
	return c.codec.Encode(tenant, c.resourcePrefix()+c.keySerializer.SerializeKey(method, args...))
}

// readThrough serves method from the query cache, fetching on a miss. The last key
// segment scopes the read: empty without criteria, the WithQueryKey name otherwise.
// Reads with unnamed criteria are not cached.
func readThrough[T, R any](ctx context.Context, c *CachedRepository[T], method string, criteria []repository.SelectCriteria, fetch cache.FetchFn[R], args ...any) (R, error) {
	scope := ""
	if len(criteria) > 0 {
		name, ok := QueryKeyFromContext(ctx)
		if !ok {
			c.logger.Debug("uncached read, criteria without a query key",
				zap.String("resource", c.resource),
				zap.String("method", method),
			)
			return fetch(ctx)
		}
		scope = name
	}

	tenant := c.tenant(ctx)
	key := c.key(tenant, method, append(args, scope)...)

	var fetched atomic.Bool
	res, err := cache.GetOrFetch(ctx, c.cache, key, func(ctx context.Context) (R, error) {
		fetched.Store(true)
		return fetch(ctx)
	})

	if c.tracker != nil {
		if fetched.Load() {
			c.tracker.RecordMiss(tenant)
		} else {
			c.tracker.RecordHit(tenant)
		}
	}

	return res, err
}

// invalidateAfterCreate drops the reads a new record can change: listings, counts and
// criteria lookups. Lookups by id or identifier cannot have matched a record that did
// not exist, and failed lookups are never cached.
func (c *CachedRepository[T]) invalidateAfterCreate(ctx context.Context) int {
	base := c.resourcePrefix()
	return c.invalidate(ctx,
		base+methodList+cache.KeySeparator,
		base+methodCount+cache.KeySeparator,
		base+methodGet+cache.KeySeparator,
	)
}

// invalidateResource drops every cached read of the resource. Updates and deletes do not
// tell us which criteria the affected records matched.
func (c *CachedRepository[T]) invalidateResource(ctx context.Context) int {
	return c.invalidate(ctx, c.resourcePrefix())
}

func (c *CachedRepository[T]) invalidate(ctx context.Context, prefixes ...string) int {
	tenant := c.tenant(ctx)

	removed := cache.DeleteMatching(ctx, c.cache, func(keys []string) []string {
		var selected []string
		for _, prefix := range prefixes {
			selected = append(selected, cache.SelectByPrefix(c.codec, tenant, prefix, keys)...)
		}
		return selected
	})

	if c.tracker != nil {
		c.tracker.RecordInvalidation(tenant, removed)
	}

	c.logger.Debug("invalidated cached queries",
		zap.String("resource", c.resource),
		zap.String("tenant", tenant),
		zap.Strings("prefixes", prefixes),
		zap.Int("removed", removed),
	)

	return removed
}
