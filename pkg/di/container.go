package di

import (
	repository "github.com/goliatone/go-repository-bun"
	"github.com/jmgilman/go/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/goliatone/go-tenant-cache/cache"
	"github.com/goliatone/go-tenant-cache/pkg/config"
	"github.com/goliatone/go-tenant-cache/repositorycache"
)

// Container provides dependency injection for cache related components.
// It owns one tenant cache service, one query cache shared by every cached repository,
// and the key serializer, and registers their metrics when a registerer is configured.
type Container struct {
	config        cache.Config
	logger        *zap.Logger
	service       *cache.IntelligentService
	queryCache    cache.QueryCache
	queryTracker  *cache.StatsTracker
	keySerializer cache.KeySerializer

	registerer prometheus.Registerer
	collectors []prometheus.Collector
}

type containerOptions struct {
	logger         *zap.Logger
	registerer     prometheus.Registerer
	namespace      string
	serviceOptions []cache.Option
}

// Option customises a Container.
type Option func(*containerOptions)

// WithLogger sets the root logger. Components get named children of it.
func WithLogger(logger *zap.Logger) Option {
	return func(o *containerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRegisterer registers the service and query cache collectors under namespace.
func WithRegisterer(registerer prometheus.Registerer, namespace string) Option {
	return func(o *containerOptions) {
		o.registerer = registerer
		o.namespace = namespace
	}
}

// WithServiceOptions forwards options to cache.New, e.g. cache.WithRedisClient.
func WithServiceOptions(opts ...cache.Option) Option {
	return func(o *containerOptions) {
		o.serviceOptions = append(o.serviceOptions, opts...)
	}
}

// NewContainer creates a new DI container with the provided cache configuration.
func NewContainer(cfg cache.Config, opts ...Option) (*Container, error) {
	o := containerOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	serviceOpts := append([]cache.Option{cache.WithLogger(o.logger.Named("cache"))}, o.serviceOptions...)
	service, err := cache.New(cfg, serviceOpts...)
	if err != nil {
		return nil, err
	}

	queryCache, err := cache.NewQueryCache(cfg.Query)
	if err != nil {
		_ = service.Close()
		return nil, err
	}

	c := &Container{
		config:        cfg,
		logger:        o.logger,
		service:       service,
		queryCache:    queryCache,
		queryTracker:  cache.NewStatsTracker(),
		keySerializer: cache.NewDefaultKeySerializer(),
	}

	if o.registerer != nil {
		if err := c.register(o.registerer, o.namespace); err != nil {
			_ = service.Close()
			return nil, err
		}
	}

	return c, nil
}

// NewContainerWithDefaults creates a new DI container using default configuration.
func NewContainerWithDefaults(opts ...Option) (*Container, error) {
	return NewContainer(cache.DefaultConfig(), opts...)
}

// NewContainerFromFile loads the configuration with config.Load and builds a container.
func NewContainerFromFile(path string, opts ...Option) (*Container, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return NewContainer(cfg, opts...)
}

func (c *Container) register(registerer prometheus.Registerer, namespace string) error {
	collectors := []prometheus.Collector{
		cache.NewCollector(namespace, "service", c.service.Tracker()),
		cache.NewCollector(namespace, "query", c.queryTracker),
	}

	for i, collector := range collectors {
		if err := registerer.Register(collector); err != nil {
			for _, registered := range collectors[:i] {
				registerer.Unregister(registered)
			}
			return errors.Wrap(err, errors.CodeInvalidConfig, "registering cache collectors")
		}
	}

	c.registerer = registerer
	c.collectors = collectors
	return nil
}

// Service returns the singleton tenant cache service.
func (c *Container) Service() *cache.IntelligentService {
	return c.service
}

// QueryCache returns the query cache shared by the repositories built by this container.
func (c *Container) QueryCache() cache.QueryCache {
	return c.queryCache
}

// QueryStats returns the query cache statistics of tenantID.
func (c *Container) QueryStats(tenantID string) cache.Stats {
	return c.queryTracker.Snapshot(tenantID)
}

// KeySerializer returns the singleton key serializer instance.
func (c *Container) KeySerializer() cache.KeySerializer {
	return c.keySerializer
}

// Config returns a copy of the cache configuration used by this container.
func (c *Container) Config() cache.Config {
	return c.config
}

// Logger returns the root logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Close unregisters the collectors and closes the service.
func (c *Container) Close() error {
	for _, collector := range c.collectors {
		c.registerer.Unregister(collector)
	}
	c.collectors = nil
	return c.service.Close()
}

// NewCachedRepository creates a new cached repository that wraps the provided base repository.
// Its keys share the service's prefix and default tenant, and its statistics are reported
// by QueryStats.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewCachedRepository[User](container, baseUserRepository)
func NewCachedRepository[T any](container *Container, base repository.Repository[T], opts ...repositorycache.Option) *repositorycache.CachedRepository[T] {
	defaults := []repositorycache.Option{
		repositorycache.WithKeyCodec(container.service.Codec()),
		repositorycache.WithDefaultTenant(container.config.DefaultTenant),
		repositorycache.WithStatsTracker(container.queryTracker),
		repositorycache.WithLogger(container.logger.Named("repositorycache")),
	}
	return repositorycache.New(base, container.queryCache, container.keySerializer, append(defaults, opts...)...)
}
