// Package lattice is a runtime component resolution and lifecycle container.
//
// Components are bound under a ComponentKey (type, optional name, owning
// scope, collection flag) to one of several providers at a priority. The
// container builds them on demand, caches singletons per scope, detects
// dependency cycles and breaks the ones requested through interfaces with a
// registered forwarder, runs an ordered post-processor pipeline over fresh
// instances, and wraps components resolved through interfaces with advised
// proxies when the advice collaborator asks for it.
//
// Basic usage:
//
//	c := lattice.New(lattice.WithLogger(logger))
//
//	_ = lattice.BindConstructor[*UserService](c, NewUserService, lattice.AsSingleton())
//	_ = lattice.BindType[Store, *PostgresStore](c, lattice.AsSingleton())
//
//	svc, err := lattice.Get[*UserService](c)
package lattice

import (
	"context"
	"reflect"
	"sync"

	metrics "github.com/rcrowley/go-metrics"
	"go.uber.org/zap"
)

// Container owns the root scope and the collaborators shared by every scope.
type Container struct {
	root       *Scope
	logger     *zap.Logger
	metadata   MetadataSource
	lifecycle  LifecycleSource
	autoBind   bool
	pipeline   *pipeline
	advisor    *advisor
	middleware *middlewareChain
	metrics    *resolverMetrics

	fwdMu      sync.RWMutex
	forwarders map[reflect.Type]ForwarderFunc

	// auto caches auto-constructed bindings by type
	auto sync.Map

	// active maps a goroutine id to the request it is resolving
	active sync.Map
}

// New creates a container.
func New(opts ...Option) *Container {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	c := &Container{
		logger:     cfg.logger,
		metadata:   cfg.metadata,
		lifecycle:  cfg.lifecycle,
		autoBind:   cfg.autoBind,
		pipeline:   newPipeline(),
		advisor:    newAdvisor(cfg.advice, cfg.logger),
		middleware: newMiddlewareChain(),
		metrics:    newResolverMetrics(cfg.registry),
		forwarders: make(map[reflect.Type]ForwarderFunc),
	}

	c.root = newScope(c, nil, ApplicationScope)

	c.pipeline.add(&populateProcessor{metadata: cfg.metadata})
	c.pipeline.add(&postConstructProcessor{lifecycle: cfg.lifecycle})

	for _, pp := range cfg.processors {
		c.pipeline.add(pp)
	}

	for _, mw := range cfg.middleware {
		c.middleware.add(mw)
	}

	return c
}

// Bind starts a binding in the root scope.
func (c *Container) Bind(key ComponentKey) *BindingBuilder {
	return c.root.Bind(key)
}

// Hierarchy returns the bindings of key in the root scope.
func (c *Container) Hierarchy(key ComponentKey) *BindingHierarchy {
	return c.root.Hierarchy(key)
}

// Get resolves key from the root scope.
func (c *Container) Get(key ComponentKey) (any, error) {
	return c.root.Get(key)
}

// GetContext resolves key from the root scope with a context handed to
// providers and lifecycle callbacks.
func (c *Container) GetContext(ctx context.Context, key ComponentKey) (any, error) {
	return c.root.GetContext(ctx, key)
}

// Root returns the application scope.
func (c *Container) Root() *Scope {
	return c.root
}

// NewScope creates a child of the root scope.
func (c *Container) NewScope() *Scope {
	return c.root.NewScope()
}

// Use adds middleware to the container.
func (c *Container) Use(middleware Middleware) {
	c.middleware.add(middleware)
}

// AddPostProcessor adds a post-processor to the pipeline. It applies to
// instances constructed afterwards.
func (c *Container) AddPostProcessor(pp PostProcessor) {
	c.pipeline.add(pp)
}

// Logger returns the container logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Metrics returns the registry holding the resolution metrics.
func (c *Container) Metrics() metrics.Registry {
	return c.metrics.registry
}

// Close tears down the root scope and every child scope.
func (c *Container) Close(ctx context.Context) error {
	return c.root.Close(ctx)
}
