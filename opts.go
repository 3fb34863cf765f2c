package lattice

import (
	metrics "github.com/rcrowley/go-metrics"
	"go.uber.org/zap"
)

// config collects container options.
type config struct {
	logger     *zap.Logger
	metadata   MetadataSource
	lifecycle  LifecycleSource
	advice     AdviceSource
	registry   metrics.Registry
	processors []PostProcessor
	middleware []Middleware
	autoBind   bool
}

func defaultConfig() *config {
	return &config{
		logger:    zap.NewNop(),
		metadata:  TagMetadata{},
		lifecycle: InterfaceLifecycle{},
		autoBind:  true,
	}
}

// Option is a configuration option for a container.
type Option func(*config)

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetadata sets the collaborator describing injection points and
// constructors. Defaults to TagMetadata.
func WithMetadata(source MetadataSource) Option {
	return func(c *config) {
		if source != nil {
			c.metadata = source
		}
	}
}

// WithLifecycle sets the collaborator listing post-construct callbacks.
// Defaults to InterfaceLifecycle.
func WithLifecycle(source LifecycleSource) Option {
	return func(c *config) {
		if source != nil {
			c.lifecycle = source
		}
	}
}

// WithAdvice sets the collaborator describing method advice. Without it no
// component is advised.
func WithAdvice(source AdviceSource) Option {
	return func(c *config) {
		c.advice = source
	}
}

// WithMetrics records resolution metrics in registry instead of a private one.
func WithMetrics(registry metrics.Registry) Option {
	return func(c *config) {
		c.registry = registry
	}
}

// WithPostProcessors adds post-processors to the pipeline.
func WithPostProcessors(processors ...PostProcessor) Option {
	return func(c *config) {
		c.processors = append(c.processors, processors...)
	}
}

// WithMiddleware adds resolution middleware.
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *config) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithoutAutoBinding disables auto-construction of unbound concrete types.
func WithoutAutoBinding() Option {
	return func(c *config) {
		c.autoBind = false
	}
}
