package lattice

import (
	metrics "github.com/rcrowley/go-metrics"
)

// Metric names registered by the container.
const (
	MetricResolves    = "lattice.resolves"
	MetricFailures    = "lattice.failures"
	MetricInvocations = "lattice.provider.invocations"
	MetricCommitLost  = "lattice.singleton.commit_lost"
	MetricDeferred    = "lattice.cycle.deferred"
	MetricLatency     = "lattice.resolve.latency"
)

type resolverMetrics struct {
	registry    metrics.Registry
	resolves    metrics.Counter
	failures    metrics.Counter
	invocations metrics.Counter
	commitLost  metrics.Counter
	deferred    metrics.Counter
	latency     metrics.Timer
}

func newResolverMetrics(registry metrics.Registry) *resolverMetrics {
	if registry == nil {
		registry = metrics.NewRegistry()
	}

	return &resolverMetrics{
		registry:    registry,
		resolves:    metrics.GetOrRegisterCounter(MetricResolves, registry),
		failures:    metrics.GetOrRegisterCounter(MetricFailures, registry),
		invocations: metrics.GetOrRegisterCounter(MetricInvocations, registry),
		commitLost:  metrics.GetOrRegisterCounter(MetricCommitLost, registry),
		deferred:    metrics.GetOrRegisterCounter(MetricDeferred, registry),
		latency:     metrics.GetOrRegisterTimer(MetricLatency, registry),
	}
}

// counters returns the current counter values by metric name.
func (m *resolverMetrics) counters() map[string]int64 {
	return map[string]int64{
		MetricResolves:    m.resolves.Count(),
		MetricFailures:    m.failures.Count(),
		MetricInvocations: m.invocations.Count(),
		MetricCommitLost:  m.commitLost.Count(),
		MetricDeferred:    m.deferred.Count(),
	}
}
