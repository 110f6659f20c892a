// Package metrics exposes entity runtime operations as Prometheus metrics.
// PortalCollector implements entity.OperationLogger, so it plugs into a
// runtime next to any other logger:
//
//	collector := metrics.NewPortalCollector()
//	prometheus.MustRegister(collector)
//	rt, err := entity.NewRuntime(scope, entity.WithOperationLogger(collector))
package metrics

import (
	"github.com/goliatone/go-entity"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeOK    = "ok"
	outcomeError = "error"

	// unknownClass labels operations whose identifier never resolved, so
	// arbitrary caller input cannot grow the series set.
	unknownClass = "unknown"
)

// Option configures a PortalCollector.
type Option func(*collectorConfig)

type collectorConfig struct {
	namespace string
	buckets   []float64
	constant  prometheus.Labels
}

// WithNamespace prefixes metric names. The default is "entity".
func WithNamespace(namespace string) Option {
	return func(cfg *collectorConfig) {
		cfg.namespace = namespace
	}
}

// WithBuckets overrides the duration histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(cfg *collectorConfig) {
		if len(buckets) > 0 {
			cfg.buckets = append([]float64(nil), buckets...)
		}
	}
}

// WithConstLabels attaches labels to every series, for example a service name.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(cfg *collectorConfig) {
		cfg.constant = labels
	}
}

// PortalCollector counts runtime operations by name, class identifier and
// outcome, and observes their durations.
type PortalCollector struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

var _ entity.OperationLogger = (*PortalCollector)(nil)
var _ prometheus.Collector = (*PortalCollector)(nil)

// NewPortalCollector builds an unregistered collector.
func NewPortalCollector(opts ...Option) *PortalCollector {
	cfg := collectorConfig{
		namespace: "entity",
		buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return &PortalCollector{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.namespace,
			Name:        "operations_total",
			Help:        "Entity runtime operations by operation, class identifier and outcome.",
			ConstLabels: cfg.constant,
		}, []string{"operation", "class", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   cfg.namespace,
			Name:        "operation_duration_seconds",
			Help:        "Duration of entity runtime operations.",
			Buckets:     cfg.buckets,
			ConstLabels: cfg.constant,
		}, []string{"operation"}),
	}
}

// LogOperation implements entity.OperationLogger.
func (c *PortalCollector) LogOperation(event entity.OperationEvent) {
	if c == nil {
		return
	}
	outcome := outcomeOK
	if event.Err != nil {
		outcome = outcomeError
	}
	class := event.Identifier
	if class == "" {
		class = unknownClass
	}
	c.operations.WithLabelValues(event.Operation, class, outcome).Inc()
	c.duration.WithLabelValues(event.Operation).Observe(event.Duration.Seconds())
}

// Describe implements prometheus.Collector.
func (c *PortalCollector) Describe(ch chan<- *prometheus.Desc) {
	c.operations.Describe(ch)
	c.duration.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *PortalCollector) Collect(ch chan<- prometheus.Metric) {
	c.operations.Collect(ch)
	c.duration.Collect(ch)
}
