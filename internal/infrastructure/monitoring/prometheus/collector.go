// Package prometheus exposes BOMMesh metrics on a private registry.
package prometheus

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/turtacn/BOMMesh/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BOMMesh/pkg/errors"
)

// MetricsCollector owns the registry that /metrics serves. Vec
// constructors are idempotent per name, so packages may ask for the same
// metric more than once.
type MetricsCollector interface {
	Counter(name, help string, labels ...string) *prometheus.CounterVec
	Gauge(name, help string, labels ...string) *prometheus.GaugeVec
	Histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec
	Handler() http.Handler
	MustRegister(cs ...prometheus.Collector)
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Namespace            string
	Subsystem            string
	EnableProcessMetrics bool
	EnableGoMetrics      bool
	ConstLabels          map[string]string
}

type registryCollector struct {
	cfg      CollectorConfig
	registry *prometheus.Registry
	logger   logging.Logger

	mu    sync.Mutex
	names map[string]prometheus.Collector
}

// NewMetricsCollector creates a registry under cfg.Namespace.
func NewMetricsCollector(cfg CollectorConfig, logger logging.Logger) (MetricsCollector, error) {
	if cfg.Namespace == "" {
		return nil, errors.New(errors.ErrCodeValidation, "metrics namespace is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	reg := prometheus.NewRegistry()
	if cfg.EnableProcessMetrics {
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: cfg.Namespace}))
	}
	if cfg.EnableGoMetrics {
		reg.MustRegister(collectors.NewGoCollector())
	}

	return &registryCollector{
		cfg:      cfg,
		registry: reg,
		logger:   logger,
		names:    make(map[string]prometheus.Collector),
	}, nil
}

func (c *registryCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (c *registryCollector) MustRegister(cs ...prometheus.Collector) {
	c.registry.MustRegister(cs...)
}

// register returns the collector already registered under name, or
// registers fresh. A failed registration leaves fresh usable but unexported.
func (c *registryCollector) register(name string, fresh prometheus.Collector) prometheus.Collector {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.names[name]; ok {
		return existing
	}
	if err := c.registry.Register(fresh); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			c.names[name] = are.ExistingCollector
			return are.ExistingCollector
		}
		c.logger.Error("Metric registration failed", logging.String("name", name), logging.Err(err))
		return fresh
	}
	c.names[name] = fresh
	return fresh
}

func (c *registryCollector) Counter(name, help string, labels ...string) *prometheus.CounterVec {
	fresh := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   c.cfg.Namespace,
		Subsystem:   c.cfg.Subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: c.cfg.ConstLabels,
	}, labels)
	if v, ok := c.register(name, fresh).(*prometheus.CounterVec); ok {
		return v
	}
	c.logger.Warn("Metric type mismatch", logging.String("name", name), logging.String("want", "counter"))
	return fresh
}

func (c *registryCollector) Gauge(name, help string, labels ...string) *prometheus.GaugeVec {
	fresh := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   c.cfg.Namespace,
		Subsystem:   c.cfg.Subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: c.cfg.ConstLabels,
	}, labels)
	if v, ok := c.register(name, fresh).(*prometheus.GaugeVec); ok {
		return v
	}
	c.logger.Warn("Metric type mismatch", logging.String("name", name), logging.String("want", "gauge"))
	return fresh
}

// Histogram uses prometheus.DefBuckets when buckets is nil.
func (c *registryCollector) Histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	if buckets == nil {
		buckets = prometheus.DefBuckets
	}
	fresh := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   c.cfg.Namespace,
		Subsystem:   c.cfg.Subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: c.cfg.ConstLabels,
		Buckets:     buckets,
	}, labels)
	if v, ok := c.register(name, fresh).(*prometheus.HistogramVec); ok {
		return v
	}
	c.logger.Warn("Metric type mismatch", logging.String("name", name), logging.String("want", "histogram"))
	return fresh
}
