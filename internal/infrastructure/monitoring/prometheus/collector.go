// Package prometheus exposes pipeline and API metrics on a private registry.
package prometheus

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/turtacn/Controversy-Insight/internal/infrastructure/monitoring/logging"
)

// Collector registers metrics on its own registry so tests and multiple
// instances never collide on the global default.
type Collector struct {
	registry   *prometheus.Registry
	namespace  string
	logger     logging.Logger
	mu         sync.RWMutex
	registered map[string]prometheus.Collector
}

// NewCollector builds a collector with Go runtime and process metrics
// pre-registered.
func NewCollector(namespace string, logger logging.Logger) *Collector {
	if namespace == "" {
		namespace = "controversy"
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Collector{
		registry:   registry,
		namespace:  namespace,
		logger:     logger.Named("metrics"),
		registered: make(map[string]prometheus.Collector),
	}
}

// Handler returns the exposition endpoint for this registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for custom collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Counter registers (or returns the existing) counter vector.
func (c *Collector) Counter(name, help string, labels ...string) *prometheus.CounterVec {
	if existing := c.lookup(name); existing != nil {
		return existing.(*prometheus.CounterVec)
	}
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: c.namespace,
		Name:      name,
		Help:      help,
	}, labels)
	c.register(name, vec)
	return vec
}

// Gauge registers (or returns the existing) gauge vector.
func (c *Collector) Gauge(name, help string, labels ...string) *prometheus.GaugeVec {
	if existing := c.lookup(name); existing != nil {
		return existing.(*prometheus.GaugeVec)
	}
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: c.namespace,
		Name:      name,
		Help:      help,
	}, labels)
	c.register(name, vec)
	return vec
}

// Histogram registers (or returns the existing) histogram vector.
func (c *Collector) Histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	if existing := c.lookup(name); existing != nil {
		return existing.(*prometheus.HistogramVec)
	}
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: c.namespace,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)
	c.register(name, vec)
	return vec
}

func (c *Collector) lookup(name string) prometheus.Collector {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registered[name]
}

func (c *Collector) register(name string, collector prometheus.Collector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.registered[name]; ok {
		return
	}
	if err := c.registry.Register(collector); err != nil {
		c.logger.Error("failed to register metric",
			logging.String("metric", fmt.Sprintf("%s_%s", c.namespace, name)),
			logging.Err(err),
		)
		return
	}
	c.registered[name] = collector
}
