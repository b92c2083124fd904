package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// =============================================================================
// Prometheus Collector
// =============================================================================

// PrometheusCollector implements Collector on a Prometheus registry.
// Observations for metrics that were never registered are dropped.
type PrometheusCollector struct {
	mu sync.RWMutex

	registry *prometheus.Registry

	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec

	namespace string
}

// PrometheusConfig configures the Prometheus collector.
type PrometheusConfig struct {
	// Namespace prefixes all metric names. Defaults to DefaultNamespace.
	Namespace string

	// Registry is the Prometheus registry to use (nil = new registry with
	// the Go and process collectors).
	Registry *prometheus.Registry
}

// NewPrometheusCollector creates a collector with every definition from
// Definitions registered.
func NewPrometheusCollector(cfg *PrometheusConfig) (*PrometheusCollector, error) {
	if cfg == nil {
		cfg = &PrometheusConfig{}
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	c := &PrometheusCollector{
		registry:   registry,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		namespace:  namespace,
	}
	for _, def := range Definitions() {
		if err := c.Register(def); err != nil {
			return nil, fmt.Errorf("register %s: %w", def.Name, err)
		}
	}
	return c, nil
}

// Register adds a metric. Registering a name twice is a no-op.
func (c *PrometheusCollector) Register(def MetricDefinition) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var vec prometheus.Collector
	switch def.Type {
	case MetricTypeCounter:
		if _, exists := c.counters[def.Name]; exists {
			return nil
		}
		cv := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      def.Name,
			Help:      def.Help,
		}, def.Labels)
		c.counters[def.Name] = cv
		vec = cv
	case MetricTypeGauge:
		if _, exists := c.gauges[def.Name]; exists {
			return nil
		}
		gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      def.Name,
			Help:      def.Help,
		}, def.Labels)
		c.gauges[def.Name] = gv
		vec = gv
	case MetricTypeHistogram:
		if _, exists := c.histograms[def.Name]; exists {
			return nil
		}
		buckets := def.Buckets
		if len(buckets) == 0 {
			buckets = prometheus.DefBuckets
		}
		hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: c.namespace,
			Name:      def.Name,
			Help:      def.Help,
			Buckets:   buckets,
		}, def.Labels)
		c.histograms[def.Name] = hv
		vec = hv
	default:
		return fmt.Errorf("unsupported metric type %q", def.Type)
	}

	if err := c.registry.Register(vec); err != nil {
		delete(c.counters, def.Name)
		delete(c.gauges, def.Name)
		delete(c.histograms, def.Name)
		return err
	}
	return nil
}

func (c *PrometheusCollector) CounterInc(name string, labels ...string) {
	c.CounterAdd(name, 1, labels...)
}

func (c *PrometheusCollector) CounterAdd(name string, value float64, labels ...string) {
	c.mu.RLock()
	counter, ok := c.counters[name]
	c.mu.RUnlock()
	if !ok {
		return
	}
	counter.WithLabelValues(labelsToValues(labels)...).Add(value)
}

func (c *PrometheusCollector) GaugeSet(name string, value float64, labels ...string) {
	if gauge, ok := c.gauge(name); ok {
		gauge.WithLabelValues(labelsToValues(labels)...).Set(value)
	}
}

func (c *PrometheusCollector) GaugeInc(name string, labels ...string) {
	if gauge, ok := c.gauge(name); ok {
		gauge.WithLabelValues(labelsToValues(labels)...).Inc()
	}
}

func (c *PrometheusCollector) GaugeDec(name string, labels ...string) {
	if gauge, ok := c.gauge(name); ok {
		gauge.WithLabelValues(labelsToValues(labels)...).Dec()
	}
}

func (c *PrometheusCollector) gauge(name string) (*prometheus.GaugeVec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.gauges[name]
	return g, ok
}

func (c *PrometheusCollector) HistogramObserve(name string, value float64, labels ...string) {
	c.mu.RLock()
	histogram, ok := c.histograms[name]
	c.mu.RUnlock()
	if !ok {
		return
	}
	histogram.WithLabelValues(labelsToValues(labels)...).Observe(value)
}

func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Reset clears counter and gauge series. Histograms keep their observations.
func (c *PrometheusCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, counter := range c.counters {
		counter.Reset()
	}
	for _, gauge := range c.gauges {
		gauge.Reset()
	}
}

// Registry returns the underlying Prometheus registry.
func (c *PrometheusCollector) Registry() *prometheus.Registry {
	return c.registry
}

// labelsToValues keeps the values of name/value label pairs.
// Input: ["tool", "bandit", "status", "success"]
// Output: ["bandit", "success"]
func labelsToValues(labels []string) []string {
	if len(labels) == 0 {
		return nil
	}
	values := make([]string, 0, len(labels)/2)
	for i := 1; i < len(labels); i += 2 {
		values = append(values, labels[i])
	}
	return values
}

var _ Collector = (*PrometheusCollector)(nil)
