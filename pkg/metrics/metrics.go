// Package metrics records parser activity. It defines a small collector
// interface with a no-op, an in-memory and a Prometheus implementation.
package metrics

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// Metrics Interface
// =============================================================================

// Collector is the interface for collecting and reporting metrics.
// Labels are passed as alternating name/value pairs.
type Collector interface {
	CounterInc(name string, labels ...string)
	CounterAdd(name string, value float64, labels ...string)

	GaugeSet(name string, value float64, labels ...string)
	GaugeInc(name string, labels ...string)
	GaugeDec(name string, labels ...string)

	HistogramObserve(name string, value float64, labels ...string)

	// Handler returns an HTTP handler for the metrics endpoint.
	Handler() http.Handler

	// Reset clears all metrics (for testing)
	Reset()
}

// =============================================================================
// Metric Definitions
// =============================================================================

// MetricType represents the type of metric.
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// DefaultNamespace prefixes every exported metric name.
const DefaultNamespace = "scanlens"

// MetricDefinition defines a metric with its metadata.
type MetricDefinition struct {
	Name    string     `json:"name"`
	Type    MetricType `json:"type"`
	Help    string     `json:"help"`
	Labels  []string   `json:"labels,omitempty"`
	Buckets []float64  `json:"buckets,omitempty"`
}

var (
	ParserParsesTotal = MetricDefinition{
		Name:   "parser_parses_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of parse runs by outcome",
		Labels: []string{"tool", "status"},
	}
	ParserParseDuration = MetricDefinition{
		Name:    "parser_parse_duration_seconds",
		Type:    MetricTypeHistogram,
		Help:    "Duration of parse runs in seconds",
		Labels:  []string{"tool"},
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	}
	ParserFindingsTotal = MetricDefinition{
		Name:   "parser_findings_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of findings produced",
		Labels: []string{"tool", "severity"},
	}
	ParserActiveParses = MetricDefinition{
		Name:   "parser_active_parses",
		Type:   MetricTypeGauge,
		Help:   "Number of parse runs in progress",
		Labels: []string{"tool"},
	}
	ParserDegradedSelections = MetricDefinition{
		Name:   "parser_degraded_selections_total",
		Type:   MetricTypeCounter,
		Help:   "Parser selections made below the parser's confidence threshold",
		Labels: []string{"tool"},
	}
	DetectorDetectionsTotal = MetricDefinition{
		Name:   "detector_detections_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of format detections by detected format",
		Labels: []string{"format"},
	}
)

// Definitions returns every metric the parsing pipeline records.
func Definitions() []MetricDefinition {
	return []MetricDefinition{
		ParserParsesTotal,
		ParserParseDuration,
		ParserFindingsTotal,
		ParserActiveParses,
		ParserDegradedSelections,
		DetectorDetectionsTotal,
	}
}

// =============================================================================
// NopCollector
// =============================================================================

// NopCollector discards all metrics.
type NopCollector struct{}

func (c *NopCollector) CounterInc(name string, labels ...string)                      {}
func (c *NopCollector) CounterAdd(name string, value float64, labels ...string)       {}
func (c *NopCollector) GaugeSet(name string, value float64, labels ...string)         {}
func (c *NopCollector) GaugeInc(name string, labels ...string)                        {}
func (c *NopCollector) GaugeDec(name string, labels ...string)                        {}
func (c *NopCollector) HistogramObserve(name string, value float64, labels ...string) {}
func (c *NopCollector) Handler() http.Handler                                         { return http.NotFoundHandler() }
func (c *NopCollector) Reset()                                                        {}

// =============================================================================
// InMemoryCollector
// =============================================================================

// InMemoryCollector stores metrics in memory. The CLI uses it for its run
// summary and tests use it for assertions.
type InMemoryCollector struct {
	mu         sync.RWMutex
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string][]float64
}

// NewInMemoryCollector creates a new in-memory metrics collector.
func NewInMemoryCollector() *InMemoryCollector {
	c := &InMemoryCollector{}
	c.Reset()
	return c
}

func (c *InMemoryCollector) key(name string, labels []string) string {
	var b strings.Builder
	b.WriteString(name)
	for i := 0; i+1 < len(labels); i += 2 {
		b.WriteString("," + labels[i] + "=" + labels[i+1])
	}
	return b.String()
}

func (c *InMemoryCollector) CounterInc(name string, labels ...string) {
	c.CounterAdd(name, 1, labels...)
}

func (c *InMemoryCollector) CounterAdd(name string, value float64, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[c.key(name, labels)] += value
}

func (c *InMemoryCollector) GaugeSet(name string, value float64, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[c.key(name, labels)] = value
}

func (c *InMemoryCollector) GaugeInc(name string, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[c.key(name, labels)]++
}

func (c *InMemoryCollector) GaugeDec(name string, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[c.key(name, labels)]--
}

func (c *InMemoryCollector) HistogramObserve(name string, value float64, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := c.key(name, labels)
	c.histograms[key] = append(c.histograms[key], value)
}

func (c *InMemoryCollector) Handler() http.Handler {
	return http.NotFoundHandler()
}

func (c *InMemoryCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters = make(map[string]float64)
	c.gauges = make(map[string]float64)
	c.histograms = make(map[string][]float64)
}

// GetCounter returns the value of a counter.
func (c *InMemoryCollector) GetCounter(name string, labels ...string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counters[c.key(name, labels)]
}

// GetGauge returns the value of a gauge.
func (c *InMemoryCollector) GetGauge(name string, labels ...string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gauges[c.key(name, labels)]
}

// GetHistogram returns all observations of a histogram.
func (c *InMemoryCollector) GetHistogram(name string, labels ...string) []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.histograms[c.key(name, labels)]
}

// CounterKeys returns the sorted keys of every counter starting with prefix,
// in the form name,label=value,...
func (c *InMemoryCollector) CounterKeys(prefix string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var keys []string
	for k := range c.counters {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// =============================================================================
// Timer
// =============================================================================

// Timer records the time elapsed since its creation into a histogram.
type Timer struct {
	start     time.Time
	collector Collector
	name      string
	labels    []string
}

// NewTimer starts a timer for the given histogram.
func NewTimer(collector Collector, name string, labels ...string) *Timer {
	return &Timer{
		start:     time.Now(),
		collector: collector,
		name:      name,
		labels:    labels,
	}
}

// Elapsed returns the time since the timer started without recording it.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records and returns the elapsed time.
func (t *Timer) ObserveDuration() time.Duration {
	d := time.Since(t.start)
	t.collector.HistogramObserve(t.name, d.Seconds(), t.labels...)
	return d
}

// =============================================================================
// Global Default Collector
// =============================================================================

var defaultCollector Collector = &NopCollector{}
var defaultCollectorMu sync.RWMutex

// SetDefaultCollector sets the global default metrics collector.
func SetDefaultCollector(collector Collector) {
	defaultCollectorMu.Lock()
	defer defaultCollectorMu.Unlock()
	if collector == nil {
		collector = &NopCollector{}
	}
	defaultCollector = collector
}

// GetDefaultCollector returns the global default metrics collector.
func GetDefaultCollector() Collector {
	defaultCollectorMu.RLock()
	defer defaultCollectorMu.RUnlock()
	return defaultCollector
}

var (
	_ Collector = (*NopCollector)(nil)
	_ Collector = (*InMemoryCollector)(nil)
)
