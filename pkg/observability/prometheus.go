package observability

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DurationBuckets are the histogram buckets, in milliseconds, for Timing.
var DurationBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// PrometheusMetrics implements Metrics on a Prometheus registry. Vectors
// are registered on first use with the label names of that first call;
// later calls for the same name must use the same tag keys.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusMetrics creates a registry with the Go and process
// collectors already registered.
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &PrometheusMetrics{
		registry:   registry,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Registry exposes the underlying registry.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func splitTags(tags []Tag) ([]string, prometheus.Labels) {
	names := make([]string, 0, len(tags))
	labels := make(prometheus.Labels, len(tags))
	for _, t := range tags {
		if _, dup := labels[t.Key]; !dup {
			names = append(names, t.Key)
		}
		labels[t.Key] = t.Value
	}
	sort.Strings(names)
	return names, labels
}

func help(name string) string {
	return strings.ReplaceAll(name, "_", " ")
}

func (m *PrometheusMetrics) counterVec(name string, labelNames []string) *prometheus.CounterVec {
	m.mu.Lock()
	defer m.mu.Unlock()
	if vec, ok := m.counters[name]; ok {
		return vec
	}
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help(name)}, labelNames)
	m.registry.MustRegister(vec)
	m.counters[name] = vec
	return vec
}

func (m *PrometheusMetrics) gaugeVec(name string, labelNames []string) *prometheus.GaugeVec {
	m.mu.Lock()
	defer m.mu.Unlock()
	if vec, ok := m.gauges[name]; ok {
		return vec
	}
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help(name)}, labelNames)
	m.registry.MustRegister(vec)
	m.gauges[name] = vec
	return vec
}

func (m *PrometheusMetrics) histogramVec(name string, labelNames []string) *prometheus.HistogramVec {
	m.mu.Lock()
	defer m.mu.Unlock()
	if vec, ok := m.histograms[name]; ok {
		return vec
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Help:    help(name),
		Buckets: DurationBuckets,
	}, labelNames)
	m.registry.MustRegister(vec)
	m.histograms[name] = vec
	return vec
}

// Counter implements Metrics. Label mismatches are dropped rather than
// panicking in a request path.
func (m *PrometheusMetrics) Counter(name string, value int64, tags ...Tag) {
	names, labels := splitTags(tags)
	c, err := m.counterVec(name, names).GetMetricWith(labels)
	if err != nil {
		return
	}
	c.Add(float64(value))
}

// Gauge implements Metrics.
func (m *PrometheusMetrics) Gauge(name string, value float64, tags ...Tag) {
	names, labels := splitTags(tags)
	g, err := m.gaugeVec(name, names).GetMetricWith(labels)
	if err != nil {
		return
	}
	g.Set(value)
}

// Histogram implements Metrics.
func (m *PrometheusMetrics) Histogram(name string, value float64, tags ...Tag) {
	names, labels := splitTags(tags)
	h, err := m.histogramVec(name, names).GetMetricWith(labels)
	if err != nil {
		return
	}
	h.Observe(value)
}

// Timing implements Metrics, observing milliseconds.
func (m *PrometheusMetrics) Timing(name string, duration time.Duration, tags ...Tag) {
	m.Histogram(name, float64(duration)/float64(time.Millisecond), tags...)
}

var _ Metrics = (*PrometheusMetrics)(nil)
