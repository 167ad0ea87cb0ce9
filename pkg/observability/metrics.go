package observability

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// Metrics is the sink the synchronizer, access gate, gateway breaker and
// outbox relay report to. Implementations must be safe for concurrent use.
type Metrics interface {
	Counter(name string, value int64, tags ...Tag)
	Gauge(name string, value float64, tags ...Tag)
	Histogram(name string, value float64, tags ...Tag)
	// Timing is exported in milliseconds.
	Timing(name string, duration time.Duration, tags ...Tag)
}

// Tag is one label, e.g. result=created on billing_subscribe_total.
type Tag struct {
	Key   string
	Value string
}

// T builds a Tag.
func T(key, value string) Tag {
	return Tag{Key: key, Value: value}
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) Counter(string, int64, ...Tag)        {}
func (NoopMetrics) Gauge(string, float64, ...Tag)        {}
func (NoopMetrics) Histogram(string, float64, ...Tag)    {}
func (NoopMetrics) Timing(string, time.Duration, ...Tag) {}

// InMemoryMetrics records series keyed by name and tags in call order.
// Tests assert on it; the CLI uses it since it has no scrape endpoint.
type InMemoryMetrics struct {
	mu       sync.RWMutex
	counters map[string]int64
	gauges   map[string]float64
	samples  map[string][]float64
	timings  map[string][]time.Duration
}

// NewInMemoryMetrics creates an empty recorder.
func NewInMemoryMetrics() *InMemoryMetrics {
	m := &InMemoryMetrics{}
	m.Reset()
	return m
}

func (m *InMemoryMetrics) Counter(name string, value int64, tags ...Tag) {
	m.record(func() { m.counters[formatKey(name, tags)] += value })
}

func (m *InMemoryMetrics) Gauge(name string, value float64, tags ...Tag) {
	m.record(func() { m.gauges[formatKey(name, tags)] = value })
}

func (m *InMemoryMetrics) Histogram(name string, value float64, tags ...Tag) {
	m.record(func() {
		key := formatKey(name, tags)
		m.samples[key] = append(m.samples[key], value)
	})
}

func (m *InMemoryMetrics) Timing(name string, duration time.Duration, tags ...Tag) {
	m.record(func() {
		key := formatKey(name, tags)
		m.timings[key] = append(m.timings[key], duration)
	})
}

func (m *InMemoryMetrics) record(apply func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	apply()
}

// GetCounter returns the summed counter, zero when never incremented.
func (m *InMemoryMetrics) GetCounter(name string, tags ...Tag) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[formatKey(name, tags)]
}

// GetGauge returns the last gauge value.
func (m *InMemoryMetrics) GetGauge(name string, tags ...Tag) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gauges[formatKey(name, tags)]
}

// GetHistogram returns a copy of the observed samples.
func (m *InMemoryMetrics) GetHistogram(name string, tags ...Tag) []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.samples[formatKey(name, tags)])
}

// GetTimings returns a copy of the recorded durations.
func (m *InMemoryMetrics) GetTimings(name string, tags ...Tag) []time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.timings[formatKey(name, tags)])
}

// Reset drops every series.
func (m *InMemoryMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = map[string]int64{}
	m.gauges = map[string]float64{}
	m.samples = map[string][]float64{}
	m.timings = map[string][]time.Duration{}
}

// formatKey renders name:k1=v1:k2=v2 in the order the tags were given.
func formatKey(name string, tags []Tag) string {
	var b strings.Builder
	b.WriteString(name)
	for _, t := range tags {
		b.WriteString(":" + t.Key + "=" + t.Value)
	}
	return b.String()
}

// Metric names. Durations recorded through Timing are exported in
// milliseconds, so their names end in _ms.
const (
	// tags: result
	MetricSubscribeTotal = "billing_subscribe_total"
	// tags: result
	MetricCancelTotal = "billing_cancel_total"
	// tags: kind, result
	MetricWebhookEvents = "billing_webhook_events_total"
	// tags: allowed, reason
	MetricAuthorizeTotal = "billing_authorize_total"
	// tags: op, result
	MetricGatewayCallDuration = "billing_gateway_call_duration_ms"
	// tags: state
	MetricGatewayBreakerState = "billing_gateway_breaker_state"

	// tags: method, route, status
	MetricHTTPRequests = "http_requests_total"
)
