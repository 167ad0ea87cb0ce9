package observability

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoopMetrics(t *testing.T) {
	var m Metrics = NoopMetrics{}
	assert.NotPanics(t, func() {
		m.Counter(MetricSubscribeTotal, 1, T("result", "created"))
		m.Gauge(MetricGatewayBreakerState, 1, T("state", "open"))
		m.Histogram("billing_quote_cents", 4900)
		m.Timing(MetricGatewayCallDuration, time.Millisecond)
	})
}

func TestInMemoryMetrics_CountersAreKeyedByTags(t *testing.T) {
	m := NewInMemoryMetrics()

	m.Counter(MetricAuthorizeTotal, 1, T("allowed", "true"), T("reason", "active"))
	m.Counter(MetricAuthorizeTotal, 1, T("allowed", "true"), T("reason", "active"))
	m.Counter(MetricAuthorizeTotal, 1, T("allowed", "false"), T("reason", "no_subscription"))

	assert.Equal(t, int64(2), m.GetCounter(MetricAuthorizeTotal, T("allowed", "true"), T("reason", "active")))
	assert.Equal(t, int64(1), m.GetCounter(MetricAuthorizeTotal, T("allowed", "false"), T("reason", "no_subscription")))
	assert.Zero(t, m.GetCounter(MetricAuthorizeTotal))
}

func TestInMemoryMetrics_GaugeKeepsLastValue(t *testing.T) {
	m := NewInMemoryMetrics()

	m.Gauge(MetricGatewayBreakerState, 1, T("state", "open"))
	m.Gauge(MetricGatewayBreakerState, 0, T("state", "open"))
	m.Gauge(MetricGatewayBreakerState, 1, T("state", "half-open"))

	assert.Equal(t, 0.0, m.GetGauge(MetricGatewayBreakerState, T("state", "open")))
	assert.Equal(t, 1.0, m.GetGauge(MetricGatewayBreakerState, T("state", "half-open")))
}

func TestInMemoryMetrics_HistogramsAndTimings(t *testing.T) {
	m := NewInMemoryMetrics()

	m.Histogram("billing_quote_cents", 4900)
	m.Histogram("billing_quote_cents", 12740)
	m.Timing(MetricGatewayCallDuration, 120*time.Millisecond, T("op", "create subscription"), T("result", "ok"))

	assert.Equal(t, []float64{4900, 12740}, m.GetHistogram("billing_quote_cents"))
	assert.Equal(t, []time.Duration{120 * time.Millisecond},
		m.GetTimings(MetricGatewayCallDuration, T("op", "create subscription"), T("result", "ok")))
	assert.Empty(t, m.GetTimings(MetricGatewayCallDuration, T("op", "create subscription"), T("result", "error")))
}

func TestInMemoryMetrics_Reset(t *testing.T) {
	m := NewInMemoryMetrics()
	m.Counter(MetricCancelTotal, 1, T("result", "ok"))
	m.Gauge(MetricGatewayBreakerState, 1, T("state", "open"))
	m.Histogram("billing_quote_cents", 1)
	m.Timing(MetricGatewayCallDuration, time.Second)

	m.Reset()

	assert.Zero(t, m.GetCounter(MetricCancelTotal, T("result", "ok")))
	assert.Zero(t, m.GetGauge(MetricGatewayBreakerState, T("state", "open")))
	assert.Empty(t, m.GetHistogram("billing_quote_cents"))
	assert.Empty(t, m.GetTimings(MetricGatewayCallDuration))
}

func TestInMemoryMetrics_ConcurrentWebhooks(t *testing.T) {
	m := NewInMemoryMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Counter(MetricWebhookEvents, 1, T("kind", "invoice_paid"), T("result", "applied"))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), m.GetCounter(MetricWebhookEvents, T("kind", "invoice_paid"), T("result", "applied")))
}

func TestFormatKey(t *testing.T) {
	tests := []struct {
		metric string
		tags   []Tag
		want   string
	}{
		{MetricSubscribeTotal, nil, "billing_subscribe_total"},
		{MetricSubscribeTotal, []Tag{T("result", "updated")}, "billing_subscribe_total:result=updated"},
		{MetricHTTPRequests, []Tag{T("method", "POST"), T("status", "202")}, "http_requests_total:method=POST:status=202"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatKey(tt.metric, tt.tags))
		})
	}
}
