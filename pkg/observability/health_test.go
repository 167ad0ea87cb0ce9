package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthRegistry_Report(t *testing.T) {
	refused := errors.New("connection refused")

	tests := []struct {
		name     string
		storeErr error
		redisErr error
		breaker  HealthStatus
		want     HealthStatus
	}{
		{"all healthy", nil, nil, HealthStatusHealthy, HealthStatusHealthy},
		{"redis down degrades", nil, refused, HealthStatusHealthy, HealthStatusDegraded},
		{"open breaker degrades", nil, nil, HealthStatusDegraded, HealthStatusDegraded},
		{"storage down wins over degraded", refused, refused, HealthStatusDegraded, HealthStatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewHealthRegistry()
			r.Register("database", PingChecker("database", HealthStatusUnhealthy, func(context.Context) error { return tt.storeErr }))
			r.Register("redis", PingChecker("redis", HealthStatusDegraded, func(context.Context) error { return tt.redisErr }))
			r.Register("payment_gateway", func(context.Context) HealthCheckResult {
				return HealthCheckResult{Status: tt.breaker}
			})

			report := r.Report(context.Background())
			assert.Equal(t, tt.want, report.Status)
			assert.Len(t, report.Checks, 3)
			assert.False(t, report.CheckedAt.IsZero())
		})
	}
}

func TestHealthRegistry_EmptyIsHealthy(t *testing.T) {
	report := NewHealthRegistry().Report(context.Background())
	assert.Equal(t, HealthStatusHealthy, report.Status)
	assert.Empty(t, report.Checks)
}

func TestHealthRegistry_RegisterReplaces(t *testing.T) {
	r := NewHealthRegistry()
	r.Register("rabbitmq", PingChecker("rabbitmq", HealthStatusDegraded, func(context.Context) error { return errors.New("closed") }))
	r.Register("rabbitmq", PingChecker("rabbitmq", HealthStatusDegraded, func(context.Context) error { return nil }))

	report := r.Report(context.Background())
	assert.Equal(t, HealthStatusHealthy, report.Status)
	assert.Equal(t, "rabbitmq reachable", report.Checks["rabbitmq"].Message)
}

func TestHealthRegistry_Handler(t *testing.T) {
	r := NewHealthRegistry()
	r.Register("database", PingChecker("database", HealthStatusUnhealthy, func(context.Context) error { return errors.New("no route") }))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body HealthReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, HealthStatusUnhealthy, body.Status)
	assert.Equal(t, "database unreachable: no route", body.Checks["database"].Message)
}

func TestHealthRegistry_HandlerDegradedStaysInRotation(t *testing.T) {
	r := NewHealthRegistry()
	r.Register("redis", PingChecker("redis", HealthStatusDegraded, func(context.Context) error { return errors.New("timeout") }))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLivenessHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
