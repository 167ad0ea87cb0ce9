package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthStatus is the state of one dependency or of the whole engine.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// rank orders statuses so the report takes the worst one.
func (s HealthStatus) rank() int {
	switch s {
	case HealthStatusUnhealthy:
		return 2
	case HealthStatusDegraded:
		return 1
	default:
		return 0
	}
}

// HealthCheckResult is what one checker reports.
type HealthCheckResult struct {
	Status   HealthStatus   `json:"status"`
	Message  string         `json:"message,omitempty"`
	Duration time.Duration  `json:"duration_ns"`
	Details  map[string]any `json:"details,omitempty"`
}

// HealthChecker inspects one dependency.
type HealthChecker func(ctx context.Context) HealthCheckResult

// HealthReport is the body served on /health and printed by `health`.
type HealthReport struct {
	Status    HealthStatus                 `json:"status"`
	CheckedAt time.Time                    `json:"checked_at"`
	Checks    map[string]HealthCheckResult `json:"checks"`
}

// HealthRegistry holds the checkers registered while the container wires
// storage, locks, the broker, the payment gateway and the outbox.
type HealthRegistry struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

// NewHealthRegistry creates an empty registry.
func NewHealthRegistry() *HealthRegistry {
	return &HealthRegistry{checkers: make(map[string]HealthChecker)}
}

// Register adds or replaces the checker for a component.
func (r *HealthRegistry) Register(component string, checker HealthChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[component] = checker
}

// Report runs every checker concurrently. An empty registry is healthy.
func (r *HealthRegistry) Report(ctx context.Context) HealthReport {
	r.mu.RLock()
	checkers := make(map[string]HealthChecker, len(r.checkers))
	for name, checker := range r.checkers {
		checkers[name] = checker
	}
	r.mu.RUnlock()

	report := HealthReport{
		Status: HealthStatusHealthy,
		Checks: make(map[string]HealthCheckResult, len(checkers)),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, checker := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			result := checker(ctx)
			result.Duration = time.Since(start)

			mu.Lock()
			defer mu.Unlock()
			report.Checks[name] = result
			if result.Status.rank() > report.Status.rank() {
				report.Status = result.Status
			}
		}()
	}
	wg.Wait()

	report.CheckedAt = time.Now().UTC()
	return report
}

// Handler serves the report. Unhealthy answers 503; degraded still answers
// 200 so an open gateway breaker or a lost Redis does not pull the API out
// of rotation while access checks keep working from storage.
func (r *HealthRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()

		report := r.Report(ctx)
		status := http.StatusOK
		if report.Status == HealthStatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(report)
	})
}

// LivenessHandler answers 200 while the process is serving.
func LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
}

// PingChecker reports onFailure when ping errors. Storage uses unhealthy;
// Redis and RabbitMQ use degraded since the engine falls back without them.
func PingChecker(component string, onFailure HealthStatus, ping func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) HealthCheckResult {
		if err := ping(ctx); err != nil {
			return HealthCheckResult{
				Status:  onFailure,
				Message: component + " unreachable: " + err.Error(),
			}
		}
		return HealthCheckResult{Status: HealthStatusHealthy, Message: component + " reachable"}
	}
}
