// Package gateway wraps a PaymentGateway with timeouts and a circuit
// breaker.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ins72/mewayz-good-sub001/internal/billing/domain"
	"github.com/ins72/mewayz-good-sub001/pkg/observability"
	"github.com/sony/gobreaker/v2"
)

// Config configures the resilient gateway.
type Config struct {
	// Timeout bounds each gateway call.
	Timeout time.Duration

	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold uint32

	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration

	// MaxRequests is the number of trial calls allowed while half-open.
	MaxRequests uint32
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		MaxRequests:      1,
	}
}

// ResilientGateway decorates a PaymentGateway. While the breaker is open
// calls fail fast with ErrGatewayUnavailable. Rejections such as declined
// cards and canceled contexts do not count as failures.
type ResilientGateway struct {
	next    domain.PaymentGateway
	breaker *gobreaker.CircuitBreaker[any]
	timeout time.Duration
	logger  *slog.Logger
	metrics observability.Metrics
}

// NewResilientGateway wraps next.
func NewResilientGateway(next domain.PaymentGateway, cfg Config, logger *slog.Logger) *ResilientGateway {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = defaults.FailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = defaults.OpenTimeout
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = defaults.MaxRequests
	}

	g := &ResilientGateway{
		next:    next,
		timeout: cfg.Timeout,
		logger:  logger,
		metrics: observability.NoopMetrics{},
	}

	g.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "payment_gateway",
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			g.metrics.Gauge(observability.MetricGatewayBreakerState, 0, observability.T("state", from.String()))
			g.metrics.Gauge(observability.MetricGatewayBreakerState, 1, observability.T("state", to.String()))
		},
	})
	return g
}

// WithMetrics records call durations and breaker state.
func (g *ResilientGateway) WithMetrics(metrics observability.Metrics) *ResilientGateway {
	if metrics != nil {
		g.metrics = metrics
	}
	return g
}

// State returns the breaker state name.
func (g *ResilientGateway) State() string {
	return g.breaker.State().String()
}

// HealthCheck reports an open breaker as degraded: new subscribes and
// cancels fail fast while access checks keep answering from storage.
func (g *ResilientGateway) HealthCheck(context.Context) observability.HealthCheckResult {
	state := g.breaker.State()
	result := observability.HealthCheckResult{
		Status:  observability.HealthStatusHealthy,
		Message: "payment gateway breaker " + state.String(),
		Details: map[string]any{"state": state.String()},
	}
	if state == gobreaker.StateOpen {
		result.Status = observability.HealthStatusDegraded
	}
	return result
}

func isSuccessful(err error) bool {
	return err == nil ||
		errors.Is(err, domain.ErrGatewayRejected) ||
		errors.Is(err, context.Canceled)
}

func (g *ResilientGateway) call(ctx context.Context, op string, fn func(ctx context.Context) (any, error)) (any, error) {
	start := time.Now()

	result, err := g.breaker.Execute(func() (any, error) {
		callCtx := ctx
		if g.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}
		return fn(callCtx)
	})

	outcome := "ok"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = "open"
		err = domain.NewGatewayError(op, domain.ErrGatewayUnavailable)
	case err != nil:
		outcome = "error"
		err = domain.NewGatewayError(op, err)
	}
	g.metrics.Timing(observability.MetricGatewayCallDuration, time.Since(start),
		observability.T("op", op),
		observability.T("result", outcome),
	)
	return result, err
}

func (g *ResilientGateway) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error) {
	res, err := g.call(ctx, "create customer", func(ctx context.Context) (any, error) {
		return g.next.CreateCustomer(ctx, email, metadata)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

func (g *ResilientGateway) CreateSubscription(ctx context.Context, req domain.SubscriptionRequest) (domain.GatewaySubscription, error) {
	res, err := g.call(ctx, "create subscription", func(ctx context.Context) (any, error) {
		return g.next.CreateSubscription(ctx, req)
	})
	if err != nil {
		return domain.GatewaySubscription{}, err
	}
	return res.(domain.GatewaySubscription), nil
}

func (g *ResilientGateway) UpdateSubscription(ctx context.Context, subscriptionID string, req domain.SubscriptionRequest) (domain.SubscriptionStatus, error) {
	res, err := g.call(ctx, "update subscription", func(ctx context.Context) (any, error) {
		return g.next.UpdateSubscription(ctx, subscriptionID, req)
	})
	if err != nil {
		return "", err
	}
	return res.(domain.SubscriptionStatus), nil
}

func (g *ResilientGateway) CancelSubscription(ctx context.Context, subscriptionID string) error {
	_, err := g.call(ctx, "cancel subscription", func(ctx context.Context) (any, error) {
		return nil, g.next.CancelSubscription(ctx, subscriptionID)
	})
	return err
}

var _ domain.PaymentGateway = (*ResilientGateway)(nil)
