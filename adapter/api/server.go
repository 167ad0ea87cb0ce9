// Package api provides the HTTP API of the billing service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ins72/mewayz-good-sub001/internal/billing/domain"
	"github.com/ins72/mewayz-good-sub001/pkg/observability"
)

// Header used to propagate correlation ids between services.
const CorrelationIDHeader = "X-Correlation-ID"

// Server is the HTTP API server.
type Server struct {
	mux     *http.ServeMux
	server  *http.Server
	logger  *slog.Logger
	metrics observability.Metrics
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         "0.0.0.0:8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Dependencies are the handlers and collaborators mounted by the server.
// Health, MetricsHandler and Services are optional. Each entry in Services
// is mounted under ServicePathPrefix and only reached by callers whose
// subscription grants that service.
type Dependencies struct {
	Billing        *BillingHandler
	Services       map[string]http.Handler
	Webhooks       *WebhookHandler
	Tokens         *TokenManager
	Health         *observability.HealthRegistry
	Metrics        observability.Metrics
	MetricsHandler http.Handler
	Logger         *slog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}

	s := &Server{
		mux:     http.NewServeMux(),
		logger:  logger,
		metrics: metrics,
	}
	s.registerRoutes(deps)

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// registerRoutes sets up the API routes.
func (s *Server) registerRoutes(deps Dependencies) {
	// Health check
	if deps.Health != nil {
		s.mux.Handle("GET /health", deps.Health.Handler())
	} else {
		s.mux.Handle("GET /health", observability.LivenessHandler())
	}
	if deps.MetricsHandler != nil {
		s.mux.Handle("GET /metrics", deps.MetricsHandler)
	}

	// Catalog and pricing are public
	h := deps.Billing
	s.mux.HandleFunc("GET /api/v1/bundles", h.ListBundles)
	s.mux.HandleFunc("GET /api/v1/bundles/{bundleID}", h.GetBundle)
	s.mux.HandleFunc("POST /api/v1/pricing/quote", h.Quote)

	// Subscription management
	auth := RequireAuth(deps.Tokens)
	s.mux.Handle("GET /api/v1/subscription", auth(http.HandlerFunc(h.GetSubscription)))
	s.mux.Handle("POST /api/v1/subscription", auth(http.HandlerFunc(h.Subscribe)))
	s.mux.Handle("DELETE /api/v1/subscription", auth(http.HandlerFunc(h.Cancel)))
	s.mux.Handle("GET /api/v1/access/{service}", auth(http.HandlerFunc(h.Authorize)))

	for service, handler := range deps.Services {
		prefix := ServicePathPrefix + service
		s.mux.Handle(prefix+"/", auth(RequireService(h.gate, service)(http.StripPrefix(prefix, handler))))
	}

	// Gateway callbacks authenticate with their signature
	if deps.Webhooks != nil {
		s.mux.Handle("POST /api/v1/webhooks/stripe", deps.Webhooks)
	}
}

// Handler returns the routed handler wrapped with request context and
// metrics middleware.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := observability.NewRequestContext(r.Context(), r.Header.Get(CorrelationIDHeader))
		w.Header().Set(CorrelationIDHeader, observability.CorrelationIDFromContext(ctx))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		s.mux.ServeHTTP(rec, r.WithContext(ctx))

		_, route := s.mux.Handler(r)
		if route == "" {
			route = "unmatched"
		}
		s.metrics.Counter(observability.MetricHTTPRequests, 1,
			observability.T("method", r.Method),
			observability.T("route", route),
			observability.T("status", strconv.Itoa(rec.status)),
		)
		s.logger.DebugContext(ctx, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info("starting billing API server",
		"addr", s.server.Addr,
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down billing API server")
	return s.server.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Log error but can't do much at this point
			slog.Error("failed to encode JSON response", "error", err)
		}
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error":   http.StatusText(status),
		"message": message,
	})
}

// writeDomainError maps billing errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	if status == http.StatusInternalServerError {
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownBundle),
		errors.Is(err, domain.ErrEmptySelection),
		errors.Is(err, domain.ErrInvalidInterval),
		errors.Is(err, domain.ErrInvalidUser),
		errors.Is(err, domain.ErrInvalidEvent):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, domain.ErrGatewayUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrGatewayRejected):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
