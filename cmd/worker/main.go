package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ins72/mewayz-good-sub001/internal/app"
	billingApp "github.com/ins72/mewayz-good-sub001/internal/billing/application"
	"github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/eventbus"
	"github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/outbox"
	"github.com/ins72/mewayz-good-sub001/pkg/config"
	"github.com/ins72/mewayz-good-sub001/pkg/observability"
)

func main() {
	logger := observability.LoggerFromEnv()
	logger.Info("starting mewayz billing worker")

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger = observability.NewLogger(observability.LogConfigFor(cfg.AppEnv, cfg.LogLevel, cfg.LogFormat, os.Getenv("APP_VERSION")))

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}
	defer container.Close()

	processor := container.OutboxProcessor
	if err := processor.Start(ctx); err != nil {
		logger.Error("failed to start outbox processor", "error", err)
		os.Exit(1)
	}

	if cfg.RabbitMQURL != "" {
		consumer, err := eventbus.NewRabbitMQConsumer(eventbus.RabbitMQConsumerConfig{
			URL:     cfg.RabbitMQURL,
			Logger:  logger,
			Metrics: container.Metrics,
		}, nil)
		if err != nil {
			logger.Warn("audit consumer unavailable", "error", err)
		} else {
			defer func() { _ = consumer.Close() }()
			consumer.RegisterConsumer(billingApp.NewSubscriptionAuditSubscriber(logger))
			go func() {
				if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("audit consumer stopped", "error", err)
				}
			}()
		}
	}

	go runEvery(ctx, cfg.OutboxCleanupInterval, func() {
		deleted, err := processor.Cleanup(ctx)
		if err != nil {
			logger.Error("outbox cleanup failed", "error", err)
			return
		}
		if deleted > 0 {
			logger.Info("outbox cleanup completed", "deleted", deleted, "retention_days", cfg.OutboxRetentionDays)
		}
	})

	go runEvery(ctx, cfg.OutboxStatsInterval, func() {
		if _, err := processor.ReportBacklog(ctx); err != nil {
			logger.Warn("outbox backlog check failed", "error", err)
		}
		logStats(logger, processor.GetStats())
	})

	if cfg.WorkerHealthAddr != "" {
		healthSrv := &http.Server{
			Addr:              cfg.WorkerHealthAddr,
			Handler:           healthMux(container),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			logger.Info("health server starting", "addr", cfg.WorkerHealthAddr)
			if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("health server error", "error", err)
			}
		}()

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := healthSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("health server shutdown error", "error", err)
			}
		}()
	}

	// Wait for shutdown
	<-ctx.Done()
	logger.Info("shutting down worker")

	processor.Stop()
	logger.Info("worker stopped")
}

func runEvery(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

func healthMux(c *app.Container) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/livez", observability.LivenessHandler())
	mux.Handle("/readyz", c.Health.Handler())
	mux.Handle("/metrics", c.Metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		stats := c.OutboxProcessor.GetStats()
		response := map[string]any{
			"status":            "ok",
			"running":           stats.IsRunning,
			"published":         stats.PublishedCount,
			"failed":            stats.FailedCount,
			"dead":              stats.DeadCount,
			"lag_seconds":       stats.LagSeconds,
			"last_processed_at": stats.LastProcessedAt,
			"last_error_at":     stats.LastErrorAt,
			"last_error":        stats.LastError,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	})
	return mux
}

func logStats(logger *slog.Logger, stats outbox.Stats) {
	logger.Info("outbox stats",
		"running", stats.IsRunning,
		"published", stats.PublishedCount,
		"failed", stats.FailedCount,
		"dead", stats.DeadCount,
		"lag_seconds", stats.LagSeconds,
		"oldest_message_at", stats.OldestMessageAt,
		"last_processed_at", stats.LastProcessedAt,
		"last_error_at", stats.LastErrorAt,
		"last_error", stats.LastError,
	)
}
