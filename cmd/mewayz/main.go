package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ins72/mewayz-good-sub001/adapter/cli"
	cliBilling "github.com/ins72/mewayz-good-sub001/adapter/cli/billing"
	"github.com/ins72/mewayz-good-sub001/internal/app"
	"github.com/ins72/mewayz-good-sub001/pkg/config"
	"github.com/ins72/mewayz-good-sub001/pkg/observability"
)

func main() {
	// Create context with cancellation
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := observability.LoggerFromEnv()

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

	logger = observability.NewLogger(observability.LogConfigFor(cfg.AppEnv, cfg.LogLevel, cfg.LogFormat, cli.Version))
	slog.SetDefault(logger)
	cli.SetLogger(logger)

	cliApp := cli.NewApp(cfg)

	// Pricing and token commands work without storage
	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		if cfg.IsDevelopment() {
			logger.Warn("failed to initialize container, running in limited mode", "error", err)
		} else {
			logger.Error("failed to initialize container", "error", err)
			os.Exit(1)
		}
	} else {
		defer container.Close()
		cliApp.SetContainer(container)
	}

	cli.SetApp(cliApp)

	// Register commands
	cli.AddCommand(cliBilling.Cmd)

	// Execute CLI
	cli.Execute(ctx)
}
