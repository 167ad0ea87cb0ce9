package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ins72/mewayz-good-sub001/adapter/api"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve the bundle catalog, pricing, subscription, access and Stripe
webhook endpoints. Services listed in SERVICE_UPSTREAMS are proxied under
/api/v1/services/<service>/ for callers whose subscription grants them. The outbox processor runs alongside unless
OUTBOX_PROCESSOR_ENABLED=false.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.Container == nil {
			return errors.New("serve requires database connection")
		}
		c := app.Container
		log := Logger()

		addr := serveAddr
		if addr == "" {
			addr = app.Config.HTTPAddr
		}
		cfg := api.DefaultServerConfig()
		cfg.Addr = addr

		services, err := api.NewServiceProxies(app.Config.ServiceUpstreams, log)
		if err != nil {
			return err
		}

		server := api.NewServer(cfg, api.Dependencies{
			Billing:        api.NewBillingHandler(app.Synchronizer, app.AccessGate, log),
			Services:       services,
			Webhooks:       api.NewWebhookHandler(c.WebhookParser, app.Synchronizer, log),
			Tokens:         app.Tokens,
			Health:         c.Health,
			Metrics:        c.Metrics,
			MetricsHandler: c.Metrics.Handler(),
			Logger:         log,
		})

		ctx := cmd.Context()
		if err := c.StartOutbox(ctx); err != nil {
			return fmt.Errorf("start outbox processor: %w", err)
		}

		errCh := make(chan error, 1)
		go func() {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default HTTP_ADDR)")
	rootCmd.AddCommand(serveCmd)
}
