package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/ins72/mewayz-good-sub001/internal/billing/domain"
	"github.com/ins72/mewayz-good-sub001/internal/billing/infrastructure/stripe"
)

// Stripe caps webhook payloads well below this.
const maxWebhookBytes = 64 << 10

// PaymentEventParser verifies and normalizes a gateway callback.
type PaymentEventParser interface {
	Parse(payload []byte, signature string) (domain.PaymentEvent, bool, error)
}

// PaymentEventHandler applies a normalized payment event.
type PaymentEventHandler interface {
	OnPaymentEvent(ctx context.Context, evt domain.PaymentEvent) (domain.TransitionResult, error)
}

// WebhookHandler receives Stripe webhook deliveries. Stripe retries any
// non-2xx response, so events for unknown subscriptions are acknowledged.
type WebhookHandler struct {
	parser PaymentEventParser
	events PaymentEventHandler
	logger *slog.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(parser PaymentEventParser, events PaymentEventHandler, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{parser: parser, events: events, logger: logger}
}

// ServeHTTP handles POST /api/v1/webhooks/stripe
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	evt, ok, err := h.parser.Parse(payload, r.Header.Get(stripe.SignatureHeader))
	if err != nil {
		if errors.Is(err, stripe.ErrInvalidSignature) {
			h.logger.WarnContext(r.Context(), "rejected webhook with invalid signature")
			writeError(w, http.StatusBadRequest, "invalid signature")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "ignored": true})
		return
	}

	result, err := h.events.OnPaymentEvent(r.Context(), evt)
	switch {
	case errors.Is(err, domain.ErrSubscriptionNotFound):
		h.logger.WarnContext(r.Context(), "webhook for unknown subscription dropped",
			"event_id", evt.ID,
			"kind", evt.Kind,
			"external_subscription_id", evt.ExternalSubscriptionID,
		)
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "ignored": true})
		return
	case err != nil:
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"received": true,
		"result":   string(result),
	})
}
