package stripe

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ins72/mewayz-good-sub001/internal/billing/domain"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// SignatureHeader is the header Stripe signs webhook payloads with.
const SignatureHeader = "Stripe-Signature"

var ErrInvalidSignature = errors.New("invalid webhook signature")

// WebhookParser verifies and normalizes Stripe webhook events.
type WebhookParser struct {
	secret    string
	tolerance time.Duration
}

// NewWebhookParser creates a parser for the endpoint secret.
func NewWebhookParser(secret string) *WebhookParser {
	return &WebhookParser{secret: secret, tolerance: webhook.DefaultTolerance}
}

// Parse verifies the signature and maps the event. ok is false for event
// types or statuses the lifecycle does not react to.
func (p *WebhookParser) Parse(payload []byte, signature string) (evt domain.PaymentEvent, ok bool, err error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.secret, webhook.ConstructEventOptions{
		Tolerance:                p.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return domain.PaymentEvent{}, false, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return MapEvent(event)
}

// DecodeEvent maps a Stripe event payload without checking a signature.
// Only use it for payloads an operator supplies directly.
func DecodeEvent(payload []byte) (domain.PaymentEvent, bool, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return domain.PaymentEvent{}, false, fmt.Errorf("%w: decode event: %v", domain.ErrInvalidEvent, err)
	}
	return MapEvent(event)
}

// MapEvent converts a verified Stripe event.
func MapEvent(event stripe.Event) (domain.PaymentEvent, bool, error) {
	if event.Data == nil {
		return domain.PaymentEvent{}, false, fmt.Errorf("%w: event %s has no data", domain.ErrInvalidEvent, event.ID)
	}

	evt := domain.PaymentEvent{
		ID:         event.ID,
		OccurredAt: time.Unix(event.Created, 0).UTC(),
	}

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return domain.PaymentEvent{}, false, fmt.Errorf("%w: decode subscription: %v", domain.ErrInvalidEvent, err)
		}
		status, known := MapStatus(sub.Status)
		if !known {
			return domain.PaymentEvent{}, false, nil
		}
		evt.Kind = domain.EventSubscriptionUpdated
		if event.Type == "customer.subscription.created" {
			evt.Kind = domain.EventSubscriptionCreated
		}
		evt.ExternalSubscriptionID = sub.ID
		evt.Status = status

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return domain.PaymentEvent{}, false, fmt.Errorf("%w: decode subscription: %v", domain.ErrInvalidEvent, err)
		}
		evt.Kind = domain.EventSubscriptionDeleted
		evt.ExternalSubscriptionID = sub.ID

	case "invoice.paid", "invoice.payment_succeeded", "invoice.payment_failed":
		subID, err := invoiceSubscriptionID(event.Data.Raw)
		if err != nil {
			return domain.PaymentEvent{}, false, err
		}
		if subID == "" {
			// One-off invoice.
			return domain.PaymentEvent{}, false, nil
		}
		evt.Kind = domain.EventInvoicePaid
		if event.Type == "invoice.payment_failed" {
			evt.Kind = domain.EventInvoicePaymentFailed
		}
		evt.ExternalSubscriptionID = subID

	default:
		return domain.PaymentEvent{}, false, nil
	}

	if status, fixed := domain.StatusForKind(evt.Kind); fixed {
		evt.Status = status
	}
	if err := evt.Validate(); err != nil {
		return domain.PaymentEvent{}, false, err
	}
	return evt, true, nil
}

// invoiceSubscriptionID reads the subscription from the invoice parent,
// falling back to the top-level field of older API versions.
func invoiceSubscriptionID(raw json.RawMessage) (string, error) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return "", fmt.Errorf("%w: decode invoice: %v", domain.ErrInvalidEvent, err)
	}
	if invoice.Parent != nil &&
		invoice.Parent.SubscriptionDetails != nil &&
		invoice.Parent.SubscriptionDetails.Subscription != nil {
		return invoice.Parent.SubscriptionDetails.Subscription.ID, nil
	}

	var legacy struct {
		Subscription json.RawMessage `json:"subscription"`
	}
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return "", fmt.Errorf("%w: decode invoice: %v", domain.ErrInvalidEvent, err)
	}
	return expandableID(legacy.Subscription)
}

// expandableID reads a field that is either an id string or an expanded
// object carrying an id.
func expandableID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return "", fmt.Errorf("%w: decode subscription id: %v", domain.ErrInvalidEvent, err)
		}
		return id, nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("%w: decode subscription: %v", domain.ErrInvalidEvent, err)
	}
	return obj.ID, nil
}
