package domain

import (
	"fmt"
	"time"
)

// PaymentEventKind classifies gateway callbacks after normalization.
type PaymentEventKind string

const (
	EventSubscriptionCreated  PaymentEventKind = "subscription.created"
	EventSubscriptionUpdated  PaymentEventKind = "subscription.updated"
	EventSubscriptionDeleted  PaymentEventKind = "subscription.deleted"
	EventInvoicePaid          PaymentEventKind = "invoice.paid"
	EventInvoicePaymentFailed PaymentEventKind = "invoice.payment_failed"
)

// PaymentEvent is a gateway callback reduced to what the lifecycle needs.
type PaymentEvent struct {
	ID                     string
	Kind                   PaymentEventKind
	ExternalSubscriptionID string
	Status                 SubscriptionStatus
	OccurredAt             time.Time
}

// Validate rejects events that cannot be routed or applied.
func (e PaymentEvent) Validate() error {
	if e.ExternalSubscriptionID == "" {
		return fmt.Errorf("%w: missing subscription id", ErrInvalidEvent)
	}
	switch e.Status {
	case StatusPending, StatusActive, StatusPastDue, StatusCanceled:
	default:
		return fmt.Errorf("%w: status %q", ErrInvalidEvent, e.Status)
	}
	return nil
}

// StatusForKind gives the target status implied by an invoice or deletion
// event. ok is false for kinds that carry their own status.
func StatusForKind(kind PaymentEventKind) (SubscriptionStatus, bool) {
	switch kind {
	case EventInvoicePaid:
		return StatusActive, true
	case EventInvoicePaymentFailed:
		return StatusPastDue, true
	case EventSubscriptionDeleted:
		return StatusCanceled, true
	default:
		return "", false
	}
}
