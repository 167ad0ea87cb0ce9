package domain

import (
	"time"

	"github.com/google/uuid"
	sharedDomain "github.com/ins72/mewayz-good-sub001/internal/shared/domain"
)

// AggregateType is the outbox aggregate type for subscription state.
const AggregateType = "billing.user_subscription"

// Routing keys published on the billing exchange.
const (
	RoutingKeySubscriptionRequested = "billing.subscription.requested"
	RoutingKeySubscriptionChanged   = "billing.subscription.changed"
	RoutingKeyCancelRequested       = "billing.subscription.cancel_requested"
	RoutingKeyStatusChanged         = "billing.subscription.status_changed"
	RoutingKeySubscriptionCanceled  = "billing.subscription.canceled"
)

// SubscriptionRequested is raised after the gateway created a subscription.
type SubscriptionRequested struct {
	sharedDomain.BaseEvent
	UserID                 string   `json:"user_id"`
	ExternalSubscriptionID string   `json:"external_subscription_id"`
	Bundles                []string `json:"bundles"`
	Interval               string   `json:"interval"`
	UnitAmountCents        int64    `json:"unit_amount_cents"`
	Currency               string   `json:"currency"`
}

// SubscriptionChanged is raised after an in-place gateway update.
type SubscriptionChanged struct {
	sharedDomain.BaseEvent
	UserID                 string   `json:"user_id"`
	ExternalSubscriptionID string   `json:"external_subscription_id"`
	PreviousBundles        []string `json:"previous_bundles"`
	Bundles                []string `json:"bundles"`
	Interval               string   `json:"interval"`
	UnitAmountCents        int64    `json:"unit_amount_cents"`
	Currency               string   `json:"currency"`
}

// CancelRequested is raised once the gateway accepted a cancellation.
type CancelRequested struct {
	sharedDomain.BaseEvent
	UserID                 string `json:"user_id"`
	ExternalSubscriptionID string `json:"external_subscription_id"`
}

// StatusChanged is raised for every applied webhook transition.
type StatusChanged struct {
	sharedDomain.BaseEvent
	UserID                 string `json:"user_id"`
	ExternalSubscriptionID string `json:"external_subscription_id"`
	From                   string `json:"from"`
	To                     string `json:"to"`
	GatewayEventID         string `json:"gateway_event_id,omitempty"`
	GatewayEventKind       string `json:"gateway_event_kind"`
}

// SubscriptionCanceled is raised when access is revoked.
type SubscriptionCanceled struct {
	sharedDomain.BaseEvent
	UserID                 string   `json:"user_id"`
	ExternalSubscriptionID string   `json:"external_subscription_id"`
	RevokedBundles         []string `json:"revoked_bundles"`
}

func newEvent(aggregateID uuid.UUID, routingKey string, at time.Time) sharedDomain.BaseEvent {
	return sharedDomain.NewBaseEvent(aggregateID, AggregateType, routingKey, at)
}
