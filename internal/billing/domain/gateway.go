package domain

import "context"

// SubscriptionRequest describes the recurring charge sent to the gateway.
type SubscriptionRequest struct {
	CustomerID      string
	UnitAmountCents int64
	Currency        string
	Interval        BillingInterval
	Metadata        map[string]string
}

// GatewaySubscription is the gateway's view of a created subscription.
type GatewaySubscription struct {
	ID     string
	Status SubscriptionStatus
}

// PaymentGateway is the external recurring-billing provider. Implementations
// return *GatewayError on failure.
type PaymentGateway interface {
	CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error)
	CreateSubscription(ctx context.Context, req SubscriptionRequest) (GatewaySubscription, error)
	UpdateSubscription(ctx context.Context, subscriptionID string, req SubscriptionRequest) (SubscriptionStatus, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
}
