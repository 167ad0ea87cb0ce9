// Package stripe adapts the Stripe API to the billing PaymentGateway port
// and turns signed Stripe webhooks into payment events.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ins72/mewayz-good-sub001/internal/billing/domain"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// Config configures the Stripe gateway.
type Config struct {
	APIKey    string
	ProductID string

	// BaseURL and HTTPClient override the API endpoint, mainly for tests.
	BaseURL    string
	HTTPClient *http.Client

	MaxNetworkRetries int64
}

// Gateway implements domain.PaymentGateway. Each subscription carries a
// single item priced inline from the quote, so no Stripe price objects
// need to exist per bundle combination.
type Gateway struct {
	api       *client.API
	productID string
	logger    *slog.Logger
}

// NewGateway creates a Stripe gateway.
func NewGateway(cfg Config, logger *slog.Logger) (*Gateway, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("stripe api key is required")
	}
	if cfg.ProductID == "" {
		return nil, errors.New("stripe product id is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	backendCfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(cfg.BaseURL)
	}
	if cfg.HTTPClient != nil {
		backendCfg.HTTPClient = cfg.HTTPClient
	}

	return &Gateway{
		api:       client.New(cfg.APIKey, stripe.NewBackendsWithConfig(backendCfg)),
		productID: cfg.ProductID,
		logger:    logger,
	}, nil
}

// CreateCustomer creates a Stripe customer and returns its id.
func (g *Gateway) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error) {
	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	cus, err := g.api.Customers.New(params)
	if err != nil {
		return "", wrapError("create customer", err)
	}
	return cus.ID, nil
}

// CreateSubscription starts a recurring charge for the customer. The
// subscription stays incomplete until the first invoice is paid.
func (g *Gateway) CreateSubscription(ctx context.Context, req domain.SubscriptionRequest) (domain.GatewaySubscription, error) {
	params := &stripe.SubscriptionParams{
		Customer:        stripe.String(req.CustomerID),
		Items:           []*stripe.SubscriptionItemsParams{{PriceData: g.priceData(req)}},
		PaymentBehavior: stripe.String("default_incomplete"),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	sub, err := g.api.Subscriptions.New(params)
	if err != nil {
		return domain.GatewaySubscription{}, wrapError("create subscription", err)
	}

	status, ok := MapStatus(sub.Status)
	if !ok {
		status = domain.StatusPending
	}
	g.logger.DebugContext(ctx, "stripe subscription created", "subscription_id", sub.ID, "stripe_status", sub.Status)
	return domain.GatewaySubscription{ID: sub.ID, Status: status}, nil
}

// UpdateSubscription replaces the price of the subscription's item in
// place, prorating the difference.
func (g *Gateway) UpdateSubscription(ctx context.Context, subscriptionID string, req domain.SubscriptionRequest) (domain.SubscriptionStatus, error) {
	getParams := &stripe.SubscriptionParams{}
	getParams.Context = ctx
	current, err := g.api.Subscriptions.Get(subscriptionID, getParams)
	if err != nil {
		return "", wrapError("get subscription", err)
	}
	if current.Items == nil || len(current.Items.Data) == 0 {
		return "", domain.NewGatewayError("update subscription", fmt.Errorf("subscription %s has no items", subscriptionID))
	}

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{{
			ID:        stripe.String(current.Items.Data[0].ID),
			PriceData: g.priceData(req),
		}},
		ProrationBehavior: stripe.String("create_prorations"),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	sub, err := g.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return "", wrapError("update subscription", err)
	}
	status, _ := MapStatus(sub.Status)
	return status, nil
}

// CancelSubscription cancels the subscription immediately. Stripe follows
// up with a customer.subscription.deleted event.
func (g *Gateway) CancelSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	if _, err := g.api.Subscriptions.Cancel(subscriptionID, params); err != nil {
		return wrapError("cancel subscription", err)
	}
	return nil
}

func (g *Gateway) priceData(req domain.SubscriptionRequest) *stripe.SubscriptionItemPriceDataParams {
	return &stripe.SubscriptionItemPriceDataParams{
		Currency:   stripe.String(req.Currency),
		Product:    stripe.String(g.productID),
		UnitAmount: stripe.Int64(req.UnitAmountCents),
		Recurring: &stripe.SubscriptionItemPriceDataRecurringParams{
			Interval: stripe.String(stripeInterval(req.Interval)),
		},
	}
}

func stripeInterval(interval domain.BillingInterval) string {
	if interval == domain.IntervalYearly {
		return string(stripe.PriceRecurringIntervalYear)
	}
	return string(stripe.PriceRecurringIntervalMonth)
}

// wrapError marks Stripe 4xx responses other than rate limiting as
// rejections, which do not count against the circuit breaker.
func wrapError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		code := stripeErr.HTTPStatusCode
		if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
			return domain.NewGatewayError(op, fmt.Errorf("%w: %s", domain.ErrGatewayRejected, stripeErr.Msg))
		}
	}
	return domain.NewGatewayError(op, err)
}

// MapStatus converts a Stripe subscription status. ok is false for
// statuses with no local meaning, such as paused.
func MapStatus(status stripe.SubscriptionStatus) (domain.SubscriptionStatus, bool) {
	switch status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return domain.StatusActive, true
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return domain.StatusPastDue, true
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return domain.StatusCanceled, true
	case stripe.SubscriptionStatusIncomplete:
		return domain.StatusPending, true
	default:
		return "", false
	}
}

var _ domain.PaymentGateway = (*Gateway)(nil)
