package gateway

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/ins72/mewayz-good-sub001/internal/billing/domain"
)

const (
	localCustomerPrefix     = "cus_local_"
	localSubscriptionPrefix = "sub_local_"
)

// LocalGateway stands in for Stripe in development. It never charges
// anyone: subscriptions start pending and only become active when a
// payment event is replayed against them.
type LocalGateway struct {
	mu            sync.Mutex
	subscriptions map[string]domain.SubscriptionRequest
	canceled      map[string]struct{}
	logger        *slog.Logger
}

var _ domain.PaymentGateway = (*LocalGateway)(nil)

// NewLocalGateway creates a new local gateway.
func NewLocalGateway(logger *slog.Logger) *LocalGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalGateway{
		subscriptions: make(map[string]domain.SubscriptionRequest),
		canceled:      make(map[string]struct{}),
		logger:        logger,
	}
}

func localID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// CreateCustomer returns a fabricated customer id.
func (g *LocalGateway) CreateCustomer(ctx context.Context, email string, _ map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", domain.NewGatewayError("create_customer", err)
	}
	id := localID(localCustomerPrefix)
	g.logger.InfoContext(ctx, "local gateway created customer", "customer_id", id, "email", email)
	return id, nil
}

// CreateSubscription records the request and returns a pending subscription.
func (g *LocalGateway) CreateSubscription(ctx context.Context, req domain.SubscriptionRequest) (domain.GatewaySubscription, error) {
	if err := ctx.Err(); err != nil {
		return domain.GatewaySubscription{}, domain.NewGatewayError("create_subscription", err)
	}
	if req.CustomerID == "" {
		return domain.GatewaySubscription{}, domain.NewGatewayError("create_subscription", domain.ErrGatewayRejected)
	}

	id := localID(localSubscriptionPrefix)
	g.mu.Lock()
	g.subscriptions[id] = req
	g.mu.Unlock()

	g.logger.InfoContext(ctx, "local gateway created subscription",
		"subscription_id", id,
		"customer_id", req.CustomerID,
		"amount_cents", req.UnitAmountCents,
		"interval", string(req.Interval),
	)
	return domain.GatewaySubscription{ID: id, Status: domain.StatusPending}, nil
}

// UpdateSubscription replaces the recorded price of a known subscription.
// Canceled ids are rejected. A local id missing from the map was issued by
// an earlier process, since every CLI invocation starts a fresh gateway,
// and is adopted.
func (g *LocalGateway) UpdateSubscription(ctx context.Context, subscriptionID string, req domain.SubscriptionRequest) (domain.SubscriptionStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", domain.NewGatewayError("update_subscription", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.canceled[subscriptionID]; ok {
		return "", domain.NewGatewayError("update_subscription", domain.ErrGatewayRejected)
	}
	if _, ok := g.subscriptions[subscriptionID]; !ok && !strings.HasPrefix(subscriptionID, localSubscriptionPrefix) {
		return "", domain.NewGatewayError("update_subscription", domain.ErrGatewayRejected)
	}
	g.subscriptions[subscriptionID] = req
	return domain.StatusActive, nil
}

// CancelSubscription forgets a subscription and refuses later updates to
// it. Cancelling an unknown id is not an error.
func (g *LocalGateway) CancelSubscription(ctx context.Context, subscriptionID string) error {
	if err := ctx.Err(); err != nil {
		return domain.NewGatewayError("cancel_subscription", err)
	}
	g.mu.Lock()
	delete(g.subscriptions, subscriptionID)
	g.canceled[subscriptionID] = struct{}{}
	g.mu.Unlock()
	return nil
}
