package application

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ins72/mewayz-good-sub001/internal/billing/domain"
	"github.com/ins72/mewayz-good-sub001/pkg/observability"
)

// AccessGate answers whether a user may use a service right now. It only
// reads; it never calls the gateway.
type AccessGate struct {
	catalog *domain.Catalog
	repo    domain.SubscriptionRepository
	policy  domain.GracePolicy
	logger  *slog.Logger
	metrics observability.Metrics
	now     func() time.Time
}

// NewAccessGate creates an AccessGate.
func NewAccessGate(catalog *domain.Catalog, repo domain.SubscriptionRepository, policy domain.GracePolicy, logger *slog.Logger) *AccessGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessGate{
		catalog: catalog,
		repo:    repo,
		policy:  policy,
		logger:  logger,
		metrics: observability.NoopMetrics{},
		now:     time.Now,
	}
}

// WithMetrics records one counter per decision.
func (g *AccessGate) WithMetrics(metrics observability.Metrics) *AccessGate {
	if metrics != nil {
		g.metrics = metrics
	}
	return g
}

// WithClock replaces time.Now for grace window checks.
func (g *AccessGate) WithClock(now func() time.Time) *AccessGate {
	if now != nil {
		g.now = now
	}
	return g
}

// Authorize evaluates, in order: the service must belong to a bundle, the
// user must have a subscription, it must be active or past_due, it must
// include the owning bundle, and past_due is allowed only inside the grace
// window. Storage errors are returned and never turned into a decision.
func (g *AccessGate) Authorize(ctx context.Context, userID, service string) (domain.Decision, error) {
	service = strings.TrimSpace(service)

	bundleID, ok := g.catalog.OwnerOf(service)
	if !ok {
		return g.record(ctx, userID, domain.Deny(service, "", domain.StatusNone, domain.ReasonUnknownService)), nil
	}

	sub, err := g.repo.FindByUserID(ctx, userID)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("load subscription: %w", err)
	}
	if sub == nil || sub.Status() == domain.StatusNone {
		return g.record(ctx, userID, domain.Deny(service, bundleID, domain.StatusNone, domain.ReasonNoSubscription)), nil
	}

	status := sub.Status()
	if status != domain.StatusActive && status != domain.StatusPastDue {
		return g.record(ctx, userID, domain.Deny(service, bundleID, status, domain.ReasonSubscriptionInactive)), nil
	}
	if !sub.HasBundle(bundleID) {
		return g.record(ctx, userID, domain.Deny(service, bundleID, status, domain.ReasonBundleNotSubscribed)), nil
	}
	if status == domain.StatusPastDue && !g.policy.AllowsPastDue(sub.LastPaymentAt(), g.now()) {
		return g.record(ctx, userID, domain.Deny(service, bundleID, status, domain.ReasonPastDue)), nil
	}

	return g.record(ctx, userID, domain.Allow(service, bundleID, status)), nil
}

func (g *AccessGate) record(ctx context.Context, userID string, d domain.Decision) domain.Decision {
	g.metrics.Counter(observability.MetricAuthorizeTotal, 1,
		observability.T("allowed", strconv.FormatBool(d.Allowed)),
		observability.T("reason", string(d.Reason)),
	)
	g.logger.DebugContext(ctx, "access decision",
		"user_id", userID,
		"service", d.Service,
		"bundle_id", d.BundleID,
		"status", d.Status,
		"allowed", d.Allowed,
		"reason", d.Reason,
	)
	return d
}
