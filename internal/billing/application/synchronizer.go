// Package application holds the billing use cases: subscription
// synchronization with the payment gateway and access decisions.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ins72/mewayz-good-sub001/internal/billing/domain"
	sharedApplication "github.com/ins72/mewayz-good-sub001/internal/shared/application"
	"github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/outbox"
	"github.com/ins72/mewayz-good-sub001/pkg/observability"
)

// SubscribeAction reports what Subscribe did at the gateway.
type SubscribeAction string

const (
	SubscribeCreated   SubscribeAction = "created"
	SubscribeChanged   SubscribeAction = "changed"
	SubscribeUnchanged SubscribeAction = "unchanged"
)

// SubscribeCommand selects bundles for a user.
type SubscribeCommand struct {
	UserID    string
	Email     string
	BundleIDs []string
	Interval  domain.BillingInterval
}

// SubscribeResult contains the outcome of Subscribe.
type SubscribeResult struct {
	Action       SubscribeAction  `json:"action"`
	Quote        QuoteView        `json:"quote"`
	Subscription SubscriptionView `json:"subscription"`
}

// Synchronizer keeps the local subscription state and the gateway in
// step. Every mutating call for a user runs under that user's lock, and
// local writes happen only after the gateway accepted the change.
type Synchronizer struct {
	calculator *domain.PriceCalculator
	gateway    domain.PaymentGateway
	repo       domain.SubscriptionRepository
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	locker     Locker
	logger     *slog.Logger
	metrics    observability.Metrics
	now        func() time.Time
}

// NewSynchronizer creates a Synchronizer. outboxRepo may be nil, in which
// case domain events are dropped; uow defaults to no transaction.
func NewSynchronizer(
	calculator *domain.PriceCalculator,
	gateway domain.PaymentGateway,
	repo domain.SubscriptionRepository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	locker Locker,
	logger *slog.Logger,
) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	if uow == nil {
		uow = sharedApplication.NoopUnitOfWork{}
	}
	return &Synchronizer{
		calculator: calculator,
		gateway:    gateway,
		repo:       repo,
		outboxRepo: outboxRepo,
		uow:        uow,
		locker:     locker,
		logger:     logger,
		metrics:    observability.NoopMetrics{},
		now:        time.Now,
	}
}

// WithMetrics records subscribe, cancel and webhook outcomes.
func (s *Synchronizer) WithMetrics(metrics observability.Metrics) *Synchronizer {
	if metrics != nil {
		s.metrics = metrics
	}
	return s
}

// WithClock replaces time.Now.
func (s *Synchronizer) WithClock(now func() time.Time) *Synchronizer {
	if now != nil {
		s.now = now
	}
	return s
}

// Quote prices a selection without touching any state.
func (s *Synchronizer) Quote(bundleIDs []string, interval domain.BillingInterval) (domain.Quote, error) {
	return s.calculator.Quote(bundleIDs, interval)
}

// Catalog returns the bundle catalog used for pricing.
func (s *Synchronizer) Catalog() *domain.Catalog {
	return s.calculator.Catalog()
}

// GetState returns the user's subscription. Users that never subscribed
// are reported with status none.
func (s *Synchronizer) GetState(ctx context.Context, userID string) (SubscriptionView, error) {
	sub, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return SubscriptionView{}, fmt.Errorf("load subscription: %w", err)
	}
	return NewSubscriptionView(userID, sub), nil
}

// EnsureCustomer returns the user's gateway customer id, creating and
// storing it on first use.
func (s *Synchronizer) EnsureCustomer(ctx context.Context, userID, email string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", domain.ErrInvalidUser
	}

	unlock, err := s.locker.Lock(ctx, userLockKey(userID))
	if err != nil {
		return "", fmt.Errorf("lock user %s: %w", userID, err)
	}
	defer unlock()

	sub, err := s.loadOrNew(ctx, userID, email)
	if err != nil {
		return "", err
	}
	return s.ensureCustomer(ctx, sub)
}

// Subscribe brings the user's gateway subscription in line with the
// requested bundles. It creates a subscription when none is live, updates
// the live one in place when the selection or interval differs, and does
// nothing otherwise.
func (s *Synchronizer) Subscribe(ctx context.Context, cmd SubscribeCommand) (*SubscribeResult, error) {
	result, err := s.subscribe(ctx, cmd)

	outcome := "error"
	if err == nil {
		outcome = string(result.Action)
	}
	s.metrics.Counter(observability.MetricSubscribeTotal, 1, observability.T("result", outcome))

	return result, err
}

func (s *Synchronizer) subscribe(ctx context.Context, cmd SubscribeCommand) (*SubscribeResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}

	// Validation is local and precedes any gateway call.
	quote, err := s.calculator.Quote(cmd.BundleIDs, cmd.Interval)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, userLockKey(userID))
	if err != nil {
		return nil, fmt.Errorf("lock user %s: %w", userID, err)
	}
	defer unlock()

	sub, err := s.loadOrNew(ctx, userID, cmd.Email)
	if err != nil {
		return nil, err
	}

	customerID, err := s.ensureCustomer(ctx, sub)
	if err != nil {
		return nil, err
	}

	req := domain.SubscriptionRequest{
		CustomerID:      customerID,
		UnitAmountCents: quote.UnitAmountCents(),
		Currency:        quote.Currency,
		Interval:        quote.Interval,
		Metadata:        subscriptionMetadata(userID, quote),
	}

	var action SubscribeAction
	switch {
	case !sub.HasLiveSubscription():
		created, err := s.gateway.CreateSubscription(ctx, req)
		if err != nil {
			return nil, err
		}
		if err := sub.StartSubscription(created.ID, quote, s.now()); err != nil {
			return nil, err
		}
		action = SubscribeCreated

	case sub.NeedsChange(quote):
		if _, err := s.gateway.UpdateSubscription(ctx, sub.ExternalSubscriptionID(), req); err != nil {
			return nil, err
		}
		if err := sub.ChangeSubscription(quote, s.now()); err != nil {
			return nil, err
		}
		action = SubscribeChanged

	default:
		return &SubscribeResult{
			Action:       SubscribeUnchanged,
			Quote:        NewQuoteView(quote),
			Subscription: NewSubscriptionView(userID, sub),
		}, nil
	}

	if err := s.persist(ctx, sub); err != nil {
		s.logger.ErrorContext(ctx, "gateway accepted subscription but local write failed",
			"user_id", userID,
			"external_subscription_id", sub.ExternalSubscriptionID(),
			"action", action,
			"error", err,
		)
		return nil, err
	}

	s.logger.InfoContext(ctx, "subscription synchronized",
		"user_id", userID,
		"action", action,
		"bundles", quote.Bundles.String(),
		"interval", quote.Interval,
		"unit_amount_cents", quote.UnitAmountCents(),
		"external_subscription_id", sub.ExternalSubscriptionID(),
	)

	return &SubscribeResult{
		Action:       action,
		Quote:        NewQuoteView(quote),
		Subscription: NewSubscriptionView(userID, sub),
	}, nil
}

// Cancel asks the gateway to cancel the live subscription. Only the
// request time is stored; status and bundles change when the gateway
// confirms with a deletion event. Users with nothing to cancel succeed
// without a gateway call.
func (s *Synchronizer) Cancel(ctx context.Context, userID string) (SubscriptionView, error) {
	view, canceled, err := s.cancel(ctx, userID)

	outcome := "noop"
	switch {
	case err != nil:
		outcome = "error"
	case canceled:
		outcome = "requested"
	}
	s.metrics.Counter(observability.MetricCancelTotal, 1, observability.T("result", outcome))

	return view, err
}

func (s *Synchronizer) cancel(ctx context.Context, userID string) (SubscriptionView, bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return SubscriptionView{}, false, domain.ErrInvalidUser
	}

	sub, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return SubscriptionView{}, false, fmt.Errorf("load subscription: %w", err)
	}
	if !cancelable(sub) {
		return NewSubscriptionView(userID, sub), false, nil
	}

	unlock, err := s.locker.Lock(ctx, userLockKey(userID))
	if err != nil {
		return SubscriptionView{}, false, fmt.Errorf("lock user %s: %w", userID, err)
	}
	defer unlock()

	// Re-read under the lock; a concurrent call may have won.
	sub, err = s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return SubscriptionView{}, false, fmt.Errorf("load subscription: %w", err)
	}
	if !cancelable(sub) {
		return NewSubscriptionView(userID, sub), false, nil
	}

	if err := s.gateway.CancelSubscription(ctx, sub.ExternalSubscriptionID()); err != nil {
		return SubscriptionView{}, false, err
	}
	if err := sub.RequestCancel(s.now()); err != nil {
		return SubscriptionView{}, false, err
	}
	if err := s.persist(ctx, sub); err != nil {
		return SubscriptionView{}, false, err
	}

	s.logger.InfoContext(ctx, "subscription cancel requested",
		"user_id", userID,
		"external_subscription_id", sub.ExternalSubscriptionID(),
	)
	return NewSubscriptionView(userID, sub), true, nil
}

func cancelable(sub *domain.UserSubscription) bool {
	return sub != nil && sub.HasLiveSubscription()
}

// OnPaymentEvent applies a normalized gateway callback. Unknown
// subscriptions fail with ErrSubscriptionNotFound so the caller can log
// and acknowledge them. Duplicate, stale and no-op events do not write.
func (s *Synchronizer) OnPaymentEvent(ctx context.Context, evt domain.PaymentEvent) (domain.TransitionResult, error) {
	result, err := s.onPaymentEvent(ctx, evt)

	outcome := string(result)
	switch {
	case err == nil:
	case isNotFound(err):
		outcome = "unknown_subscription"
	default:
		outcome = "error"
	}
	s.metrics.Counter(observability.MetricWebhookEvents, 1,
		observability.T("kind", string(evt.Kind)),
		observability.T("result", outcome),
	)

	return result, err
}

func (s *Synchronizer) onPaymentEvent(ctx context.Context, evt domain.PaymentEvent) (domain.TransitionResult, error) {
	if err := evt.Validate(); err != nil {
		return domain.TransitionRejected, err
	}

	sub, err := s.repo.FindByExternalSubscriptionID(ctx, evt.ExternalSubscriptionID)
	if err != nil {
		return domain.TransitionRejected, fmt.Errorf("load subscription: %w", err)
	}
	if sub == nil {
		return domain.TransitionRejected, fmt.Errorf("%w: %s", domain.ErrSubscriptionNotFound, evt.ExternalSubscriptionID)
	}

	unlock, err := s.locker.Lock(ctx, userLockKey(sub.UserID()))
	if err != nil {
		return domain.TransitionRejected, fmt.Errorf("lock user %s: %w", sub.UserID(), err)
	}
	defer unlock()

	sub, err = s.repo.FindByExternalSubscriptionID(ctx, evt.ExternalSubscriptionID)
	if err != nil {
		return domain.TransitionRejected, fmt.Errorf("load subscription: %w", err)
	}
	if sub == nil {
		return domain.TransitionRejected, fmt.Errorf("%w: %s", domain.ErrSubscriptionNotFound, evt.ExternalSubscriptionID)
	}

	from := sub.Status()
	result := sub.ApplyPaymentEvent(evt)

	logArgs := []any{
		"user_id", sub.UserID(),
		"event_id", evt.ID,
		"kind", evt.Kind,
		"external_subscription_id", evt.ExternalSubscriptionID,
		"from", from,
		"to", evt.Status,
		"result", result,
	}

	switch result {
	case domain.TransitionApplied, domain.TransitionRenewed:
		if err := s.persist(ctx, sub); err != nil {
			return domain.TransitionRejected, err
		}
		s.logger.InfoContext(ctx, "payment event applied", logArgs...)
	case domain.TransitionRejected:
		s.logger.WarnContext(ctx, "payment event ignored: transition not allowed", logArgs...)
	default:
		s.logger.DebugContext(ctx, "payment event skipped", logArgs...)
	}

	return result, nil
}

func (s *Synchronizer) loadOrNew(ctx context.Context, userID, email string) (*domain.UserSubscription, error) {
	sub, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	if sub == nil {
		return domain.NewUserSubscription(userID, email, s.now())
	}
	sub.UpdateEmail(email)
	return sub, nil
}

// ensureCustomer must run under the user's lock.
func (s *Synchronizer) ensureCustomer(ctx context.Context, sub *domain.UserSubscription) (string, error) {
	if id := sub.ExternalCustomerID(); id != "" {
		return id, nil
	}
	if sub.Email() == "" {
		return "", fmt.Errorf("%w: email is needed to create a customer", domain.ErrInvalidUser)
	}

	customerID, err := s.gateway.CreateCustomer(ctx, sub.Email(), map[string]string{"user_id": sub.UserID()})
	if err != nil {
		return "", err
	}
	if err := sub.AttachCustomer(customerID, s.now()); err != nil {
		return "", err
	}
	if err := s.persist(ctx, sub); err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "gateway customer created", "user_id", sub.UserID(), "customer_id", customerID)
	return customerID, nil
}

// persist writes the state and its pending events in one unit of work.
func (s *Synchronizer) persist(ctx context.Context, sub *domain.UserSubscription) error {
	err := sharedApplication.WithUnitOfWork(ctx, s.uow, func(txCtx context.Context) error {
		if err := s.repo.Save(txCtx, sub); err != nil {
			return err
		}

		events := sub.DomainEvents()
		if len(events) == 0 || s.outboxRepo == nil {
			return nil
		}
		sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(ctx, sub.UserID()))

		msgs, err := outbox.NewMessages(events)
		if err != nil {
			return err
		}
		return s.outboxRepo.SaveBatch(txCtx, msgs)
	})
	if err != nil {
		return err
	}
	sub.ClearDomainEvents()
	return nil
}

func subscriptionMetadata(userID string, quote domain.Quote) map[string]string {
	metadata := quote.Metadata()
	metadata["user_id"] = userID
	return metadata
}
