package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	sharedDomain "github.com/ins72/mewayz-good-sub001/internal/shared/domain"
)

// SubscriptionStatus is the local mirror of the gateway subscription state.
type SubscriptionStatus string

const (
	StatusNone     SubscriptionStatus = "none"
	StatusPending  SubscriptionStatus = "pending"
	StatusActive   SubscriptionStatus = "active"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusCanceled SubscriptionStatus = "canceled"
)

// ParseSubscriptionStatus reads a stored status.
func ParseSubscriptionStatus(s string) (SubscriptionStatus, error) {
	switch status := SubscriptionStatus(strings.ToLower(s)); status {
	case StatusNone, StatusPending, StatusActive, StatusPastDue, StatusCanceled:
		return status, nil
	case "":
		return StatusNone, nil
	default:
		return "", fmt.Errorf("unknown subscription status %q", s)
	}
}

// transitions lists the status changes a gateway event may cause.
var transitions = map[SubscriptionStatus]map[SubscriptionStatus]bool{
	StatusPending:  {StatusActive: true, StatusPastDue: true, StatusCanceled: true},
	StatusActive:   {StatusPastDue: true, StatusCanceled: true},
	StatusPastDue:  {StatusActive: true, StatusCanceled: true},
	StatusNone:     {},
	StatusCanceled: {},
}

// CanTransition reports whether a webhook may move from -> to.
func CanTransition(from, to SubscriptionStatus) bool {
	return transitions[from][to]
}

// maxRecentEventIDs bounds how many applied gateway event ids are kept
// for redelivery detection.
const maxRecentEventIDs = 32

// TransitionResult describes what ApplyPaymentEvent did.
type TransitionResult string

const (
	TransitionApplied   TransitionResult = "applied"
	TransitionRenewed   TransitionResult = "renewed"
	TransitionUnchanged TransitionResult = "unchanged"
	TransitionDuplicate TransitionResult = "duplicate"
	TransitionStale     TransitionResult = "stale"
	TransitionRejected  TransitionResult = "rejected"
)

// Changed reports whether the aggregate must be saved.
func (r TransitionResult) Changed() bool {
	return r == TransitionApplied || r == TransitionRenewed
}

// UserSubscription is the per-user subscription state. It is the only
// writer of status and active bundles.
type UserSubscription struct {
	sharedDomain.BaseAggregateRoot
	userID            string
	email             string
	customerID        string
	subscriptionID    string
	bundles           Selection
	bundleSet         map[string]struct{}
	interval          BillingInterval
	status            SubscriptionStatus
	unitAmountCents   int64
	currency          string
	cancelRequestedAt *time.Time
	lastPaymentAt     *time.Time
	lastEventID       string
	lastEventAt       *time.Time
	recentEventIDs    []string
}

// NewUserSubscription creates the empty state for a user.
func NewUserSubscription(userID, email string, now time.Time) (*UserSubscription, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidUser
	}
	return &UserSubscription{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(now),
		userID:            userID,
		email:             strings.TrimSpace(email),
		bundles:           Selection{},
		bundleSet:         map[string]struct{}{},
		interval:          IntervalMonthly,
		status:            StatusNone,
	}, nil
}

// Snapshot is the flat persisted form shared by every repository.
type Snapshot struct {
	ID                     uuid.UUID
	UserID                 string
	Email                  string
	ExternalCustomerID     string
	ExternalSubscriptionID string
	ActiveBundles          []string
	BillingInterval        string
	Status                 string
	UnitAmountCents        int64
	Currency               string
	CancelRequestedAt      *time.Time
	LastPaymentAt          *time.Time
	LastEventID            string
	LastEventAt            *time.Time
	RecentEventIDs         []string
	Version                int
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Rehydrate rebuilds the aggregate from storage.
func Rehydrate(s Snapshot) (*UserSubscription, error) {
	status, err := ParseSubscriptionStatus(s.Status)
	if err != nil {
		return nil, err
	}
	interval, err := ParseBillingInterval(s.BillingInterval)
	if err != nil {
		return nil, err
	}
	bundles := NewSelection(s.ActiveBundles...)
	return &UserSubscription{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(s.ID, s.CreatedAt, s.UpdatedAt, s.Version),
		userID:            s.UserID,
		email:             s.Email,
		customerID:        s.ExternalCustomerID,
		subscriptionID:    s.ExternalSubscriptionID,
		bundles:           bundles,
		bundleSet:         bundles.Set(),
		interval:          interval,
		status:            status,
		unitAmountCents:   s.UnitAmountCents,
		currency:          s.Currency,
		cancelRequestedAt: s.CancelRequestedAt,
		lastPaymentAt:     s.LastPaymentAt,
		lastEventID:       s.LastEventID,
		lastEventAt:       s.LastEventAt,
		recentEventIDs:    recentEventIDs(s.RecentEventIDs, s.LastEventID),
	}, nil
}

// Snapshot flattens the aggregate for storage.
func (s *UserSubscription) Snapshot() Snapshot {
	return Snapshot{
		ID:                     s.ID(),
		UserID:                 s.userID,
		Email:                  s.email,
		ExternalCustomerID:     s.customerID,
		ExternalSubscriptionID: s.subscriptionID,
		ActiveBundles:          append([]string{}, s.bundles...),
		BillingInterval:        string(s.interval),
		Status:                 string(s.status),
		UnitAmountCents:        s.unitAmountCents,
		Currency:               s.currency,
		CancelRequestedAt:      s.cancelRequestedAt,
		LastPaymentAt:          s.lastPaymentAt,
		LastEventID:            s.lastEventID,
		LastEventAt:            s.lastEventAt,
		RecentEventIDs:         append([]string{}, s.recentEventIDs...),
		Version:                s.Version(),
		CreatedAt:              s.CreatedAt(),
		UpdatedAt:              s.UpdatedAt(),
	}
}

func (s *UserSubscription) UserID() string                  { return s.userID }
func (s *UserSubscription) Email() string                   { return s.email }
func (s *UserSubscription) ExternalCustomerID() string      { return s.customerID }
func (s *UserSubscription) ExternalSubscriptionID() string  { return s.subscriptionID }
func (s *UserSubscription) ActiveBundles() Selection        { return append(Selection{}, s.bundles...) }
func (s *UserSubscription) BillingInterval() BillingInterval { return s.interval }
func (s *UserSubscription) Status() SubscriptionStatus      { return s.status }
func (s *UserSubscription) UnitAmountCents() int64          { return s.unitAmountCents }
func (s *UserSubscription) Currency() string                { return s.currency }
func (s *UserSubscription) CancelRequestedAt() *time.Time   { return s.cancelRequestedAt }
func (s *UserSubscription) LastPaymentAt() *time.Time       { return s.lastPaymentAt }
func (s *UserSubscription) LastEventID() string             { return s.lastEventID }

// HasBundle is a constant-time membership check on the active bundles.
func (s *UserSubscription) HasBundle(bundleID string) bool {
	_, ok := s.bundleSet[bundleID]
	return ok
}

// HasLiveSubscription reports whether the user has a gateway subscription
// that can still be changed. A subscription with a pending cancel request
// is already canceled at the gateway and only awaits its deletion event.
func (s *UserSubscription) HasLiveSubscription() bool {
	if s.subscriptionID == "" || s.cancelRequestedAt != nil {
		return false
	}
	return s.status != StatusCanceled && s.status != StatusNone
}

// NeedsChange reports whether the live subscription differs from quote.
func (s *UserSubscription) NeedsChange(quote Quote) bool {
	return !s.bundles.Equal(quote.Bundles) || s.interval != quote.Interval
}

// UpdateEmail records a newer email for future customer creation.
func (s *UserSubscription) UpdateEmail(email string) {
	email = strings.TrimSpace(email)
	if email != "" {
		s.email = email
	}
}

// AttachCustomer records the gateway customer id once.
func (s *UserSubscription) AttachCustomer(customerID string, now time.Time) error {
	if customerID == "" {
		return fmt.Errorf("empty customer id for user %s", s.userID)
	}
	if s.customerID != "" && s.customerID != customerID {
		return fmt.Errorf("user %s already has customer %s", s.userID, s.customerID)
	}
	s.customerID = customerID
	s.Touch(now)
	return nil
}

// StartSubscription records a newly created gateway subscription. Status
// becomes pending until the first payment event.
func (s *UserSubscription) StartSubscription(subscriptionID string, quote Quote, now time.Time) error {
	if subscriptionID == "" {
		return fmt.Errorf("empty subscription id for user %s", s.userID)
	}
	if s.HasLiveSubscription() {
		return fmt.Errorf("user %s already has live subscription %s", s.userID, s.subscriptionID)
	}
	s.subscriptionID = subscriptionID
	s.status = StatusPending
	s.applyQuote(quote)
	s.cancelRequestedAt = nil
	s.lastEventID = ""
	s.lastEventAt = nil
	s.recentEventIDs = nil

	s.AddDomainEvent(&SubscriptionRequested{
		BaseEvent:              newEvent(s.ID(), RoutingKeySubscriptionRequested, now),
		UserID:                 s.userID,
		ExternalSubscriptionID: subscriptionID,
		Bundles:                append([]string{}, s.bundles...),
		Interval:               string(s.interval),
		UnitAmountCents:        s.unitAmountCents,
		Currency:               s.currency,
	})
	return nil
}

// ChangeSubscription records an in-place update of the live subscription.
// Status is left to the webhook flow.
func (s *UserSubscription) ChangeSubscription(quote Quote, now time.Time) error {
	if !s.HasLiveSubscription() {
		return fmt.Errorf("user %s has no live subscription to change", s.userID)
	}
	previous := append([]string{}, s.bundles...)
	s.applyQuote(quote)

	s.AddDomainEvent(&SubscriptionChanged{
		BaseEvent:              newEvent(s.ID(), RoutingKeySubscriptionChanged, now),
		UserID:                 s.userID,
		ExternalSubscriptionID: s.subscriptionID,
		PreviousBundles:        previous,
		Bundles:                append([]string{}, s.bundles...),
		Interval:               string(s.interval),
		UnitAmountCents:        s.unitAmountCents,
		Currency:               s.currency,
	})
	return nil
}

// RequestCancel notes that the gateway accepted a cancellation. Status
// changes only when the confirming event arrives.
func (s *UserSubscription) RequestCancel(now time.Time) error {
	if !s.HasLiveSubscription() {
		return fmt.Errorf("user %s has no live subscription to cancel", s.userID)
	}
	at := now.UTC()
	s.cancelRequestedAt = &at
	s.AddDomainEvent(&CancelRequested{
		BaseEvent:              newEvent(s.ID(), RoutingKeyCancelRequested, now),
		UserID:                 s.userID,
		ExternalSubscriptionID: s.subscriptionID,
	})
	return nil
}

// ApplyPaymentEvent applies a gateway callback. Replays, events older than
// the last applied one and same-status events leave the state untouched.
func (s *UserSubscription) ApplyPaymentEvent(evt PaymentEvent) TransitionResult {
	if evt.ExternalSubscriptionID != s.subscriptionID {
		return TransitionRejected
	}
	if s.seenEvent(evt.ID) {
		return TransitionDuplicate
	}
	if s.lastEventAt != nil && evt.OccurredAt.Before(*s.lastEventAt) {
		return TransitionStale
	}

	paid := evt.Kind == EventInvoicePaid
	occurred := evt.OccurredAt.UTC()

	if evt.Status == s.status {
		if paid && s.status == StatusActive && !sameInstant(s.lastPaymentAt, occurred) {
			s.lastPaymentAt = &occurred
			s.recordEvent(evt)
			return TransitionRenewed
		}
		return TransitionUnchanged
	}

	if !CanTransition(s.status, evt.Status) {
		return TransitionRejected
	}

	from := s.status
	s.status = evt.Status
	if paid {
		s.lastPaymentAt = &occurred
	}
	s.recordEvent(evt)

	s.AddDomainEvent(&StatusChanged{
		BaseEvent:              newEvent(s.ID(), RoutingKeyStatusChanged, evt.OccurredAt),
		UserID:                 s.userID,
		ExternalSubscriptionID: s.subscriptionID,
		From:                   string(from),
		To:                     string(s.status),
		GatewayEventID:         evt.ID,
		GatewayEventKind:       string(evt.Kind),
	})

	if s.status == StatusCanceled {
		revoked := append([]string{}, s.bundles...)
		s.bundles = Selection{}
		s.bundleSet = map[string]struct{}{}
		s.cancelRequestedAt = nil
		s.AddDomainEvent(&SubscriptionCanceled{
			BaseEvent:              newEvent(s.ID(), RoutingKeySubscriptionCanceled, evt.OccurredAt),
			UserID:                 s.userID,
			ExternalSubscriptionID: s.subscriptionID,
			RevokedBundles:         revoked,
		})
	}

	return TransitionApplied
}

func (s *UserSubscription) applyQuote(quote Quote) {
	s.bundles = append(Selection{}, quote.Bundles...)
	s.bundleSet = s.bundles.Set()
	s.interval = quote.Interval
	s.unitAmountCents = quote.UnitAmountCents()
	s.currency = quote.Currency
}

func (s *UserSubscription) recordEvent(evt PaymentEvent) {
	at := evt.OccurredAt.UTC()
	s.lastEventID = evt.ID
	s.lastEventAt = &at
	if evt.ID != "" {
		s.recentEventIDs = append(s.recentEventIDs, evt.ID)
		if n := len(s.recentEventIDs); n > maxRecentEventIDs {
			s.recentEventIDs = append([]string{}, s.recentEventIDs[n-maxRecentEventIDs:]...)
		}
	}
	s.Touch(at)
}

func (s *UserSubscription) seenEvent(id string) bool {
	if id == "" {
		return false
	}
	for _, seen := range s.recentEventIDs {
		if seen == id {
			return true
		}
	}
	return false
}

// recentEventIDs seeds the window from rows written before it was stored.
func recentEventIDs(stored []string, last string) []string {
	ids := make([]string, 0, len(stored)+1)
	for _, id := range stored {
		if id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 && last != "" {
		ids = append(ids, last)
	}
	if n := len(ids); n > maxRecentEventIDs {
		ids = ids[n-maxRecentEventIDs:]
	}
	return ids
}

func sameInstant(t *time.Time, other time.Time) bool {
	return t != nil && t.Equal(other)
}
