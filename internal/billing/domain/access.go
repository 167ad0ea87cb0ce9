package domain

import "time"

// DenyReason explains a negative access decision.
type DenyReason string

const (
	ReasonUnknownService       DenyReason = "unknown_service"
	ReasonNoSubscription       DenyReason = "no_subscription"
	ReasonSubscriptionInactive DenyReason = "subscription_inactive"
	ReasonBundleNotSubscribed  DenyReason = "bundle_not_subscribed"
	ReasonPastDue              DenyReason = "past_due"
)

// Decision is the outcome of an access check.
type Decision struct {
	Allowed  bool
	Reason   DenyReason
	Service  string
	BundleID string
	Status   SubscriptionStatus
}

// Allow builds a positive decision.
func Allow(service, bundleID string, status SubscriptionStatus) Decision {
	return Decision{Allowed: true, Service: service, BundleID: bundleID, Status: status}
}

// Deny builds a negative decision.
func Deny(service, bundleID string, status SubscriptionStatus, reason DenyReason) Decision {
	return Decision{Service: service, BundleID: bundleID, Status: status, Reason: reason}
}

// GracePolicy decides whether a past_due subscription keeps access. A zero
// Window denies immediately.
type GracePolicy struct {
	Window time.Duration
}

// AllowsPastDue reports whether now is still inside the window that starts
// at the last successful payment.
func (p GracePolicy) AllowsPastDue(lastPaymentAt *time.Time, now time.Time) bool {
	if p.Window <= 0 || lastPaymentAt == nil {
		return false
	}
	return now.Sub(*lastPaymentAt) < p.Window
}
