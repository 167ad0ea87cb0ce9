package application

import (
	"time"

	"github.com/ins72/mewayz-good-sub001/internal/billing/domain"
)

// SubscriptionView is the read model returned to the HTTP and CLI layers.
type SubscriptionView struct {
	UserID                 string     `json:"user_id"`
	Email                  string     `json:"email,omitempty"`
	Status                 string     `json:"status"`
	ActiveBundles          []string   `json:"active_bundles"`
	BillingInterval        string     `json:"billing_interval,omitempty"`
	UnitAmountCents        int64      `json:"unit_amount_cents"`
	Currency               string     `json:"currency,omitempty"`
	ExternalCustomerID     string     `json:"external_customer_id,omitempty"`
	ExternalSubscriptionID string     `json:"external_subscription_id,omitempty"`
	CancelRequestedAt      *time.Time `json:"cancel_requested_at,omitempty"`
	LastPaymentAt          *time.Time `json:"last_payment_at,omitempty"`
	Version                int        `json:"version"`
	UpdatedAt              *time.Time `json:"updated_at,omitempty"`
}

// NewSubscriptionView flattens sub. A nil sub is reported as status none.
func NewSubscriptionView(userID string, sub *domain.UserSubscription) SubscriptionView {
	if sub == nil {
		return SubscriptionView{
			UserID:        userID,
			Status:        string(domain.StatusNone),
			ActiveBundles: []string{},
		}
	}
	updated := sub.UpdatedAt()
	return SubscriptionView{
		UserID:                 sub.UserID(),
		Email:                  sub.Email(),
		Status:                 string(sub.Status()),
		ActiveBundles:          []string(sub.ActiveBundles()),
		BillingInterval:        string(sub.BillingInterval()),
		UnitAmountCents:        sub.UnitAmountCents(),
		Currency:               sub.Currency(),
		ExternalCustomerID:     sub.ExternalCustomerID(),
		ExternalSubscriptionID: sub.ExternalSubscriptionID(),
		CancelRequestedAt:      sub.CancelRequestedAt(),
		LastPaymentAt:          sub.LastPaymentAt(),
		Version:                sub.Version(),
		UpdatedAt:              &updated,
	}
}

// QuoteView is the JSON form of a quote. Amounts are decimal strings.
type QuoteView struct {
	Bundles         []string `json:"bundles"`
	Interval        string   `json:"interval"`
	GrossTotal      string   `json:"gross_total"`
	DiscountRate    string   `json:"discount_rate"`
	DiscountAmount  string   `json:"discount_amount"`
	NetTotal        string   `json:"net_total"`
	UnitAmountCents int64    `json:"unit_amount_cents"`
	Currency        string   `json:"currency"`
}

// NewQuoteView formats q with two decimal places.
func NewQuoteView(q domain.Quote) QuoteView {
	return QuoteView{
		Bundles:         []string(q.Bundles),
		Interval:        string(q.Interval),
		GrossTotal:      q.GrossTotal.StringFixed(2),
		DiscountRate:    q.DiscountRate.StringFixed(2),
		DiscountAmount:  q.DiscountAmount.StringFixed(2),
		NetTotal:        q.NetTotal.StringFixed(2),
		UnitAmountCents: q.UnitAmountCents(),
		Currency:        q.Currency,
	}
}

// BundleView is the JSON form of a catalog bundle.
type BundleView struct {
	ID           string   `json:"id"`
	DisplayName  string   `json:"display_name"`
	MonthlyPrice string   `json:"monthly_price"`
	Features     []string `json:"features"`
}

// NewBundleView formats b for display.
func NewBundleView(b domain.Bundle) BundleView {
	return BundleView{
		ID:           b.ID,
		DisplayName:  b.DisplayName,
		MonthlyPrice: b.MonthlyPrice.StringFixed(2),
		Features:     append([]string(nil), b.Features...),
	}
}

// DecisionView is the JSON form of an access decision.
type DecisionView struct {
	Allowed  bool   `json:"allowed"`
	Reason   string `json:"reason,omitempty"`
	Service  string `json:"service"`
	BundleID string `json:"bundle_id,omitempty"`
	Status   string `json:"status"`
}

func NewDecisionView(d domain.Decision) DecisionView {
	return DecisionView{
		Allowed:  d.Allowed,
		Reason:   string(d.Reason),
		Service:  d.Service,
		BundleID: d.BundleID,
		Status:   string(d.Status),
	}
}
