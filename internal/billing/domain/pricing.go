package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// BillingInterval is the recurring charge period.
type BillingInterval string

const (
	IntervalMonthly BillingInterval = "monthly"
	IntervalYearly  BillingInterval = "yearly"
)

// ParseBillingInterval accepts "monthly" or "yearly". Empty means monthly.
func ParseBillingInterval(s string) (BillingInterval, error) {
	switch BillingInterval(strings.ToLower(strings.TrimSpace(s))) {
	case "", IntervalMonthly:
		return IntervalMonthly, nil
	case IntervalYearly:
		return IntervalYearly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidInterval, s)
	}
}

// Months is the number of monthly prices charged per period.
func (i BillingInterval) Months() int64 {
	if i == IntervalYearly {
		return 12
	}
	return 1
}

func (i BillingInterval) Valid() bool {
	return i == IntervalMonthly || i == IntervalYearly
}

// Quote is the priced view of a selection. It is never persisted.
type Quote struct {
	Bundles        Selection
	Interval       BillingInterval
	GrossTotal     decimal.Decimal
	DiscountRate   decimal.Decimal
	DiscountAmount decimal.Decimal
	NetTotal       decimal.Decimal
	Currency       string
}

// UnitAmountCents is the net total in minor units, as charged per period.
func (q Quote) UnitAmountCents() int64 {
	return q.NetTotal.Shift(2).IntPart()
}

// Metadata is attached to gateway subscriptions for auditability.
func (q Quote) Metadata() map[string]string {
	return map[string]string{
		"bundles":       q.Bundles.String(),
		"interval":      string(q.Interval),
		"discount_rate": q.DiscountRate.StringFixed(2),
		"gross_total":   q.GrossTotal.StringFixed(2),
		"net_total":     q.NetTotal.StringFixed(2),
		"currency":      q.Currency,
	}
}

var (
	rateNone  = decimal.Zero
	rateTwo   = decimal.RequireFromString("0.20")
	rateThree = decimal.RequireFromString("0.30")
	rateFour  = decimal.RequireFromString("0.40")
)

// DiscountRate is the multi-bundle discount for a selection of count bundles.
func DiscountRate(count int) decimal.Decimal {
	switch {
	case count >= 4:
		return rateFour
	case count == 3:
		return rateThree
	case count == 2:
		return rateTwo
	default:
		return rateNone
	}
}

// PriceCalculator prices bundle selections. It holds no mutable state.
type PriceCalculator struct {
	catalog  *Catalog
	currency string
}

// NewPriceCalculator creates a calculator quoting in currency.
func NewPriceCalculator(catalog *Catalog, currency string) *PriceCalculator {
	if currency == "" {
		currency = "usd"
	}
	return &PriceCalculator{catalog: catalog, currency: strings.ToLower(currency)}
}

// Catalog returns the catalog the calculator prices against.
func (p *PriceCalculator) Catalog() *Catalog {
	return p.catalog
}

// Currency returns the ISO currency code used for quotes.
func (p *PriceCalculator) Currency() string {
	return p.currency
}

// Quote prices ids for the interval. Net is rounded half-up to cents and
// the discount amount is derived from it so the three totals reconcile.
func (p *PriceCalculator) Quote(ids []string, interval BillingInterval) (Quote, error) {
	if !interval.Valid() {
		return Quote{}, fmt.Errorf("%w: %q", ErrInvalidInterval, interval)
	}
	sel, err := p.catalog.Select(ids)
	if err != nil {
		return Quote{}, err
	}

	monthly := decimal.Zero
	for _, id := range sel {
		b, err := p.catalog.Get(id)
		if err != nil {
			return Quote{}, &UnknownBundleError{ID: id}
		}
		monthly = monthly.Add(b.MonthlyPrice)
	}

	gross := monthly.Mul(decimal.NewFromInt(interval.Months())).Round(2)
	rate := DiscountRate(sel.Len())
	net := gross.Mul(decimal.NewFromInt(1).Sub(rate)).Round(2)

	return Quote{
		Bundles:        sel,
		Interval:       interval,
		GrossTotal:     gross,
		DiscountRate:   rate,
		DiscountAmount: gross.Sub(net),
		NetTotal:       net,
		Currency:       p.currency,
	}, nil
}
