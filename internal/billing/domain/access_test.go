package domain_test

import (
	"testing"
	"time"

	"github.com/ins72/mewayz-good-sub001/internal/billing/domain"
	"github.com/stretchr/testify/assert"
)

func TestGracePolicy_AllowsPastDue(t *testing.T) {
	paid := t0

	tests := []struct {
		name   string
		window time.Duration
		last   *time.Time
		now    time.Time
		want   bool
	}{
		{"zero window denies", 0, &paid, paid.Add(time.Minute), false},
		{"no payment on record", 72 * time.Hour, nil, paid, false},
		{"inside window", 72 * time.Hour, &paid, paid.Add(24 * time.Hour), true},
		{"window boundary is exclusive", 72 * time.Hour, &paid, paid.Add(72 * time.Hour), false},
		{"after window", 72 * time.Hour, &paid, paid.Add(96 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := domain.GracePolicy{Window: tt.window}
			assert.Equal(t, tt.want, p.AllowsPastDue(tt.last, tt.now))
		})
	}
}

func TestDecision(t *testing.T) {
	allow := domain.Allow("crm", "business", domain.StatusActive)
	assert.True(t, allow.Allowed)
	assert.Empty(t, allow.Reason)

	deny := domain.Deny("crm", "business", domain.StatusPastDue, domain.ReasonPastDue)
	assert.False(t, deny.Allowed)
	assert.Equal(t, domain.ReasonPastDue, deny.Reason)
	assert.Equal(t, "business", deny.BundleID)
}
