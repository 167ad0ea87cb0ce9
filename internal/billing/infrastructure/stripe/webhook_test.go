package stripe_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/ins72/mewayz-good-sub001/internal/billing/domain"
	billingstripe "github.com/ins72/mewayz-good-sub001/internal/billing/infrastructure/stripe"
	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test_secret"

func sign(t *testing.T, payload string) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func eventJSON(id, typ string, created int64, object string) string {
	return fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"created":%d,"data":{"object":%s}}`, id, typ, created, object)
}

func TestWebhookParser_Parse(t *testing.T) {
	const created = 1767225600
	at := time.Unix(created, 0).UTC()

	tests := []struct {
		name    string
		payload string
		want    domain.PaymentEvent
		ok      bool
	}{
		{
			name:    "invoice paid",
			payload: eventJSON("evt_1", "invoice.paid", created, `{"id":"in_1","object":"invoice","parent":{"type":"subscription_details","subscription_details":{"subscription":"sub_1"}}}`),
			want:    domain.PaymentEvent{ID: "evt_1", Kind: domain.EventInvoicePaid, ExternalSubscriptionID: "sub_1", Status: domain.StatusActive, OccurredAt: at},
			ok:      true,
		},
		{
			name:    "invoice payment succeeded with legacy subscription field",
			payload: eventJSON("evt_2", "invoice.payment_succeeded", created, `{"id":"in_2","object":"invoice","subscription":"sub_2"}`),
			want:    domain.PaymentEvent{ID: "evt_2", Kind: domain.EventInvoicePaid, ExternalSubscriptionID: "sub_2", Status: domain.StatusActive, OccurredAt: at},
			ok:      true,
		},
		{
			name:    "invoice with expanded legacy subscription",
			payload: eventJSON("evt_11", "invoice.paid", created, `{"id":"in_11","object":"invoice","subscription":{"id":"sub_11","object":"subscription","status":"active"}}`),
			want:    domain.PaymentEvent{ID: "evt_11", Kind: domain.EventInvoicePaid, ExternalSubscriptionID: "sub_11", Status: domain.StatusActive, OccurredAt: at},
			ok:      true,
		},
		{
			name:    "invoice with expanded parent subscription",
			payload: eventJSON("evt_12", "invoice.payment_failed", created, `{"id":"in_12","object":"invoice","parent":{"subscription_details":{"subscription":{"id":"sub_12","object":"subscription"}}}}`),
			want:    domain.PaymentEvent{ID: "evt_12", Kind: domain.EventInvoicePaymentFailed, ExternalSubscriptionID: "sub_12", Status: domain.StatusPastDue, OccurredAt: at},
			ok:      true,
		},
		{
			name:    "invoice with null subscription is ignored",
			payload: eventJSON("evt_13", "invoice.paid", created, `{"id":"in_13","object":"invoice","subscription":null}`),
		},
		{
			name:    "invoice payment failed",
			payload: eventJSON("evt_3", "invoice.payment_failed", created, `{"id":"in_3","object":"invoice","parent":{"subscription_details":{"subscription":"sub_1"}}}`),
			want:    domain.PaymentEvent{ID: "evt_3", Kind: domain.EventInvoicePaymentFailed, ExternalSubscriptionID: "sub_1", Status: domain.StatusPastDue, OccurredAt: at},
			ok:      true,
		},
		{
			name:    "subscription updated to trialing",
			payload: eventJSON("evt_4", "customer.subscription.updated", created, `{"id":"sub_1","object":"subscription","status":"trialing"}`),
			want:    domain.PaymentEvent{ID: "evt_4", Kind: domain.EventSubscriptionUpdated, ExternalSubscriptionID: "sub_1", Status: domain.StatusActive, OccurredAt: at},
			ok:      true,
		},
		{
			name:    "subscription created incomplete",
			payload: eventJSON("evt_5", "customer.subscription.created", created, `{"id":"sub_1","object":"subscription","status":"incomplete"}`),
			want:    domain.PaymentEvent{ID: "evt_5", Kind: domain.EventSubscriptionCreated, ExternalSubscriptionID: "sub_1", Status: domain.StatusPending, OccurredAt: at},
			ok:      true,
		},
		{
			name:    "subscription deleted",
			payload: eventJSON("evt_6", "customer.subscription.deleted", created, `{"id":"sub_1","object":"subscription","status":"canceled"}`),
			want:    domain.PaymentEvent{ID: "evt_6", Kind: domain.EventSubscriptionDeleted, ExternalSubscriptionID: "sub_1", Status: domain.StatusCanceled, OccurredAt: at},
			ok:      true,
		},
		{
			name:    "unpaid maps to past due",
			payload: eventJSON("evt_7", "customer.subscription.updated", created, `{"id":"sub_1","object":"subscription","status":"unpaid"}`),
			want:    domain.PaymentEvent{ID: "evt_7", Kind: domain.EventSubscriptionUpdated, ExternalSubscriptionID: "sub_1", Status: domain.StatusPastDue, OccurredAt: at},
			ok:      true,
		},
		{
			name:    "paused is ignored",
			payload: eventJSON("evt_8", "customer.subscription.updated", created, `{"id":"sub_1","object":"subscription","status":"paused"}`),
		},
		{
			name:    "one-off invoice is ignored",
			payload: eventJSON("evt_9", "invoice.paid", created, `{"id":"in_9","object":"invoice"}`),
		},
		{
			name:    "unrelated type is ignored",
			payload: eventJSON("evt_10", "charge.refunded", created, `{"id":"ch_1","object":"charge"}`),
		},
	}

	parser := billingstripe.NewWebhookParser(testSecret)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, ok, err := parser.Parse([]byte(tt.payload), sign(t, tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, evt)
			}
		})
	}
}

func TestWebhookParser_RejectsBadSignature(t *testing.T) {
	parser := billingstripe.NewWebhookParser(testSecret)
	payload := eventJSON("evt_1", "invoice.paid", 1767225600, `{"id":"in_1","subscription":"sub_1"}`)

	_, _, err := parser.Parse([]byte(payload), "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, billingstripe.ErrInvalidSignature)

	other := billingstripe.NewWebhookParser("whsec_other")
	_, _, err = other.Parse([]byte(payload), sign(t, payload))
	assert.ErrorIs(t, err, billingstripe.ErrInvalidSignature)

	tampered := sign(t, payload)
	_, _, err = parser.Parse([]byte(payload+" "), tampered)
	assert.ErrorIs(t, err, billingstripe.ErrInvalidSignature)
}

func TestMapStatus(t *testing.T) {
	tests := map[string]domain.SubscriptionStatus{
		"active":             domain.StatusActive,
		"trialing":           domain.StatusActive,
		"past_due":           domain.StatusPastDue,
		"unpaid":             domain.StatusPastDue,
		"canceled":           domain.StatusCanceled,
		"incomplete_expired": domain.StatusCanceled,
		"incomplete":         domain.StatusPending,
	}
	for in, want := range tests {
		got, ok := billingstripe.MapStatus(stripeStatus(in))
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := billingstripe.MapStatus(stripeStatus("paused"))
	assert.False(t, ok)
}
