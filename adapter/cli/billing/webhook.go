package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ins72/mewayz-good-sub001/adapter/cli"
	"github.com/ins72/mewayz-good-sub001/internal/billing/domain"
	"github.com/ins72/mewayz-good-sub001/internal/billing/infrastructure/stripe"
	"github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/security"
	"github.com/spf13/cobra"
)

const maxEventFileBytes = 1 << 20

var (
	webhookEventPath string
	webhookStripe    bool
)

// eventFile is the normalized payment event accepted by the webhook
// command.
type eventFile struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	SubscriptionID string    `json:"subscription_id"`
	Status         string    `json:"status,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Apply a payment event from a file",
	Long: `Replay a payment event against the stored subscriptions. The file holds
either a normalized event or, with --stripe, a raw Stripe event. No
signature is checked.

Normalized event:
  {"id": "evt_1", "kind": "invoice.paid", "subscription_id": "sub_local_1",
   "occurred_at": "2026-01-01T00:00:00Z"}

Examples:
  mewayz billing webhook --event ./event.json
  mewayz billing webhook --stripe --event ./stripe_event.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if webhookEventPath == "" {
			return errors.New("event path is required")
		}
		sync := synchronizer(cmd)
		if sync == nil {
			return nil
		}

		payload, err := security.ReadFile(webhookEventPath, maxEventFileBytes)
		if err != nil {
			return err
		}

		var (
			evt domain.PaymentEvent
			ok  = true
		)
		if webhookStripe {
			evt, ok, err = stripe.DecodeEvent(payload)
		} else {
			evt, err = decodeEventFile(payload)
		}
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Event ignored.")
			return nil
		}

		result, err := sync.OnPaymentEvent(cmd.Context(), evt)
		if err != nil {
			return err
		}
		if cli.JSONOutput() {
			return cli.PrintJSON(cmd.OutOrStdout(), map[string]string{
				"event_id": evt.ID,
				"kind":     string(evt.Kind),
				"result":   string(result),
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Event %s (%s): %s\n", evt.ID, evt.Kind, result)
		return nil
	},
}

func decodeEventFile(payload []byte) (domain.PaymentEvent, error) {
	var f eventFile
	if err := json.Unmarshal(payload, &f); err != nil {
		return domain.PaymentEvent{}, fmt.Errorf("invalid event file: %w", err)
	}

	evt := domain.PaymentEvent{
		ID:                     strings.TrimSpace(f.ID),
		Kind:                   domain.PaymentEventKind(f.Kind),
		ExternalSubscriptionID: strings.TrimSpace(f.SubscriptionID),
		Status:                 domain.SubscriptionStatus(f.Status),
		OccurredAt:             f.OccurredAt,
	}
	switch evt.Kind {
	case domain.EventSubscriptionCreated, domain.EventSubscriptionUpdated, domain.EventSubscriptionDeleted,
		domain.EventInvoicePaid, domain.EventInvoicePaymentFailed:
	default:
		return domain.PaymentEvent{}, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidEvent, f.Kind)
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	if status, fixed := domain.StatusForKind(evt.Kind); fixed {
		evt.Status = status
	}
	if err := evt.Validate(); err != nil {
		return domain.PaymentEvent{}, err
	}
	return evt, nil
}

func init() {
	webhookCmd.Flags().StringVar(&webhookEventPath, "event", "", "path to event JSON")
	webhookCmd.Flags().BoolVar(&webhookStripe, "stripe", false, "file holds a raw Stripe event")
}
