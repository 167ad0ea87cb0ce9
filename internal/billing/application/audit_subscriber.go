package application

import (
	"context"
	"log/slog"

	"github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/eventbus"
)

// SubscriptionAuditSubscriber writes every billing lifecycle event to the
// log. It is registered on the in-process bus in local mode and on the
// RabbitMQ audit queue by the worker.
type SubscriptionAuditSubscriber struct {
	logger *slog.Logger
}

// NewSubscriptionAuditSubscriber creates the subscriber.
func NewSubscriptionAuditSubscriber(logger *slog.Logger) *SubscriptionAuditSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionAuditSubscriber{logger: logger}
}

// EventTypes returns the event types this subscriber handles.
func (s *SubscriptionAuditSubscriber) EventTypes() []string {
	return []string{"billing.subscription.#"}
}

// Handle logs the event.
func (s *SubscriptionAuditSubscriber) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	s.logger.InfoContext(ctx, "billing event",
		"routing_key", event.RoutingKey,
		"event_id", event.EventID,
		"aggregate_id", event.AggregateID,
		"user_id", event.Metadata.UserID,
		"correlation_id", event.Metadata.CorrelationID,
		"occurred_at", event.OccurredAt,
	)
	return nil
}

var _ eventbus.EventConsumer = (*SubscriptionAuditSubscriber)(nil)
