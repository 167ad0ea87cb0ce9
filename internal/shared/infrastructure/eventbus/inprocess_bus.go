package eventbus

import (
	"context"
	"log/slog"
	"sync"
)

// InProcessEventBus hands outbox envelopes straight to registered
// consumers. Local mode uses it in place of RabbitMQ so the audit
// subscriber still sees every subscription event.
type InProcessEventBus struct {
	registry *ConsumerRegistry
	logger   *slog.Logger
	// serializes dispatch so consumers observe publish order
	mu sync.Mutex
}

// NewInProcessEventBus creates an empty bus.
func NewInProcessEventBus(logger *slog.Logger) *InProcessEventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &InProcessEventBus{
		registry: NewConsumerRegistry(logger),
		logger:   logger.With("bus", "in-process"),
	}
}

// RegisterConsumer subscribes consumer to its topic patterns.
func (b *InProcessEventBus) RegisterConsumer(consumer EventConsumer) {
	b.registry.Register(consumer)
}

// Publish dispatches one envelope. Undecodable envelopes and consumer
// failures are logged, never returned: the audit trail must not hold the
// outbox row back, and a redelivery would fail the same way.
func (b *InProcessEventBus) Publish(ctx context.Context, routingKey string, payload []byte) error {
	event, err := decodeEnvelope(routingKey, payload)
	if err != nil {
		b.logger.Error("dropping undecodable envelope", "routing_key", routingKey, "error", err)
		return nil
	}
	if err := b.Deliver(ctx, event); err != nil {
		b.logger.Error("subscription event consumer failed",
			"routing_key", event.RoutingKey,
			"event_id", event.EventID,
			"error", err,
		)
	}
	return nil
}

// Deliver dispatches an already decoded envelope and returns consumer
// errors.
func (b *InProcessEventBus) Deliver(ctx context.Context, event *ConsumedEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registry.Dispatch(ctx, event)
}

// Close is a no-op.
func (b *InProcessEventBus) Close() error { return nil }

var _ Publisher = (*InProcessEventBus)(nil)
