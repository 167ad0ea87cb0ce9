package eventbus

import (
	"context"
	"log/slog"
)

// Publisher delivers outbox envelopes to the bus. The outbox marks a row
// published only after Publish returns nil.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
	Close() error
}

// NoopPublisher drops every envelope. The container falls back to it in
// development when the configured broker is unreachable.
type NoopPublisher struct {
	logger *slog.Logger
}

// NewNoopPublisher creates a publisher that only logs.
func NewNoopPublisher(logger *slog.Logger) *NoopPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopPublisher{logger: logger}
}

func (p *NoopPublisher) Publish(_ context.Context, routingKey string, payload []byte) error {
	p.logger.Debug("subscription event dropped, no broker", "routing_key", routingKey, "size", len(payload))
	return nil
}

func (p *NoopPublisher) Close() error { return nil }

var _ Publisher = (*NoopPublisher)(nil)
