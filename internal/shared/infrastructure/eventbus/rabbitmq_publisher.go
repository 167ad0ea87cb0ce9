package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ExchangeName is the topic exchange carrying billing events.
const ExchangeName = "mewayz.billing.events"

const appID = "mewayz-billing"

var (
	// ErrPublisherClosed is returned once the broker connection is gone.
	ErrPublisherClosed = errors.New("rabbitmq publisher closed")
	// ErrPublishNacked is returned when the broker refuses an envelope.
	ErrPublishNacked = errors.New("rabbitmq nacked subscription event")
)

// RabbitMQPublisher publishes outbox envelopes on a confirm-mode channel,
// so the outbox only marks a row published once the broker has it.
type RabbitMQPublisher struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *slog.Logger
}

// NewRabbitMQPublisher dials url, declares the billing exchange and puts
// the channel in confirm mode.
func NewRabbitMQPublisher(url string, logger *slog.Logger) (*RabbitMQPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err == nil {
		err = declareExchange(ch, ExchangeName)
	}
	if err == nil {
		err = ch.Confirm(false)
	}
	if err != nil {
		if ch != nil {
			_ = ch.Close()
		}
		_ = conn.Close()
		return nil, fmt.Errorf("failed to prepare publish channel: %w", err)
	}

	logger = logger.With("exchange", ExchangeName)
	logger.Info("RabbitMQ publisher connected")
	return &RabbitMQPublisher{conn: conn, channel: ch, logger: logger}, nil
}

func declareExchange(ch *amqp.Channel, name string) error {
	// durable topic exchange, not auto-deleted, not internal
	if err := ch.ExchangeDeclare(name, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", name, err)
	}
	return nil
}

// envelope wraps an outbox payload as a persistent JSON message typed by
// its routing key, e.g. billing.subscription.status_changed.
func envelope(routingKey string, payload []byte, now time.Time) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		AppId:        appID,
		Type:         routingKey,
		Timestamp:    now,
		Body:         payload,
	}
}

// Publish sends the envelope and waits for the broker confirm.
func (p *RabbitMQPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil || p.channel.IsClosed() {
		return ErrPublisherClosed
	}

	confirm, err := p.channel.PublishWithDeferredConfirmWithContext(ctx,
		ExchangeName, routingKey, false, false, envelope(routingKey, payload, time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("confirm %s: %w", routingKey, err)
	}
	if !acked {
		return fmt.Errorf("%w: %s", ErrPublishNacked, routingKey)
	}

	p.logger.Debug("subscription event published", "routing_key", routingKey, "size", len(payload))
	return nil
}

// Healthy reports whether the connection is still open.
func (p *RabbitMQPublisher) Healthy() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil || p.conn.IsClosed() {
		return ErrPublisherClosed
	}
	return nil
}

// Close closes the channel and the connection.
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Warn("error closing channel", "error", err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return err
		}
	}
	p.logger.Info("RabbitMQ publisher closed")
	return nil
}

var _ Publisher = (*RabbitMQPublisher)(nil)
