package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ins72/mewayz-good-sub001/pkg/observability"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultConsumerQueueName is the durable audit queue the worker binds.
const DefaultConsumerQueueName = "mewayz.billing.audit"

// MetricDeliveries counts audit deliveries. tags: event, result
// (handled, requeued, dropped, undecodable).
const MetricDeliveries = "billing_audit_deliveries_total"

// ErrConsumerRunning is returned by a second concurrent Start.
var ErrConsumerRunning = errors.New("rabbitmq consumer already running")

// RabbitMQConsumerConfig configures the audit consumer.
type RabbitMQConsumerConfig struct {
	URL       string
	QueueName string
	Exchange  string
	// Prefetch bounds unacked deliveries; defaults to 1 so events of one
	// subscription are handled in publish order.
	Prefetch int
	Logger   *slog.Logger
	Metrics  observability.Metrics
}

// RabbitMQConsumer drains subscription lifecycle envelopes from a durable
// queue bound to the billing exchange.
type RabbitMQConsumer struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	cfg      RabbitMQConsumerConfig
	registry *ConsumerRegistry
	logger   *slog.Logger
	metrics  observability.Metrics

	mu      sync.Mutex
	running bool
	closed  bool
	stop    chan struct{}
}

// NewRabbitMQConsumer dials the broker and declares the exchange and the
// audit queue.
func NewRabbitMQConsumer(cfg RabbitMQConsumerConfig, registry *ConsumerRegistry) (*RabbitMQConsumer, error) {
	c := newConsumer(cfg, registry)

	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := declareAuditQueue(ch, c.cfg); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	c.conn, c.channel = conn, ch
	c.logger.Info("audit consumer connected")
	return c, nil
}

// newConsumer applies defaults without touching the network.
func newConsumer(cfg RabbitMQConsumerConfig, registry *ConsumerRegistry) *RabbitMQConsumer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics{}
	}
	if cfg.QueueName == "" {
		cfg.QueueName = DefaultConsumerQueueName
	}
	if cfg.Exchange == "" {
		cfg.Exchange = ExchangeName
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if registry == nil {
		registry = NewConsumerRegistry(cfg.Logger)
	}
	return &RabbitMQConsumer{
		cfg:      cfg,
		registry: registry,
		logger:   cfg.Logger.With("queue", cfg.QueueName, "exchange", cfg.Exchange),
		metrics:  cfg.Metrics,
		stop:     make(chan struct{}),
	}
}

func declareAuditQueue(ch *amqp.Channel, cfg RabbitMQConsumerConfig) error {
	if err := declareExchange(ch, cfg.Exchange); err != nil {
		return err
	}
	// durable, not auto-deleted, shared between worker replicas
	if _, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", cfg.QueueName, err)
	}
	return nil
}

// RegisterConsumer adds a handler and binds each of its topic patterns,
// e.g. billing.subscription.#, to the audit queue.
func (c *RabbitMQConsumer) RegisterConsumer(consumer EventConsumer) {
	c.registry.Register(consumer)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, pattern := range consumer.EventTypes() {
		if err := c.channel.QueueBind(c.cfg.QueueName, pattern, c.cfg.Exchange, false, nil); err != nil {
			c.logger.Error("failed to bind audit queue", "pattern", pattern, "error", err)
			continue
		}
		c.logger.Debug("bound audit queue", "pattern", pattern)
	}
}

// Start blocks, handling deliveries until ctx is done or Close is called.
func (c *RabbitMQConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrConsumerRunning
	}
	c.running = true
	c.mu.Unlock()

	if err := c.channel.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	// manual ack, shared queue
	deliveries, err := c.channel.Consume(c.cfg.QueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	c.logger.Info("consuming subscription events", "prefetch", c.cfg.Prefetch)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			c.handleDelivery(ctx, d)
		}
	}
}

// handleDelivery dispatches one envelope and settles it. Undecodable bodies
// are dropped; a failed first delivery is requeued once, a failed
// redelivery is dropped so one bad event cannot stall the audit trail.
func (c *RabbitMQConsumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	event, err := decodeEnvelope(d.RoutingKey, d.Body)
	if err != nil {
		c.logger.Error("dropping undecodable envelope", "routing_key", d.RoutingKey, "error", err)
		c.settle(d, d.RoutingKey, "undecodable", d.Nack(false, false))
		return
	}

	log := c.logger.With(
		"routing_key", event.RoutingKey,
		"event_id", event.EventID,
		observability.UserIDKey, event.Metadata.UserID,
		observability.CorrelationIDKey, event.Metadata.CorrelationID,
	)

	err = c.registry.Dispatch(ctx, event)
	switch {
	case err == nil:
		c.settle(d, event.RoutingKey, "handled", d.Ack(false))
	case !d.Redelivered:
		log.Warn("audit handler failed, requeueing", "error", err)
		c.settle(d, event.RoutingKey, "requeued", d.Nack(false, true))
	default:
		log.Error("audit handler failed on redelivery, dropping", "error", err)
		c.settle(d, event.RoutingKey, "dropped", d.Nack(false, false))
	}
}

func (c *RabbitMQConsumer) settle(d amqp.Delivery, event, result string, ackErr error) {
	if ackErr != nil {
		c.logger.Error("failed to settle delivery", "delivery_tag", d.DeliveryTag, "result", result, "error", ackErr)
	}
	c.metrics.Counter(MetricDeliveries, 1, observability.T("event", event), observability.T("result", result))
}

// Close stops Start and closes the connection. It is safe to call twice.
func (c *RabbitMQConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.running = false
	close(c.stop)

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Warn("error closing channel", "error", err)
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			return err
		}
	}
	c.logger.Info("audit consumer closed")
	return nil
}

var _ Consumer = (*RabbitMQConsumer)(nil)
