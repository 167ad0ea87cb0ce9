package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/ins72/mewayz-good-sub001/pkg/observability"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// settlement records how a delivery was settled.
type settlement struct {
	acked, nacked, requeued bool
}

func (s *settlement) Ack(uint64, bool) error { s.acked = true; return nil }
func (s *settlement) Nack(_ uint64, _ bool, requeue bool) error {
	s.nacked, s.requeued = true, requeue
	return nil
}
func (s *settlement) Reject(_ uint64, requeue bool) error { return s.Nack(0, false, requeue) }

type auditHandler struct {
	err  error
	seen []*ConsumedEvent
}

func (h *auditHandler) EventTypes() []string { return []string{"billing.subscription.#"} }
func (h *auditHandler) Handle(_ context.Context, event *ConsumedEvent) error {
	h.seen = append(h.seen, event)
	return h.err
}

func delivery(t *testing.T, routingKey string, body any, redelivered bool) (amqp.Delivery, *settlement) {
	t.Helper()
	raw, ok := body.([]byte)
	if !ok {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	s := &settlement{}
	return amqp.Delivery{
		Acknowledger: s,
		DeliveryTag:  7,
		RoutingKey:   routingKey,
		Redelivered:  redelivered,
		Body:         raw,
	}, s
}

func TestRabbitMQConsumer_HandleDelivery(t *testing.T) {
	canceled := ConsumedEvent{
		EventID:     uuid.New(),
		AggregateID: uuid.New(),
		RoutingKey:  "billing.subscription.canceled",
		Metadata:    EventMetadata{UserID: "user-4", CorrelationID: "corr-4"},
	}
	auditDown := errors.New("audit sink unavailable")

	tests := []struct {
		name        string
		handlerErr  error
		body        any
		redelivered bool
		want        settlement
		wantResult  string
		wantHandled int
	}{
		{"handled event is acked", nil, canceled, false, settlement{acked: true}, "handled", 1},
		{"first failure is requeued", auditDown, canceled, false, settlement{nacked: true, requeued: true}, "requeued", 1},
		{"failed redelivery is dropped", auditDown, canceled, true, settlement{nacked: true}, "dropped", 1},
		{"undecodable body is dropped", nil, []byte("{not json"), false, settlement{nacked: true}, "undecodable", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := &auditHandler{err: tt.handlerErr}
			metrics := observability.NewInMemoryMetrics()
			c := newConsumer(RabbitMQConsumerConfig{Metrics: metrics}, nil)
			c.registry.Register(handler)

			d, s := delivery(t, "billing.subscription.canceled", tt.body, tt.redelivered)
			c.handleDelivery(context.Background(), d)

			assert.Equal(t, tt.want, *s)
			assert.Len(t, handler.seen, tt.wantHandled)
			assert.Equal(t, int64(1), metrics.GetCounter(MetricDeliveries,
				observability.T("event", "billing.subscription.canceled"), observability.T("result", tt.wantResult)))
		})
	}
}

func TestRabbitMQConsumer_RoutingKeyFallsBackToDelivery(t *testing.T) {
	handler := &auditHandler{}
	c := newConsumer(RabbitMQConsumerConfig{}, nil)
	c.registry.Register(handler)

	d, s := delivery(t, "billing.subscription.status_changed", ConsumedEvent{EventID: uuid.New()}, false)
	c.handleDelivery(context.Background(), d)

	assert.True(t, s.acked)
	require.Len(t, handler.seen, 1)
	assert.Equal(t, "billing.subscription.status_changed", handler.seen[0].RoutingKey)
}

func TestNewConsumer_Defaults(t *testing.T) {
	c := newConsumer(RabbitMQConsumerConfig{}, nil)

	assert.Equal(t, DefaultConsumerQueueName, c.cfg.QueueName)
	assert.Equal(t, ExchangeName, c.cfg.Exchange)
	assert.Equal(t, 1, c.cfg.Prefetch)
	assert.NotNil(t, c.registry)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
