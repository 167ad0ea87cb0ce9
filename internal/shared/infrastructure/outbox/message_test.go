package outbox

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ins72/mewayz-good-sub001/internal/shared/domain"
	"github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	domain.BaseEvent
	Bundles []string `json:"bundles"`
}

func newTestEvent(aggregateID uuid.UUID, bundles ...string) *testEvent {
	return &testEvent{
		BaseEvent: domain.NewBaseEvent(aggregateID, "billing.user_subscription",
			"billing.subscription.requested", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Bundles: bundles,
	}
}

func TestNewMessage(t *testing.T) {
	t.Run("copies the envelope fields", func(t *testing.T) {
		aggregateID := uuid.New()
		event := newTestEvent(aggregateID, "creator")

		msg, err := NewMessage(event)

		require.NoError(t, err)
		assert.Equal(t, int64(0), msg.ID)
		assert.Equal(t, event.EventID(), msg.EventID)
		assert.Equal(t, "billing.user_subscription", msg.AggregateType)
		assert.Equal(t, aggregateID, msg.AggregateID)
		assert.Equal(t, "billing.subscription.requested", msg.EventType)
		assert.Equal(t, "billing.subscription.requested", msg.RoutingKey)
		assert.Equal(t, event.OccurredAt(), msg.CreatedAt)
		assert.False(t, msg.IsPublished())
		assert.Zero(t, msg.RetryCount)
	})

	t.Run("payload decodes as a consumed event", func(t *testing.T) {
		event := newTestEvent(uuid.New(), "creator", "business")
		event.SetMetadata(domain.EventMetadata{
			CorrelationID: uuid.New(),
			UserID:        "user-42",
		})

		msg, err := NewMessage(event)
		require.NoError(t, err)

		var consumed eventbus.ConsumedEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &consumed))
		assert.Equal(t, event.EventID(), consumed.EventID)
		assert.Equal(t, "billing.subscription.requested", consumed.RoutingKey)
		assert.Equal(t, "user-42", consumed.Metadata.UserID)
		assert.Equal(t, event.Metadata().CorrelationID.String(), consumed.Metadata.CorrelationID)
		assert.Empty(t, consumed.Metadata.CausationID, "nil causation id is omitted")
		assert.JSONEq(t, `{"bundles":["creator","business"]}`, string(consumed.Payload))
	})

	t.Run("stores metadata separately", func(t *testing.T) {
		event := newTestEvent(uuid.New())
		meta := domain.EventMetadata{CorrelationID: uuid.New(), CausationID: uuid.New(), UserID: "u"}
		event.SetMetadata(meta)

		msg, err := NewMessage(event)
		require.NoError(t, err)

		var decoded domain.EventMetadata
		require.NoError(t, json.Unmarshal(msg.Metadata, &decoded))
		assert.Equal(t, meta, decoded)
	})
}

func TestNewMessages(t *testing.T) {
	id := uuid.New()
	msgs, err := NewMessages([]domain.DomainEvent{newTestEvent(id, "a"), newTestEvent(id, "b")})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.NotEqual(t, msgs[0].EventID, msgs[1].EventID)

	msgs, err = NewMessages(nil)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMessage_CanRetry(t *testing.T) {
	tests := []struct {
		retries int
		max     int
		want    bool
	}{
		{0, 3, true},
		{2, 5, true},
		{5, 5, false},
		{10, 5, false},
		{0, 1, true},
		{0, 0, false},
	}
	for _, tt := range tests {
		msg := &Message{RetryCount: tt.retries}
		assert.Equal(t, tt.want, msg.CanRetry(tt.max), "retries=%d max=%d", tt.retries, tt.max)
	}
}

func TestProcessor_RetryBackoff(t *testing.T) {
	p := NewProcessor(NewInMemoryRepository(), nil, ProcessorConfig{
		RetryBackoffBase: time.Second,
		RetryBackoffMax:  time.Minute,
	}, nil)

	assert.Equal(t, time.Second, p.retryBackoff(0))
	assert.Equal(t, time.Second, p.retryBackoff(1))
	assert.Equal(t, 2*time.Second, p.retryBackoff(2))
	assert.Equal(t, 32*time.Second, p.retryBackoff(6))
	assert.Equal(t, time.Minute, p.retryBackoff(7))
	assert.Equal(t, time.Minute, p.retryBackoff(200))

	p = NewProcessor(NewInMemoryRepository(), nil, ProcessorConfig{}, nil)
	assert.Equal(t, time.Second, p.retryBackoff(1), "zero config falls back to defaults")
}
