package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/ins72/mewayz-good-sub001/internal/shared/domain"
	"github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/eventbus"
)

// Message represents an outbox row ready for publishing.
type Message struct {
	ID               int64
	EventID          uuid.UUID
	AggregateType    string
	AggregateID      uuid.UUID
	EventType        string
	RoutingKey       string
	Payload          json.RawMessage
	Metadata         json.RawMessage
	CreatedAt        time.Time
	PublishedAt      *time.Time
	NextRetryAt      *time.Time
	RetryCount       int
	LastError        *string
	DeadLetteredAt   *time.Time
	DeadLetterReason *string
}

// NewMessage wraps a domain event in the bus envelope. Payload holds the
// full eventbus.ConsumedEvent so consumers see the same shape whichever
// publisher delivers it.
func NewMessage(event domain.DomainEvent) (*Message, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	meta := event.Metadata()
	metadata, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}

	envelope, err := json.Marshal(eventbus.ConsumedEvent{
		EventID:       event.EventID(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		RoutingKey:    event.RoutingKey(),
		OccurredAt:    event.OccurredAt(),
		Payload:       body,
		Metadata: eventbus.EventMetadata{
			UserID:        meta.UserID,
			CorrelationID: uuidString(meta.CorrelationID),
			CausationID:   uuidString(meta.CausationID),
		},
	})
	if err != nil {
		return nil, err
	}

	return &Message{
		EventID:       event.EventID(),
		AggregateType: event.AggregateType(),
		AggregateID:   event.AggregateID(),
		EventType:     event.RoutingKey(),
		RoutingKey:    event.RoutingKey(),
		Payload:       envelope,
		Metadata:      metadata,
		CreatedAt:     event.OccurredAt(),
	}, nil
}

// NewMessages converts every pending event of an aggregate.
func NewMessages(events []domain.DomainEvent) ([]*Message, error) {
	msgs := make([]*Message, 0, len(events))
	for _, event := range events {
		msg, err := NewMessage(event)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func uuidString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

// IsPublished returns true if the message has been published.
func (m *Message) IsPublished() bool {
	return m.PublishedAt != nil
}

// CanRetry returns true if the message can be retried.
func (m *Message) CanRetry(maxRetries int) bool {
	return m.RetryCount < maxRetries
}
