package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ins72/mewayz-good-sub001/internal/shared/domain"
	"github.com/stretchr/testify/assert"
)

func TestNewBaseEvent(t *testing.T) {
	aggregateID := uuid.New()
	at := time.Date(2026, 5, 4, 10, 30, 0, 0, time.FixedZone("CET", 3600))

	event := domain.NewBaseEvent(aggregateID, "billing.user_subscription", "billing.subscription.requested", at)

	assert.NotEqual(t, uuid.Nil, event.EventID())
	assert.Equal(t, aggregateID, event.AggregateID())
	assert.Equal(t, "billing.user_subscription", event.AggregateType())
	assert.Equal(t, "billing.subscription.requested", event.RoutingKey())
	assert.Equal(t, time.UTC, event.OccurredAt().Location())
	assert.True(t, event.OccurredAt().Equal(at))
}

func TestBaseEvent_SetMetadata(t *testing.T) {
	event := domain.NewBaseEvent(uuid.New(), "agg", "agg.happened", time.Now())
	metadata := domain.EventMetadata{
		CorrelationID: uuid.New(),
		CausationID:   uuid.New(),
		UserID:        "user-42",
	}

	event.SetMetadata(metadata)

	assert.Equal(t, metadata, event.Metadata())
}
