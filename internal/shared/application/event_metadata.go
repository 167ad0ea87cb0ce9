package application

import (
	"context"

	"github.com/google/uuid"
	"github.com/ins72/mewayz-good-sub001/internal/shared/domain"
	"github.com/ins72/mewayz-good-sub001/pkg/observability"
)

type metadataSetter interface {
	SetMetadata(metadata domain.EventMetadata)
}

// NewEventMetadata builds metadata for the events of one command. The
// correlation id is taken from ctx when it carries a UUID, so HTTP request
// ids flow through to the broker.
func NewEventMetadata(ctx context.Context, userID string) domain.EventMetadata {
	correlationID := uuid.New()
	if parsed, err := uuid.Parse(observability.CorrelationIDFromContext(ctx)); err == nil {
		correlationID = parsed
	}
	return domain.EventMetadata{
		CorrelationID: correlationID,
		CausationID:   uuid.New(),
		UserID:        userID,
	}
}

// ApplyEventMetadata sets metadata on all events that support it.
func ApplyEventMetadata(events []domain.DomainEvent, metadata domain.EventMetadata) {
	for _, event := range events {
		if setter, ok := event.(metadataSetter); ok {
			setter.SetMetadata(metadata)
		}
	}
}
