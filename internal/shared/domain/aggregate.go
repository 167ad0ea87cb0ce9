package domain

import (
	"time"

	"github.com/google/uuid"
)

// AggregateRoot is the consistency boundary that persists together with the
// events it raised.
type AggregateRoot interface {
	ID() uuid.UUID
	DomainEvents() []DomainEvent
	ClearDomainEvents()
	Version() int
}

// BaseAggregateRoot carries identity, timestamps, pending events and the
// optimistic-concurrency version.
type BaseAggregateRoot struct {
	id           uuid.UUID
	createdAt    time.Time
	updatedAt    time.Time
	domainEvents []DomainEvent
	version      int
}

// NewBaseAggregateRoot creates a new aggregate root with a generated id.
func NewBaseAggregateRoot(now time.Time) BaseAggregateRoot {
	now = now.UTC()
	return BaseAggregateRoot{
		id:        uuid.New(),
		createdAt: now,
		updatedAt: now,
	}
}

// RehydrateBaseAggregateRoot recreates the root from persisted state.
func RehydrateBaseAggregateRoot(id uuid.UUID, createdAt, updatedAt time.Time, version int) BaseAggregateRoot {
	return BaseAggregateRoot{
		id:        id,
		createdAt: createdAt.UTC(),
		updatedAt: updatedAt.UTC(),
		version:   version,
	}
}

func (a *BaseAggregateRoot) ID() uuid.UUID        { return a.id }
func (a *BaseAggregateRoot) CreatedAt() time.Time { return a.createdAt }
func (a *BaseAggregateRoot) UpdatedAt() time.Time { return a.updatedAt }
func (a *BaseAggregateRoot) Version() int         { return a.version }

// DomainEvents returns the events raised since the last save.
func (a *BaseAggregateRoot) DomainEvents() []DomainEvent {
	return a.domainEvents
}

// ClearDomainEvents drops pending events once they are in the outbox.
func (a *BaseAggregateRoot) ClearDomainEvents() {
	a.domainEvents = nil
}

// AddDomainEvent records an event and bumps updatedAt to the event time.
func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.domainEvents = append(a.domainEvents, event)
	a.Touch(event.OccurredAt())
}

// Touch moves updatedAt forward. Older timestamps are ignored.
func (a *BaseAggregateRoot) Touch(at time.Time) {
	if at.After(a.updatedAt) {
		a.updatedAt = at.UTC()
	}
}

// SetVersion is called by repositories after a successful write.
func (a *BaseAggregateRoot) SetVersion(version int) {
	a.version = version
}
