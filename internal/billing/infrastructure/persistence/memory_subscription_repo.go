package persistence

import (
	"context"
	"sync"

	"github.com/ins72/mewayz-good-sub001/internal/billing/domain"
)

// InMemorySubscriptionRepository keeps snapshots in a map. It backs tests
// and the local CLI mode without a database.
type InMemorySubscriptionRepository struct {
	mu     sync.RWMutex
	byUser map[string]domain.Snapshot
	byExt  map[string]string
}

// NewInMemorySubscriptionRepository creates an empty repository.
func NewInMemorySubscriptionRepository() *InMemorySubscriptionRepository {
	return &InMemorySubscriptionRepository{
		byUser: make(map[string]domain.Snapshot),
		byExt:  make(map[string]string),
	}
}

func (r *InMemorySubscriptionRepository) FindByUserID(_ context.Context, userID string) (*domain.UserSubscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap, ok := r.byUser[userID]
	if !ok {
		return nil, nil
	}
	return domain.Rehydrate(snap)
}

func (r *InMemorySubscriptionRepository) FindByExternalSubscriptionID(_ context.Context, subscriptionID string) (*domain.UserSubscription, error) {
	if subscriptionID == "" {
		return nil, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	userID, ok := r.byExt[subscriptionID]
	if !ok {
		return nil, nil
	}
	return domain.Rehydrate(r.byUser[userID])
}

func (r *InMemorySubscriptionRepository) Save(_ context.Context, sub *domain.UserSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := sub.Snapshot()
	current, exists := r.byUser[snap.UserID]
	switch {
	case snap.Version == 0 && exists:
		return domain.ErrConcurrentModification
	case snap.Version != 0 && (!exists || current.Version != snap.Version):
		return domain.ErrConcurrentModification
	}
	if owner, ok := r.byExt[snap.ExternalSubscriptionID]; ok && owner != snap.UserID {
		return errExternalIDTaken(snap.ExternalSubscriptionID)
	}

	if exists && current.ExternalSubscriptionID != snap.ExternalSubscriptionID {
		delete(r.byExt, current.ExternalSubscriptionID)
	}
	snap.Version++
	snap.ActiveBundles = append([]string{}, snap.ActiveBundles...)
	r.byUser[snap.UserID] = snap
	if snap.ExternalSubscriptionID != "" {
		r.byExt[snap.ExternalSubscriptionID] = snap.UserID
	}

	sub.SetVersion(snap.Version)
	return nil
}

// Len returns the number of stored users.
func (r *InMemorySubscriptionRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

var _ domain.SubscriptionRepository = (*InMemorySubscriptionRepository)(nil)
