package domain

import "context"

// SubscriptionRepository persists one UserSubscription per user.
//
// Find methods return nil, nil when nothing matches. Save inserts when the
// aggregate version is 0 and otherwise updates only if the stored version
// still matches, failing with ErrConcurrentModification. On success the
// aggregate version is advanced.
type SubscriptionRepository interface {
	FindByUserID(ctx context.Context, userID string) (*UserSubscription, error)
	FindByExternalSubscriptionID(ctx context.Context, subscriptionID string) (*UserSubscription, error)
	Save(ctx context.Context, sub *UserSubscription) error
}
