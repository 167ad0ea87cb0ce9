package application

import "context"

// Locker serializes work for one user across goroutines, and across
// replicas when backed by Redis.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

func userLockKey(userID string) string {
	return "billing:user:" + userID
}
