// Package lock serializes work per key, in process or across processes.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrInvalidKey is returned for an empty lock key.
var ErrInvalidKey = errors.New("lock key is required")

// Locker acquires an exclusive lock on key, blocking until it is free or
// ctx is done. The returned func releases the lock and is safe to call
// more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

// LocalLocker is a per-key mutex for a single process.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localEntry
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localEntry)}
}

// Lock implements Locker.
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &localEntry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(key, e)
		})
	}, nil
}

func (l *LocalLocker) release(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// Held returns the number of keys with a holder or waiter.
func (l *LocalLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

var _ Locker = (*LocalLocker)(nil)
