package persistence

import (
	"context"
	"errors"
)

// ErrNoTransaction is returned by Commit and Rollback outside Begin.
var ErrNoTransaction = errors.New("no transaction in context")

// Scope is the transaction a unit of work stored in the context. Owned is
// set on the unit that began it; a unit that joined an outer scope leaves
// commit and rollback to the owner, so a subscription save and its outbox
// envelopes always end together.
type Scope[T comparable] struct {
	Tx    T
	Owned bool
}

type scopeKey[T comparable] struct{}

func withScope[T comparable](ctx context.Context, tx T, owned bool) context.Context {
	return context.WithValue(ctx, scopeKey[T]{}, Scope[T]{Tx: tx, Owned: owned})
}

func scopeFrom[T comparable](ctx context.Context) (Scope[T], bool) {
	var zero T
	s, ok := ctx.Value(scopeKey[T]{}).(Scope[T])
	if !ok || s.Tx == zero {
		return Scope[T]{}, false
	}
	return s, true
}

// scopedUnit implements application.UnitOfWork over one driver's
// transaction handle.
type scopedUnit[T comparable] struct {
	begin    func(ctx context.Context) (context.Context, T, error)
	commit   func(ctx context.Context, tx T) error
	rollback func(ctx context.Context, tx T) error
}

// Begin starts a transaction, or joins the one already in ctx.
func (u scopedUnit[T]) Begin(ctx context.Context) (context.Context, error) {
	if s, ok := scopeFrom[T](ctx); ok {
		return withScope(ctx, s.Tx, false), nil
	}
	txCtx, tx, err := u.begin(ctx)
	if err != nil {
		return nil, err
	}
	return withScope(txCtx, tx, true), nil
}

// Commit commits when this unit owns the transaction.
func (u scopedUnit[T]) Commit(ctx context.Context) error {
	return u.end(ctx, u.commit)
}

// Rollback rolls back when this unit owns the transaction.
func (u scopedUnit[T]) Rollback(ctx context.Context) error {
	return u.end(ctx, u.rollback)
}

func (u scopedUnit[T]) end(ctx context.Context, finish func(context.Context, T) error) error {
	s, ok := scopeFrom[T](ctx)
	if !ok {
		return ErrNoTransaction
	}
	if !s.Owned {
		return nil
	}
	return finish(ctx, s.Tx)
}
