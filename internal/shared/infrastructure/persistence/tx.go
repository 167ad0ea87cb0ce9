package persistence

import (
	"context"

	sharedApplication "github.com/ins72/mewayz-good-sub001/internal/shared/application"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxInfo is the pgx transaction scope.
type TxInfo = Scope[pgx.Tx]

// WithTx stores a pgx transaction in ctx.
func WithTx(ctx context.Context, tx pgx.Tx, owned bool) context.Context {
	return withScope(ctx, tx, owned)
}

// TxInfoFromContext returns the pgx transaction scope in ctx.
func TxInfoFromContext(ctx context.Context) (TxInfo, bool) {
	return scopeFrom[pgx.Tx](ctx)
}

// DBExecutor is the query surface shared by pgxpool.Pool and pgx.Tx.
type DBExecutor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Executor returns the transaction in ctx, or the pool when there is none.
func Executor(ctx context.Context, pool *pgxpool.Pool) DBExecutor {
	if s, ok := TxInfoFromContext(ctx); ok {
		return s.Tx
	}
	if pool == nil {
		return nil
	}
	return pool
}

// PostgresUnitOfWork scopes subscription and outbox writes to one pgx
// transaction.
type PostgresUnitOfWork struct {
	scopedUnit[pgx.Tx]
}

// NewPostgresUnitOfWork creates a unit of work over pool.
func NewPostgresUnitOfWork(pool *pgxpool.Pool) *PostgresUnitOfWork {
	return &PostgresUnitOfWork{scopedUnit[pgx.Tx]{
		begin: func(ctx context.Context) (context.Context, pgx.Tx, error) {
			tx, err := pool.Begin(ctx)
			return ctx, tx, err
		},
		commit:   func(ctx context.Context, tx pgx.Tx) error { return tx.Commit(ctx) },
		rollback: func(ctx context.Context, tx pgx.Tx) error { return tx.Rollback(ctx) },
	}}
}

var _ sharedApplication.UnitOfWork = (*PostgresUnitOfWork)(nil)
