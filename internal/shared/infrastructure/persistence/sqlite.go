package persistence

import (
	"context"
	"database/sql"

	sharedApplication "github.com/ins72/mewayz-good-sub001/internal/shared/application"
)

// SQLiteTxInfo is the database/sql transaction scope.
type SQLiteTxInfo = Scope[*sql.Tx]

// WithSQLiteTx stores a database/sql transaction in ctx.
func WithSQLiteTx(ctx context.Context, tx *sql.Tx, owned bool) context.Context {
	return withScope(ctx, tx, owned)
}

// SQLiteTxInfoFromContext returns the database/sql transaction scope in ctx.
func SQLiteTxInfoFromContext(ctx context.Context) (SQLiteTxInfo, bool) {
	return scopeFrom[*sql.Tx](ctx)
}

// SQLExecutor is the query surface shared by *sql.DB and *sql.Tx.
type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteExecutor returns the transaction in ctx, or db when there is none.
func SQLiteExecutor(ctx context.Context, db *sql.DB) SQLExecutor {
	if s, ok := SQLiteTxInfoFromContext(ctx); ok {
		return s.Tx
	}
	return db
}

// SQLiteUnitOfWork scopes writes to the embedded store's transaction.
type SQLiteUnitOfWork struct {
	scopedUnit[*sql.Tx]
}

// NewSQLiteUnitOfWork creates a unit of work over db.
func NewSQLiteUnitOfWork(db *sql.DB) *SQLiteUnitOfWork {
	return &SQLiteUnitOfWork{scopedUnit[*sql.Tx]{
		begin: func(ctx context.Context) (context.Context, *sql.Tx, error) {
			tx, err := db.BeginTx(ctx, nil)
			return ctx, tx, err
		},
		commit:   func(_ context.Context, tx *sql.Tx) error { return tx.Commit() },
		rollback: func(_ context.Context, tx *sql.Tx) error { return tx.Rollback() },
	}}
}

var _ sharedApplication.UnitOfWork = (*SQLiteUnitOfWork)(nil)
