package persistence

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "uow.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE test_data (id INTEGER PRIMARY KEY, value TEXT)`)
	require.NoError(t, err)
	return db
}

func countRows(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM test_data`).Scan(&n))
	return n
}

func TestSQLiteUnitOfWork_Begin(t *testing.T) {
	db := setupTestDB(t)
	uow := NewSQLiteUnitOfWork(db)

	txCtx, err := uow.Begin(context.Background())
	require.NoError(t, err)

	info, ok := SQLiteTxInfoFromContext(txCtx)
	require.True(t, ok)
	assert.True(t, info.Owned)

	require.NoError(t, uow.Rollback(txCtx))
}

func TestSQLiteUnitOfWork_CommitPersistsData(t *testing.T) {
	db := setupTestDB(t)
	uow := NewSQLiteUnitOfWork(db)

	txCtx, err := uow.Begin(context.Background())
	require.NoError(t, err)

	_, err = SQLiteExecutor(txCtx, db).ExecContext(txCtx, `INSERT INTO test_data (value) VALUES ('committed')`)
	require.NoError(t, err)
	require.NoError(t, uow.Commit(txCtx))

	assert.Equal(t, 1, countRows(t, db))
}

func TestSQLiteUnitOfWork_RollbackDiscardsData(t *testing.T) {
	db := setupTestDB(t)
	uow := NewSQLiteUnitOfWork(db)

	txCtx, err := uow.Begin(context.Background())
	require.NoError(t, err)

	_, err = SQLiteExecutor(txCtx, db).ExecContext(txCtx, `INSERT INTO test_data (value) VALUES ('discarded')`)
	require.NoError(t, err)
	require.NoError(t, uow.Rollback(txCtx))

	assert.Equal(t, 0, countRows(t, db))
}

func TestSQLiteUnitOfWork_NestedUnitDoesNotOwnTx(t *testing.T) {
	db := setupTestDB(t)
	uow := NewSQLiteUnitOfWork(db)

	outer, err := uow.Begin(context.Background())
	require.NoError(t, err)
	inner, err := uow.Begin(outer)
	require.NoError(t, err)

	innerInfo, ok := SQLiteTxInfoFromContext(inner)
	require.True(t, ok)
	assert.False(t, innerInfo.Owned)

	_, err = SQLiteExecutor(inner, db).ExecContext(inner, `INSERT INTO test_data (value) VALUES ('inner')`)
	require.NoError(t, err)
	require.NoError(t, uow.Commit(inner))
	require.NoError(t, uow.Rollback(inner))

	// Outer tx is still usable after the inner no-ops.
	_, err = SQLiteExecutor(outer, db).ExecContext(outer, `INSERT INTO test_data (value) VALUES ('outer')`)
	require.NoError(t, err)
	require.NoError(t, uow.Commit(outer))

	assert.Equal(t, 2, countRows(t, db))
}

func TestSQLiteUnitOfWork_WithoutTransaction(t *testing.T) {
	uow := NewSQLiteUnitOfWork(setupTestDB(t))

	assert.ErrorIs(t, uow.Commit(context.Background()), ErrNoTransaction)
	assert.ErrorIs(t, uow.Rollback(context.Background()), ErrNoTransaction)
}

func TestSQLiteTxInfoFromContext(t *testing.T) {
	_, ok := SQLiteTxInfoFromContext(context.Background())
	assert.False(t, ok)

	_, ok = SQLiteTxInfoFromContext(WithSQLiteTx(context.Background(), nil, true))
	assert.False(t, ok)
}

func TestSQLiteExecutor_FallsBackToDB(t *testing.T) {
	db := setupTestDB(t)
	assert.Same(t, db, SQLiteExecutor(context.Background(), db))
}

func TestMongoSessionFromContext_Empty(t *testing.T) {
	_, ok := MongoSessionFromContext(context.Background())
	assert.False(t, ok)

	uow := NewMongoUnitOfWork(nil)
	assert.ErrorIs(t, uow.Commit(context.Background()), ErrNoTransaction)
	assert.ErrorIs(t, uow.Rollback(context.Background()), ErrNoTransaction)
}
