package outbox_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ins72/mewayz-good-sub001/internal/shared/application"
	"github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/database"
	"github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/migrations"
	"github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/outbox"
	"github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSQLiteOutbox(t *testing.T) (*sql.DB, *outbox.SQLiteRepository) {
	t.Helper()
	db, err := database.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "outbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Up(db, database.DriverSQLite))
	return db, outbox.NewSQLiteRepository(db)
}

func TestSQLiteRepository_SaveAndFetch(t *testing.T) {
	ctx := context.Background()
	_, repo := setupSQLiteOutbox(t)

	first := createTestMessage("billing.subscription.requested")
	first.Metadata = []byte(`{"user_id":"user-1"}`)
	second := createTestMessage("billing.subscription.changed")
	second.CreatedAt = first.CreatedAt.Add(time.Millisecond)

	require.NoError(t, repo.Save(ctx, first))
	require.NoError(t, repo.Save(ctx, second))
	assert.NotZero(t, first.ID)
	assert.Greater(t, second.ID, first.ID)

	msgs, err := repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	got := msgs[0]
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, first.EventID, got.EventID)
	assert.Equal(t, first.AggregateID, got.AggregateID)
	assert.Equal(t, "billing.subscription.requested", got.RoutingKey)
	assert.JSONEq(t, string(first.Payload), string(got.Payload))
	assert.JSONEq(t, `{"user_id":"user-1"}`, string(got.Metadata))
	assert.True(t, first.CreatedAt.Equal(got.CreatedAt))
	assert.Nil(t, got.PublishedAt)
	assert.Nil(t, msgs[1].Metadata)

	msgs, err = repo.GetUnpublished(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestSQLiteRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	_, repo := setupSQLiteOutbox(t)

	published := createTestMessage("billing.subscription.requested")
	failed := createTestMessage("billing.subscription.changed")
	dead := createTestMessage("billing.subscription.canceled")
	require.NoError(t, repo.SaveBatch(ctx, []*outbox.Message{published, failed, dead}))

	require.NoError(t, repo.MarkPublished(ctx, published.ID))
	require.NoError(t, repo.MarkFailed(ctx, failed.ID, "broker down", time.Now().Add(-time.Second)))
	require.NoError(t, repo.MarkDead(ctx, dead.ID, "max retries"))

	pending, err := repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	msgs, err := repo.GetFailed(ctx, 5, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, failed.ID, msgs[0].ID)
	assert.Equal(t, 1, msgs[0].RetryCount)
	require.NotNil(t, msgs[0].LastError)
	assert.Equal(t, "broker down", *msgs[0].LastError)
	assert.NotNil(t, msgs[0].NextRetryAt)

	// Exhausted retries are excluded.
	msgs, err = repo.GetFailed(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	// Retry scheduled in the future is not due.
	require.NoError(t, repo.MarkFailed(ctx, failed.ID, "broker down", time.Now().Add(time.Hour)))
	msgs, err = repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	// Nothing is old enough yet.
	deleted, err := repo.DeleteOld(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	// A negative retention puts the cutoff in the future.
	deleted, err = repo.DeleteOld(ctx, -1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestSQLiteRepository_SaveBatchJoinsUnitOfWork(t *testing.T) {
	ctx := context.Background()
	db, repo := setupSQLiteOutbox(t)
	uow := persistence.NewSQLiteUnitOfWork(db)

	errAbort := errors.New("abort")
	err := application.WithUnitOfWork(ctx, uow, func(txCtx context.Context) error {
		if err := repo.SaveBatch(txCtx, []*outbox.Message{createTestMessage("billing.subscription.requested")}); err != nil {
			return err
		}
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	pending, err := repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending, "rolled back with the unit of work")

	err = application.WithUnitOfWork(ctx, uow, func(txCtx context.Context) error {
		return repo.SaveBatch(txCtx, []*outbox.Message{createTestMessage("billing.subscription.requested")})
	})
	require.NoError(t, err)

	pending, err = repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
}

func TestSQLiteRepository_DuplicateEventID(t *testing.T) {
	ctx := context.Background()
	_, repo := setupSQLiteOutbox(t)

	msg := createTestMessage("billing.subscription.requested")
	require.NoError(t, repo.Save(ctx, msg))

	dup := *msg
	err := repo.Save(ctx, &dup)
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err))
}
