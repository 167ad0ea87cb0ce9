package persistence

import (
	"context"
	"testing"

	sharedApplication "github.com/ins72/mewayz-good-sub001/internal/shared/application"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingTx records statements and the final outcome. Methods the
// repositories never call fall through to the nil embedded pgx.Tx.
type recordingTx struct {
	pgx.Tx
	statements []string
	commits    int
	rollbacks  int
}

func (r *recordingTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	r.statements = append(r.statements, sql)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *recordingTx) Commit(context.Context) error {
	r.commits++
	return nil
}

func (r *recordingTx) Rollback(context.Context) error {
	r.rollbacks++
	return nil
}

const (
	upsertState  = "INSERT INTO subscription_states"
	insertOutbox = "INSERT INTO outbox"
)

func TestExecutor_PrefersTransaction(t *testing.T) {
	tx := &recordingTx{}
	ctx := WithTx(context.Background(), tx, true)

	_, err := Executor(ctx, nil).Exec(ctx, upsertState)
	require.NoError(t, err)
	_, err = Executor(ctx, nil).Exec(ctx, insertOutbox)
	require.NoError(t, err)

	assert.Equal(t, []string{upsertState, insertOutbox}, tx.statements)
	assert.Nil(t, Executor(context.Background(), nil), "no tx and no pool")
}

func TestTxInfoFromContext(t *testing.T) {
	tx := &recordingTx{}

	tests := []struct {
		name      string
		ctx       context.Context
		wantOK    bool
		wantOwned bool
	}{
		{"owned", WithTx(context.Background(), tx, true), true, true},
		{"joined", WithTx(WithTx(context.Background(), &recordingTx{}, true), tx, false), true, false},
		{"absent", context.Background(), false, false},
		{"sqlite scope only", WithSQLiteTx(context.Background(), nil, true), false, false},
		{"nil tx", WithTx(context.Background(), nil, true), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, ok := TxInfoFromContext(tt.ctx)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantOwned, info.Owned)
			if tt.wantOK {
				assert.Same(t, tx, info.Tx)
			} else {
				assert.Zero(t, info)
			}
		})
	}
}

func TestPostgresUnitOfWork_WithoutTransaction(t *testing.T) {
	uow := NewPostgresUnitOfWork(nil)

	assert.ErrorIs(t, uow.Commit(context.Background()), ErrNoTransaction)
	assert.ErrorIs(t, uow.Rollback(context.Background()), ErrNoTransaction)
}

// A webhook handler that opens its own unit inside an outer one must leave
// the commit to the outer unit, so the state row and its outbox envelope
// land together.
func TestPostgresUnitOfWork_NestedSaveCommitsOnce(t *testing.T) {
	uow := NewPostgresUnitOfWork(nil)
	tx := &recordingTx{}
	outer := WithTx(context.Background(), tx, true)

	err := sharedApplication.WithUnitOfWork(outer, uow, func(ctx context.Context) error {
		_, err := Executor(ctx, nil).Exec(ctx, upsertState)
		if err != nil {
			return err
		}
		_, err = Executor(ctx, nil).Exec(ctx, insertOutbox)
		return err
	})
	require.NoError(t, err)
	assert.Zero(t, tx.commits, "inner unit must not commit the outer tx")
	assert.Equal(t, []string{upsertState, insertOutbox}, tx.statements)

	require.NoError(t, uow.Commit(outer))
	assert.Equal(t, 1, tx.commits)
}

func TestPostgresUnitOfWork_NestedFailureLeavesRollbackToOwner(t *testing.T) {
	uow := NewPostgresUnitOfWork(nil)
	tx := &recordingTx{}
	outer := WithTx(context.Background(), tx, true)

	err := sharedApplication.WithUnitOfWork(outer, uow, func(ctx context.Context) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Zero(t, tx.rollbacks)

	require.NoError(t, uow.Rollback(outer))
	assert.Equal(t, 1, tx.rollbacks)
	assert.Zero(t, tx.commits)
}
