package migrations_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/database"
	"github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUp_SQLite(t *testing.T) {
	db, err := database.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "billing.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, migrations.Up(db, database.DriverSQLite))
	// Applying twice is a no-op.
	require.NoError(t, migrations.Up(db, database.DriverSQLite))

	v, err := migrations.Version(db, database.DriverSQLite)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	for _, table := range []string{"subscription_states", "outbox"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
	}

	var cols int
	err = db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('subscription_states') WHERE name = 'recent_event_ids'`).Scan(&cols)
	require.NoError(t, err)
	assert.Equal(t, 1, cols)

	require.NoError(t, migrations.Down(db, database.DriverSQLite))
	v, err = migrations.Version(db, database.DriverSQLite)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	err = db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('subscription_states') WHERE name = 'recent_event_ids'`).Scan(&cols)
	require.NoError(t, err)
	assert.Equal(t, 0, cols)
}

func TestUp_UnsupportedDriver(t *testing.T) {
	err := migrations.Up(nil, database.DriverMongo)
	assert.ErrorContains(t, err, "no sql migrations")
}
