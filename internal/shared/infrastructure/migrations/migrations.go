// Package migrations applies the embedded schema to SQL backends.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/database"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed sqlite/*.sql postgres/*.sql
var migrationsFS embed.FS

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

func dialect(driver database.Driver) (string, string, error) {
	switch driver {
	case database.DriverSQLite:
		return "sqlite3", "sqlite", nil
	case database.DriverPostgres:
		return "postgres", "postgres", nil
	default:
		return "", "", fmt.Errorf("no sql migrations for driver %q", driver)
	}
}

func prepare(driver database.Driver) (string, error) {
	name, dir, err := dialect(driver)
	if err != nil {
		return "", err
	}
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect(name); err != nil {
		return "", fmt.Errorf("set dialect: %w", err)
	}
	return dir, nil
}

// Up applies all pending migrations for driver.
func Up(db *sql.DB, driver database.Driver) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	dir, err := prepare(driver)
	if err != nil {
		return err
	}
	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Down rolls back the most recent migration.
func Down(db *sql.DB, driver database.Driver) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	dir, err := prepare(driver)
	if err != nil {
		return err
	}
	if err := goose.Down(db, dir); err != nil {
		return fmt.Errorf("goose down: %w", err)
	}
	return nil
}

// Version returns the current schema version.
func Version(db *sql.DB, driver database.Driver) (int64, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if _, err := prepare(driver); err != nil {
		return 0, err
	}
	v, err := goose.GetDBVersion(db)
	if err != nil {
		return 0, fmt.Errorf("goose version: %w", err)
	}
	return v, nil
}

// OpenPostgres opens a database/sql handle for goose. Runtime queries go
// through pgx; the migrator only needs the lib/pq driver.
func OpenPostgres(url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}
