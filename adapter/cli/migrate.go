package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/database"
	"github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/migrations"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the SQL schema",
	Long: `Apply or roll back the embedded schema migrations for the configured
SQL driver. MongoDB needs no migrations; its indexes are created on
startup.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrationDB(cmd.Context(), func(db *sql.DB, driver database.Driver) error {
			if err := migrations.Up(db, driver); err != nil {
				return err
			}
			return printVersion(cmd, db, driver)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the latest migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrationDB(cmd.Context(), func(db *sql.DB, driver database.Driver) error {
			if err := migrations.Down(db, driver); err != nil {
				return err
			}
			return printVersion(cmd, db, driver)
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrationDB(cmd.Context(), func(db *sql.DB, driver database.Driver) error {
			return printVersion(cmd, db, driver)
		})
	},
}

func printVersion(cmd *cobra.Command, db *sql.DB, driver database.Driver) error {
	v, err := migrations.Version(db, driver)
	if err != nil {
		return err
	}
	if jsonOutput {
		return PrintJSON(cmd.OutOrStdout(), map[string]any{"driver": driver.String(), "version": v})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s schema version: %d\n", driver, v)
	return nil
}

func withMigrationDB(ctx context.Context, fn func(db *sql.DB, driver database.Driver) error) error {
	app := GetApp()
	if app == nil || app.Config == nil {
		return errors.New("app not initialized")
	}
	cfg := app.Config

	var (
		db  *sql.DB
		err error
	)
	switch cfg.DatabaseDriver {
	case database.DriverSQLite:
		db, err = database.OpenSQLite(ctx, cfg.SQLitePath)
	case database.DriverPostgres:
		db, err = migrations.OpenPostgres(cfg.DatabaseURL)
	default:
		return fmt.Errorf("driver %s has no sql migrations", cfg.DatabaseDriver)
	}
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(db, cfg.DatabaseDriver)
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)
	rootCmd.AddCommand(migrateCmd)
}
