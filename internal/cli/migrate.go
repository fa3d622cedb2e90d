package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/splango/internal/adapters/turso"
	"github.com/emiliopalmerini/splango/internal/migrate"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [version]",
	Short: "Run database migrations",
	Long: `Run database migrations.

Without arguments, runs all pending migrations (up).
With a version number, migrates to that specific version (up or down as needed).

Examples:
  splango migrate      # Run all pending migrations
  splango migrate 1    # Migrate to version 1
  splango migrate 0    # Rollback all migrations`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	logger, err := newLogger(os.Stderr, logLevel, logFormat)
	if err != nil {
		return err
	}

	db, err := turso.NewDB()
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	m, err := migrate.New(db.DB, logger)
	if err != nil {
		return err
	}

	target := m.Latest()
	if len(args) == 1 {
		target, err = strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version number: %s", args[0])
		}
	}

	out := cmd.OutOrStdout()
	if err := m.EnsureTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	current, _, err := m.CurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	fmt.Fprintf(out, "Current version: %d\n", current)

	applied, err := m.To(ctx, target)
	if err != nil {
		return err
	}
	if applied == 0 {
		fmt.Fprintln(out, "No migrations to run")
		return nil
	}
	fmt.Fprintf(out, "Migrated to version %d (%d migrations applied)\n", target, applied)
	return nil
}
