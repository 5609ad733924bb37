package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/aqasim81/cql-migration-engine/internal/config"
	"github.com/aqasim81/cql-migration-engine/internal/executor"
)

var migrateCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "migrate",
	Short: "Apply new migration files",
	Long: `Apply every migration file not yet recorded in the keyspace's
schema_migrations table, in lexicographic filename order. When the keyspace
does not exist the bootstrap file is applied first. A failure leaves the
lock held unless --unlock-on-failure is set.`,
	RunE: runMigrate,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	migrateCmd.Flags().Bool("dry-run", false, "show what would be applied without executing")
	migrateCmd.Flags().Bool("unlock-on-failure", false, "release the lock when a migration fails")
	migrateCmd.Flags().Duration("lock-timeout", 0, "override lock timeout (e.g., 30s, 2m)")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg := AppConfig

	if err := requireKeyspace(cfg); err != nil {
		return err
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")

	if cmd.Flags().Changed("unlock-on-failure") {
		cfg.UnlockOnFailure, _ = cmd.Flags().GetBool("unlock-on-failure")
	}

	if cmd.Flags().Changed("lock-timeout") {
		cfg.LockTimeout, _ = cmd.Flags().GetDuration("lock-timeout")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	out := cmd.OutOrStdout()

	c, err := openCluster(cfg, AppLogger)
	if err != nil {
		return err
	}
	defer c.Close()

	exec := c.executor(
		executor.WithDryRun(dryRun),
		executor.WithProgressCallback(progressPrinter(out)),
	)

	if dryRun {
		fmt.Fprintln(out, "--- DRY RUN (no changes will be made) ---")
	}

	report, err := exec.Migrate(ctx, cfg.Keyspace, cfg.MigrationsDirs...)
	printSummary(out, cfg, report, err)

	return err
}

// progressPrinter renders progress events as one line per file.
func progressPrinter(out io.Writer) func(executor.ProgressEvent) {
	return func(event executor.ProgressEvent) {
		name := event.Migration.Filename
		if event.Bootstrap {
			name += " (bootstrap)"
		}

		switch event.Status {
		case executor.StatusStarting:
			fmt.Fprintf(out, "  Applying %s ... ", name)
		case executor.StatusCompleted:
			fmt.Fprintf(out, "done (%d statements, %s)\n", event.Statements, event.Duration.Truncate(time.Millisecond))
		case executor.StatusSkipped:
			fmt.Fprintf(out, "  Skipping %s (already applied)\n", name)
		case executor.StatusPending:
			fmt.Fprintf(out, "  Would apply %s\n", name)
		case executor.StatusFailed:
			fmt.Fprintf(out, "FAILED %s\n", name)
			fmt.Fprintf(out, "    Error: %v\n", event.Error)
		}
	}
}

func printSummary(out io.Writer, cfg *config.Config, report *executor.Report, err error) {
	if report == nil {
		return
	}

	switch {
	case err == nil && len(report.Pending) > 0:
		fmt.Fprintf(out, "\nDry run complete: %d file(s) would be applied, %d already applied.\n",
			len(report.Pending), len(report.Skipped))
	case err == nil:
		fmt.Fprintf(out, "\nMigrate complete: %d applied, %d skipped, %d statements.\n",
			len(report.Applied), len(report.Skipped), report.Statements)
	case report.State == executor.Failed && report.ClientID != "" && !report.LockReleased:
		fmt.Fprintf(out, "\nMigration failed in state %s; the lock for keyspace %s is still held by %s.\n",
			report.State, cfg.Keyspace, report.ClientID)
		fmt.Fprintf(out, "Fix the cause, then run `cqlmigrate unlock --keyspace %s` before retrying.\n", cfg.Keyspace)
	}
}
