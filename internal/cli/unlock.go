package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aqasim81/cql-migration-engine/internal/config"
	"github.com/aqasim81/cql-migration-engine/internal/database"
)

// errConfirmationRequired is returned by destructive commands run without --yes.
var errConfirmationRequired = errors.New("confirmation required")

// errNoLockTable is returned by unlock when no lock table is in use.
var errNoLockTable = errors.New("lock_mode is none; there is no lock to clear")

var unlockCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "unlock",
	Short: "Clear a migration lock left held after a failure",
	Long: `Delete the keyspace's migration lock regardless of which client holds
it. Only run this after confirming no migration is in progress and the cause
of the failure has been fixed.`,
	RunE: runUnlock,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	unlockCmd.Flags().Bool("yes", false, "confirm clearing the lock")
	rootCmd.AddCommand(unlockCmd)
}

func runUnlock(cmd *cobra.Command, _ []string) error {
	cfg := AppConfig

	if err := requireKeyspace(cfg); err != nil {
		return err
	}

	if cfg.LockMode == config.LockModeNone {
		return errNoLockTable
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	c, err := openCluster(cfg, AppLogger)
	if err != nil {
		return err
	}
	defer c.Close()

	return clearLock(ctx, cmd, c.lockStore(), database.LockName(cfg.Keyspace))
}

func clearLock(ctx context.Context, cmd *cobra.Command, store database.LockStore, name string) error {
	out := cmd.OutOrStdout()

	holder, err := store.Holder(ctx, name)
	if err != nil {
		return err
	}

	if holder == "" {
		fmt.Fprintf(out, "Lock %s is not held.\n", name)

		return nil
	}

	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		return fmt.Errorf("%w: lock %s is held by %s; rerun with --yes to clear it", errConfirmationRequired, name, holder)
	}

	if err := store.ForceDelete(ctx, name); err != nil {
		return err
	}

	AppLogger.Warn().Str("lock_name", name).Str("holder", holder).Msg("lock cleared manually")
	fmt.Fprintf(out, "Lock %s held by %s cleared.\n", name, holder)

	return nil
}
