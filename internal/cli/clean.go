package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "clean",
	Short: "Drop the keyspace",
	Long: `Drop the keyspace and everything in it, including its migration
history. Dropping a keyspace that does not exist is not an error.`,
	RunE: runClean,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	cleanCmd.Flags().Bool("yes", false, "confirm dropping the keyspace")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, _ []string) error {
	cfg := AppConfig

	if err := requireKeyspace(cfg); err != nil {
		return err
	}

	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		return fmt.Errorf("%w: refusing to drop keyspace %s without --yes", errConfirmationRequired, cfg.Keyspace)
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

	if err := c.executor().Clean(ctx, cfg.Keyspace); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Keyspace %s dropped.\n", cfg.Keyspace)

	return nil
}
