package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "plan",
	Short: "Show the files migrate would apply",
	Long: `Display, in execution order, the files the next migrate run would
apply. The lock is not taken, so the plan can change if another client
migrates concurrently.`,
	RunE: runPlan,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, _ []string) error {
	rows, _, err := collectStatus(cmd)
	if err != nil {
		return err
	}

	return renderPlan(cmd.OutOrStdout(), AppConfig.Keyspace, rows)
}

// renderPlan prints pending files in order. A modified file blocks the
// plan at its position since migrate stops there.
func renderPlan(out io.Writer, keyspace string, rows []statusRow) error {
	fmt.Fprintf(out, "Plan for keyspace %s:\n", keyspace)

	step := 0

	for _, r := range rows {
		switch r.State {
		case statePending:
			step++

			suffix := ""
			if r.Bootstrap {
				suffix = " (bootstrap)"
			}

			fmt.Fprintf(out, "  %d. %s%s\n", step, r.Filename, suffix)
		case stateModified:
			fmt.Fprintf(out, "  !! %s was modified after being applied; migrate will stop here.\n", r.Filename)

			return nil
		}
	}

	if step == 0 {
		fmt.Fprintln(out, "  Nothing to apply.")
	}

	return nil
}
