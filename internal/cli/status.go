package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/aqasim81/cql-migration-engine/internal/database"
	"github.com/aqasim81/cql-migration-engine/internal/migration"
	"github.com/aqasim81/cql-migration-engine/internal/tracker"
)

// File states reported by status and plan.
const (
	stateApplied  = "applied"
	statePending  = "pending"
	stateModified = "modified"
	stateMissing  = "missing"
	stateIgnored  = "ignored"
)

// statusRow describes one migration file, one tracking record, or both.
type statusRow struct {
	Filename  string     `json:"filename"`
	State     string     `json:"state"`
	Bootstrap bool       `json:"bootstrap,omitempty"`
	Checksum  string     `json:"checksum,omitempty"`
	AppliedOn *time.Time `json:"applied_on,omitempty"`
}

var statusCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "status",
	Short: "Show migration status",
	Long: `Display every migration file alongside the keyspace's tracking records,
marking files as applied, pending, modified after being applied, or
recorded but missing from the migration directories.`,
	RunE: runStatus,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	statusCmd.Flags().String("format", "text", "output format (text, json)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	rows, exists, err := collectStatus(cmd)
	if err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("format")

	return renderStatus(cmd.OutOrStdout(), format, AppConfig.Keyspace, exists, rows)
}

// collectStatus reads the migration directories and, when the keyspace
// exists, its tracking records. It never takes the migration lock.
func collectStatus(cmd *cobra.Command) ([]statusRow, bool, error) {
	cfg := AppConfig

	if err := requireKeyspace(cfg); err != nil {
		return nil, false, err
	}

	files, err := migration.LoadFromDirs(afero.NewOsFs(), cfg.MigrationsDirs...)
	if err != nil {
		return nil, false, fmt.Errorf("loading migrations: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	c, err := openCluster(cfg, AppLogger)
	if err != nil {
		return nil, false, err
	}
	defer c.Close()

	exists, err := database.KeyspaceExists(ctx, c.session, cfg.Keyspace)
	if err != nil {
		return nil, false, err
	}

	var applied []tracker.AppliedMigration

	if exists {
		t := c.tracker(cfg.Keyspace)

		hasTable, err := t.TableExists(ctx)
		if err != nil {
			return nil, false, err
		}

		if hasTable {
			if applied, err = t.GetApplied(ctx); err != nil {
				return nil, false, err
			}
		}
	}

	return buildStatus(files, applied, cfg.BootstrapFile, exists), exists, nil
}

// buildStatus joins discovered files with tracking records. Rows are
// ordered by filename, with a pending bootstrap file first.
func buildStatus(
	files []migration.Migration,
	applied []tracker.AppliedMigration,
	bootstrapFile string,
	keyspaceExists bool,
) []statusRow {
	records := make(map[string]tracker.AppliedMigration, len(applied))
	for _, a := range applied {
		records[a.Filename] = a
	}

	rows := make([]statusRow, 0, len(files)+len(applied))
	seen := make(map[string]bool, len(files))

	for _, f := range migration.Sort(files) {
		seen[f.Filename] = true
		row := statusRow{Filename: f.Filename, Checksum: f.Checksum, Bootstrap: f.Filename == bootstrapFile}

		rec, ok := records[f.Filename]

		switch {
		case ok && rec.Checksum != f.Checksum:
			row.State = stateModified
			row.AppliedOn = timePtr(rec.AppliedOn)
		case ok:
			row.State = stateApplied
			row.AppliedOn = timePtr(rec.AppliedOn)
		case row.Bootstrap && keyspaceExists:
			row.State = stateIgnored
		default:
			row.State = statePending
		}

		rows = append(rows, row)
	}

	for _, a := range applied {
		if !seen[a.Filename] {
			rows = append(rows, statusRow{
				Filename:  a.Filename,
				State:     stateMissing,
				Checksum:  a.Checksum,
				AppliedOn: timePtr(a.AppliedOn),
			})
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		bi := rows[i].Bootstrap && rows[i].State == statePending
		bj := rows[j].Bootstrap && rows[j].State == statePending

		if bi != bj {
			return bi
		}

		return rows[i].Filename < rows[j].Filename
	})

	return rows
}

func renderStatus(out io.Writer, format, keyspace string, exists bool, rows []statusRow) error {
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")

		return enc.Encode(struct {
			Keyspace string      `json:"keyspace"`
			Exists   bool        `json:"exists"`
			Files    []statusRow `json:"files"`
		}{keyspace, exists, rows})
	}

	if !exists {
		fmt.Fprintf(out, "Keyspace %s does not exist yet.\n", keyspace)
	}

	if len(rows) == 0 {
		fmt.Fprintln(out, "No migration files found.")

		return nil
	}

	counts := map[string]int{}

	for _, r := range rows {
		counts[r.State]++

		applied := "-"
		if r.AppliedOn != nil {
			applied = r.AppliedOn.UTC().Format(time.RFC3339)
		}

		fmt.Fprintf(out, "  %-9s %-20s %s\n", r.State, applied, r.Filename)
	}

	fmt.Fprintf(out, "\n%d applied, %d pending, %d modified, %d missing.\n",
		counts[stateApplied], counts[statePending], counts[stateModified], counts[stateMissing])

	return nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}

	return &t
}
