package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aqasim81/cql-migration-engine/internal/config"
	"github.com/aqasim81/cql-migration-engine/internal/logging"
)

const version = "0.1.0"

// AppConfig holds the loaded configuration, set during PersistentPreRunE.
var AppConfig *config.Config //nolint:gochecknoglobals // standard Cobra pattern for shared config

// AppLogger is built from AppConfig during PersistentPreRunE.
var AppLogger = zerolog.Nop() //nolint:gochecknoglobals // standard Cobra pattern for shared config

// errKeyspaceRequired is returned when a command needs a keyspace and none is configured.
var errKeyspaceRequired = errors.New( //nolint:gochecknoglobals // sentinel error
	"keyspace is required (set --keyspace, MIGRATE_KEYSPACE, or keyspace in config)",
)

// rootCmd is the base command for the cqlmigrate CLI.
var rootCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:     "cqlmigrate",
	Version: version,
	Short:   "Idempotent CQL schema migrations guarded by a cluster-wide lock",
	Long: `cqlmigrate applies .cql migration scripts to a keyspace exactly once.
Runs from any number of hosts coordinate through a lock row written with
lightweight transactions, and every applied file is checksummed so later
edits are detected instead of silently ignored.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return loadConfig(cmd)
	},
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	rootCmd.PersistentFlags().String("config", "migrate.yml", "path to configuration file")
	rootCmd.PersistentFlags().StringSlice("contact-points", nil, "cluster hosts (comma separated)")
	rootCmd.PersistentFlags().String("keyspace", "", "keyspace to migrate")
	rootCmd.PersistentFlags().StringSlice("migrations-dirs", nil, "directories holding migration files")
	rootCmd.PersistentFlags().String("lock-mode", "", "lock strategy (cas, none)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads configuration with precedence: flag > env > file.
func loadConfig(cmd *cobra.Command) error {
	configPath, _ := cmd.Flags().GetString("config")
	allowMissing := !cmd.Flags().Changed("config")

	cfg, err := config.Load(configPath, allowMissing)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	config.MergeEnv(cfg)
	mergeFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	logging.LogConfig(logger, cfg)

	AppConfig = cfg
	AppLogger = logger

	return nil
}

// mergeFlags overrides config with explicitly-set CLI flags.
func mergeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()

	if flags.Changed("contact-points") {
		cfg.ContactPoints, _ = flags.GetStringSlice("contact-points")
	}

	if flags.Changed("keyspace") {
		cfg.Keyspace, _ = flags.GetString("keyspace")
	}

	if flags.Changed("migrations-dirs") {
		cfg.MigrationsDirs, _ = flags.GetStringSlice("migrations-dirs")
	}

	if flags.Changed("lock-mode") {
		cfg.LockMode, _ = flags.GetString("lock-mode")
	}

	if verbose, _ := flags.GetBool("verbose"); verbose {
		cfg.LogLevel = "debug"
	}
}

func requireKeyspace(cfg *config.Config) error {
	if cfg.Keyspace == "" {
		return errKeyspaceRequired
	}

	return nil
}
