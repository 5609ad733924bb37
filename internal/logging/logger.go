package logging

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/aqasim81/cql-migration-engine/internal/config"
)

const defaultLevel = zerolog.InfoLevel

// NewLogger initializes a zerolog.Logger writing to out at the configured level.
func NewLogger(cfg *config.Config, out io.Writer) (zerolog.Logger, error) {
	level := defaultLevel
	if cfg.LogLevel != "" {
		l, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("failed to parse log level '%s': %w", cfg.LogLevel, err)
		}

		level = l
	}

	if cfg.LogPretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	logger := zerolog.New(out).
		With().
		Timestamp().
		Logger().
		Level(level)

	return logger, nil
}

// LogConfig writes the effective configuration with secrets masked.
func LogConfig(logger zerolog.Logger, cfg *config.Config) {
	r := config.Redacted(cfg)

	logger.Debug().
		Strs("contact_points", r.ContactPoints).
		Int("port", r.Port).
		Str("username", r.Username).
		Str("password", r.Password).
		Str("keyspace", r.Keyspace).
		Strs("migrations_dirs", r.MigrationsDirs).
		Str("consistency", r.Consistency).
		Str("serial_consistency", r.SerialConsistency).
		Dur("polling_interval", r.PollingInterval).
		Dur("lock_timeout", r.LockTimeout).
		Bool("unlock_on_failure", r.UnlockOnFailure).
		Str("lock_mode", r.LockMode).
		Str("lock_keyspace", r.LockKeyspace).
		Str("bootstrap_file", r.BootstrapFile).
		Msg("effective configuration")
}
