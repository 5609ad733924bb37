package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aqasim81/cql-migration-engine/internal/database"
)

// Default values for configuration fields.
const (
	DefaultContactPoint      = "127.0.0.1"
	DefaultPort              = 9042
	DefaultMigrationsDir     = "./migrations"
	DefaultConsistency       = "QUORUM"
	DefaultSerialConsistency = "SERIAL"
	DefaultConnectTimeout    = 10 * time.Second
	DefaultPollingInterval   = 500 * time.Millisecond
	DefaultLockTimeout       = 60 * time.Second
	DefaultBootstrapFile     = "bootstrap.cql"
	DefaultLogLevel          = "info"
)

// Lock modes.
const (
	LockModeCAS  = "cas"
	LockModeNone = "none"
)

// ErrInvalidConfig indicates a configuration value that cannot be used.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the application configuration loaded from file, environment, and flags.
type Config struct {
	ContactPoints     []string
	Port              int
	Username          string
	Password          string
	Keyspace          string
	MigrationsDirs    []string
	Consistency       string
	SerialConsistency string
	ConnectTimeout    time.Duration
	PollingInterval   time.Duration
	LockTimeout       time.Duration
	UnlockOnFailure   bool
	LockMode          string
	LockKeyspace      string
	LockReplication   map[string]string
	BootstrapFile     string
	ClientID          string
	LogLevel          string
	LogPretty         bool
}

// yamlConfig is the raw YAML file representation with string durations.
type yamlConfig struct {
	ContactPoints     []string          `yaml:"contact_points"`
	Port              int               `yaml:"port"`
	Username          string            `yaml:"username"`
	Password          string            `yaml:"password"`
	Keyspace          string            `yaml:"keyspace"`
	MigrationsDirs    []string          `yaml:"migrations_dirs"`
	Consistency       string            `yaml:"consistency"`
	SerialConsistency string            `yaml:"serial_consistency"`
	ConnectTimeout    string            `yaml:"connect_timeout"`
	PollingInterval   string            `yaml:"polling_interval"`
	LockTimeout       string            `yaml:"lock_timeout"`
	UnlockOnFailure   bool              `yaml:"unlock_on_failure"`
	LockMode          string            `yaml:"lock_mode"`
	LockKeyspace      string            `yaml:"lock_keyspace"`
	LockReplication   map[string]string `yaml:"lock_replication"`
	BootstrapFile     string            `yaml:"bootstrap_file"`
	ClientID          string            `yaml:"client_id"`
	LogLevel          string            `yaml:"log_level"`
	LogPretty         bool              `yaml:"log_pretty"`
}

// New returns a Config populated with default values.
func New() *Config {
	return &Config{
		ContactPoints:     []string{DefaultContactPoint},
		Port:              DefaultPort,
		MigrationsDirs:    []string{DefaultMigrationsDir},
		Consistency:       DefaultConsistency,
		SerialConsistency: DefaultSerialConsistency,
		ConnectTimeout:    DefaultConnectTimeout,
		PollingInterval:   DefaultPollingInterval,
		LockTimeout:       DefaultLockTimeout,
		LockMode:          LockModeCAS,
		LockKeyspace:      database.DefaultLockKeyspace,
		LockReplication:   DefaultLockReplication(),
		BootstrapFile:     DefaultBootstrapFile,
		LogLevel:          DefaultLogLevel,
	}
}

// DefaultLockReplication is used when the lock keyspace has to be created.
func DefaultLockReplication() map[string]string {
	return map[string]string{"class": "SimpleStrategy", "replication_factor": "1"}
}

// Load reads a YAML configuration file and returns a Config.
// If allowMissing is true and the file does not exist, defaults are returned.
func Load(path string, allowMissing bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			return New(), nil
		}

		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var raw yamlConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return fromYAML(&raw)
}

// fromYAML converts the raw YAML representation to a Config with defaults applied.
func fromYAML(raw *yamlConfig) (*Config, error) {
	cfg := New()

	if len(raw.ContactPoints) > 0 {
		cfg.ContactPoints = raw.ContactPoints
	}

	if raw.Port != 0 {
		cfg.Port = raw.Port
	}

	cfg.Username = raw.Username
	cfg.Password = raw.Password
	cfg.Keyspace = raw.Keyspace

	if len(raw.MigrationsDirs) > 0 {
		cfg.MigrationsDirs = raw.MigrationsDirs
	}

	if raw.Consistency != "" {
		cfg.Consistency = raw.Consistency
	}

	if raw.SerialConsistency != "" {
		cfg.SerialConsistency = raw.SerialConsistency
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.ConnectTimeout},
		{"polling_interval", raw.PollingInterval, &cfg.PollingInterval},
		{"lock_timeout", raw.LockTimeout, &cfg.LockTimeout},
	}

	for _, d := range durations {
		if d.raw == "" {
			continue
		}

		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return nil, fmt.Errorf("parsing %s %q: %w", d.name, d.raw, err)
		}

		*d.dst = v
	}

	cfg.UnlockOnFailure = raw.UnlockOnFailure

	if raw.LockMode != "" {
		cfg.LockMode = raw.LockMode
	}

	if raw.LockKeyspace != "" {
		cfg.LockKeyspace = raw.LockKeyspace
	}

	if len(raw.LockReplication) > 0 {
		cfg.LockReplication = raw.LockReplication
	}

	if raw.BootstrapFile != "" {
		cfg.BootstrapFile = raw.BootstrapFile
	}

	cfg.ClientID = raw.ClientID

	if raw.LogLevel != "" {
		cfg.LogLevel = raw.LogLevel
	}

	cfg.LogPretty = raw.LogPretty

	return cfg, nil
}

// MergeEnv overrides config fields from MIGRATE_* environment variables.
// Values that fail to parse are ignored.
func MergeEnv(cfg *Config) {
	if v := os.Getenv("MIGRATE_CONTACT_POINTS"); v != "" {
		cfg.ContactPoints = SplitList(v)
	}

	if v := os.Getenv("MIGRATE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}

	strs := []struct {
		env string
		dst *string
	}{
		{"MIGRATE_USERNAME", &cfg.Username},
		{"MIGRATE_PASSWORD", &cfg.Password},
		{"MIGRATE_KEYSPACE", &cfg.Keyspace},
		{"MIGRATE_CONSISTENCY", &cfg.Consistency},
		{"MIGRATE_SERIAL_CONSISTENCY", &cfg.SerialConsistency},
		{"MIGRATE_LOCK_MODE", &cfg.LockMode},
		{"MIGRATE_LOCK_KEYSPACE", &cfg.LockKeyspace},
		{"MIGRATE_BOOTSTRAP_FILE", &cfg.BootstrapFile},
		{"MIGRATE_CLIENT_ID", &cfg.ClientID},
		{"MIGRATE_LOG_LEVEL", &cfg.LogLevel},
	}

	for _, s := range strs {
		if v := os.Getenv(s.env); v != "" {
			*s.dst = v
		}
	}

	if v := os.Getenv("MIGRATE_MIGRATIONS_DIRS"); v != "" {
		cfg.MigrationsDirs = SplitList(v)
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"MIGRATE_CONNECT_TIMEOUT", &cfg.ConnectTimeout},
		{"MIGRATE_POLLING_INTERVAL", &cfg.PollingInterval},
		{"MIGRATE_LOCK_TIMEOUT", &cfg.LockTimeout},
	}

	for _, d := range durations {
		if v := os.Getenv(d.env); v != "" {
			if parsed, err := time.ParseDuration(v); err == nil {
				*d.dst = parsed
			}
		}
	}

	if v := os.Getenv("MIGRATE_UNLOCK_ON_FAILURE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.UnlockOnFailure = b
		}
	}

	if v := os.Getenv("MIGRATE_LOG_PRETTY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.LogPretty = b
		}
	}
}

// SplitList splits a comma-separated value, dropping empty elements.
func SplitList(v string) []string {
	var out []string

	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}

// Validate checks values that would otherwise fail later at connect or lock time.
func (c *Config) Validate() error {
	if len(c.ContactPoints) == 0 {
		return fmt.Errorf("%w: at least one contact point is required", ErrInvalidConfig)
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}

	if _, err := database.ParseConsistency(c.Consistency); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if _, err := database.ParseSerialConsistency(c.SerialConsistency); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if c.PollingInterval <= 0 || c.LockTimeout <= 0 {
		return fmt.Errorf("%w: polling_interval and lock_timeout must be positive", ErrInvalidConfig)
	}

	switch c.LockMode {
	case LockModeCAS:
		if err := database.ValidateKeyspace(c.LockKeyspace); err != nil {
			return fmt.Errorf("%w: lock_keyspace: %w", ErrInvalidConfig, err)
		}
	case LockModeNone:
	default:
		return fmt.Errorf("%w: lock_mode %q (want %s or %s)", ErrInvalidConfig, c.LockMode, LockModeCAS, LockModeNone)
	}

	return nil
}

// SessionConfig returns the connection settings for database.NewSession.
// Consistency names must already have passed Validate.
func (c *Config) SessionConfig() database.SessionConfig {
	consistency, _ := database.ParseConsistency(c.Consistency)
	serial, _ := database.ParseSerialConsistency(c.SerialConsistency)

	return database.SessionConfig{
		ContactPoints:     c.ContactPoints,
		Port:              c.Port,
		Username:          c.Username,
		Password:          c.Password,
		Consistency:       consistency,
		SerialConsistency: serial,
		ConnectTimeout:    c.ConnectTimeout,
	}
}
