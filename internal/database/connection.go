package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"
)

const defaultConnectTimeout = 10 * time.Second

// SessionConfig describes how to reach the cluster.
type SessionConfig struct {
	ContactPoints     []string
	Port              int
	Username          string
	Password          string
	Consistency       gocql.Consistency
	SerialConsistency gocql.SerialConsistency
	ConnectTimeout    time.Duration
}

// NewSession opens a session to the cluster. The session is not bound to a
// keyspace; every statement issued by this module is keyspace-qualified.
func NewSession(cfg SessionConfig) (*gocql.Session, error) {
	cluster, err := newClusterConfig(cfg)
	if err != nil {
		return nil, err
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return session, nil
}

// NewKeyspaceSession opens a session whose unqualified table names resolve
// against keyspace. The keyspace must already exist.
func NewKeyspaceSession(cfg SessionConfig, keyspace string) (*gocql.Session, error) {
	if err := ValidateKeyspace(keyspace); err != nil {
		return nil, err
	}

	cluster, err := newClusterConfig(cfg)
	if err != nil {
		return nil, err
	}

	cluster.Keyspace = keyspace

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("%w: keyspace %s: %w", ErrConnectionFailed, keyspace, err)
	}

	return session, nil
}

func newClusterConfig(cfg SessionConfig) (*gocql.ClusterConfig, error) {
	hosts := make([]string, 0, len(cfg.ContactPoints))

	for _, h := range cfg.ContactPoints {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}

	if len(hosts) == 0 {
		return nil, ErrNoContactPoints
	}

	cluster := gocql.NewCluster(hosts...)
	cluster.Consistency = cfg.Consistency
	cluster.SerialConsistency = cfg.SerialConsistency

	if cfg.Port > 0 {
		cluster.Port = cfg.Port
	}

	cluster.ConnectTimeout = defaultConnectTimeout
	if cfg.ConnectTimeout > 0 {
		cluster.ConnectTimeout = cfg.ConnectTimeout
		cluster.Timeout = cfg.ConnectTimeout
	}

	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	return cluster, nil
}

// ParseConsistency converts a consistency level name such as "QUORUM" or
// "local_quorum" to its driver value.
func ParseConsistency(name string) (gocql.Consistency, error) {
	c, err := gocql.ParseConsistencyWrapper(strings.ToUpper(strings.TrimSpace(name)))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidConsistency, name)
	}

	return c, nil
}

// ParseSerialConsistency converts "SERIAL" or "LOCAL_SERIAL" to its driver value.
func ParseSerialConsistency(name string) (gocql.SerialConsistency, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "SERIAL":
		return gocql.Serial, nil
	case "LOCAL_SERIAL":
		return gocql.LocalSerial, nil
	default:
		return 0, fmt.Errorf("%w: %q (want SERIAL or LOCAL_SERIAL)", ErrInvalidConsistency, name)
	}
}
