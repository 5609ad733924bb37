package database

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gocql/gocql"
)

// DefaultLockKeyspace is the keyspace holding the lock table when none is configured.
const DefaultLockKeyspace = "migration_locks"

const lockTable = "locks"

// LockStore performs the conditional writes the lock protocol is built on.
// Implementations must be linearizable per lock name.
type LockStore interface {
	// TryInsert creates the row (name, client) only if no row for name
	// exists. When not applied, holder is the client currently holding it.
	TryInsert(ctx context.Context, name, client string) (applied bool, holder string, err error)
	// TryDelete removes the row for name only if its holder is client. When
	// not applied, holder is the current holder, or "" if there is no row.
	TryDelete(ctx context.Context, name, client string) (applied bool, holder string, err error)
	// ForceDelete removes the row for name regardless of its holder.
	ForceDelete(ctx context.Context, name string) error
	// Holder returns the current holder of name, or "" if it is free.
	Holder(ctx context.Context, name string) (string, error)
}

// SchemaRegistry records which lock keyspaces this process has already
// created. Share one registry between lock stores on the same cluster.
type SchemaRegistry struct {
	mu      sync.Mutex
	ensured map[string]bool
}

// NewSchemaRegistry returns an empty registry.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{ensured: make(map[string]bool)}
}

// Ensure runs create once per keyspace. A failed create is retried on the next call.
func (r *SchemaRegistry) Ensure(keyspace string, create func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ensured[keyspace] {
		return nil
	}

	if err := create(); err != nil {
		return err
	}

	r.ensured[keyspace] = true

	return nil
}

// CQLLockStoreOptions configures a CQLLockStore.
type CQLLockStoreOptions struct {
	Keyspace          string
	Replication       map[string]string
	Consistency       gocql.Consistency
	SerialConsistency gocql.SerialConsistency
	Schema            *SchemaRegistry
}

// CQLLockStore keeps lock rows in a table of the cluster being migrated.
type CQLLockStore struct {
	session *gocql.Session
	opts    CQLLockStoreOptions
}

// NewCQLLockStore returns a LockStore backed by session. Zero-valued
// options fall back to the default lock keyspace, SimpleStrategy with a
// replication factor of 1, QUORUM and SERIAL.
func NewCQLLockStore(session *gocql.Session, opts CQLLockStoreOptions) *CQLLockStore {
	if opts.Keyspace == "" {
		opts.Keyspace = DefaultLockKeyspace
	}

	if len(opts.Replication) == 0 {
		opts.Replication = map[string]string{"class": "SimpleStrategy", "replication_factor": "1"}
	}

	if opts.Consistency == 0 {
		opts.Consistency = gocql.Quorum
	}

	if opts.SerialConsistency == 0 {
		opts.SerialConsistency = gocql.Serial
	}

	if opts.Schema == nil {
		opts.Schema = NewSchemaRegistry()
	}

	return &CQLLockStore{session: session, opts: opts}
}

func (s *CQLLockStore) table() string {
	return s.opts.Keyspace + "." + lockTable
}

// EnsureSchema creates the lock keyspace and table if this process has not
// already done so.
func (s *CQLLockStore) EnsureSchema(ctx context.Context) error {
	return s.opts.Schema.Ensure(s.opts.Keyspace, func() error {
		if err := ValidateKeyspace(s.opts.Keyspace); err != nil {
			return err
		}

		stmts := []string{
			`CREATE KEYSPACE IF NOT EXISTS ` + s.opts.Keyspace +
				` WITH replication = ` + ReplicationLiteral(s.opts.Replication),
			`CREATE TABLE IF NOT EXISTS ` + s.table() + ` (name text PRIMARY KEY, client text)`,
		}

		for _, stmt := range stmts {
			if err := s.session.Query(stmt).WithContext(ctx).Consistency(s.opts.Consistency).Exec(); err != nil {
				return fmt.Errorf("creating lock schema in %s: %w", s.opts.Keyspace, err)
			}
		}

		return nil
	})
}

// TryInsert implements LockStore with INSERT ... IF NOT EXISTS.
func (s *CQLLockStore) TryInsert(ctx context.Context, name, client string) (bool, string, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return false, "", err
	}

	return s.cas(ctx,
		`INSERT INTO `+s.table()+` (name, client) VALUES (?, ?) IF NOT EXISTS`,
		name, client,
	)
}

// TryDelete implements LockStore with DELETE ... IF client = ?.
func (s *CQLLockStore) TryDelete(ctx context.Context, name, client string) (bool, string, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return false, "", err
	}

	return s.cas(ctx,
		`DELETE FROM `+s.table()+` WHERE name = ? IF client = ?`,
		name, client,
	)
}

// ForceDelete implements LockStore.
func (s *CQLLockStore) ForceDelete(ctx context.Context, name string) error {
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}

	err := s.session.Query(`DELETE FROM `+s.table()+` WHERE name = ?`, name).
		WithContext(ctx).
		Consistency(s.opts.Consistency).
		Exec()
	if err != nil {
		return fmt.Errorf("deleting lock %s: %w", name, err)
	}

	return nil
}

// Holder implements LockStore with a serial read so in-flight conditional
// writes are taken into account.
func (s *CQLLockStore) Holder(ctx context.Context, name string) (string, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return "", err
	}

	var client string

	err := s.session.Query(`SELECT client FROM `+s.table()+` WHERE name = ?`, name).
		WithContext(ctx).
		Consistency(gocql.Consistency(s.opts.SerialConsistency)).
		Scan(&client)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return "", nil
		}

		return "", fmt.Errorf("reading lock %s: %w", name, err)
	}

	return client, nil
}

func (s *CQLLockStore) cas(ctx context.Context, stmt string, args ...any) (bool, string, error) {
	row := make(map[string]any)

	applied, err := s.session.Query(stmt, args...).
		WithContext(ctx).
		Consistency(s.opts.Consistency).
		SerialConsistency(s.opts.SerialConsistency).
		MapScanCAS(row)
	if err != nil {
		return false, "", err
	}

	holder, _ := row["client"].(string)

	return applied, holder, nil
}
