package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gocql/gocql"
)

// AppliedMigration represents a row of the schema_migrations table.
type AppliedMigration struct {
	Filename  string
	Checksum  string
	AppliedOn time.Time
}

// RecordParams contains the fields needed to record a migration as applied.
type RecordParams struct {
	Filename string
	Checksum string
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithConsistency sets the consistency level for tracking reads and writes.
func WithConsistency(c gocql.Consistency) Option {
	return func(t *Tracker) {
		t.consistency = c
	}
}

// WithClock overrides the source of applied timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// Tracker manages the schema_migrations table of one keyspace. A record is
// written once per filename and never updated.
type Tracker struct {
	session     *gocql.Session
	keyspace    string
	consistency gocql.Consistency
	now         func() time.Time
}

// New creates a Tracker for keyspace backed by the given session.
func New(session *gocql.Session, keyspace string, opts ...Option) *Tracker {
	t := &Tracker{
		session:     session,
		keyspace:    keyspace,
		consistency: gocql.Quorum,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Keyspace returns the keyspace whose migrations are tracked.
func (t *Tracker) Keyspace() string {
	return t.keyspace
}

// EnsureTable creates the schema_migrations table if it does not exist. The
// caller is expected to hold the migration lock for the keyspace.
func (t *Tracker) EnsureTable(ctx context.Context) error {
	err := t.session.Query(createTableCQL(t.keyspace)).
		WithContext(ctx).
		Consistency(t.consistency).
		Exec()
	if err != nil {
		return fmt.Errorf("%w in %s: %w", ErrTableCreation, t.keyspace, err)
	}

	return nil
}

// IsApplied reports whether a record exists for filename.
func (t *Tracker) IsApplied(ctx context.Context, filename string) (bool, error) {
	_, err := t.GetChecksum(ctx, filename)
	if errors.Is(err, ErrMigrationNotFound) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("checking if migration %s is applied: %w", filename, err)
	}

	return true, nil
}

// GetChecksum returns the recorded checksum for filename.
func (t *Tracker) GetChecksum(ctx context.Context, filename string) (string, error) {
	var checksum string

	err := t.session.Query(selectChecksumCQL(t.keyspace), filename).
		WithContext(ctx).
		Consistency(t.consistency).
		Scan(&checksum)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return "", fmt.Errorf("migration %s: %w", filename, ErrMigrationNotFound)
		}

		return "", fmt.Errorf("getting checksum for migration %s: %w", filename, err)
	}

	return checksum, nil
}

// ContentsDiffer reports whether checksum differs from the recorded one.
// It returns ErrMigrationNotFound when filename has no record.
func (t *Tracker) ContentsDiffer(ctx context.Context, filename, checksum string) (bool, error) {
	stored, err := t.GetChecksum(ctx, filename)
	if err != nil {
		return false, err
	}

	return stored != checksum, nil
}

// RecordApplied inserts the record for a newly applied migration. An
// existing record is never overwritten; ErrAlreadyRecorded reports that case.
func (t *Tracker) RecordApplied(ctx context.Context, p RecordParams) error {
	existing := make(map[string]any)

	applied, err := t.session.Query(insertCQL(t.keyspace), p.Filename, p.Checksum, t.now().UTC()).
		WithContext(ctx).
		Consistency(t.consistency).
		MapScanCAS(existing)
	if err != nil {
		return fmt.Errorf("recording migration %s as applied: %w", p.Filename, err)
	}

	if !applied {
		return fmt.Errorf("migration %s: %w", p.Filename, ErrAlreadyRecorded)
	}

	return nil
}

// GetApplied returns all recorded migrations ordered by filename.
func (t *Tracker) GetApplied(ctx context.Context) ([]AppliedMigration, error) {
	iter := t.session.Query(selectAllCQL(t.keyspace)).
		WithContext(ctx).
		Consistency(t.consistency).
		Iter()

	var (
		applied []AppliedMigration
		m       AppliedMigration
	)

	for iter.Scan(&m.Filename, &m.Checksum, &m.AppliedOn) {
		applied = append(applied, m)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("querying applied migrations: %w", err)
	}

	SortApplied(applied)

	return applied, nil
}

// SortApplied orders records by filename, the same order migrations run in.
func SortApplied(applied []AppliedMigration) {
	sort.SliceStable(applied, func(i, j int) bool {
		return applied[i].Filename < applied[j].Filename
	})
}

// TableExists reports whether the schema_migrations table has been created.
func (t *Tracker) TableExists(ctx context.Context) (bool, error) {
	var name string

	err := t.session.Query(
		`SELECT table_name FROM system_schema.tables WHERE keyspace_name = ? AND table_name = ?`,
		strings.ToLower(t.keyspace), TableName,
	).WithContext(ctx).Consistency(t.consistency).Scan(&name)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return false, nil
		}

		return false, fmt.Errorf("checking for %s.%s: %w", t.keyspace, TableName, err)
	}

	return true, nil
}
