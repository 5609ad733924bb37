package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/aqasim81/cql-migration-engine/internal/database"
	"github.com/aqasim81/cql-migration-engine/internal/migration"
	"github.com/aqasim81/cql-migration-engine/internal/parser"
	"github.com/aqasim81/cql-migration-engine/internal/tracker"
)

// DefaultBootstrapFile is the script that creates the keyspace on first run.
const DefaultBootstrapFile = "bootstrap.cql"

// Progress status constants reported via ProgressEvent.
const (
	StatusStarting  = "starting"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
	StatusPending   = "pending"
)

// ProgressEvent is emitted by the executor for each migration processed.
type ProgressEvent struct {
	Migration  *migration.Migration
	Status     string
	Bootstrap  bool
	Statements int
	Duration   time.Duration
	Error      error
}

// Report summarises a Migrate call. It is returned even when Migrate fails.
type Report struct {
	Keyspace         string
	ClientID         string
	State            State
	BootstrapApplied bool
	Applied          []string
	Skipped          []string
	Pending          []string
	Statements       int
	LockReleased     bool
}

// MigrationTracker abstracts schema_migrations operations for testability.
type MigrationTracker interface {
	EnsureTable(ctx context.Context) error
	IsApplied(ctx context.Context, filename string) (bool, error)
	ContentsDiffer(ctx context.Context, filename, checksum string) (bool, error)
	RecordApplied(ctx context.Context, p tracker.RecordParams) error
}

// SessionFactory opens a session bound to a keyspace.
type SessionFactory func(keyspace string) (*gocql.Session, error)

type (
	trackerFunc  func(keyspace string) MigrationTracker
	existsFunc   func(ctx context.Context, keyspace string) (bool, error)
	dropFunc     func(ctx context.Context, keyspace string) error
	cqlExecFunc  func(ctx context.Context, keyspace, stmt string) error
	lockAcquirer func(ctx context.Context, name string) (database.Lock, error)
)

// Executor applies the migration files of a keyspace under the migration
// lock. An Executor is not safe for concurrent use; separate processes
// coordinate through the lock instead.
type Executor struct {
	session         *gocql.Session
	openSession     SessionFactory
	locker          database.Locker
	clientID        string
	unlockOnFailure bool
	bootstrapFile   string
	consistency     gocql.Consistency
	dryRun          bool
	onProgress      func(ProgressEvent)
	logger          zerolog.Logger
	fs              afero.Fs

	acquireLock    lockAcquirer
	newTracker     trackerFunc
	keyspaceExists existsFunc
	dropKeyspace   dropFunc
	execCQL        cqlExecFunc

	bound map[string]*gocql.Session
}

// Option configures an Executor.
type Option func(*Executor)

// WithLocker sets the lock strategy. Without it migrations run unguarded.
func WithLocker(l database.Locker) Option {
	return func(e *Executor) { e.locker = l }
}

// WithClientID fixes the identity written to the lock row.
func WithClientID(id string) Option {
	return func(e *Executor) { e.clientID = id }
}

// WithUnlockOnFailure releases the lock before a failure is returned.
// By default a failed run leaves the lock held for manual intervention.
func WithUnlockOnFailure(b bool) Option {
	return func(e *Executor) { e.unlockOnFailure = b }
}

// WithBootstrapFile sets the filename of the keyspace-creating script.
func WithBootstrapFile(name string) Option {
	return func(e *Executor) { e.bootstrapFile = name }
}

// WithConsistency sets the consistency level of migration statements.
func WithConsistency(c gocql.Consistency) Option {
	return func(e *Executor) { e.consistency = c }
}

// WithDryRun enables dry-run mode where no CQL is executed or recorded.
func WithDryRun(b bool) Option {
	return func(e *Executor) { e.dryRun = b }
}

// WithProgressCallback sets a function called for each migration processed.
func WithProgressCallback(fn func(ProgressEvent)) Option {
	return func(e *Executor) { e.onProgress = fn }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithFs sets the filesystem migration directories are read from.
func WithFs(fs afero.Fs) Option {
	return func(e *Executor) { e.fs = fs }
}

// WithSessionFactory makes migration files run on a session bound to the
// target keyspace, so scripts may use unqualified table names.
func WithSessionFactory(f SessionFactory) Option {
	return func(e *Executor) { e.openSession = f }
}

// New creates an Executor that talks to the cluster through session.
func New(session *gocql.Session, opts ...Option) *Executor {
	e := &Executor{
		session:       session,
		locker:        database.NoopLocker{},
		bootstrapFile: DefaultBootstrapFile,
		consistency:   gocql.Quorum,
		logger:        zerolog.Nop(),
		fs:            afero.NewOsFs(),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.logger = e.logger.With().Str("component", "executor").Logger()

	// Set defaults for injectable functions after options are applied,
	// so tests can override them.
	if e.acquireLock == nil {
		e.acquireLock = func(ctx context.Context, name string) (database.Lock, error) {
			return database.AcquireLock(ctx, e.locker, name, e.clientID)
		}
	}

	if e.newTracker == nil {
		e.newTracker = func(keyspace string) MigrationTracker {
			return tracker.New(e.session, keyspace, tracker.WithConsistency(e.consistency))
		}
	}

	if e.keyspaceExists == nil {
		e.keyspaceExists = func(ctx context.Context, keyspace string) (bool, error) {
			return database.KeyspaceExists(ctx, e.session, keyspace)
		}
	}

	if e.dropKeyspace == nil {
		e.dropKeyspace = func(ctx context.Context, keyspace string) error {
			return database.DropKeyspace(ctx, e.session, keyspace)
		}
	}

	if e.execCQL == nil {
		e.execCQL = e.executeStatement
	}

	return e
}

// Migrate applies every new migration file found in dirs to keyspace.
//
// The lock for keyspace is held for the whole run. When keyspace does not
// exist yet, the bootstrap file is applied first and recorded like any
// other file; when it exists, the bootstrap file is ignored. Files already
// recorded are skipped after their checksum is verified, and a changed file
// stops the run before anything else is applied. On failure the lock stays
// held unless WithUnlockOnFailure is set.
func (e *Executor) Migrate(ctx context.Context, keyspace string, dirs ...string) (*Report, error) {
	report := &Report{Keyspace: keyspace, State: NotStarted}
	log := e.logger.With().Str("keyspace", keyspace).Logger()

	defer e.closeBound()

	if err := database.ValidateKeyspace(keyspace); err != nil {
		report.State = Failed

		return report, err
	}

	lock, err := e.acquireLock(ctx, database.LockName(keyspace))
	if err != nil {
		report.State = Failed

		return report, err
	}

	report.ClientID = lock.ClientID()
	e.transition(log, report, LockAcquired)

	if runErr := e.run(ctx, log, keyspace, dirs, report); runErr != nil {
		e.transition(log, report, Failed)

		if !e.unlockOnFailure {
			log.Warn().
				Str("lock_name", lock.Name()).
				Str("client_id", lock.ClientID()).
				Msg("migration failed; lock left held for manual intervention")

			return report, runErr
		}

		// The caller's context may be what failed the run.
		if relErr := lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			return report, errors.Join(runErr, relErr)
		}

		report.LockReleased = true

		return report, runErr
	}

	if err := lock.Release(ctx); err != nil {
		e.transition(log, report, Failed)

		return report, err
	}

	report.LockReleased = true
	e.transition(log, report, Complete)

	log.Info().
		Int("applied", len(report.Applied)).
		Int("skipped", len(report.Skipped)).
		Int("statements", report.Statements).
		Bool("dry_run", e.dryRun).
		Msg("migration complete")

	return report, nil
}

// Clean drops keyspace and everything in it. A missing keyspace is not an error.
func (e *Executor) Clean(ctx context.Context, keyspace string) error {
	if err := database.ValidateKeyspace(keyspace); err != nil {
		return err
	}

	if err := e.dropKeyspace(ctx, keyspace); err != nil {
		return err
	}

	e.logger.Info().Str("keyspace", keyspace).Msg("keyspace dropped")

	return nil
}

func (e *Executor) run(ctx context.Context, log zerolog.Logger, keyspace string, dirs []string, report *Report) error {
	files, err := migration.LoadFromDirs(e.fs, dirs...)
	if err != nil {
		return err
	}

	files = migration.Sort(files)

	exists, err := e.keyspaceExists(ctx, keyspace)
	if err != nil {
		return err
	}

	bootstrap, hasBootstrap := migration.Find(files, e.bootstrapFile)
	if hasBootstrap {
		files = migration.Without(files, e.bootstrapFile)
	}

	switch {
	case exists:
		if hasBootstrap {
			log.Debug().Str("file", e.bootstrapFile).Msg("keyspace exists, bootstrap ignored")
		}
	case hasBootstrap:
		if err := e.applyBootstrap(ctx, log, bootstrap, report); err != nil {
			return err
		}
	case e.dryRun:
		log.Warn().Msg("keyspace does not exist and no bootstrap file was found")
	default:
		return fmt.Errorf("%w: %s", ErrKeyspaceMissing, keyspace)
	}

	e.transition(log, report, BootstrapEvaluated)

	// In a dry run against a missing keyspace nothing can have been recorded.
	if e.dryRun && !exists {
		for i := range files {
			e.markPending(&files[i], report)
		}

		e.transition(log, report, FilesApplied)

		return nil
	}

	t := e.newTracker(keyspace)
	if err := t.EnsureTable(ctx); err != nil {
		return err
	}

	if report.BootstrapApplied {
		if err := t.RecordApplied(ctx, tracker.RecordParams{
			Filename: bootstrap.Filename,
			Checksum: bootstrap.Checksum,
		}); err != nil {
			return fmt.Errorf("recording migration %s: %w", bootstrap.Filename, err)
		}
	}

	for i := range files {
		if err := e.applyOne(ctx, log, t, keyspace, &files[i], report); err != nil {
			return err
		}
	}

	e.transition(log, report, FilesApplied)

	return nil
}

func (e *Executor) applyBootstrap(ctx context.Context, log zerolog.Logger, m *migration.Migration, report *Report) error {
	if err := m.CheckType(); err != nil {
		return err
	}

	if e.dryRun {
		report.Pending = append(report.Pending, m.Filename)
		e.fireProgress(ProgressEvent{Migration: m, Status: StatusPending, Bootstrap: true})

		return nil
	}

	log.Info().Str("file", m.Filename).Msg("keyspace missing, applying bootstrap")

	// Bootstrap statements run unbound since they create the keyspace.
	if err := e.execute(ctx, "", m, true, report); err != nil {
		return err
	}

	report.BootstrapApplied = true

	return nil
}

// applyOne handles a single migration: verify if applied, dry-run check,
// execute, record, and fire progress.
func (e *Executor) applyOne(
	ctx context.Context,
	log zerolog.Logger,
	t MigrationTracker,
	keyspace string,
	m *migration.Migration,
	report *Report,
) error {
	skip, err := e.shouldSkip(ctx, t, m)
	if err != nil {
		e.fireProgress(ProgressEvent{Migration: m, Status: StatusFailed, Error: err})

		return err
	}

	if skip {
		log.Debug().Str("file", m.Filename).Msg("already applied, checksum verified")

		report.Skipped = append(report.Skipped, m.Filename)
		e.fireProgress(ProgressEvent{Migration: m, Status: StatusSkipped})

		return nil
	}

	if err := m.CheckType(); err != nil {
		e.fireProgress(ProgressEvent{Migration: m, Status: StatusFailed, Error: err})

		return err
	}

	if e.dryRun {
		e.markPending(m, report)

		return nil
	}

	if err := e.execute(ctx, keyspace, m, false, report); err != nil {
		return err
	}

	if err := t.RecordApplied(ctx, tracker.RecordParams{
		Filename: m.Filename,
		Checksum: m.Checksum,
	}); err != nil {
		return fmt.Errorf("recording migration %s: %w", m.Filename, err)
	}

	log.Info().Str("file", m.Filename).Msg("migration applied")

	return nil
}

// shouldSkip returns true if the migration is already applied.
// Verifies the checksum of applied migrations to catch file tampering.
func (e *Executor) shouldSkip(ctx context.Context, t MigrationTracker, m *migration.Migration) (bool, error) {
	applied, err := t.IsApplied(ctx, m.Filename)
	if err != nil {
		return false, fmt.Errorf("checking migration %s: %w", m.Filename, err)
	}

	if !applied {
		return false, nil
	}

	differ, err := t.ContentsDiffer(ctx, m.Filename, m.Checksum)
	if err != nil {
		return false, fmt.Errorf("comparing checksum for %s: %w", m.Filename, err)
	}

	if differ {
		return false, fmt.Errorf(
			"%w: %s was modified after being applied (checksum now %s)",
			tracker.ErrChecksumMismatch, m.Path, m.Checksum,
		)
	}

	return true, nil
}

// execute parses m and runs its statements in order.
func (e *Executor) execute(ctx context.Context, keyspace string, m *migration.Migration, bootstrap bool, report *Report) error {
	stmts, err := parser.Parse(string(m.Content))
	if err != nil {
		e.fireProgress(ProgressEvent{Migration: m, Status: StatusFailed, Bootstrap: bootstrap, Error: err})

		return fmt.Errorf("parsing %s: %w", m.Path, err)
	}

	e.fireProgress(ProgressEvent{Migration: m, Status: StatusStarting, Bootstrap: bootstrap})

	start := time.Now()

	for i, stmt := range stmts {
		if execErr := e.execCQL(ctx, keyspace, stmt); execErr != nil {
			duration := time.Since(start)
			err := fmt.Errorf("%w: %s statement %d: %w", ErrExecutionFailed, m.Filename, i+1, execErr)

			e.fireProgress(ProgressEvent{
				Migration:  m,
				Status:     StatusFailed,
				Bootstrap:  bootstrap,
				Statements: i,
				Duration:   duration,
				Error:      err,
			})

			return err
		}

		report.Statements++
	}

	report.Applied = append(report.Applied, m.Filename)

	e.fireProgress(ProgressEvent{
		Migration:  m,
		Status:     StatusCompleted,
		Bootstrap:  bootstrap,
		Statements: len(stmts),
		Duration:   time.Since(start),
	})

	return nil
}

// executeStatement runs stmt on the keyspace-bound session when a session
// factory is configured, otherwise on the shared session.
func (e *Executor) executeStatement(ctx context.Context, keyspace, stmt string) error {
	session := e.session

	if keyspace != "" && e.openSession != nil {
		s, err := e.boundSession(keyspace)
		if err != nil {
			return err
		}

		session = s
	}

	return session.Query(stmt).WithContext(ctx).Consistency(e.consistency).Exec()
}

func (e *Executor) boundSession(keyspace string) (*gocql.Session, error) {
	if s, ok := e.bound[keyspace]; ok {
		return s, nil
	}

	s, err := e.openSession(keyspace)
	if err != nil {
		return nil, err
	}

	if e.bound == nil {
		e.bound = make(map[string]*gocql.Session)
	}

	e.bound[keyspace] = s

	return s, nil
}

func (e *Executor) closeBound() {
	for ks, s := range e.bound {
		s.Close()
		delete(e.bound, ks)
	}
}

func (e *Executor) markPending(m *migration.Migration, report *Report) {
	report.Pending = append(report.Pending, m.Filename)
	e.fireProgress(ProgressEvent{Migration: m, Status: StatusPending})
}

func (e *Executor) transition(log zerolog.Logger, report *Report, to State) {
	log.Debug().Str("from", report.State.String()).Str("to", to.String()).Msg("state transition")

	report.State = to
}

func (e *Executor) fireProgress(event ProgressEvent) {
	if e.onProgress != nil {
		e.onProgress(event)
	}
}
