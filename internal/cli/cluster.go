package cli

import (
	"fmt"

	"github.com/gocql/gocql"
	"github.com/rs/zerolog"

	"github.com/aqasim81/cql-migration-engine/internal/config"
	"github.com/aqasim81/cql-migration-engine/internal/database"
	"github.com/aqasim81/cql-migration-engine/internal/executor"
	"github.com/aqasim81/cql-migration-engine/internal/retry"
	"github.com/aqasim81/cql-migration-engine/internal/tracker"
)

// cluster bundles the session and the components built on it for one command.
type cluster struct {
	cfg     *config.Config
	session *gocql.Session
	logger  zerolog.Logger
	schema  *database.SchemaRegistry
}

func openCluster(cfg *config.Config, logger zerolog.Logger) (*cluster, error) {
	session, err := database.NewSession(cfg.SessionConfig())
	if err != nil {
		return nil, fmt.Errorf("connecting to cluster: %w", err)
	}

	return &cluster{
		cfg:     cfg,
		session: session,
		logger:  logger,
		schema:  database.NewSchemaRegistry(),
	}, nil
}

func (c *cluster) Close() {
	c.session.Close()
}

func (c *cluster) lockStore() *database.CQLLockStore {
	sc := c.cfg.SessionConfig()

	return database.NewCQLLockStore(c.session, database.CQLLockStoreOptions{
		Keyspace:          c.cfg.LockKeyspace,
		Replication:       c.cfg.LockReplication,
		Consistency:       sc.Consistency,
		SerialConsistency: sc.SerialConsistency,
		Schema:            c.schema,
	})
}

func (c *cluster) tracker(keyspace string) *tracker.Tracker {
	return tracker.New(c.session, keyspace, tracker.WithConsistency(c.cfg.SessionConfig().Consistency))
}

func (c *cluster) executor(opts ...executor.Option) *executor.Executor {
	sc := c.cfg.SessionConfig()

	base := []executor.Option{
		executor.WithLocker(newLocker(c.cfg, c.lockStore, c.logger)),
		executor.WithClientID(c.cfg.ClientID),
		executor.WithUnlockOnFailure(c.cfg.UnlockOnFailure),
		executor.WithBootstrapFile(c.cfg.BootstrapFile),
		executor.WithConsistency(sc.Consistency),
		executor.WithLogger(c.logger),
		executor.WithSessionFactory(func(keyspace string) (*gocql.Session, error) {
			return database.NewKeyspaceSession(sc, keyspace)
		}),
	}

	return executor.New(c.session, append(base, opts...)...)
}

// newLocker selects the lock strategy. store is only called for the CAS strategy.
func newLocker(cfg *config.Config, store func() *database.CQLLockStore, logger zerolog.Logger) database.Locker {
	if cfg.LockMode == config.LockModeNone {
		logger.Warn().Msg("lock_mode is none: concurrent runs are not coordinated")

		return database.NoopLocker{}
	}

	return database.NewCASLocker(store(), retry.New(cfg.PollingInterval, cfg.LockTimeout), logger)
}
