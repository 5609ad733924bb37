//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aqasim81/cql-migration-engine/internal/database"
)

const cassandraImage = "cassandra:4.1"

// sessionConfig reaches the container started by TestMain.
var sessionConfig database.SessionConfig //nolint:gochecknoglobals // shared container for the package

var keyspaceSeq atomic.Int64 //nolint:gochecknoglobals // unique keyspace names across tests

// TestMain starts one Cassandra node for the whole package; a node takes
// far longer to boot than any single test runs.
func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        cassandraImage,
			ExposedPorts: []string{"9042/tcp"},
			Env: map[string]string{
				"MAX_HEAP_SIZE":        "512M",
				"HEAP_NEWSIZE":         "128M",
				"CASSANDRA_NUM_TOKENS": "1",
			},
			WaitingFor: wait.ForListeningPort("9042/tcp").WithStartupTimeout(3 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "starting cassandra:", err)
		os.Exit(1)
	}

	code := 1

	if err := resolve(ctx, container); err != nil {
		fmt.Fprintln(os.Stderr, "resolving cassandra address:", err)
	} else {
		code = m.Run()
	}

	_ = container.Terminate(context.Background())

	os.Exit(code)
}

func resolve(ctx context.Context, container testcontainers.Container) error {
	host, err := container.Host(ctx)
	if err != nil {
		return err
	}

	port, err := container.MappedPort(ctx, "9042/tcp")
	if err != nil {
		return err
	}

	sessionConfig = database.SessionConfig{
		ContactPoints:     []string{host},
		Port:              port.Int(),
		Consistency:       gocql.One,
		SerialConsistency: gocql.Serial,
		ConnectTimeout:    30 * time.Second,
	}

	return nil
}

// SetupSession opens a session to the shared node, retrying while the
// node finishes starting up. It is closed when the test completes.
func SetupSession(t *testing.T) *gocql.Session {
	t.Helper()

	var (
		session *gocql.Session
		err     error
	)

	for deadline := time.Now().Add(2 * time.Minute); time.Now().Before(deadline); time.Sleep(2 * time.Second) {
		if session, err = database.NewSession(sessionConfig); err == nil {
			break
		}
	}

	require.NoError(t, err)

	t.Cleanup(session.Close)

	return session
}

// UniqueKeyspace returns a keyspace name no other test uses.
func UniqueKeyspace(prefix string) string {
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixNano()%1e6, keyspaceSeq.Add(1))
}

// CreateKeyspace creates keyspace with a single replica and drops it on cleanup.
func CreateKeyspace(t *testing.T, session *gocql.Session, keyspace string) {
	t.Helper()

	require.NoError(t, session.Query(
		`CREATE KEYSPACE `+keyspace+` WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1}`,
	).Exec())

	t.Cleanup(func() {
		_ = database.DropKeyspace(context.Background(), session, keyspace)
	})
}
