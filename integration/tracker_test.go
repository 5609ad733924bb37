//go:build integration

package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/cql-migration-engine/internal/tracker"
)

func TestTracker_fullLifecycle(t *testing.T) {
	session := SetupSession(t)
	ctx := context.Background()
	ks := UniqueKeyspace("tracker")
	CreateKeyspace(t, session, ks)

	tr := tracker.New(session, ks)

	exists, err := tr.TableExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	// EnsureTable creates the table and is idempotent.
	require.NoError(t, tr.EnsureTable(ctx))
	require.NoError(t, tr.EnsureTable(ctx))

	exists, err = tr.TableExists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	applied, err := tr.IsApplied(ctx, "001.cql")
	require.NoError(t, err)
	assert.False(t, applied)

	_, err = tr.ContentsDiffer(ctx, "001.cql", "abc")
	require.ErrorIs(t, err, tracker.ErrMigrationNotFound)

	require.NoError(t, tr.RecordApplied(ctx, tracker.RecordParams{Filename: "001.cql", Checksum: "abc"}))

	applied, err = tr.IsApplied(ctx, "001.cql")
	require.NoError(t, err)
	assert.True(t, applied)

	differ, err := tr.ContentsDiffer(ctx, "001.cql", "abc")
	require.NoError(t, err)
	assert.False(t, differ)

	differ, err = tr.ContentsDiffer(ctx, "001.cql", "def")
	require.NoError(t, err)
	assert.True(t, differ)

	// Records are never overwritten.
	err = tr.RecordApplied(ctx, tracker.RecordParams{Filename: "001.cql", Checksum: "def"})
	require.ErrorIs(t, err, tracker.ErrAlreadyRecorded)

	checksum, err := tr.GetChecksum(ctx, "001.cql")
	require.NoError(t, err)
	assert.Equal(t, "abc", checksum)

	require.NoError(t, tr.RecordApplied(ctx, tracker.RecordParams{Filename: "000.cql", Checksum: "xyz"}))

	all, err := tr.GetApplied(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "000.cql", all[0].Filename)
	assert.Equal(t, "001.cql", all[1].Filename)
	assert.False(t, all[0].AppliedOn.IsZero())
}
