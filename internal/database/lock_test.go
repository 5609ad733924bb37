package database

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/cql-migration-engine/internal/retry"
)

const testLock = "schema_migration:app"

func fastPolicy() retry.Policy {
	return retry.New(time.Millisecond, 2*time.Second)
}

func newTestLocker(store LockStore, policy retry.Policy) *CASLocker {
	return NewCASLocker(store, policy, zerolog.Nop())
}

func TestCASLock_acquire_freeLock(t *testing.T) {
	t.Parallel()

	store := newMemLockStore()
	lock := newTestLocker(store, fastPolicy()).NewLock(testLock, "client-a")

	require.NoError(t, lock.Acquire(context.Background()))
	assert.Equal(t, "client-a", store.holder(testLock))
}

func TestCASLock_acquire_generatesClientID(t *testing.T) {
	t.Parallel()

	locker := newTestLocker(newMemLockStore(), fastPolicy())

	a := locker.NewLock(testLock, "")
	b := locker.NewLock(testLock, "")

	assert.NotEmpty(t, a.ClientID())
	assert.NotEqual(t, a.ClientID(), b.ClientID())
	assert.Equal(t, testLock, a.Name())
}

func TestCASLock_acquire_reentrantForSameClient(t *testing.T) {
	t.Parallel()

	store := newMemLockStore()
	store.set(testLock, "client-a")

	lock := newTestLocker(store, fastPolicy()).NewLock(testLock, "client-a")

	require.NoError(t, lock.Acquire(context.Background()))
	assert.Equal(t, 1, store.inserts)
}

func TestCASLock_acquire_heldByOther_timesOut(t *testing.T) {
	t.Parallel()

	store := newMemLockStore()
	store.set(testLock, "client-b")

	lock := newTestLocker(store, retry.New(50*time.Millisecond, 300*time.Millisecond)).NewLock(testLock, "client-a")

	err := lock.Acquire(context.Background())

	require.ErrorIs(t, err, ErrLockAcquire)
	require.ErrorIs(t, err, ErrLockInUse)
	require.ErrorIs(t, err, retry.ErrTimeout)
	assert.GreaterOrEqual(t, store.inserts, 4)
	assert.LessOrEqual(t, store.inserts, 8)
	assert.Equal(t, "client-b", store.holder(testLock))
}

func TestCASLock_acquire_writeTimeoutThenLanded_acquires(t *testing.T) {
	t.Parallel()

	store := newMemLockStore()
	store.beforeInsert = func(n int) (bool, bool, error) {
		return n == 1, true, writeTimeout()
	}

	lock := newTestLocker(store, fastPolicy()).NewLock(testLock, "client-a")

	require.NoError(t, lock.Acquire(context.Background()))
	assert.Equal(t, 2, store.inserts)
	assert.Equal(t, "client-a", store.holder(testLock))
}

func TestCASLock_acquire_writeTimeoutNotLanded_retries(t *testing.T) {
	t.Parallel()

	store := newMemLockStore()
	store.beforeInsert = func(n int) (bool, bool, error) {
		return n <= 2, false, writeTimeout()
	}

	lock := newTestLocker(store, fastPolicy()).NewLock(testLock, "client-a")

	require.NoError(t, lock.Acquire(context.Background()))
	assert.Equal(t, 3, store.inserts)
}

func TestCASLock_acquire_storageFailure_notRetried(t *testing.T) {
	t.Parallel()

	boom := errors.New("unavailable")
	store := newMemLockStore()
	store.beforeInsert = func(int) (bool, bool, error) { return true, false, boom }

	lock := newTestLocker(store, fastPolicy()).NewLock(testLock, "client-a")

	err := lock.Acquire(context.Background())

	require.ErrorIs(t, err, ErrLockAcquire)
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrLockInUse)
	assert.Equal(t, 1, store.inserts)
}

func TestCASLock_acquire_cancelled(t *testing.T) {
	t.Parallel()

	store := newMemLockStore()
	store.set(testLock, "client-b")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	lock := newTestLocker(store, retry.New(10*time.Millisecond, time.Hour)).NewLock(testLock, "client-a")

	err := lock.Acquire(ctx)

	require.ErrorIs(t, err, ErrLockAcquire)
	require.ErrorIs(t, err, retry.ErrCancelled)
	assert.NotErrorIs(t, err, retry.ErrTimeout)
}

func TestCASLock_acquire_unconfiguredPolicy(t *testing.T) {
	t.Parallel()

	lock := newTestLocker(newMemLockStore(), retry.Policy{}).NewLock(testLock, "client-a")

	err := lock.Acquire(context.Background())

	require.ErrorIs(t, err, ErrLockAcquire)
	require.ErrorIs(t, err, retry.ErrNotConfigured)
}

func TestCASLock_release_holder(t *testing.T) {
	t.Parallel()

	store := newMemLockStore()
	lock := newTestLocker(store, fastPolicy()).NewLock(testLock, "client-a")
	require.NoError(t, lock.Acquire(context.Background()))

	require.NoError(t, lock.Release(context.Background()))
	assert.Empty(t, store.holder(testLock))
}

func TestCASLock_release_noRow_succeeds(t *testing.T) {
	t.Parallel()

	store := newMemLockStore()
	lock := newTestLocker(store, fastPolicy()).NewLock(testLock, "client-a")

	require.NoError(t, lock.Release(context.Background()))
	require.NoError(t, lock.Release(context.Background()))
}

func TestCASLock_release_nonHolder_fails(t *testing.T) {
	t.Parallel()

	store := newMemLockStore()
	store.set(testLock, "client-b")

	lock := newTestLocker(store, fastPolicy()).NewLock(testLock, "client-a")

	err := lock.Release(context.Background())

	require.ErrorIs(t, err, ErrLockRelease)
	require.ErrorIs(t, err, ErrNotLockHolder)
	assert.Equal(t, 1, store.deletes)
	assert.Equal(t, "client-b", store.holder(testLock))
}

func TestCASLock_release_writeTimeoutThenTakenOver_succeeds(t *testing.T) {
	t.Parallel()

	store := newMemLockStore()
	lock := newTestLocker(store, fastPolicy()).NewLock(testLock, "client-a")
	require.NoError(t, lock.Acquire(context.Background()))

	// The first delete lands but reports a timeout, and another client
	// takes the lock before the retry. Hooks run with store.mu held.
	store.beforeDelete = func(n int) (bool, bool, error) {
		if n != 1 {
			return false, false, nil
		}

		store.rows[testLock] = "client-b"

		return true, false, writeTimeout()
	}

	require.NoError(t, lock.Release(context.Background()))
	assert.Equal(t, "client-b", store.holder(testLock))
	assert.Equal(t, 2, store.deletes)
}

func TestCASLock_release_ambiguityIsConsumedOnce(t *testing.T) {
	t.Parallel()

	store := newMemLockStore()
	store.set(testLock, "client-b")

	lock := newTestLocker(store, fastPolicy()).NewLock(testLock, "client-a")
	cas, ok := lock.(*CASLock)
	require.True(t, ok)

	cas.releaseAmbiguous = true

	require.NoError(t, lock.Release(context.Background()))
	assert.False(t, cas.releaseAmbiguous)

	err := lock.Release(context.Background())
	require.ErrorIs(t, err, ErrNotLockHolder)
}

func TestCASLock_release_ambiguityIsPerInstance(t *testing.T) {
	t.Parallel()

	store := newMemLockStore()
	store.set(testLock, "client-b")

	locker := newTestLocker(store, fastPolicy())

	first, ok := locker.NewLock(testLock, "client-a").(*CASLock)
	require.True(t, ok)

	first.releaseAmbiguous = true

	second := locker.NewLock(testLock, "client-a")

	err := second.Release(context.Background())
	require.ErrorIs(t, err, ErrNotLockHolder)
}

func TestCASLock_release_storageFailure_notRetried(t *testing.T) {
	t.Parallel()

	boom := errors.New("unavailable")
	store := newMemLockStore()
	store.beforeDelete = func(int) (bool, bool, error) { return true, false, boom }

	lock := newTestLocker(store, fastPolicy()).NewLock(testLock, "client-a")

	err := lock.Release(context.Background())

	require.ErrorIs(t, err, ErrLockRelease)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, store.deletes)
}

func TestCASLock_release_cancelled(t *testing.T) {
	t.Parallel()

	store := newMemLockStore()
	store.beforeDelete = func(int) (bool, bool, error) { return true, false, writeTimeout() }

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	lock := newTestLocker(store, retry.New(10*time.Millisecond, time.Hour)).NewLock(testLock, "client-a")

	err := lock.Release(ctx)

	require.ErrorIs(t, err, ErrLockRelease)
	require.ErrorIs(t, err, retry.ErrCancelled)
}

func TestCASLock_concurrentAcquirers_mutualExclusion(t *testing.T) {
	t.Parallel()

	const n = 8

	store := newMemLockStore()
	locker := newTestLocker(store, retry.New(time.Millisecond, 10*time.Second))

	var (
		holders  int32
		maxSeen  int32
		acquired int32
		wg       sync.WaitGroup
	)

	for i := 0; i < n; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			lock, err := AcquireLock(context.Background(), locker, testLock, "")
			if !assert.NoError(t, err) {
				return
			}

			cur := atomic.AddInt32(&holders, 1)
			for {
				prev := atomic.LoadInt32(&maxSeen)
				if cur <= prev || atomic.CompareAndSwapInt32(&maxSeen, prev, cur) {
					break
				}
			}

			assert.Equal(t, lock.ClientID(), store.holder(testLock))
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&holders, -1)
			atomic.AddInt32(&acquired, 1)

			assert.NoError(t, lock.Release(context.Background()))
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), maxSeen)
	assert.Equal(t, int32(n), acquired)
	assert.Empty(t, store.holder(testLock))
}

func TestReleaseOutcome(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")

	tests := []struct {
		name          string
		ambiguous     bool
		applied       bool
		holder        string
		err           error
		wantDone      bool
		wantAmbiguous bool
		wantErr       error
	}{
		{name: "applied", applied: true, wantDone: true},
		{name: "no row", wantDone: true},
		{name: "foreign holder", holder: "other", wantErr: ErrNotLockHolder},
		{name: "foreign holder after ambiguity", ambiguous: true, holder: "other", wantDone: true},
		{name: "write timeout sets ambiguity", err: writeTimeout(), wantAmbiguous: true},
		{name: "write timeout keeps ambiguity", ambiguous: true, err: writeTimeout(), wantAmbiguous: true},
		{name: "storage failure", err: boom, wantErr: boom},
		{name: "still holder retries", holder: "me"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := releaseOutcome("me", tt.ambiguous, tt.applied, tt.holder, tt.err)

			assert.Equal(t, tt.wantDone, got.done)
			assert.Equal(t, tt.wantAmbiguous, got.ambiguous)

			if tt.wantErr != nil {
				require.ErrorIs(t, got.err, tt.wantErr)
			} else {
				require.NoError(t, got.err)
			}
		})
	}
}

func TestNoopLocker(t *testing.T) {
	t.Parallel()

	lock, err := AcquireLock(context.Background(), NoopLocker{}, testLock, "")

	require.NoError(t, err)
	assert.NotEmpty(t, lock.ClientID())
	assert.Equal(t, testLock, lock.Name())
	require.NoError(t, lock.Release(context.Background()))
}
