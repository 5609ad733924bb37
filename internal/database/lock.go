package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aqasim81/cql-migration-engine/internal/retry"
)

// Lock is a named mutex held on behalf of one client. A Lock value belongs
// to a single acquisition attempt and must not be shared between attempts.
type Lock interface {
	Name() string
	ClientID() string
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}

// Locker creates locks. An empty clientID gets a freshly generated identity.
type Locker interface {
	NewLock(name, clientID string) Lock
}

// AcquireLock creates a lock from locker and acquires it.
func AcquireLock(ctx context.Context, locker Locker, name, clientID string) (Lock, error) {
	lock := locker.NewLock(name, clientID)
	if err := lock.Acquire(ctx); err != nil {
		return nil, err
	}

	return lock, nil
}

// NewClientID returns a random client identity.
func NewClientID() string {
	return uuid.NewString()
}

// CASLocker creates locks that coordinate through conditional writes.
type CASLocker struct {
	store  LockStore
	policy retry.Policy
	logger zerolog.Logger
}

// NewCASLocker returns a Locker whose locks poll store according to policy.
func NewCASLocker(store LockStore, policy retry.Policy, logger zerolog.Logger) *CASLocker {
	return &CASLocker{store: store, policy: policy, logger: logger}
}

// NewLock implements Locker.
func (l *CASLocker) NewLock(name, clientID string) Lock {
	if clientID == "" {
		clientID = NewClientID()
	}

	return &CASLock{
		store:    l.store,
		policy:   l.policy,
		name:     name,
		clientID: clientID,
		logger: l.logger.With().
			Str("component", "migration_lock").
			Str("lock_name", name).
			Str("client_id", clientID).
			Logger(),
	}
}

// CASLock is a lock row created by a conditional insert and removed by a
// conditional delete.
type CASLock struct {
	store    LockStore
	policy   retry.Policy
	name     string
	clientID string
	logger   zerolog.Logger

	// releaseAmbiguous is set when the previous release attempt timed out
	// without a known outcome. It only affects the next release outcome.
	releaseAmbiguous bool
}

// Name implements Lock.
func (l *CASLock) Name() string { return l.name }

// ClientID implements Lock.
func (l *CASLock) ClientID() string { return l.clientID }

// Acquire polls until the lock row belongs to this client. A write timeout
// counts as not yet acquired; if the insert did land, the next attempt
// finds this client as the holder.
func (l *CASLock) Acquire(ctx context.Context) error {
	err := l.policy.Poll(ctx, l.tryAcquire)
	if err == nil {
		l.logger.Debug().Msg("lock acquired")

		return nil
	}

	if isTimeout(err) {
		return fmt.Errorf("%w %s: %w: %w", ErrLockAcquire, l.name, ErrLockInUse, err)
	}

	return fmt.Errorf("%w %s: %w", ErrLockAcquire, l.name, err)
}

func (l *CASLock) tryAcquire(ctx context.Context) (bool, error) {
	applied, holder, err := l.store.TryInsert(ctx, l.name, l.clientID)

	switch {
	case IsWriteTimeout(err):
		l.logger.Debug().Err(err).Msg("write timeout while acquiring; outcome unknown, retrying")

		return false, nil
	case err != nil:
		return false, err
	case applied:
		return true, nil
	case holder == l.clientID:
		l.logger.Debug().Msg("lock already held by this client")

		return true, nil
	default:
		l.logger.Debug().Str("holder", holder).Msg("lock held by another client, waiting")

		return false, nil
	}
}

// Release polls until the lock row no longer belongs to this client.
func (l *CASLock) Release(ctx context.Context) error {
	ambiguous := l.releaseAmbiguous

	err := l.policy.Poll(ctx, func(ctx context.Context) (bool, error) {
		applied, holder, opErr := l.store.TryDelete(ctx, l.name, l.clientID)

		o := releaseOutcome(l.clientID, ambiguous, applied, holder, opErr)
		ambiguous = o.ambiguous
		l.releaseAmbiguous = ambiguous

		if o.note != "" {
			l.logger.Debug().Err(opErr).Str("holder", holder).Msg(o.note)
		}

		return o.done, o.err
	})
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrLockRelease, l.name, err)
	}

	l.logger.Debug().Msg("lock released")

	return nil
}

type releaseResult struct {
	done      bool
	ambiguous bool
	err       error
	note      string
}

// releaseOutcome interprets one conditional delete. ambiguous is true when
// the previous attempt timed out, in which case a foreign holder may have
// legitimately taken over after our delete landed.
func releaseOutcome(clientID string, ambiguous, applied bool, holder string, err error) releaseResult {
	switch {
	case IsWriteTimeout(err):
		return releaseResult{ambiguous: true, note: "write timeout while releasing; outcome unknown, retrying"}
	case err != nil:
		return releaseResult{ambiguous: ambiguous, err: err}
	case applied:
		return releaseResult{done: true}
	case holder == "":
		return releaseResult{done: true, note: "lock row already gone"}
	case holder == clientID:
		return releaseResult{ambiguous: ambiguous, note: "delete not applied while still holder, retrying"}
	case ambiguous:
		return releaseResult{done: true, note: "lock taken over after an ambiguous release"}
	default:
		return releaseResult{err: fmt.Errorf("%w: held by %s", ErrNotLockHolder, holder)}
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, retry.ErrTimeout)
}

// NoopLocker hands out locks that never contend. Use it only where a single
// process is guaranteed to run migrations.
type NoopLocker struct{}

// NewLock implements Locker.
func (NoopLocker) NewLock(name, clientID string) Lock {
	if clientID == "" {
		clientID = NewClientID()
	}

	return &noopLock{name: name, clientID: clientID}
}

type noopLock struct {
	name     string
	clientID string
}

func (l *noopLock) Name() string                  { return l.name }
func (l *noopLock) ClientID() string              { return l.clientID }
func (l *noopLock) Acquire(context.Context) error { return nil }
func (l *noopLock) Release(context.Context) error { return nil }
