package database

import (
	"errors"

	"github.com/gocql/gocql"
)

// ErrNoContactPoints indicates no cluster hosts were configured.
var ErrNoContactPoints = errors.New("no contact points configured")

// ErrConnectionFailed indicates a session to the cluster could not be established.
var ErrConnectionFailed = errors.New("cluster connection failed")

// ErrInvalidKeyspace indicates a keyspace name that is not a valid unquoted CQL identifier.
var ErrInvalidKeyspace = errors.New("invalid keyspace name")

// ErrInvalidConsistency indicates an unknown consistency level name.
var ErrInvalidConsistency = errors.New("invalid consistency level")

// ErrLockAcquire indicates the migration lock could not be acquired.
var ErrLockAcquire = errors.New("acquiring migration lock")

// ErrLockRelease indicates the migration lock could not be released.
var ErrLockRelease = errors.New("releasing migration lock")

// ErrLockInUse indicates another client held the lock for the whole acquire timeout.
var ErrLockInUse = errors.New("lock currently in use")

// ErrNotLockHolder indicates a release was attempted by a client that does not hold the lock.
var ErrNotLockHolder = errors.New("attempted release by non-holder")

// IsWriteTimeout reports whether err leaves the outcome of a write unknown:
// either the coordinator timed out waiting for replicas, or no response
// arrived before the client timeout.
func IsWriteTimeout(err error) bool {
	if err == nil {
		return false
	}

	var wtp *gocql.RequestErrWriteTimeout
	if errors.As(err, &wtp) {
		return true
	}

	var wtv gocql.RequestErrWriteTimeout
	if errors.As(err, &wtv) {
		return true
	}

	return errors.Is(err, gocql.ErrTimeoutNoResponse)
}
