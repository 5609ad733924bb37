package database

import (
	"context"
	"sync"

	"github.com/gocql/gocql"
)

// memLockStore is a linearizable in-memory LockStore. Hooks run before the
// real operation and may replace its result.
type memLockStore struct {
	mu      sync.Mutex
	rows    map[string]string
	inserts int
	deletes int

	// beforeInsert/beforeDelete return (override, applyAnyway, err). When
	// override is true the hook's err is returned; applyAnyway still
	// performs the write first, simulating a timeout after the write landed.
	beforeInsert func(n int) (override, applyAnyway bool, err error)
	beforeDelete func(n int) (override, applyAnyway bool, err error)
}

func newMemLockStore() *memLockStore {
	return &memLockStore{rows: make(map[string]string)}
}

func (s *memLockStore) TryInsert(_ context.Context, name, client string) (bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inserts++

	if s.beforeInsert != nil {
		if override, apply, err := s.beforeInsert(s.inserts); override {
			if _, held := s.rows[name]; apply && !held {
				s.rows[name] = client
			}

			return false, "", err
		}
	}

	if holder, ok := s.rows[name]; ok {
		return false, holder, nil
	}

	s.rows[name] = client

	return true, "", nil
}

func (s *memLockStore) TryDelete(_ context.Context, name, client string) (bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deletes++

	if s.beforeDelete != nil {
		if override, apply, err := s.beforeDelete(s.deletes); override {
			if apply && s.rows[name] == client {
				delete(s.rows, name)
			}

			return false, "", err
		}
	}

	holder, ok := s.rows[name]
	if !ok {
		return false, "", nil
	}

	if holder != client {
		return false, holder, nil
	}

	delete(s.rows, name)

	return true, "", nil
}

func (s *memLockStore) ForceDelete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rows, name)

	return nil
}

func (s *memLockStore) Holder(_ context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rows[name], nil
}

func (s *memLockStore) set(name, client string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows[name] = client
}

func (s *memLockStore) holder(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rows[name]
}

func writeTimeout() error {
	return &gocql.RequestErrWriteTimeout{WriteType: "CAS"}
}
