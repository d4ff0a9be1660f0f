package gate

import (
	"context"
	"sync"
	"time"

	"github.com/kitbox/kitbox/internal/db"
)

// MemoryLockoutStore holds lockout state in process memory. It applies the
// same transition rules as the durable store and exists for single-replica
// deployments and tests.
type MemoryLockoutStore struct {
	mu    sync.Mutex
	now   func() time.Time
	items map[string]db.LockoutState
}

// NewMemoryLockoutStore creates an empty in-memory lockout store.
func NewMemoryLockoutStore() *MemoryLockoutStore {
	return &MemoryLockoutStore{
		now:   time.Now,
		items: make(map[string]db.LockoutState),
	}
}

// GetLockout returns the state for key; a missing key is Open(0).
func (s *MemoryLockoutStore) GetLockout(_ context.Context, key string) (*db.LockoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.items[key]; ok {
		copied := st
		return &copied, nil
	}
	return &db.LockoutState{Key: key}, nil
}

// RecordLockoutFailure applies one failed attempt under the store lock:
// expired locks reset to Open(0) first, and reaching maxAttempts failures
// locks the key.
func (s *MemoryLockoutStore) RecordLockoutFailure(_ context.Context, key string, maxAttempts int, lockout time.Duration) (*db.LockoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	st := s.items[key]
	st.Key = key

	if st.LockedUntil != nil && !now.Before(*st.LockedUntil) {
		st.FailureCount = 0
		st.LockedUntil = nil
	}

	if st.LockedUntil == nil {
		st.FailureCount++
		if st.FailureCount >= maxAttempts {
			until := now.Add(lockout)
			st.LockedUntil = &until
		}
	}

	s.items[key] = st
	copied := st
	return &copied, nil
}

// ResetLockout clears key back to Open(0).
func (s *MemoryLockoutStore) ResetLockout(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}
