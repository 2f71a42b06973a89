package repositories

import (
	"context"
	"sync"
	"time"
)

// MemoryIPLockoutStore is the single-node IP lockout store
type MemoryIPLockoutStore struct {
	mu    sync.Mutex
	locks map[string]time.Time
	now   func() time.Time
}

// NewMemoryIPLockoutStore creates a new MemoryIPLockoutStore. A nil clock uses time.Now.
func NewMemoryIPLockoutStore(now func() time.Time) *MemoryIPLockoutStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryIPLockoutStore{locks: make(map[string]time.Time), now: now}
}

func (s *MemoryIPLockoutStore) Get(_ context.Context, ip string) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.locks[ip]
	if !ok {
		return nil, nil
	}
	if !until.After(s.now()) {
		delete(s.locks, ip)
		return nil, nil
	}
	return &until, nil
}

func (s *MemoryIPLockoutStore) SetIfAbsent(_ context.Context, ip string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.locks[ip]; ok && existing.After(now) {
		return nil
	}
	if until.After(now) {
		s.locks[ip] = until
	}
	return nil
}

// Prune drops expired entries
func (s *MemoryIPLockoutStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	pruned := 0
	for ip, until := range s.locks {
		if !until.After(now) {
			delete(s.locks, ip)
			pruned++
		}
	}
	return pruned
}
