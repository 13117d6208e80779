package state

import (
	"context"
	"sync"
	"time"
)

// StateStore holds short-lived keys, used to make notification enqueues idempotent
type StateStore interface {
	// SetIfAbsent stores key and reports true only for the first caller
	SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// sweepInterval bounds how often a write scans for expired keys
const sweepInterval = time.Minute

// MemoryStore is an in-process StateStore. Expired keys are pruned on write,
// at most once per sweepInterval.
type MemoryStore struct {
	mu        sync.Mutex
	keys      map[string]time.Time
	now       func() time.Time
	nextSweep time.Time
}

// NewMemoryStore returns an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys: make(map[string]time.Time),
		now:  time.Now,
	}
}

// pruneLocked drops expired keys. Callers hold mu.
func (s *MemoryStore) pruneLocked(now time.Time) {
	if now.Before(s.nextSweep) {
		return
	}
	for k, exp := range s.keys {
		if !exp.IsZero() && !now.Before(exp) {
			delete(s.keys, k)
		}
	}
	s.nextSweep = now.Add(sweepInterval)
}

func (s *MemoryStore) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.pruneLocked(now)
	if exp, ok := s.keys[key]; ok && (exp.IsZero() || now.Before(exp)) {
		return false, nil
	}

	var exp time.Time
	if ttl > 0 {
		exp = now.Add(ttl)
	}
	s.keys[key] = exp
	return true, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.keys, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of live keys
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for _, exp := range s.keys {
		if exp.IsZero() || now.Before(exp) {
			n++
		}
	}
	return n
}

func (s *MemoryStore) Close() error { return nil }
