package evalcache

import (
	"context"
	"sync"
	"time"

	"github.com/flagops/flagservice/internal/rollout"
)

type memoryEntry struct {
	eval      rollout.Evaluation
	expiresAt time.Time
}

// MemoryStore implements an in-memory TTL cache for evaluation results.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	nowFn   func() time.Time
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		nowFn:   time.Now,
	}
}

// Get returns a cached evaluation when present and unexpired.
func (s *MemoryStore) Get(_ context.Context, flagName, userID string) (*rollout.Evaluation, bool, error) {
	if s == nil {
		return nil, false, nil
	}
	key := cacheKey(flagName, userID)
	now := s.nowFn()

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if now.After(entry.expiresAt) {
		delete(s.entries, key)
		return nil, false, nil
	}
	eval := entry.eval
	return &eval, true, nil
}

// Set stores an evaluation with the given TTL.
func (s *MemoryStore) Set(_ context.Context, eval *rollout.Evaluation, ttl time.Duration) error {
	if s == nil || eval == nil || ttl <= 0 {
		return nil
	}
	key := cacheKey(eval.FlagName, eval.UserID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{
		eval:      *eval,
		expiresAt: s.nowFn().Add(ttl),
	}
	return nil
}

// Invalidate removes a single cached evaluation.
func (s *MemoryStore) Invalidate(_ context.Context, flagName, userID string) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, cacheKey(flagName, userID))
	return nil
}

// InvalidateAll drops every cached evaluation.
func (s *MemoryStore) InvalidateAll(_ context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]memoryEntry)
	return nil
}

// Len reports the number of cached entries, expired ones included.
func (s *MemoryStore) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
