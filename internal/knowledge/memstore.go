package knowledge

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonathan/diagram-weaver/internal/types"
)

// MemStore is an in-process knowledge store used when no database is
// configured, and as the test double. Semantics mirror PGStore: one keyed
// entry per pattern, last write wins, append-only audit.
type MemStore struct {
	mu       sync.Mutex
	keyed    map[string]types.Solution
	auditLog []types.Solution
}

// NewMemStore creates an empty in-memory knowledge store.
func NewMemStore() *MemStore {
	return &MemStore{keyed: make(map[string]types.Solution)}
}

// Upsert writes a solution, replacing any existing entry for the pattern.
func (s *MemStore) Upsert(_ context.Context, pattern, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sol := types.Solution{Pattern: pattern, Summary: summary, UpdatedAt: time.Now()}
	s.keyed[pattern] = sol
	s.auditLog = append(s.auditLog, sol)
	return nil
}

// RecentSolutions returns up to k entries, most recently written first.
func (s *MemStore) RecentSolutions(_ context.Context, k int) ([]types.Solution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.Solution, 0, len(s.keyed))
	for _, sol := range s.keyed {
		out = append(out, sol)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// MatchSolutions prefers an exact match on the diagnostic's pattern key.
func (s *MemStore) MatchSolutions(ctx context.Context, diagnostic string, k int) ([]types.Solution, error) {
	key := PatternKey(diagnostic)

	s.mu.Lock()
	sol, ok := s.keyed[key]
	s.mu.Unlock()

	if ok {
		return []types.Solution{sol}, nil
	}
	return s.RecentSolutions(ctx, k)
}

// AuditLen reports the number of audit entries recorded.
func (s *MemStore) AuditLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.auditLog)
}

// Len reports the number of keyed entries.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keyed)
}
