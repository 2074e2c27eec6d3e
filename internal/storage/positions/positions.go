// Package positions persists the account-independent open-position set that
// backs the duplicate-position gate.
package positions

import (
	"context"
	"sync"

	"github.com/ordinex/signalrelay/internal/domain"
)

// Store is the open-position set keyed by pair. One record per pair,
// regardless of how many accounts hold the position.
type Store interface {
	Get(ctx context.Context, pair domain.Pair) (*domain.PositionRecord, error)
	Set(ctx context.Context, rec domain.PositionRecord) error
	Delete(ctx context.Context, pair domain.Pair) error
	List(ctx context.Context) ([]domain.PositionRecord, error)
	Close() error
}

// MemoryStore keeps positions in process memory. Used for tests and the
// throwaway "memory" backend.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]domain.PositionRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]domain.PositionRecord)}
}

func (s *MemoryStore) Get(_ context.Context, pair domain.Pair) (*domain.PositionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[pair.String()]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryStore) Set(_ context.Context, rec domain.PositionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.Pair.String()] = rec
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, pair domain.Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, pair.String())
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]domain.PositionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PositionRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
