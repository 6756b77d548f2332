package repository

import (
	"context"
	"sync"
)

// MemoryStore keeps vectors for the lifetime of the process.
type MemoryStore struct {
	mu    sync.RWMutex
	pools map[string]map[string]float64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pools: make(map[string]map[string]float64)}
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, pool string) (map[string]float64, error) {
	if err := validPool(pool); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	luck, ok := s.pools[pool]
	if !ok {
		return nil, ErrNotFound
	}
	return copyLuck(luck), nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, pool string, luck map[string]float64) error {
	if err := validPool(pool); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[pool] = copyLuck(luck)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
