package gateway

import (
	"context"
	"sync"
)

// MemoryStore implements SessionStore in process memory. Sessions are lost on
// restart and are not shared between gateway instances.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Record
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Record),
	}
}

func (s *MemoryStore) Create(ctx context.Context, rec *Record) error {
	if err := rec.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *rec
	s.sessions[rec.ID] = &clone

	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.sessions[id]
	if !exists {
		return nil, ErrSessionNotFound
	}

	if rec.IsExpired() {
		return nil, ErrSessionExpired
	}

	clone := *rec
	return &clone, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[id]; !exists {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)

	return nil
}

func (s *MemoryStore) DeleteExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, rec := range s.sessions {
		if rec.IsExpired() {
			delete(s.sessions, id)
			count++
		}
	}

	return count, nil
}
