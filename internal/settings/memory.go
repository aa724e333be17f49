package settings

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu      sync.Mutex
	current Settings
	loaded  bool
}

// NewMemoryStore constructs an in-memory settings store for tests and local
// development.
func NewMemoryStore() Store {
	return &memoryStore{}
}

func (s *memoryStore) Get(_ context.Context) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		s.current = Default()
		s.current.UpdatedAt = time.Now().UTC()
		s.loaded = true
	}
	return s.current, nil
}

func (s *memoryStore) Replace(_ context.Context, patch Patch) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		s.current = Default()
		s.loaded = true
	}
	s.current = s.current.merge(patch)
	s.current.UpdatedAt = time.Now().UTC()
	return s.current, nil
}
