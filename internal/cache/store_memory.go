package cache

import (
	"context"
	"sync"
)

type memoryKey struct {
	notebookID string
	feature    FeatureType
}

// MemoryStore keeps entries in a map. Used for local runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[memoryKey]Entry
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[memoryKey]Entry)}
}

func (s *MemoryStore) Get(ctx context.Context, notebookID string, feature FeatureType) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[memoryKey{notebookID, feature}]
	if !ok {
		return nil, ErrNotFound
	}
	return &entry, nil
}

func (s *MemoryStore) Put(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memoryKey{entry.NotebookID, entry.FeatureType}
	if existing, ok := s.entries[key]; ok {
		entry.CreatedAt = existing.CreatedAt
	}
	s.entries[key] = entry
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, notebookID string, feature FeatureType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, memoryKey{notebookID, feature})
	return nil
}

func (s *MemoryStore) DeleteNotebook(ctx context.Context, notebookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.entries {
		if key.notebookID == notebookID {
			delete(s.entries, key)
		}
	}
	return nil
}
