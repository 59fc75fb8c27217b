package memory

import (
	"context"
	"sync"

	"supply-controller/internal/storage"
)

// StateStore is an in-memory implementation of storage.StateStore.
type StateStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewStateStore creates a new in-memory state store.
func NewStateStore() *StateStore {
	return &StateStore{
		docs: make(map[string][]byte),
	}
}

// Compile-time interface check.
var _ storage.StateStore = (*StateStore)(nil)

// Get returns a copy of the document stored under key.
func (s *StateStore) Get(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), doc...), nil
}

// Put replaces the document stored under key.
func (s *StateStore) Put(_ context.Context, key string, value []byte) error {
	if key == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[key] = append([]byte(nil), value...)
	return nil
}

// PutBatch replaces several documents under a single lock.
func (s *StateStore) PutBatch(_ context.Context, docs map[string][]byte) error {
	for key := range docs {
		if key == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, value := range docs {
		s.docs[key] = append([]byte(nil), value...)
	}
	return nil
}

// Keys returns the number of stored documents.
func (s *StateStore) Keys() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
