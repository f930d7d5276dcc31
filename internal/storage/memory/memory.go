// Package memory provides an in-process storage.Store, used by tests and the
// "memory" storage driver.
package memory

import (
	"context"
	"maps"
	"sync"

	"kidchat/internal/storage"
)

// Store implements storage.Store using a map guarded by a RWMutex
type Store struct {
	mu     sync.RWMutex
	data   map[string]string
	closed bool
}

// New creates an empty in-memory store
func New() *Store {
	return &Store{data: make(map[string]string)}
}

// Get returns the value for key
func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", false, storage.ErrClosed
	}
	v, ok := s.data[key]
	return v, ok, nil
}

// Set stores a single value
func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}
	s.data[key] = value
	return nil
}

// MultiSet stores all pairs under one lock acquisition
func (s *Store) MultiSet(_ context.Context, pairs []storage.KV) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}
	for _, p := range pairs {
		s.data[p.Key] = p.Value
	}
	return nil
}

// Remove deletes key; missing keys are not an error
func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}
	delete(s.data, key)
	return nil
}

// MultiRemove deletes every key under one lock acquisition
func (s *Store) MultiRemove(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

// Snapshot returns a copy of the stored data
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.data)
}

// Len returns the number of stored keys
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Close marks the store closed; later calls fail with storage.ErrClosed
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Verify interface compliance.
var _ storage.Store = (*Store)(nil)
