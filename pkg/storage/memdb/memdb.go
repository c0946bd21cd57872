// Package memdb is an in-process implementation of storage.Backend, suitable
// for development, testing, and single-instance deployments that don't need
// durability across restarts.
package memdb

import (
	"context"
	"strings"
	"sync"

	"github.com/lexlapax/llmspell/pkg/storage"
)

type tenantKey struct {
	tenant string
	key    string
}

// Store is a thread-safe in-memory storage.Backend.
type Store struct {
	mu   sync.RWMutex
	data map[tenantKey]storage.Entry
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{data: make(map[tenantKey]storage.Entry)}
}

func (s *Store) Get(ctx context.Context, tenant, key string) (storage.Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[tenantKey{tenant, key}]
	return e, ok, nil
}

func (s *Store) Set(ctx context.Context, tenant, key string, entry storage.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[tenantKey{tenant, key}] = entry
	return nil
}

func (s *Store) Delete(ctx context.Context, tenant, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := tenantKey{tenant, key}
	_, existed := s.data[k]
	delete(s.data, k)
	return existed, nil
}

func (s *Store) List(ctx context.Context, tenant, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.data {
		if k.tenant != tenant {
			continue
		}
		if strings.HasPrefix(k.key, prefix) {
			keys = append(keys, k.key)
		}
	}
	return keys, nil
}

func (s *Store) Close() error {
	return nil
}
