package store

import (
	"context"
	"fmt"
	"sync"

	"ragbridge/types"
)

// MemoryStore keeps collections in process. It backs tests and single-node
// experiments; nothing survives a restart.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	dimension int
	entries   map[int64]localEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryCollection)}
}

func (m *MemoryStore) Exists(_ context.Context, collection string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.collections[collection]
	return ok, nil
}

func (m *MemoryStore) Create(_ context.Context, collection string, dimension int, distance types.Distance) error {
	if err := checkLocalCreate(collection, dimension, distance); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[collection]; ok {
		return nil
	}
	m.collections[collection] = &memoryCollection{
		dimension: dimension,
		entries:   make(map[int64]localEntry),
	}
	return nil
}

func (m *MemoryStore) Upsert(_ context.Context, collection string, entries []types.CollectionEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[collection]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrCollectionNotFound, collection)
	}
	if err := checkDimensions(c.dimension, entries); err != nil {
		return err
	}
	for _, e := range entries {
		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		c.entries[e.ID] = localEntry{id: e.ID, name: e.Name, vector: vec}
	}
	return nil
}

func (m *MemoryStore) Query(_ context.Context, collection string, vector []float32, topK int) ([]types.SearchMatch, error) {
	if err := checkTopK(topK); err != nil {
		return nil, err
	}

	m.mu.RLock()
	c, ok := m.collections[collection]
	if !ok {
		m.mu.RUnlock()
		return nil, fmt.Errorf("%w: %s", types.ErrCollectionNotFound, collection)
	}
	entries := make([]localEntry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	dimension := c.dimension
	m.mu.RUnlock()

	return rankLocal(dimension, entries, vector, topK)
}

// Len reports how many entries a collection holds, 0 when it does not exist.
func (m *MemoryStore) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.collections[collection]; ok {
		return len(c.entries)
	}
	return 0
}

func (m *MemoryStore) Close() error { return nil }
