package store

import (
	"context"
	"sync"

	"github.com/ajitpratap0/prepdash/pkg/dataset"
)

// MemoryStore keeps snapshots in process memory. Snapshots are immutable,
// so they are stored and returned without copying.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[Handle]*dataset.Dataset
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[Handle]*dataset.Dataset)}
}

// Create implements Store.
func (m *MemoryStore) Create(_ context.Context, ds *dataset.Dataset) (Handle, error) {
	h := NewHandle()
	m.mu.Lock()
	m.data[h] = ds
	m.mu.Unlock()
	return h, nil
}

// Commit implements Store.
func (m *MemoryStore) Commit(_ context.Context, h Handle, ds *dataset.Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[h]; !ok {
		return notFound(h)
	}
	m.data[h] = ds
	return nil
}

// Current implements Store.
func (m *MemoryStore) Current(_ context.Context, h Handle) (*dataset.Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ds, ok := m.data[h]
	if !ok {
		return nil, notFound(h)
	}
	return ds, nil
}

// Touch implements Store. Memory snapshots never expire.
func (m *MemoryStore) Touch(context.Context, ...Handle) error { return nil }

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, h Handle) error {
	m.mu.Lock()
	delete(m.data, h)
	m.mu.Unlock()
	return nil
}

// Len returns the number of handles held.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }
