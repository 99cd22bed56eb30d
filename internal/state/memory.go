package state

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store with the same versioning contract as
// the Postgres implementation. Used by tests and local runs without a
// database.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]DeliveryState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]DeliveryState)}
}

func (m *MemoryStore) Get(_ context.Context, eventID string) (DeliveryState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.records[eventID]
	if !ok {
		return DeliveryState{}, false, nil
	}
	return st.Clone(), true, nil
}

func (m *MemoryStore) Create(_ context.Context, eventID string, st DeliveryState) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[eventID]; ok {
		return 0, ErrConflict
	}
	stored := st.Clone()
	stored.Version = 1
	m.records[eventID] = stored
	return stored.Version, nil
}

func (m *MemoryStore) Update(_ context.Context, eventID string, version int64, st DeliveryState) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.records[eventID]
	if !ok {
		return 0, ErrNotFound
	}
	if current.Version != version {
		return 0, ErrConflict
	}
	stored := st.Clone()
	stored.Version = version + 1
	m.records[eventID] = stored
	return stored.Version, nil
}
