package channel

import (
	"context"
	"errors"
	"maps"
	"sync"
)

// Store is the shared key-value backend the channel talks to. Values are
// scalars: float64, bool or string (integers are accepted on write).
// Get reports found=false for a missing key without an error.
type Store interface {
	Get(ctx context.Context, key string) (value any, found bool, err error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// errStoreDown is returned by a MemoryStore that has been taken offline.
var errStoreDown = errors.New("memory store is down")

// MemoryStore is an in-process Store. It backs the "memory" channel backend
// for local dry runs and stands in for the remote side in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]any
	down   bool
	sets   int
}

// NewMemoryStore creates an empty, reachable store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]any)}
}

// SetDown toggles simulated unreachability. While down every call fails.
func (m *MemoryStore) SetDown(down bool) {
	m.mu.Lock()
	m.down = down
	m.mu.Unlock()
}

func (m *MemoryStore) Get(ctx context.Context, key string) (any, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.down {
		return nil, false, errStoreDown
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errStoreDown
	}
	m.values[key] = value
	m.sets++
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errStoreDown
	}
	delete(m.values, key)
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.down {
		return errStoreDown
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// Put sets a value directly, ignoring the down toggle. Tests use it to play
// the remote side.
func (m *MemoryStore) Put(key string, value any) {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
}

// Value returns a stored value directly, ignoring the down toggle.
func (m *MemoryStore) Value(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

// Remove deletes a key directly, ignoring the down toggle.
func (m *MemoryStore) Remove(key string) {
	m.mu.Lock()
	delete(m.values, key)
	m.mu.Unlock()
}

// SetCount returns how many Set calls succeeded.
func (m *MemoryStore) SetCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sets
}

// Dump returns a copy of every stored value.
func (m *MemoryStore) Dump() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.values)
}
