// Package store persists the device identity and the latest impatience
// record. Persistence is best-effort: a failing backend degrades to
// in-memory defaults and never fails the caller.
package store

import (
	"context"
	"sync"
)

// KV is the minimal durable key-value contract the store is built on.
// Implementations must survive process restarts; they are not required to
// survive a storage clear.
type KV interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes the value for key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error
}

// MemoryKV is an in-memory KV used in tests and as a conceptual fallback.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryKV creates an empty in-memory KV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

// Get implements KV.
func (m *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

// Set implements KV.
func (m *MemoryKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}
