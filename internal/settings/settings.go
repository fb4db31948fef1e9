// Package settings provides the durable key-value store behind the shell's
// synchronized state (theme, always-on-top, hotkey configuration). The
// production store is SQLite backed; MemoryStore serves tests and acts as a
// degraded-mode fallback when the database cannot be opened.
package settings

import "sync"

// Store is a flat durable key-value document.
type Store interface {
	// Get returns the stored value for key. ok is false when the key has
	// never been set; err is reserved for storage-level failures.
	Get(key string) (value string, ok bool, err error)
	// Set stores value under key, overwriting any previous value.
	Set(key, value string) error
	Close() error
}

// MemoryStore is an in-process Store. It never fails.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Close() error { return nil }
