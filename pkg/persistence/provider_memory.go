package persistence

import (
	"context"
	"sync"
)

// MemoryAdapter keeps blobs in process memory. Used in tests and when
// persistence is configured with the "memory" provider.
type MemoryAdapter struct {
	mu     sync.RWMutex
	blobs  map[string][]byte
	closed bool
}

// NewMemoryAdapter creates an empty in-memory adapter
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{blobs: make(map[string][]byte)}
}

// Read returns a copy of the blob stored under key
func (m *MemoryAdapter) Read(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, false, ErrClosed
	}
	blob, ok := m.blobs[key]
	if !ok {
		return nil, false, nil
	}
	return cloneBytes(blob), true, nil
}

// Write stores a copy of blob under key
func (m *MemoryAdapter) Write(ctx context.Context, key string, blob []byte) error {
	if key == "" {
		return ErrInvalidKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.blobs[key] = cloneBytes(blob)
	return nil
}

// Keys returns the stored keys in no particular order
func (m *MemoryAdapter) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.blobs))
	for k := range m.blobs {
		keys = append(keys, k)
	}
	return keys
}

// Close drops all blobs
func (m *MemoryAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.blobs = nil
	return nil
}
