package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcacheAdapter stores blobs as Memcache items.
// Memcache rejects items above its slab limit (1MB by default), so it only
// suits small snapshots and reports.
type MemcacheAdapter struct {
	client    *memcache.Client
	keyPrefix string
}

// MemcacheConfig contains Memcache-specific configuration.
type MemcacheConfig struct {
	// Servers is a list of memcache server addresses (e.g., "localhost:11211")
	Servers []string

	// MaxIdleConns is the maximum number of idle connections (default: 2)
	MaxIdleConns int

	// Timeout for connections (default: 100ms)
	Timeout time.Duration

	// KeyPrefix is prepended to every key
	KeyPrefix string
}

// NewMemcacheAdapter creates a Memcache adapter and verifies the servers respond
func NewMemcacheAdapter(config *MemcacheConfig) (*MemcacheAdapter, error) {
	if config == nil {
		config = &MemcacheConfig{}
	}
	if len(config.Servers) == 0 {
		config.Servers = []string{"localhost:11211"}
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 2
	}
	if config.Timeout == 0 {
		config.Timeout = 100 * time.Millisecond
	}

	client := memcache.New(config.Servers...)
	client.MaxIdleConns = config.MaxIdleConns
	client.Timeout = config.Timeout

	if err := client.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to Memcache: %w", err)
	}

	return &MemcacheAdapter{client: client, keyPrefix: config.KeyPrefix}, nil
}

func (m *MemcacheAdapter) key(key string) (string, error) {
	k := m.keyPrefix + key
	if key == "" || len(k) > 250 || strings.ContainsAny(k, " \t\r\n") {
		return "", fmt.Errorf("%w: %q is not a valid memcache key", ErrInvalidKey, key)
	}
	return k, nil
}

// Read fetches the item stored under key
func (m *MemcacheAdapter) Read(ctx context.Context, key string) ([]byte, bool, error) {
	k, err := m.key(key)
	if err != nil {
		return nil, false, err
	}

	item, err := m.client.Get(k)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s from Memcache: %w", key, err)
	}
	return item.Value, true, nil
}

// Write stores blob under key without expiry
func (m *MemcacheAdapter) Write(ctx context.Context, key string, blob []byte) error {
	k, err := m.key(key)
	if err != nil {
		return err
	}

	if err := m.client.Set(&memcache.Item{Key: k, Value: blob}); err != nil {
		return fmt.Errorf("failed to write %s to Memcache: %w", key, err)
	}
	return nil
}

// Close releases the adapter. Idle connections are reaped by the client.
func (m *MemcacheAdapter) Close() error {
	return nil
}
