// Package persistence provides key to blob storage backends used for cache
// snapshots and monitoring reports.
package persistence

import (
	"context"
	"errors"
)

// ErrInvalidKey is returned when a key cannot be mapped onto the backend
var ErrInvalidKey = errors.New("persistence: invalid key")

// ErrClosed is returned by adapters that have been closed
var ErrClosed = errors.New("persistence: adapter closed")

// Adapter is an opaque snapshot store. Blobs are written and read whole.
type Adapter interface {
	// Read returns the blob stored under key.
	// Returns nil, false, nil when nothing is stored.
	Read(ctx context.Context, key string) ([]byte, bool, error)

	// Write stores blob under key, replacing any previous blob.
	Write(ctx context.Context, key string, blob []byte) error

	// Close releases any resources held by the adapter.
	Close() error
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
