package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Get when the key is absent or expired
	ErrNotFound = errors.New("cache: key not found")

	// ErrCapacityExhausted is returned when an entry can never fit the byte budget
	ErrCapacityExhausted = errors.New("cache: capacity exhausted")

	// ErrNoAdapter is returned by snapshot operations when no persistence adapter is attached
	ErrNoAdapter = errors.New("cache: no persistence adapter")

	// ErrClosed is returned by operations on a closed store
	ErrClosed = errors.New("cache: store closed")
)

// ConfigError reports an invalid store configuration
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("cache: invalid %s: %s", e.Field, e.Reason)
}
