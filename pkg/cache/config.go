package cache

import (
	"strings"
	"time"

	"github.com/bitechdev/EndpointKit/pkg/config"
	"github.com/bitechdev/EndpointKit/pkg/persistence"
)

// EvictionPolicy selects which entry is removed when the store is over budget
type EvictionPolicy string

const (
	PolicyLRU      EvictionPolicy = "lru"
	PolicyLFU      EvictionPolicy = "lfu"
	PolicyFIFO     EvictionPolicy = "fifo"
	PolicyTTL      EvictionPolicy = "ttl"
	PolicySize     EvictionPolicy = "size"
	PolicyPriority EvictionPolicy = "priority"
)

func (p EvictionPolicy) valid() bool {
	switch p {
	case PolicyLRU, PolicyLFU, PolicyFIFO, PolicyTTL, PolicySize, PolicyPriority:
		return true
	}
	return false
}

// Config holds the store configuration
type Config struct {
	// MaxSize is the byte budget over stored representations
	MaxSize int64

	// MaxEntries is the entry-count budget
	MaxEntries int

	// DefaultTTL applies when Set is called without WithTTL. 0 means never expire.
	DefaultTTL time.Duration

	EvictionPolicy EvictionPolicy

	// Compression enables zstd for values larger than CompressionThreshold bytes
	Compression          bool
	CompressionThreshold int

	// Persistent restores a snapshot at construction and saves periodically
	Persistent       bool
	PersistencePath  string
	AutoSaveInterval time.Duration

	// CollectStats enables hit/miss and lookup latency tracking
	CollectStats bool
}

// DefaultConfig returns the configuration used when nothing is specified
func DefaultConfig() Config {
	return Config{
		MaxSize:              100 * 1024 * 1024,
		MaxEntries:           1000,
		DefaultTTL:           time.Hour,
		EvictionPolicy:       PolicyLRU,
		Compression:          true,
		CompressionThreshold: 1024,
		PersistencePath:      "cache/snapshot.json",
		AutoSaveInterval:     5 * time.Minute,
		CollectStats:         true,
	}
}

// FromConfig converts the application configuration section
func FromConfig(c config.CacheConfig) Config {
	return Config{
		MaxSize:              c.MaxSize,
		MaxEntries:           c.MaxEntries,
		DefaultTTL:           c.DefaultTTL,
		EvictionPolicy:       EvictionPolicy(strings.ToLower(c.EvictionPolicy)),
		Compression:          c.Compression,
		CompressionThreshold: c.CompressionThreshold,
		Persistent:           c.Persistent,
		PersistencePath:      c.PersistencePath,
		AutoSaveInterval:     c.AutoSaveInterval,
		CollectStats:         c.CollectStats,
	}
}

func (c Config) validate(adapter persistence.Adapter) error {
	if c.MaxSize <= 0 {
		return &ConfigError{Field: "MaxSize", Reason: "must be positive"}
	}
	if c.MaxEntries <= 0 {
		return &ConfigError{Field: "MaxEntries", Reason: "must be positive"}
	}
	if c.DefaultTTL < 0 {
		return &ConfigError{Field: "DefaultTTL", Reason: "must not be negative"}
	}
	if !c.EvictionPolicy.valid() {
		return &ConfigError{Field: "EvictionPolicy", Reason: "unknown policy " + string(c.EvictionPolicy)}
	}
	if c.CompressionThreshold < 0 {
		return &ConfigError{Field: "CompressionThreshold", Reason: "must not be negative"}
	}
	if c.AutoSaveInterval < 0 {
		return &ConfigError{Field: "AutoSaveInterval", Reason: "must not be negative"}
	}
	if c.Persistent {
		if adapter == nil {
			return &ConfigError{Field: "Persistent", Reason: "requires a persistence adapter"}
		}
		if c.PersistencePath == "" {
			return &ConfigError{Field: "PersistencePath", Reason: "required when persistent"}
		}
	}
	return nil
}

// Option configures optional collaborators of a Store
type Option func(*Store)

// WithAdapter attaches the snapshot backend
func WithAdapter(adapter persistence.Adapter) Option {
	return func(s *Store) {
		s.adapter = adapter
	}
}

// WithClock replaces time.Now for expiry and timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithAccessObserver registers a callback invoked after every lookup,
// outside the store lock
func WithAccessObserver(fn func(hit bool, lookup time.Duration)) Option {
	return func(s *Store) {
		s.onAccess = fn
	}
}

// WithEvictionObserver registers a callback invoked once per evicted entry,
// outside the store lock
func WithEvictionObserver(fn func(key string)) Option {
	return func(s *Store) {
		s.onEvict = fn
	}
}

// SetOption configures a single Set call
type SetOption func(*setOptions)

type setOptions struct {
	ttl      time.Duration
	ttlSet   bool
	priority int
	tags     []string
	metadata map[string]any
}

// WithTTL sets the entry lifetime. 0 means the entry never expires.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) {
		o.ttl = ttl
		o.ttlSet = true
	}
}

// WithPriority sets the entry priority. Higher values are kept longer by the
// priority policy.
func WithPriority(priority int) SetOption {
	return func(o *setOptions) {
		o.priority = priority
	}
}

// WithTags attaches tags used by GetByTags and DeleteByTags
func WithTags(tags ...string) SetOption {
	return func(o *setOptions) {
		o.tags = append(o.tags, tags...)
	}
}

// WithMetadata attaches an opaque metadata bag
func WithMetadata(metadata map[string]any) SetOption {
	return func(o *setOptions) {
		o.metadata = metadata
	}
}
