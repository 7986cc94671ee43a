// Package cache implements a bounded in-process store with TTL, tagging,
// pluggable eviction, optional compression and snapshot persistence.
package cache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bitechdev/EndpointKit/pkg/logger"
	"github.com/bitechdev/EndpointKit/pkg/persistence"
)

// Store is a bounded key/value cache. It is safe for concurrent use.
type Store struct {
	cfg     Config
	adapter persistence.Adapter
	codec   *codec
	now     func() time.Time

	onAccess func(hit bool, lookup time.Duration)
	onEvict  func(key string)

	mu         sync.Mutex
	entries    map[string]*item
	order      *list.List // access order, least recently used at the front
	totalSize  int64
	defaultTTL time.Duration
	counters   counters

	stopCh  chan struct{}
	wg      sync.WaitGroup
	closed  atomic.Bool
	closeMu sync.Mutex
}

// WarmUpItem is one value preloaded by WarmUp
type WarmUpItem struct {
	Key     string
	Value   any
	Options []SetOption
}

// New creates a store. When cfg.Persistent is set, the snapshot at
// cfg.PersistencePath is restored and auto-save starts.
func New(cfg Config, opts ...Option) (*Store, error) {
	s := &Store{
		cfg:        cfg,
		now:        time.Now,
		entries:    make(map[string]*item),
		order:      list.New(),
		defaultTTL: cfg.DefaultTTL,
		counters:   newCounters(),
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := cfg.validate(s.adapter); err != nil {
		return nil, err
	}

	if cfg.Compression {
		c, err := newCodec()
		if err != nil {
			return nil, err
		}
		s.codec = c
	}

	if cfg.Persistent {
		if err := s.LoadFromDisk(context.Background()); err != nil {
			logger.Warn("Failed to restore cache snapshot from %s: %v", cfg.PersistencePath, err)
		}
		if cfg.AutoSaveInterval > 0 {
			s.wg.Add(1)
			go s.autoSave(cfg.AutoSaveInterval)
		}
	}

	return s, nil
}

// Get looks up key and decodes the JSON value into dest
func (s *Store) Get(ctx context.Context, key string, dest any) error {
	data, ok := s.GetBytes(ctx, key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to deserialize %s: %w", key, err)
	}
	return nil
}

// GetBytes returns the raw value stored under key. Expired entries are
// removed and reported as absent.
func (s *Store) GetBytes(ctx context.Context, key string) ([]byte, bool) {
	start := time.Now()

	s.mu.Lock()
	now := s.now()
	var value []byte
	it, hit := s.entries[key]
	if hit && it.expired(now) {
		s.removeLocked(it)
		s.counters.expirations++
		hit = false
	}
	if hit {
		if it.Compressed {
			raw, err := s.codec.decompress(it.Value)
			if err != nil {
				s.removeLocked(it)
				s.counters.decompressionFailures++
				hit = false
			} else {
				value = raw
			}
		} else {
			value = append([]byte(nil), it.Value...)
		}
	}
	if hit {
		it.LastAccessedAt = now
		it.AccessCount++
		s.order.MoveToBack(it.elem)
	}
	elapsed := time.Since(start)
	if s.cfg.CollectStats {
		s.counters.recordLookup(hit, elapsed, now)
	}
	s.mu.Unlock()

	if s.onAccess != nil {
		s.onAccess(hit, elapsed)
	}
	return value, hit
}

// Set stores value serialized as JSON
func (s *Store) Set(ctx context.Context, key string, value any, opts ...SetOption) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", key, err)
	}
	return s.SetBytes(ctx, key, data, opts...)
}

// SetBytes stores raw under key, replacing any previous entry. Entries that
// could never fit the byte budget are rejected with ErrCapacityExhausted.
func (s *Store) SetBytes(ctx context.Context, key string, raw []byte, opts ...SetOption) error {
	if s.closed.Load() {
		return ErrClosed
	}

	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}

	stored, compressed := raw, false
	if s.codec != nil {
		stored, compressed = s.codec.maybeCompress(raw, s.cfg.CompressionThreshold)
	}
	if !compressed {
		stored = append([]byte(nil), raw...)
	}
	size := int64(len(stored))

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return ErrClosed
	}
	if size > s.cfg.MaxSize {
		s.counters.capacityErrors++
		s.mu.Unlock()
		return fmt.Errorf("%w: %s needs %d bytes, limit is %d", ErrCapacityExhausted, key, size, s.cfg.MaxSize)
	}

	now := s.now()
	ttl := s.defaultTTL
	if o.ttlSet {
		ttl = o.ttl
	}

	if prev, ok := s.entries[key]; ok {
		s.removeLocked(prev)
	}
	evicted := s.ensureCapacityLocked(size)

	it := &item{Entry: Entry{
		Key:            key,
		Value:          stored,
		Compressed:     compressed,
		CreatedAt:      now,
		LastAccessedAt: now,
		Size:           size,
		Priority:       o.priority,
		Tags:           normalizeTags(o.tags),
		Metadata:       cloneMetadata(o.metadata),
	}}
	if ttl > 0 {
		it.ExpiresAt = now.Add(ttl)
	}
	s.insertLocked(it)
	if compressed {
		s.counters.compressions++
	}
	s.mu.Unlock()

	s.notifyEvicted(evicted)
	return nil
}

// Delete removes key and reports whether it was present
func (s *Store) Delete(ctx context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.entries[key]
	if !ok {
		return false
	}
	s.removeLocked(it)
	return true
}

// Has reports whether a live entry exists. It does not touch recency or counters.
func (s *Store) Has(ctx context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.entries[key]
	if !ok {
		return false
	}
	if it.expired(s.now()) {
		s.removeLocked(it)
		s.counters.expirations++
		return false
	}
	return true
}

// Clear removes every entry. Counters are kept.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*item)
	s.order.Init()
	s.totalSize = 0
}

// Keys returns the live keys, least recently used first
func (s *Store) Keys(ctx context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpiredLocked()
	keys := make([]string, 0, len(s.entries))
	for e := s.order.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(*item).Key)
	}
	return keys
}

// Len returns the number of entries, including ones not yet lazily expired
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// GetByTags returns the values of live entries carrying any of tags
func (s *Store) GetByTags(ctx context.Context, tags ...string) map[string][]byte {
	want := tagSet(tags)
	out := make(map[string][]byte)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for e := s.order.Front(); e != nil; {
		it := e.Value.(*item)
		e = e.Next()

		if !it.hasAnyTag(want) {
			continue
		}
		if it.expired(now) {
			s.removeLocked(it)
			s.counters.expirations++
			continue
		}
		if !it.Compressed {
			out[it.Key] = append([]byte(nil), it.Value...)
			continue
		}
		raw, err := s.codec.decompress(it.Value)
		if err != nil {
			s.removeLocked(it)
			s.counters.decompressionFailures++
			continue
		}
		out[it.Key] = raw
	}
	return out
}

// DeleteByTags removes every entry carrying any of tags and returns the count
func (s *Store) DeleteByTags(ctx context.Context, tags ...string) int {
	want := tagSet(tags)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for e := s.order.Front(); e != nil; {
		it := e.Value.(*item)
		e = e.Next()
		if it.hasAnyTag(want) {
			s.removeLocked(it)
			removed++
		}
	}
	return removed
}

// WarmUp sets every item in order. Items are independent: a failure does
// not roll back earlier ones. The returned error joins all item failures.
func (s *Store) WarmUp(ctx context.Context, items []WarmUpItem) error {
	var errs []error
	for _, wi := range items {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.Set(ctx, wi.Key, wi.Value, wi.Options...); err != nil {
			errs = append(errs, fmt.Errorf("warm up %s: %w", wi.Key, err))
		}
	}
	return errors.Join(errs...)
}

// Entry returns a copy of the entry stored under key without touching recency
func (s *Store) Entry(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.entries[key]
	if !ok || it.expired(s.now()) {
		return Entry{}, false
	}
	return it.view(), true
}

// Stats returns the current statistics
func (s *Store) Stats() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters.statistics(len(s.entries), s.totalSize, s.cfg.MaxSize)
}

// Policy returns the active eviction policy
func (s *Store) Policy() EvictionPolicy {
	return s.cfg.EvictionPolicy
}

// DefaultTTL returns the TTL applied when Set has no WithTTL option
func (s *Store) DefaultTTL() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultTTL
}

// SetDefaultTTL changes the TTL for subsequent Sets. Existing entries keep
// their expiry.
func (s *Store) SetDefaultTTL(ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	s.mu.Lock()
	s.defaultTTL = ttl
	s.mu.Unlock()
}

// Close rejects further writes, stops auto-save, writes a final snapshot
// when persistent and releases all entries. Every Set that returned nil
// before Close is in the final snapshot. Calling Close more than once is a no-op.
func (s *Store) Close(ctx context.Context) error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	if s.closed.Load() {
		return nil
	}

	// Flipped under mu so no write can land between the flag and the snapshot
	s.mu.Lock()
	s.closed.Store(true)
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	var err error
	if s.cfg.Persistent {
		err = s.save(ctx)
	}

	s.mu.Lock()
	s.entries = make(map[string]*item)
	s.order.Init()
	s.totalSize = 0
	s.mu.Unlock()

	if s.codec != nil {
		s.codec.close()
	}
	return err
}

// GenerateKey derives a deterministic key from the JSON encoding of value.
// Map keys are sorted by encoding/json, so equal maps give equal keys.
func GenerateKey(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to serialize key material: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func (s *Store) insertLocked(it *item) {
	it.elem = s.order.PushBack(it)
	s.entries[it.Key] = it
	s.totalSize += it.Size
}

func (s *Store) removeLocked(it *item) {
	s.order.Remove(it.elem)
	delete(s.entries, it.Key)
	s.totalSize -= it.Size
}

func (s *Store) purgeExpiredLocked() int {
	now := s.now()
	removed := 0
	for e := s.order.Front(); e != nil; {
		it := e.Value.(*item)
		e = e.Next()
		if it.expired(now) {
			s.removeLocked(it)
			s.counters.expirations++
			removed++
		}
	}
	return removed
}

func (s *Store) notifyEvicted(keys []string) {
	if s.onEvict == nil {
		return
	}
	for _, k := range keys {
		s.onEvict(k)
	}
}
