package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/bitechdev/EndpointKit/pkg/logger"
	"github.com/bitechdev/EndpointKit/pkg/tracing"
)

const snapshotVersion = 1

// snapshot is the persisted form of a store
type snapshot struct {
	Version    int             `json:"version"`
	SavedAt    time.Time       `json:"savedAt"`
	Entries    []snapshotEntry `json:"entries"`
	Statistics Statistics      `json:"statistics"`
}

type snapshotEntry struct {
	Key            string         `json:"key"`
	Value          []byte         `json:"value"`
	Compressed     bool           `json:"compressed"`
	CreatedAt      time.Time      `json:"createdAt"`
	LastAccessedAt time.Time      `json:"lastAccessedAt"`
	ExpiresAt      *time.Time     `json:"expiresAt,omitempty"`
	AccessCount    int64          `json:"accessCount"`
	Priority       int            `json:"priority"`
	Tags           []string       `json:"tags,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// SaveToDisk writes every live entry, in access order, plus the current
// statistics through the persistence adapter
func (s *Store) SaveToDisk(ctx context.Context) error {
	if s.adapter == nil {
		return ErrNoAdapter
	}
	if s.closed.Load() {
		return ErrClosed
	}
	return s.save(ctx)
}

func (s *Store) save(ctx context.Context) error {
	if s.adapter == nil {
		return ErrNoAdapter
	}

	ctx, span := tracing.StartSpan(ctx, "cache.save_snapshot",
		attribute.String("cache.snapshot_key", s.cfg.PersistencePath))
	defer span.End()

	s.mu.Lock()
	now := s.now()
	snap := snapshot{
		Version: snapshotVersion,
		SavedAt: now,
		Entries: make([]snapshotEntry, 0, len(s.entries)),
	}
	for e := s.order.Front(); e != nil; e = e.Next() {
		it := e.Value.(*item)
		if it.expired(now) {
			continue
		}
		se := snapshotEntry{
			Key:            it.Key,
			Value:          it.Value,
			Compressed:     it.Compressed,
			CreatedAt:      it.CreatedAt,
			LastAccessedAt: it.LastAccessedAt,
			AccessCount:    it.AccessCount,
			Priority:       it.Priority,
			Tags:           it.Tags,
			Metadata:       it.Metadata,
		}
		if !it.ExpiresAt.IsZero() {
			exp := it.ExpiresAt
			se.ExpiresAt = &exp
		}
		snap.Entries = append(snap.Entries, se)
	}
	snap.Statistics = s.counters.statistics(len(s.entries), s.totalSize, s.cfg.MaxSize)
	// Marshal under the lock: entries share their Value slices with the store
	blob, err := json.Marshal(snap)
	s.mu.Unlock()
	if err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("failed to encode cache snapshot: %w", err)
	}

	span.SetAttributes(attribute.Int("cache.snapshot_entries", len(snap.Entries)))
	if err := s.adapter.Write(ctx, s.cfg.PersistencePath, blob); err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("failed to write cache snapshot: %w", err)
	}
	logger.Debug("Saved cache snapshot with %d entries to %s", len(snap.Entries), s.cfg.PersistencePath)
	return nil
}

// LoadFromDisk restores entries from the snapshot, skipping expired ones.
// Entries are appended in file order, so the saved access order is kept.
// A missing snapshot is not an error.
func (s *Store) LoadFromDisk(ctx context.Context) error {
	if s.adapter == nil {
		return ErrNoAdapter
	}

	ctx, span := tracing.StartSpan(ctx, "cache.load_snapshot",
		attribute.String("cache.snapshot_key", s.cfg.PersistencePath))
	defer span.End()

	blob, ok, err := s.adapter.Read(ctx, s.cfg.PersistencePath)
	if err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("failed to read cache snapshot: %w", err)
	}
	if !ok {
		return nil
	}

	var snap snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("failed to decode cache snapshot: %w", err)
	}

	s.mu.Lock()
	now := s.now()
	restored, skipped := 0, 0
	var evicted []string
	for _, se := range snap.Entries {
		if se.ExpiresAt != nil && !now.Before(*se.ExpiresAt) {
			skipped++
			continue
		}
		size := int64(len(se.Value))
		if size > s.cfg.MaxSize || (se.Compressed && s.codec == nil) {
			skipped++
			continue
		}
		if prev, exists := s.entries[se.Key]; exists {
			s.removeLocked(prev)
		}
		evicted = append(evicted, s.ensureCapacityLocked(size)...)

		it := &item{Entry: Entry{
			Key:            se.Key,
			Value:          se.Value,
			Compressed:     se.Compressed,
			CreatedAt:      se.CreatedAt,
			LastAccessedAt: se.LastAccessedAt,
			AccessCount:    se.AccessCount,
			Size:           size,
			Priority:       se.Priority,
			Tags:           normalizeTags(se.Tags),
			Metadata:       se.Metadata,
		}}
		if se.ExpiresAt != nil {
			it.ExpiresAt = *se.ExpiresAt
		}
		s.insertLocked(it)
		restored++
	}
	s.mu.Unlock()

	s.notifyEvicted(evicted)
	span.SetAttributes(
		attribute.Int("cache.snapshot_restored", restored),
		attribute.Int("cache.snapshot_skipped", skipped),
	)
	logger.Info("Restored %d cache entries from %s (%d skipped)", restored, s.cfg.PersistencePath, skipped)
	return nil
}

// autoSave persists a snapshot every interval until the store is closed.
// Failures are logged and retried on the next tick.
func (s *Store) autoSave(interval time.Duration) {
	defer s.wg.Done()
	defer logger.CatchPanic("cache.autoSave")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.save(context.Background()); err != nil {
				logger.Warn("Cache auto-save failed: %v", err)
			}
		case <-s.stopCh:
			return
		}
	}
}
