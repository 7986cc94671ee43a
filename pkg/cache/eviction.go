package cache

import (
	"context"
	"math"
	"time"
)

// ensureCapacityLocked evicts until required more bytes and one more entry
// fit. It returns the evicted keys.
func (s *Store) ensureCapacityLocked(required int64) []string {
	var evicted []string
	for s.totalSize+required > s.cfg.MaxSize {
		key, ok := s.evictOneLocked()
		if !ok {
			s.counters.capacityErrors++
			break
		}
		evicted = append(evicted, key)
	}
	for len(s.entries) >= s.cfg.MaxEntries {
		key, ok := s.evictOneLocked()
		if !ok {
			s.counters.capacityErrors++
			break
		}
		evicted = append(evicted, key)
	}
	return evicted
}

func (s *Store) evictOneLocked() (string, bool) {
	victim := s.victimLocked()
	if victim == nil {
		return "", false
	}
	s.removeLocked(victim)
	s.counters.evictions++
	return victim.Key, true
}

// victimLocked selects one entry by the active policy. Candidates are visited
// least recently used first and the first one seen wins ties.
func (s *Store) victimLocked() *item {
	front := s.order.Front()
	if front == nil {
		return nil
	}
	if s.cfg.EvictionPolicy == PolicyLRU {
		return front.Value.(*item)
	}

	var victim *item
	for e := front; e != nil; e = e.Next() {
		it := e.Value.(*item)
		switch s.cfg.EvictionPolicy {
		case PolicyLFU:
			if victim == nil || it.AccessCount < victim.AccessCount {
				victim = it
			}
		case PolicyFIFO:
			if victim == nil || it.CreatedAt.Before(victim.CreatedAt) {
				victim = it
			}
		case PolicyTTL:
			if it.ExpiresAt.IsZero() {
				continue
			}
			if victim == nil || it.ExpiresAt.Before(victim.ExpiresAt) {
				victim = it
			}
		case PolicySize:
			if victim == nil || it.Size > victim.Size {
				victim = it
			}
		case PolicyPriority:
			if victim == nil || it.Priority < victim.Priority {
				victim = it
			}
		}
	}
	if victim == nil {
		// ttl policy with no expiring entries falls back to lru
		return front.Value.(*item)
	}
	return victim
}

// Shed evicts ceil(fraction * entries) entries using the active policy and
// returns how many were removed. A fraction >= 1 empties the store.
func (s *Store) Shed(ctx context.Context, fraction float64) int {
	if fraction <= 0 || math.IsNaN(fraction) {
		return 0
	}

	s.mu.Lock()
	n := len(s.entries)
	if fraction < 1 {
		n = int(math.Ceil(float64(n) * fraction))
	}
	evicted := make([]string, 0, n)
	for i := 0; i < n; i++ {
		key, ok := s.evictOneLocked()
		if !ok {
			break
		}
		evicted = append(evicted, key)
	}
	s.mu.Unlock()

	s.notifyEvicted(evicted)
	return len(evicted)
}

// EvictExpired removes every expired entry and returns the count
func (s *Store) EvictExpired(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purgeExpiredLocked()
}

// EvictOlderThan removes entries not accessed within age and returns the count
func (s *Store) EvictOlderThan(ctx context.Context, age time.Duration) int {
	s.mu.Lock()
	cutoff := s.now().Add(-age)
	var evicted []string
	for e := s.order.Front(); e != nil; {
		it := e.Value.(*item)
		e = e.Next()
		if it.LastAccessedAt.Before(cutoff) {
			s.removeLocked(it)
			s.counters.evictions++
			evicted = append(evicted, it.Key)
		}
	}
	s.mu.Unlock()

	s.notifyEvicted(evicted)
	return len(evicted)
}
