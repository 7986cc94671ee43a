package cache

import (
	"container/list"
	"sort"
	"time"
)

// Entry is a read-only view of a cached item
type Entry struct {
	Key            string         `json:"key"`
	Value          []byte         `json:"value"` // stored representation, compressed when Compressed
	Compressed     bool           `json:"compressed"`
	CreatedAt      time.Time      `json:"createdAt"`
	LastAccessedAt time.Time      `json:"lastAccessedAt"`
	ExpiresAt      time.Time      `json:"expiresAt"` // zero means never
	AccessCount    int64          `json:"accessCount"`
	Size           int64          `json:"size"`
	Priority       int            `json:"priority"`
	Tags           []string       `json:"tags,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// item is the store-owned entry plus its position in the access order
type item struct {
	Entry
	elem *list.Element
}

func (it *item) expired(now time.Time) bool {
	return !it.ExpiresAt.IsZero() && !now.Before(it.ExpiresAt)
}

func (it *item) hasAnyTag(tags map[string]struct{}) bool {
	for _, t := range it.Tags {
		if _, ok := tags[t]; ok {
			return true
		}
	}
	return false
}

// view copies the entry so callers never alias store memory
func (it *item) view() Entry {
	e := it.Entry
	e.Value = append([]byte(nil), it.Value...)
	e.Tags = append([]string(nil), it.Tags...)
	e.Metadata = cloneMetadata(it.Metadata)
	return e
}

func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// normalizeTags removes duplicates and empty tags
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func tagSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return set
}
