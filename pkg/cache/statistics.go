package cache

import (
	"time"

	"github.com/bitechdev/EndpointKit/pkg/stats"
)

// latencyWindowSize bounds the lookup latency samples kept for percentiles
const latencyWindowSize = 1000

// MemoryUsage reports the byte budget
type MemoryUsage struct {
	Used       int64   `json:"used"`
	Limit      int64   `json:"limit"`
	Percentage float64 `json:"percentage"`
}

// Statistics is a point-in-time view of the store counters
type Statistics struct {
	Entries               int         `json:"entries"`
	TotalSize             int64       `json:"totalSize"`
	Hits                  int64       `json:"hits"`
	Misses                int64       `json:"misses"`
	HitRate               float64     `json:"hitRate"` // percentage
	Evictions             int64       `json:"evictions"`
	AvgAccessTimeMs       float64     `json:"avgAccessTimeMs"`
	P95AccessTimeMs       float64     `json:"p95AccessTimeMs"`
	MemoryUsage           MemoryUsage `json:"memoryUsage"`
	CapacityErrors        int64       `json:"capacityErrors"`
	Compressions          int64       `json:"compressions"`
	DecompressionFailures int64       `json:"decompressionFailures"`
	Expirations           int64       `json:"expirations"`
}

// counters are the raw numbers statistics are derived from
type counters struct {
	hits                  int64
	misses                int64
	evictions             int64
	capacityErrors        int64
	compressions          int64
	decompressionFailures int64
	expirations           int64
	lookups               int64
	lookupTotalMs         float64
	latency               *stats.Window
}

func newCounters() counters {
	return counters{latency: stats.NewWindow(latencyWindowSize)}
}

func (c *counters) recordLookup(hit bool, d time.Duration, at time.Time) {
	if hit {
		c.hits++
	} else {
		c.misses++
	}
	ms := float64(d) / float64(time.Millisecond)
	c.lookups++
	c.lookupTotalMs += ms
	c.latency.Add(at, ms)
}

func (c *counters) statistics(entries int, totalSize, maxSize int64) Statistics {
	s := Statistics{
		Entries:               entries,
		TotalSize:             totalSize,
		Hits:                  c.hits,
		Misses:                c.misses,
		Evictions:             c.evictions,
		CapacityErrors:        c.capacityErrors,
		Compressions:          c.compressions,
		DecompressionFailures: c.decompressionFailures,
		Expirations:           c.expirations,
		MemoryUsage: MemoryUsage{
			Used:  totalSize,
			Limit: maxSize,
		},
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total) * 100
	}
	if c.lookups > 0 {
		s.AvgAccessTimeMs = c.lookupTotalMs / float64(c.lookups)
		s.P95AccessTimeMs = c.latency.Summary().P95
	}
	if maxSize > 0 {
		s.MemoryUsage.Percentage = float64(totalSize) / float64(maxSize) * 100
	}
	return s
}
