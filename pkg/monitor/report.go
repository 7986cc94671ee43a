package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bitechdev/EndpointKit/pkg/logger"
	"github.com/bitechdev/EndpointKit/pkg/stats"
	"github.com/bitechdev/EndpointKit/pkg/tracing"
)

// Report thresholds for suggestions
const (
	suggestHitRateBelow   = 70.0
	suggestP95AboveMs     = 2000.0
	suggestHeapRatioAbove = 0.8
	suggestErrorRateAbove = 5.0
	maxSlowEndpoints      = 10
)

// RequestMetrics summarises request counters
type RequestMetrics struct {
	Total      int64   `json:"total"`
	Success    int64   `json:"success"`
	Failure    int64   `json:"failure"`
	Throughput float64 `json:"throughput"` // requests per second since the engine was created
	ErrorRate  float64 `json:"errorRate"`  // percentage
}

// CacheMetrics summarises the cache counters seen by the engine
type CacheMetrics struct {
	Hits         int64         `json:"hits"`
	Misses       int64         `json:"misses"`
	Evictions    int64         `json:"evictions"`
	HitRate      float64       `json:"hitRate"`      // percentage
	MissRate     float64       `json:"missRate"`     // percentage
	EvictionRate float64       `json:"evictionRate"` // evictions per second
	LookupTimeMs stats.Summary `json:"lookupTimeMs"`
}

// ResourceMetrics is the latest resource sample plus scheduler lag
type ResourceMetrics struct {
	ResourceSample
	EventLoopLagMs float64 `json:"eventLoopLagMs"`
}

// Snapshot is a consolidated view of the engine state
type Snapshot struct {
	Timestamp      time.Time       `json:"timestamp"`
	UptimeSeconds  float64         `json:"uptimeSeconds"`
	Requests       RequestMetrics  `json:"requests"`
	LatencyMs      stats.Summary   `json:"latencyMs"`
	ResponseSize   stats.Summary   `json:"responseSize"`
	Cache          CacheMetrics    `json:"cache"`
	Resources      ResourceMetrics `json:"resources"`
	ActiveMetrics  []string        `json:"activeMetrics"`
	PendingActions int             `json:"pendingActions"`
}

// GetMetrics reads current resource usage and combines it with the current
// histories and counters. Histories are not modified. Samplers implementing
// Peeker are peeked, and CPU then comes from the last sampler tick.
func (e *Engine) GetMetrics(ctx context.Context) Snapshot {
	var (
		sample ResourceSample
		err    error
	)
	peeker, peeked := e.sampler.(Peeker)
	if peeked {
		sample, err = peeker.Peek(ctx)
	} else {
		sample, err = e.sampler.Sample(ctx)
	}
	now := e.now()

	e.mu.RLock()
	if peeked {
		sample.CPU = e.lastResource.CPU
	}
	if err != nil && sample.TotalMem == 0 {
		// Keep OS figures from the last complete sample
		sample.CPU = e.lastResource.CPU
		sample.Memory = e.lastResource.Memory
		sample.RSS = e.lastResource.RSS
		sample.TotalMem = e.lastResource.TotalMem
	}

	elapsed := now.Sub(e.createdAt).Seconds()
	snap := Snapshot{
		Timestamp:     now,
		UptimeSeconds: elapsed,
		Requests: RequestMetrics{
			Total:   e.requests.total,
			Success: e.requests.success,
			Failure: e.requests.failure,
		},
		LatencyMs:    e.summaryLocked(MetricRequestDuration),
		ResponseSize: e.summaryLocked(MetricResponseSize),
		Cache: CacheMetrics{
			Hits:         e.cache.hits,
			Misses:       e.cache.misses,
			Evictions:    e.cache.evictions,
			LookupTimeMs: e.summaryLocked(MetricCacheLookup),
		},
		Resources: ResourceMetrics{
			ResourceSample: sample,
			EventLoopLagMs: e.lastLagMs,
		},
		ActiveMetrics: make([]string, 0, len(e.windows)),
	}
	for name := range e.windows {
		snap.ActiveMetrics = append(snap.ActiveMetrics, name)
	}
	e.mu.RUnlock()

	sort.Strings(snap.ActiveMetrics)
	snap.PendingActions = e.PendingActions()

	if elapsed > 0 {
		snap.Requests.Throughput = float64(snap.Requests.Total) / elapsed
		snap.Cache.EvictionRate = float64(snap.Cache.Evictions) / elapsed
	}
	if snap.Requests.Total > 0 {
		snap.Requests.ErrorRate = float64(snap.Requests.Failure) / float64(snap.Requests.Total) * 100
	}
	if lookups := snap.Cache.Hits + snap.Cache.Misses; lookups > 0 {
		snap.Cache.HitRate = float64(snap.Cache.Hits) / float64(lookups) * 100
		snap.Cache.MissRate = 100 - snap.Cache.HitRate
	}
	return snap
}

// EndpointReport describes one tracked endpoint
type EndpointReport struct {
	Endpoint  string  `json:"endpoint"`
	Requests  int64   `json:"requests"`
	Failures  int64   `json:"failures"`
	AvgMs     float64 `json:"avgMs"`
	P95Ms     float64 `json:"p95Ms"`
	MaxMs     float64 `json:"maxMs"`
	ErrorRate float64 `json:"errorRate"`
}

// Suggestion is a rule-based optimization hint
type Suggestion struct {
	Category string  `json:"category"`
	Metric   string  `json:"metric"`
	Value    float64 `json:"value"`
	Message  string  `json:"message"`
}

// Report wraps a snapshot with period statistics, slow endpoints and suggestions
type Report struct {
	ID            string                   `json:"id"`
	GeneratedAt   time.Time                `json:"generatedAt"`
	PeriodStart   time.Time                `json:"periodStart,omitempty"`
	PeriodEnd     time.Time                `json:"periodEnd,omitempty"`
	Metrics       Snapshot                 `json:"metrics"`
	Period        map[string]stats.Summary `json:"period"`
	SlowEndpoints []EndpointReport         `json:"slowEndpoints"`
	Suggestions   []Suggestion             `json:"suggestions"`
}

// GenerateReport builds a report over [start, end]. Zero times leave the
// period open on that side. When SaveReports is set and an adapter is
// attached the report is stored under "reports/<id>"; storage failures are
// logged, not returned.
func (e *Engine) GenerateReport(ctx context.Context, start, end time.Time) (*Report, error) {
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return nil, fmt.Errorf("monitor: report period ends (%s) before it starts (%s)", end, start)
	}

	ctx, span := tracing.StartSpan(ctx, "monitor.generate_report")
	defer span.End()

	report := &Report{
		ID:          uuid.New().String(),
		PeriodStart: start,
		PeriodEnd:   end,
		Metrics:     e.GetMetrics(ctx),
	}
	report.GeneratedAt = report.Metrics.Timestamp

	e.mu.RLock()
	report.Period = make(map[string]stats.Summary, len(e.windows))
	for name, w := range e.windows {
		samples := w.Between(start, end)
		values := make([]float64, len(samples))
		for i, s := range samples {
			values[i] = s.Value
		}
		report.Period[name] = stats.Summarize(values)
	}
	report.SlowEndpoints = e.slowEndpointsLocked()
	e.mu.RUnlock()

	report.Suggestions = suggest(report.Metrics)

	span.SetAttributes(
		attribute.String("monitor.report_id", report.ID),
		attribute.Int("monitor.suggestions", len(report.Suggestions)),
	)

	if e.cfg.SaveReports && e.adapter != nil {
		if err := e.saveReport(ctx, report); err != nil {
			tracing.RecordError(ctx, err)
			logger.Warn("Failed to store report %s: %v", report.ID, err)
		}
	}
	return report, nil
}

// ReportKey is the adapter key a report is stored under
func ReportKey(id string) string {
	return "reports/" + id
}

func (e *Engine) saveReport(ctx context.Context, r *Report) error {
	blob, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return e.adapter.Write(ctx, ReportKey(r.ID), blob)
}

func (e *Engine) slowEndpointsLocked() []EndpointReport {
	out := make([]EndpointReport, 0)
	for name, ep := range e.endpoints {
		s := ep.durations.Summary()
		if s.P95 <= e.cfg.SlowEndpointMs {
			continue
		}
		r := EndpointReport{
			Endpoint: name,
			Requests: ep.requests,
			Failures: ep.failures,
			AvgMs:    s.Avg,
			P95Ms:    s.P95,
			MaxMs:    s.Max,
		}
		if ep.requests > 0 {
			r.ErrorRate = float64(ep.failures) / float64(ep.requests) * 100
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].P95Ms != out[j].P95Ms {
			return out[i].P95Ms > out[j].P95Ms
		}
		return out[i].Endpoint < out[j].Endpoint
	})
	if len(out) > maxSlowEndpoints {
		out = out[:maxSlowEndpoints]
	}
	return out
}

func suggest(m Snapshot) []Suggestion {
	out := make([]Suggestion, 0)

	if lookups := m.Cache.Hits + m.Cache.Misses; lookups > 0 && m.Cache.HitRate < suggestHitRateBelow {
		out = append(out, Suggestion{
			Category: "cache",
			Metric:   MetricCacheHitRate,
			Value:    m.Cache.HitRate,
			Message:  fmt.Sprintf("Cache hit rate is %.1f%%. Consider longer TTLs or more stable cache keys.", m.Cache.HitRate),
		})
	}
	if m.LatencyMs.Count > 0 && m.LatencyMs.P95 > suggestP95AboveMs {
		out = append(out, Suggestion{
			Category: "latency",
			Metric:   MetricRequestDuration,
			Value:    m.LatencyMs.P95,
			Message:  fmt.Sprintf("p95 latency is %.0fms. Consider caching slow responses or optimizing the slowest endpoints.", m.LatencyMs.P95),
		})
	}
	if ratio := m.Resources.HeapRatio(); ratio > suggestHeapRatioAbove {
		out = append(out, Suggestion{
			Category: "memory",
			Metric:   MetricHeap,
			Value:    ratio,
			Message:  fmt.Sprintf("Heap usage is at %.0f%% of the reserved heap. Consider smaller cache budgets or leaner data structures.", ratio*100),
		})
	}
	if m.Requests.Total > 0 && m.Requests.ErrorRate > suggestErrorRateAbove {
		out = append(out, Suggestion{
			Category: "reliability",
			Metric:   "request.errorRate",
			Value:    m.Requests.ErrorRate,
			Message:  fmt.Sprintf("%.1f%% of requests failed. Check the failing endpoints.", m.Requests.ErrorRate),
		})
	}
	return out
}

func (e *Engine) summaryLocked(metric string) stats.Summary {
	w, ok := e.windows[metric]
	if !ok {
		return stats.Summary{}
	}
	return w.Summary()
}
