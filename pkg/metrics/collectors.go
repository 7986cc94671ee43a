package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bitechdev/EndpointKit/pkg/cache"
	"github.com/bitechdev/EndpointKit/pkg/monitor"
)

// snapshotTimeout bounds the resource sample taken per scrape
const snapshotTimeout = 2 * time.Second

// CacheStatsSource is satisfied by *cache.Store
type CacheStatsSource interface {
	Stats() cache.Statistics
}

// EngineSource is satisfied by *monitor.Engine
type EngineSource interface {
	GetMetrics(ctx context.Context) monitor.Snapshot
}

// cacheCollector exports cache statistics at scrape time
type cacheCollector struct {
	source CacheStatsSource

	entries    *prometheus.Desc
	bytes      *prometheus.Desc
	limitBytes *prometheus.Desc
	hitRate    *prometheus.Desc
	capErrors  *prometheus.Desc
	expired    *prometheus.Desc
}

func newCacheCollector(ns string, source CacheStatsSource) *cacheCollector {
	return &cacheCollector{
		source:     source,
		entries:    prometheus.NewDesc(prometheus.BuildFQName(ns, "cache", "entries"), "Number of live cache entries", nil, nil),
		bytes:      prometheus.NewDesc(prometheus.BuildFQName(ns, "cache", "size_bytes"), "Stored bytes of live cache entries", nil, nil),
		limitBytes: prometheus.NewDesc(prometheus.BuildFQName(ns, "cache", "limit_bytes"), "Configured cache byte budget", nil, nil),
		hitRate:    prometheus.NewDesc(prometheus.BuildFQName(ns, "cache", "hit_ratio"), "Cache hit rate as a percentage", nil, nil),
		capErrors:  prometheus.NewDesc(prometheus.BuildFQName(ns, "cache", "capacity_errors_total"), "Sets rejected for lack of capacity", nil, nil),
		expired:    prometheus.NewDesc(prometheus.BuildFQName(ns, "cache", "expirations_total"), "Entries removed on expiry", nil, nil),
	}
}

func (c *cacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entries
	ch <- c.bytes
	ch <- c.limitBytes
	ch <- c.hitRate
	ch <- c.capErrors
	ch <- c.expired
}

func (c *cacheCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stats()
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(s.Entries))
	ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.GaugeValue, float64(s.TotalSize))
	ch <- prometheus.MustNewConstMetric(c.limitBytes, prometheus.GaugeValue, float64(s.MemoryUsage.Limit))
	ch <- prometheus.MustNewConstMetric(c.hitRate, prometheus.GaugeValue, s.HitRate)
	ch <- prometheus.MustNewConstMetric(c.capErrors, prometheus.CounterValue, float64(s.CapacityErrors))
	ch <- prometheus.MustNewConstMetric(c.expired, prometheus.CounterValue, float64(s.Expirations))
}

// engineCollector exports the engine snapshot at scrape time
type engineCollector struct {
	source EngineSource

	resource   *prometheus.Desc
	lag        *prometheus.Desc
	throughput *prometheus.Desc
	errorRate  *prometheus.Desc
	latency    *prometheus.Desc
	pending    *prometheus.Desc
}

func newEngineCollector(ns string, source EngineSource) *engineCollector {
	return &engineCollector{
		source:     source,
		resource:   prometheus.NewDesc(prometheus.BuildFQName(ns, "monitor", "resource_percent"), "Sampled resource usage as a percentage", []string{"resource"}, nil),
		lag:        prometheus.NewDesc(prometheus.BuildFQName(ns, "monitor", "scheduler_lag_ms"), "Delay of the last sampling tick in milliseconds", nil, nil),
		throughput: prometheus.NewDesc(prometheus.BuildFQName(ns, "monitor", "throughput_rps"), "Requests per second since start", nil, nil),
		errorRate:  prometheus.NewDesc(prometheus.BuildFQName(ns, "monitor", "error_ratio"), "Failed requests as a percentage", nil, nil),
		latency:    prometheus.NewDesc(prometheus.BuildFQName(ns, "monitor", "latency_ms"), "Request latency over the history window", []string{"quantile"}, nil),
		pending:    prometheus.NewDesc(prometheus.BuildFQName(ns, "monitor", "pending_actions"), "Delayed strategy actions not yet emitted", nil, nil),
	}
}

func (c *engineCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.resource
	ch <- c.lag
	ch <- c.throughput
	ch <- c.errorRate
	ch <- c.latency
	ch <- c.pending
}

func (c *engineCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()
	s := c.source.GetMetrics(ctx)

	ch <- prometheus.MustNewConstMetric(c.resource, prometheus.GaugeValue, s.Resources.CPU, "cpu")
	ch <- prometheus.MustNewConstMetric(c.resource, prometheus.GaugeValue, s.Resources.Memory, "memory")
	ch <- prometheus.MustNewConstMetric(c.resource, prometheus.GaugeValue, s.Resources.Heap, "heap")
	ch <- prometheus.MustNewConstMetric(c.lag, prometheus.GaugeValue, s.Resources.EventLoopLagMs)
	ch <- prometheus.MustNewConstMetric(c.throughput, prometheus.GaugeValue, s.Requests.Throughput)
	ch <- prometheus.MustNewConstMetric(c.errorRate, prometheus.GaugeValue, s.Requests.ErrorRate)
	ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, s.LatencyMs.P50, "0.5")
	ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, s.LatencyMs.P95, "0.95")
	ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, s.LatencyMs.P99, "0.99")
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(s.PendingActions))
}

// RegisterCache exports the statistics of source on every scrape
func (p *PrometheusProvider) RegisterCache(source CacheStatsSource) error {
	return p.registry.Register(newCacheCollector(p.namespace, source))
}

// RegisterEngine exports the engine snapshot on every scrape
func (p *PrometheusProvider) RegisterEngine(source EngineSource) error {
	return p.registry.Register(newEngineCollector(p.namespace, source))
}

// EventListener counts every monitor event it receives on p
func EventListener(p Provider) monitor.Listener {
	return monitor.ListenerFunc(func(ctx context.Context, ev *monitor.Event) error {
		p.RecordMonitorEvent(string(ev.Type), ev.ActionType)
		return nil
	})
}
