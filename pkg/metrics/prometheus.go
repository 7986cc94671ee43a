package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusProvider implements the Provider interface using Prometheus.
// Each provider owns its registry so several can coexist in one process.
type PrometheusProvider struct {
	namespace        string
	registry         *prometheus.Registry
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	requestsInFlight prometheus.Gauge
	cacheLookups     *prometheus.CounterVec
	cacheLookupTime  prometheus.Histogram
	cacheEvictions   prometheus.Counter
	monitorEvents    *prometheus.CounterVec
	panics           *prometheus.CounterVec
}

// NewPrometheusProvider creates a new Prometheus metrics provider. A nil
// config uses DefaultConfig.
func NewPrometheusProvider(cfg *Config) *PrometheusProvider {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.ApplyDefaults()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	ns := cfg.Namespace

	return &PrometheusProvider{
		namespace: ns,
		registry:  reg,
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   cfg.HTTPRequestBuckets,
			},
			[]string{"method", "path", "status"},
		),
		requestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: ns,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "cache_lookups_total",
				Help:      "Total number of cache lookups by result",
			},
			[]string{"result"},
		),
		cacheLookupTime: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "cache_lookup_duration_seconds",
				Help:      "Cache lookup duration in seconds",
				Buckets:   cfg.CacheLookupBuckets,
			},
		),
		cacheEvictions: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "cache_evictions_total",
				Help:      "Total number of evicted cache entries",
			},
		),
		monitorEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "monitor_events_total",
				Help:      "Total number of monitor events by type and action",
			},
			[]string{"type", "action"},
		),
		panics: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "panics_total",
				Help:      "Total number of recovered panics",
			},
			[]string{"location"},
		),
	}
}

// Registry returns the registry all metrics are registered with
func (p *PrometheusProvider) Registry() *prometheus.Registry {
	return p.registry
}

// ResponseWriter wraps http.ResponseWriter to capture status code
type ResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (rw *ResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RecordHTTPRequest implements Provider interface
func (p *PrometheusProvider) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	p.requestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
	p.requestTotal.WithLabelValues(method, path, status).Inc()
}

// IncRequestsInFlight implements Provider interface
func (p *PrometheusProvider) IncRequestsInFlight() {
	p.requestsInFlight.Inc()
}

// DecRequestsInFlight implements Provider interface
func (p *PrometheusProvider) DecRequestsInFlight() {
	p.requestsInFlight.Dec()
}

// RecordCacheAccess implements Provider interface
func (p *PrometheusProvider) RecordCacheAccess(hit bool, lookup time.Duration) {
	result := "miss"
	if hit {
		result = "hit"
	}
	p.cacheLookups.WithLabelValues(result).Inc()
	p.cacheLookupTime.Observe(lookup.Seconds())
}

// RecordCacheEviction implements Provider interface
func (p *PrometheusProvider) RecordCacheEviction() {
	p.cacheEvictions.Inc()
}

// RecordMonitorEvent implements Provider interface
func (p *PrometheusProvider) RecordMonitorEvent(eventType, action string) {
	p.monitorEvents.WithLabelValues(eventType, action).Inc()
}

// RecordPanic implements Provider interface
func (p *PrometheusProvider) RecordPanic(location string) {
	p.panics.WithLabelValues(location).Inc()
}

// Handler implements Provider interface
func (p *PrometheusProvider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Middleware returns an HTTP middleware that collects metrics. Paths are
// labelled with pathLabel so per-ID routes do not explode cardinality.
func (p *PrometheusProvider) Middleware(pathLabel func(*http.Request) string) func(http.Handler) http.Handler {
	if pathLabel == nil {
		pathLabel = func(r *http.Request) string { return r.URL.Path }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			p.IncRequestsInFlight()
			defer p.DecRequestsInFlight()

			// Wrap response writer to capture status code
			rw := NewResponseWriter(w)
			next.ServeHTTP(rw, r)

			duration := time.Since(start)
			status := strconv.Itoa(rw.statusCode)
			p.RecordHTTPRequest(r.Method, pathLabel(r), status, duration)
		})
	}
}
