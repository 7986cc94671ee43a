package monitor

import (
	"time"

	"github.com/bitechdev/EndpointKit/pkg/config"
	"github.com/bitechdev/EndpointKit/pkg/persistence"
)

// ResourceThresholds are the built-in alert limits checked on every sample.
// CPU, Memory and Heap are percentages, EventLoop is scheduler lag in
// milliseconds. A zero limit disables that check.
type ResourceThresholds struct {
	CPU       float64
	Memory    float64
	Heap      float64
	EventLoop float64
}

// AlertFunc is called when a resource limit or an alert threshold is breached
type AlertFunc func(metric string, value, threshold float64)

// Config holds the engine configuration
type Config struct {
	// Enabled controls whether Start runs the sampler
	Enabled bool

	SamplingInterval time.Duration

	// HistorySize is the number of samples kept per metric
	HistorySize int

	Thresholds ResourceThresholds

	// DefaultStrategies registers the built-in strategies at construction
	DefaultStrategies bool

	// SaveReports persists generated reports through the adapter
	SaveReports bool

	// HitRateMinSamples is the number of cache lookups required before the
	// cache.hitRate metric is evaluated
	HitRateMinSamples int64

	// SlowEndpointMs is the p95 latency above which an endpoint is reported as slow
	SlowEndpointMs float64

	OnAlert AlertFunc
}

// DefaultConfig returns the configuration used when nothing is specified
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		SamplingInterval: 5 * time.Second,
		HistorySize:      100,
		Thresholds: ResourceThresholds{
			CPU:       80,
			Memory:    85,
			Heap:      90,
			EventLoop: 100,
		},
		DefaultStrategies: true,
		HitRateMinSamples: 20,
		SlowEndpointMs:    1000,
	}
}

// FromConfig converts the application configuration section
func FromConfig(c config.MonitorConfig) Config {
	cfg := DefaultConfig()
	cfg.Enabled = c.Enabled
	cfg.SamplingInterval = c.SamplingInterval
	cfg.HistorySize = c.HistorySize
	cfg.Thresholds = ResourceThresholds{
		CPU:       c.Thresholds.CPU,
		Memory:    c.Thresholds.Memory,
		Heap:      c.Thresholds.Heap,
		EventLoop: c.Thresholds.EventLoop,
	}
	cfg.DefaultStrategies = c.DefaultStrategies
	cfg.SaveReports = c.SaveReports
	return cfg
}

func (c Config) validate() error {
	if c.SamplingInterval <= 0 {
		return &ConfigError{Field: "SamplingInterval", Reason: "must be positive"}
	}
	if c.HistorySize <= 0 {
		return &ConfigError{Field: "HistorySize", Reason: "must be positive"}
	}
	t := c.Thresholds
	if t.CPU < 0 || t.Memory < 0 || t.Heap < 0 || t.EventLoop < 0 {
		return &ConfigError{Field: "Thresholds", Reason: "limits must not be negative"}
	}
	if c.HitRateMinSamples < 0 {
		return &ConfigError{Field: "HitRateMinSamples", Reason: "must not be negative"}
	}
	return nil
}

// Option configures optional collaborators of an Engine
type Option func(*Engine)

// WithSampler replaces the process sampler
func WithSampler(s ResourceSampler) Option {
	return func(e *Engine) {
		e.sampler = s
	}
}

// WithAdapter attaches the storage used for generated reports
func WithAdapter(a persistence.Adapter) Option {
	return func(e *Engine) {
		e.adapter = a
	}
}

// WithClock replaces time.Now for sample timestamps and throughput
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}
