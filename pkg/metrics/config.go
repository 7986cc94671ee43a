package metrics

import "github.com/bitechdev/EndpointKit/pkg/config"

// Config holds configuration for the metrics provider
type Config struct {
	// Enabled determines whether metrics collection is enabled
	Enabled bool `mapstructure:"enabled"`

	// Namespace is an optional prefix for all metric names
	Namespace string `mapstructure:"namespace"`

	// HTTPRequestBuckets defines histogram buckets for HTTP request duration (in seconds)
	// Default: [0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10]
	HTTPRequestBuckets []float64 `mapstructure:"http_request_buckets"`

	// CacheLookupBuckets defines histogram buckets for cache lookups (in seconds)
	// Default: [0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01]
	CacheLookupBuckets []float64 `mapstructure:"cache_lookup_buckets"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Namespace: "endpointkit",
		// HTTP requests typically take longer than cache lookups
		HTTPRequestBuckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		CacheLookupBuckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
	}
}

// FromConfig converts the application configuration section
func FromConfig(c config.MetricsConfig) *Config {
	cfg := &Config{
		Enabled:            c.Enabled,
		Namespace:          c.Namespace,
		HTTPRequestBuckets: c.HTTPRequestBuckets,
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills in any missing values with defaults
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if len(c.HTTPRequestBuckets) == 0 {
		c.HTTPRequestBuckets = defaults.HTTPRequestBuckets
	}
	if len(c.CacheLookupBuckets) == 0 {
		c.CacheLookupBuckets = defaults.CacheLookupBuckets
	}
}
