package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Manager handles configuration loading from multiple sources
type Manager struct {
	v *viper.Viper
}

// NewManager creates a new configuration manager with defaults
func NewManager() *Manager {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/endpointkit")
	v.AddConfigPath("$HOME/.endpointkit")

	v.SetEnvPrefix("ENDPOINTKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	return &Manager{v: v}
}

// NewManagerWithOptions creates a new configuration manager with custom options
func NewManagerWithOptions(opts ...Option) *Manager {
	m := NewManager()
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Option is a functional option for configuring the Manager
type Option func(*Manager)

// WithConfigFile sets a specific config file path
func WithConfigFile(path string) Option {
	return func(m *Manager) {
		m.v.SetConfigFile(path)
	}
}

// WithConfigName sets the config file name (without extension)
func WithConfigName(name string) Option {
	return func(m *Manager) {
		m.v.SetConfigName(name)
	}
}

// WithConfigPath adds a path to search for config files
func WithConfigPath(path string) Option {
	return func(m *Manager) {
		m.v.AddConfigPath(path)
	}
}

// WithEnvPrefix sets the environment variable prefix
func WithEnvPrefix(prefix string) Option {
	return func(m *Manager) {
		m.v.SetEnvPrefix(prefix)
	}
}

// Load attempts to load configuration from file and environment.
// A missing config file is not an error; defaults and env vars apply.
func (m *Manager) Load() error {
	if err := m.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() (*Config, error) {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns a configuration value by key
func (m *Manager) Get(key string) interface{} {
	return m.v.Get(key)
}

// GetString returns a string configuration value
func (m *Manager) GetString(key string) string {
	return m.v.GetString(key)
}

// GetInt returns an int configuration value
func (m *Manager) GetInt(key string) int {
	return m.v.GetInt(key)
}

// GetBool returns a bool configuration value
func (m *Manager) GetBool(key string) bool {
	return m.v.GetBool(key)
}

// Set sets a configuration value
func (m *Manager) Set(key string, value interface{}) {
	m.v.Set(key, value)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Cache defaults
	v.SetDefault("cache.max_size", 100*1024*1024) // 100MB
	v.SetDefault("cache.max_entries", 1000)
	v.SetDefault("cache.default_ttl", "1h")
	v.SetDefault("cache.eviction_policy", "lru")
	v.SetDefault("cache.compression", true)
	v.SetDefault("cache.compression_threshold", 1024)
	v.SetDefault("cache.persistent", false)
	v.SetDefault("cache.persistence_path", "cache/snapshot.json")
	v.SetDefault("cache.auto_save_interval", "5m")
	v.SetDefault("cache.collect_stats", true)

	// Monitor defaults
	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.sampling_interval", "5s")
	v.SetDefault("monitor.history_size", 100)
	v.SetDefault("monitor.thresholds.cpu", 80.0)
	v.SetDefault("monitor.thresholds.memory", 85.0)
	v.SetDefault("monitor.thresholds.heap", 90.0)
	v.SetDefault("monitor.thresholds.event_loop", 100.0)
	v.SetDefault("monitor.default_strategies", true)
	v.SetDefault("monitor.save_reports", false)

	// Persistence defaults
	v.SetDefault("persistence.provider", "file")
	v.SetDefault("persistence.file.dir", ".endpointkit")
	v.SetDefault("persistence.redis.host", "localhost")
	v.SetDefault("persistence.redis.port", 6379)
	v.SetDefault("persistence.redis.password", "")
	v.SetDefault("persistence.redis.db", 0)
	v.SetDefault("persistence.redis.key_prefix", "endpointkit:")
	v.SetDefault("persistence.memcache.servers", []string{"localhost:11211"})
	v.SetDefault("persistence.memcache.max_idle_conns", 10)
	v.SetDefault("persistence.memcache.timeout", "100ms")
	v.SetDefault("persistence.sqlite.dsn", "endpointkit.db")
	v.SetDefault("persistence.sqlite.table_name", "snapshots")

	// Notify defaults
	v.SetDefault("notify.nats.enabled", false)
	v.SetDefault("notify.nats.url", "nats://localhost:4222")
	v.SetDefault("notify.nats.subject_prefix", "endpointkit.events")
	v.SetDefault("notify.redis.enabled", false)
	v.SetDefault("notify.redis.channel", "endpointkit:events")

	// Remediation defaults
	v.SetDefault("remediation.enabled", true)
	v.SetDefault("remediation.shed_fraction", 0.25)
	v.SetDefault("remediation.ttl_factor", 1.5)
	v.SetDefault("remediation.max_ttl", "24h")
	v.SetDefault("remediation.rate_limit_rps", 50.0)
	v.SetDefault("remediation.rate_limit_burst", 100)
	v.SetDefault("remediation.circuit_cooldown", "30s")
	v.SetDefault("remediation.action_cooldown", "30s")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "endpointkit")

	// Dashboard defaults
	v.SetDefault("dashboard.enabled", true)
	v.SetDefault("dashboard.addr", "127.0.0.1:9464")
	v.SetDefault("dashboard.shutdown_timeout", "10s")
	v.SetDefault("dashboard.read_timeout", "10s")
	v.SetDefault("dashboard.write_timeout", "10s")

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "endpointkit")
	v.SetDefault("tracing.service_version", "1.0.0")
	v.SetDefault("tracing.endpoint", "")

	// Logger defaults
	v.SetDefault("logger.dev", false)
	v.SetDefault("logger.path", "")

	// Error tracking defaults
	v.SetDefault("error_tracking.enabled", false)
	v.SetDefault("error_tracking.provider", "noop")
	v.SetDefault("error_tracking.sample_rate", 1.0)
	v.SetDefault("error_tracking.traces_sample_rate", 0.0)
}
