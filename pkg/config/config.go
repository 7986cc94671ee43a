package config

import "time"

// Config represents the complete application configuration
type Config struct {
	Cache         CacheConfig         `mapstructure:"cache"`
	Monitor       MonitorConfig       `mapstructure:"monitor"`
	Persistence   PersistenceConfig   `mapstructure:"persistence"`
	Notify        NotifyConfig        `mapstructure:"notify"`
	Remediation   RemediationConfig   `mapstructure:"remediation"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Dashboard     DashboardConfig     `mapstructure:"dashboard"`
	Tracing       TracingConfig       `mapstructure:"tracing"`
	Logger        LoggerConfig        `mapstructure:"logger"`
	ErrorTracking ErrorTrackingConfig `mapstructure:"error_tracking"`
}

// CacheConfig holds the response cache configuration
type CacheConfig struct {
	MaxSize              int64         `mapstructure:"max_size"`    // bytes
	MaxEntries           int           `mapstructure:"max_entries"` // entry count
	DefaultTTL           time.Duration `mapstructure:"default_ttl"` // 0 = never expire
	EvictionPolicy       string        `mapstructure:"eviction_policy"`
	Compression          bool          `mapstructure:"compression"`
	CompressionThreshold int           `mapstructure:"compression_threshold"` // bytes
	Persistent           bool          `mapstructure:"persistent"`
	PersistencePath      string        `mapstructure:"persistence_path"` // snapshot key inside the adapter
	AutoSaveInterval     time.Duration `mapstructure:"auto_save_interval"`
	CollectStats         bool          `mapstructure:"collect_stats"`
}

// MonitorConfig holds the resource monitoring configuration
type MonitorConfig struct {
	Enabled           bool                   `mapstructure:"enabled"`
	SamplingInterval  time.Duration          `mapstructure:"sampling_interval"`
	HistorySize       int                    `mapstructure:"history_size"`
	Thresholds        ResourceThresholdsConf `mapstructure:"thresholds"`
	DefaultStrategies bool                   `mapstructure:"default_strategies"`
	SaveReports       bool                   `mapstructure:"save_reports"`
}

// ResourceThresholdsConf holds the built-in resource limits.
// CPU, Memory and Heap are percentages, EventLoop is scheduler lag in milliseconds.
type ResourceThresholdsConf struct {
	CPU       float64 `mapstructure:"cpu"`
	Memory    float64 `mapstructure:"memory"`
	Heap      float64 `mapstructure:"heap"`
	EventLoop float64 `mapstructure:"event_loop"`
}

// PersistenceConfig selects and configures the snapshot backend
type PersistenceConfig struct {
	Provider string                  `mapstructure:"provider"` // memory, file, redis, memcache, sqlite
	File     FilePersistenceConfig   `mapstructure:"file"`
	Redis    RedisConfig             `mapstructure:"redis"`
	Memcache MemcacheConfig          `mapstructure:"memcache"`
	SQLite   SQLitePersistenceConfig `mapstructure:"sqlite"`
}

// FilePersistenceConfig holds file backend configuration
type FilePersistenceConfig struct {
	Dir string `mapstructure:"dir"`
}

// RedisConfig holds Redis-specific configuration
type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// MemcacheConfig holds Memcache-specific configuration
type MemcacheConfig struct {
	Servers      []string      `mapstructure:"servers"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// SQLitePersistenceConfig holds the sqlite backend configuration
type SQLitePersistenceConfig struct {
	DSN       string `mapstructure:"dsn"`
	TableName string `mapstructure:"table_name"`
}

// NotifyConfig configures forwarding of monitor events to message brokers
type NotifyConfig struct {
	NATS  NATSNotifyConfig  `mapstructure:"nats"`
	Redis RedisNotifyConfig `mapstructure:"redis"`
}

// NATSNotifyConfig holds NATS forwarding configuration
type NATSNotifyConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// RedisNotifyConfig holds Redis pub/sub forwarding configuration
type RedisNotifyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Channel string `mapstructure:"channel"`
}

// RemediationConfig holds settings for the listeners acting on optimize events
type RemediationConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	ShedFraction    float64       `mapstructure:"shed_fraction"`
	TTLFactor       float64       `mapstructure:"ttl_factor"`
	MaxTTL          time.Duration `mapstructure:"max_ttl"`
	RateLimitRPS    float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"`
	CircuitCooldown time.Duration `mapstructure:"circuit_cooldown"`
	ActionCooldown  time.Duration `mapstructure:"action_cooldown"`
}

// MetricsConfig holds Prometheus exporter configuration
type MetricsConfig struct {
	Enabled            bool      `mapstructure:"enabled"`
	Namespace          string    `mapstructure:"namespace"`
	HTTPRequestBuckets []float64 `mapstructure:"http_request_buckets"` // seconds
}

// DashboardConfig holds the HTTP dashboard configuration
type DashboardConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
}

// TracingConfig holds OpenTelemetry tracing configuration
type TracingConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	Endpoint       string `mapstructure:"endpoint"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Dev  bool   `mapstructure:"dev"`
	Path string `mapstructure:"path"`
}

// ErrorTrackingConfig holds error tracking configuration
type ErrorTrackingConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	Provider         string  `mapstructure:"provider"`           // sentry, noop
	DSN              string  `mapstructure:"dsn"`                // Sentry DSN
	Environment      string  `mapstructure:"environment"`        // e.g., production, staging, development
	Release          string  `mapstructure:"release"`            // Application version/release
	Debug            bool    `mapstructure:"debug"`              // Enable debug mode
	SampleRate       float64 `mapstructure:"sample_rate"`        // Error sample rate (0.0-1.0)
	TracesSampleRate float64 `mapstructure:"traces_sample_rate"` // Traces sample rate (0.0-1.0)
	ServerName       string  `mapstructure:"server_name"`
}
