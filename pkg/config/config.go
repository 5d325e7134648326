package config

import (
	"time"

	"machinaos/proxyrouter/pkg/providers"
	"machinaos/proxyrouter/pkg/routing"
)

// Config is the root configuration structure for proxyrouter.
type Config struct {
	// Server contains the HTTP API listener configuration.
	Server ServerConfig `yaml:"server"`

	// Providers seeds the config store with upstream proxy providers.
	// Entries override stored providers with the same name.
	Providers []providers.Config `yaml:"providers"`

	// Routing contains the routing rules seeded into the config store.
	Routing RoutingConfig `yaml:"routing"`

	// Health tunes the provider health scorer.
	Health HealthConfig `yaml:"health"`

	// Budget configures the daily spend cap.
	Budget BudgetConfig `yaml:"budget"`

	// Usage configures usage record persistence and retention.
	Usage UsageConfig `yaml:"usage"`

	// Store configures the provider and rule config store.
	Store StoreConfig `yaml:"store"`

	// Credentials configures where provider credentials are loaded from.
	Credentials CredentialsConfig `yaml:"credentials"`

	// Request contains defaults for proxied requests.
	Request RequestConfig `yaml:"request"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP API server.
type ServerConfig struct {
	// ListenAddress is the "host:port" to listen on.
	// Default: "127.0.0.1:8090"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response. It
	// must exceed the longest proxied request including retries.
	// Default: 5m
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout. Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown. Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size. Default: 1MB
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxRequestBodyBytes limits API request bodies. Default: 10MB
	MaxRequestBodyBytes int64 `yaml:"max_request_body_bytes"`

	// WatchConfig reloads providers and rules when the config file changes.
	WatchConfig bool `yaml:"watch_config"`
}

// RoutingConfig contains the routing rule set.
type RoutingConfig struct {
	// Rules are evaluated by priority, then specificity. A catch-all
	// rule is added when none is configured.
	Rules []routing.Rule `yaml:"rules"`
}

// HealthConfig tunes provider health scoring.
type HealthConfig struct {
	// Window is the EWMA span in samples. Default: 20
	Window int `yaml:"window"`

	// LatencyBaseline is the latency at or below which the latency
	// component is perfect. Default: 1500ms
	LatencyBaseline time.Duration `yaml:"latency_baseline"`

	// MinHealthyScore marks providers below it unhealthy. Default: 0.3
	MinHealthyScore float64 `yaml:"min_healthy_score"`

	// MinSamples is the number of reports before a provider can be
	// marked unhealthy. Default: 5
	MinSamples int `yaml:"min_samples"`

	// SuccessWeight and LatencyWeight weight the score components.
	// Defaults: 0.8 and 0.2
	SuccessWeight float64 `yaml:"success_weight"`
	LatencyWeight float64 `yaml:"latency_weight"`

	// Seed makes the weighted tie-break deterministic (0 = random).
	Seed uint64 `yaml:"seed"`
}

// BudgetConfig configures the daily proxy spend cap.
type BudgetConfig struct {
	// DailyLimit is the maximum USD spend per day (0 = unlimited).
	DailyLimit float64 `yaml:"daily_limit"`

	// AlertThreshold is the fraction of the limit that triggers a
	// warning. Default: 0.8
	AlertThreshold float64 `yaml:"alert_threshold"`

	// Timezone is the IANA zone defining day boundaries. Default: "UTC"
	Timezone string `yaml:"timezone"`
}

// UsageConfig configures usage persistence.
type UsageConfig struct {
	// Backend is "sqlite" or "memory". Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLitePath is the usage database file. Default: "data/usage.db"
	SQLitePath string `yaml:"sqlite_path"`

	// RetentionDays deletes records older than this (0 = keep forever).
	// Default: 90
	RetentionDays int `yaml:"retention_days"`

	// PruneSchedule is the cron expression for retention runs.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`
}

// StoreConfig configures the provider and rule config store.
type StoreConfig struct {
	// Backend is "sqlite" or "memory". Default: "memory"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite backend settings.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig contains SQLite connection settings.
type SQLiteConfig struct {
	// Path is the database file. Default: "data/config.db"
	Path string `yaml:"path"`

	// MaxOpenConns limits open connections. Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns limits idle connections. Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables write-ahead logging. Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long to wait on a locked database. Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// CredentialsConfig configures provider credential lookup. Stores are
// consulted in order: file, then environment.
type CredentialsConfig struct {
	// EnvPrefix prefixes credential environment variables.
	// Default: "PROXYROUTER_PROVIDER_"
	EnvPrefix string `yaml:"env_prefix"`

	// File is an optional YAML file mapping provider names to
	// username/password pairs.
	File string `yaml:"file"`

	// WatchFile reloads File when it changes.
	WatchFile bool `yaml:"watch_file"`

	// CacheTTL caches looked-up credentials (0 disables). Default: 5m
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// CacheSize bounds the credential cache. Default: 1000
	CacheSize int `yaml:"cache_size"`
}

// RequestConfig contains defaults for proxied requests.
type RequestConfig struct {
	// DefaultTimeout bounds each attempt when the caller sets none.
	// Default: 30s
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// MaxBodyBytes caps response bodies read from targets. Default: 32MB
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// MaxIdleConns and MaxIdleConnsPerHost size the shared connection
	// pool. Defaults: 100 and 10
	MaxIdleConns        int `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int `yaml:"max_idle_conns_per_host"`

	// IdleConnTimeout closes idle pooled connections. Default: 90s
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`

	// StickyCapacity bounds tracked sticky session bindings.
	// Default: 10000
	StickyCapacity int `yaml:"sticky_capacity"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains OpenTelemetry tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains configuration for structured logging.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text". Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file:line in log records.
	AddSource bool `yaml:"add_source"`

	// RedactCredentials masks proxy passwords in log output.
	// Default: true
	RedactCredentials bool `yaml:"redact_credentials"`

	// RedactPatterns adds custom redaction patterns.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern defines a custom redaction pattern.
type RedactPattern struct {
	// Name identifies the pattern.
	Name string `yaml:"name"`

	// Pattern is a Go regular expression.
	Pattern string `yaml:"pattern"`

	// Replacement replaces each match; it may reference groups ($1).
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains configuration for Prometheus metrics.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected. Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path metrics are served on. Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace prefixes metric names. Default: "proxyrouter"
	Namespace string `yaml:"namespace"`

	// Subsystem is an optional second prefix.
	Subsystem string `yaml:"subsystem"`

	// LatencyBuckets are histogram buckets in seconds.
	LatencyBuckets []float64 `yaml:"latency_buckets"`
}

// TracingConfig contains OpenTelemetry tracing configuration. Spans are
// exported over OTLP/gRPC.
type TracingConfig struct {
	// Enabled controls whether spans are recorded. Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler is "always", "never" or "ratio". Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of root spans sampled when Sampler is
	// "ratio". Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP collector "host:port", e.g. "localhost:4317".
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`

	// Timeout bounds each export. Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// ServiceName is the service.name resource attribute.
	// Default: "proxyrouter"
	ServiceName string `yaml:"service_name"`
}
