package config

import (
	"time"

	"machinaos/proxyrouter/pkg/routing"
)

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress       = "127.0.0.1:8090"
	DefaultReadTimeout         = 30 * time.Second
	DefaultWriteTimeout        = 5 * time.Minute
	DefaultIdleTimeout         = 120 * time.Second
	DefaultShutdownTimeout     = 30 * time.Second
	DefaultMaxHeaderBytes      = 1048576 // 1MB
	DefaultMaxRequestBodyBytes = 10 << 20

	// Health defaults
	DefaultHealthWindow          = 20
	DefaultHealthLatencyBaseline = 1500 * time.Millisecond
	DefaultHealthMinHealthyScore = 0.3
	DefaultHealthMinSamples      = 5
	DefaultHealthSuccessWeight   = 0.8
	DefaultHealthLatencyWeight   = 0.2

	// Budget defaults
	DefaultBudgetAlertThreshold = 0.8
	DefaultBudgetTimezone       = "UTC"

	// Usage defaults
	DefaultUsageBackend       = "sqlite"
	DefaultUsageSQLitePath    = "data/usage.db"
	DefaultUsageRetentionDays = 90
	DefaultUsagePruneSchedule = "0 3 * * *"

	// Store defaults
	DefaultStoreBackend      = "memory"
	DefaultStoreSQLitePath   = "data/config.db"
	DefaultSQLiteMaxOpen     = 10
	DefaultSQLiteMaxIdle     = 5
	DefaultSQLiteWALMode     = true
	DefaultSQLiteBusyTimeout = 5 * time.Second

	// Credentials defaults
	DefaultCredentialsEnvPrefix = "PROXYROUTER_PROVIDER_"
	DefaultCredentialsCacheTTL  = 5 * time.Minute
	DefaultCredentialsCacheSize = 1000

	// Request defaults
	DefaultRequestTimeout      = 30 * time.Second
	DefaultRequestMaxBodyBytes = 32 << 20
	DefaultMaxIdleConns        = 100
	DefaultMaxIdleConnsPerHost = 10
	DefaultIdleConnTimeout     = 90 * time.Second
	DefaultStickyCapacity      = 10000

	// Telemetry defaults
	DefaultLoggingLevel      = "info"
	DefaultLoggingFormat     = "json"
	DefaultRedactCredentials = true
	DefaultMetricsEnabled    = true
	DefaultMetricsPath       = "/metrics"
	DefaultMetricsNamespace  = "proxyrouter"

	DefaultTracingSampler     = "ratio"
	DefaultTracingSampleRatio = 1.0
	DefaultTracingTimeout     = 10 * time.Second
	DefaultTracingServiceName = "proxyrouter"
)

// DefaultLatencyBuckets are the default attempt latency histogram buckets
// in seconds.
var DefaultLatencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Default returns a configuration with every default applied, including
// the catch-all routing rule. Boolean options that default to true are
// only set here, so LoadConfig decodes YAML on top of Default.
func Default() *Config {
	cfg := &Config{}
	cfg.Store.SQLite.WALMode = DefaultSQLiteWALMode
	cfg.Telemetry.Logging.RedactCredentials = DefaultRedactCredentials
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets defaults for fields that have zero values and adds
// routing.DefaultCatchAll when no catch-all rule is configured. It is
// idempotent.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Server.MaxRequestBodyBytes == 0 {
		cfg.Server.MaxRequestBodyBytes = DefaultMaxRequestBodyBytes
	}

	// Provider and rule defaults
	for i := range cfg.Providers {
		cfg.Providers[i].Normalize()
	}
	hasCatchAll := false
	for i := range cfg.Routing.Rules {
		cfg.Routing.Rules[i].Normalize()
		if cfg.Routing.Rules[i].IsCatchAll() {
			hasCatchAll = true
		}
	}
	if !hasCatchAll {
		cfg.Routing.Rules = append(cfg.Routing.Rules, routing.DefaultCatchAll())
	}

	// Health defaults
	if cfg.Health.Window == 0 {
		cfg.Health.Window = DefaultHealthWindow
	}
	if cfg.Health.LatencyBaseline == 0 {
		cfg.Health.LatencyBaseline = DefaultHealthLatencyBaseline
	}
	if cfg.Health.MinHealthyScore == 0 {
		cfg.Health.MinHealthyScore = DefaultHealthMinHealthyScore
	}
	if cfg.Health.MinSamples == 0 {
		cfg.Health.MinSamples = DefaultHealthMinSamples
	}
	if cfg.Health.SuccessWeight == 0 && cfg.Health.LatencyWeight == 0 {
		cfg.Health.SuccessWeight = DefaultHealthSuccessWeight
		cfg.Health.LatencyWeight = DefaultHealthLatencyWeight
	}

	// Budget defaults
	if cfg.Budget.AlertThreshold == 0 {
		cfg.Budget.AlertThreshold = DefaultBudgetAlertThreshold
	}
	if cfg.Budget.Timezone == "" {
		cfg.Budget.Timezone = DefaultBudgetTimezone
	}

	// Usage defaults
	if cfg.Usage.Backend == "" {
		cfg.Usage.Backend = DefaultUsageBackend
	}
	if cfg.Usage.SQLitePath == "" {
		cfg.Usage.SQLitePath = DefaultUsageSQLitePath
	}
	if cfg.Usage.RetentionDays == 0 {
		cfg.Usage.RetentionDays = DefaultUsageRetentionDays
	}
	if cfg.Usage.PruneSchedule == "" {
		cfg.Usage.PruneSchedule = DefaultUsagePruneSchedule
	}

	// Store defaults
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = DefaultStoreBackend
	}
	if cfg.Store.SQLite.Path == "" {
		cfg.Store.SQLite.Path = DefaultStoreSQLitePath
	}
	if cfg.Store.SQLite.MaxOpenConns == 0 {
		cfg.Store.SQLite.MaxOpenConns = DefaultSQLiteMaxOpen
	}
	if cfg.Store.SQLite.MaxIdleConns == 0 {
		cfg.Store.SQLite.MaxIdleConns = DefaultSQLiteMaxIdle
	}
	if cfg.Store.SQLite.BusyTimeout == 0 {
		cfg.Store.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}

	// Credentials defaults
	if cfg.Credentials.EnvPrefix == "" {
		cfg.Credentials.EnvPrefix = DefaultCredentialsEnvPrefix
	}
	if cfg.Credentials.CacheTTL == 0 {
		cfg.Credentials.CacheTTL = DefaultCredentialsCacheTTL
	}
	if cfg.Credentials.CacheSize == 0 {
		cfg.Credentials.CacheSize = DefaultCredentialsCacheSize
	}

	// Request defaults
	if cfg.Request.DefaultTimeout == 0 {
		cfg.Request.DefaultTimeout = DefaultRequestTimeout
	}
	if cfg.Request.MaxBodyBytes == 0 {
		cfg.Request.MaxBodyBytes = DefaultRequestMaxBodyBytes
	}
	if cfg.Request.MaxIdleConns == 0 {
		cfg.Request.MaxIdleConns = DefaultMaxIdleConns
	}
	if cfg.Request.MaxIdleConnsPerHost == 0 {
		cfg.Request.MaxIdleConnsPerHost = DefaultMaxIdleConnsPerHost
	}
	if cfg.Request.IdleConnTimeout == 0 {
		cfg.Request.IdleConnTimeout = DefaultIdleConnTimeout
	}
	if cfg.Request.StickyCapacity == 0 {
		cfg.Request.StickyCapacity = DefaultStickyCapacity
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if len(cfg.Telemetry.Metrics.LatencyBuckets) == 0 {
		cfg.Telemetry.Metrics.LatencyBuckets = append([]float64(nil), DefaultLatencyBuckets...)
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
}
