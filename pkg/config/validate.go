package config

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"machinaos/proxyrouter/pkg/providers"
	"machinaos/proxyrouter/pkg/routing"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All errors are collected and returned
// together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateProviders(cfg.Providers)...)
	errs = append(errs, validateRouting(&cfg.Routing, cfg.Providers)...)
	errs = append(errs, validateHealth(&cfg.Health)...)
	errs = append(errs, validateBudget(&cfg.Budget)...)
	errs = append(errs, validateUsage(&cfg.Usage)...)
	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateRequest(&cfg.Request)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: "listen address is required"})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid listen address %q: %v", cfg.ListenAddress, err),
		})
	}

	errs = append(errs, nonNegativeDuration("server.read_timeout", cfg.ReadTimeout)...)
	errs = append(errs, nonNegativeDuration("server.write_timeout", cfg.WriteTimeout)...)
	errs = append(errs, nonNegativeDuration("server.idle_timeout", cfg.IdleTimeout)...)
	errs = append(errs, nonNegativeDuration("server.shutdown_timeout", cfg.ShutdownTimeout)...)

	if cfg.MaxHeaderBytes < 0 || cfg.MaxHeaderBytes > 10*1024*1024 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes must be between 0 and 10MB",
		})
	}
	if cfg.MaxRequestBodyBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_request_body_bytes",
			Message: "max request body bytes must be non-negative",
		})
	}
	return errs
}

// validateProviders checks each provider definition and its URL template.
func validateProviders(list []providers.Config) []FieldError {
	var errs []FieldError
	seen := make(map[string]bool, len(list))

	for i := range list {
		p := list[i].Clone()
		p.Normalize()

		prefix := fmt.Sprintf("providers[%d]", i)
		if p.Name != "" {
			prefix = fmt.Sprintf("providers[%s]", p.Name)
		}

		if seen[p.Name] && p.Name != "" {
			errs = append(errs, FieldError{Field: prefix + ".name", Message: "duplicate provider name"})
			continue
		}
		seen[p.Name] = true

		if err := p.Validate(); err != nil {
			errs = append(errs, fieldErrorFrom(prefix, err))
			continue
		}
		if _, err := providers.ResolveTemplate(&p); err != nil {
			errs = append(errs, fieldErrorFrom(prefix, err))
		}
	}
	return errs
}

// validateRouting builds the rule table and checks that every preferred
// provider is defined, unless providers come only from the store.
func validateRouting(cfg *RoutingConfig, provs []providers.Config) []FieldError {
	var errs []FieldError

	if _, err := routing.NewTable(cfg.Rules); err != nil {
		errs = append(errs, fieldErrorFrom("routing.rules", err))
	}

	if len(provs) == 0 {
		return errs
	}
	known := make(map[string]bool, len(provs))
	for _, p := range provs {
		known[strings.TrimSpace(p.Name)] = true
	}
	for _, r := range cfg.Rules {
		for _, name := range r.PreferredProviders {
			if !known[name] {
				errs = append(errs, FieldError{
					Field:   fmt.Sprintf("routing.rules[%s].preferred_providers", r.ID),
					Message: fmt.Sprintf("unknown provider %q", name),
				})
			}
		}
	}
	return errs
}

func validateHealth(cfg *HealthConfig) []FieldError {
	var errs []FieldError

	if cfg.Window < 0 {
		errs = append(errs, FieldError{Field: "health.window", Message: "window must be non-negative"})
	}
	errs = append(errs, nonNegativeDuration("health.latency_baseline", cfg.LatencyBaseline)...)
	if cfg.MinHealthyScore < 0 || cfg.MinHealthyScore > 1 {
		errs = append(errs, FieldError{Field: "health.min_healthy_score", Message: "must be between 0.0 and 1.0"})
	}
	if cfg.MinSamples < 0 {
		errs = append(errs, FieldError{Field: "health.min_samples", Message: "must be non-negative"})
	}
	if cfg.SuccessWeight < 0 || cfg.LatencyWeight < 0 {
		errs = append(errs, FieldError{Field: "health.success_weight", Message: "weights must be non-negative"})
	}
	return errs
}

func validateBudget(cfg *BudgetConfig) []FieldError {
	var errs []FieldError

	if cfg.DailyLimit < 0 {
		errs = append(errs, FieldError{Field: "budget.daily_limit", Message: "daily limit must be non-negative"})
	}
	if cfg.AlertThreshold < 0 || cfg.AlertThreshold > 1 {
		errs = append(errs, FieldError{Field: "budget.alert_threshold", Message: "must be between 0.0 and 1.0"})
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		errs = append(errs, FieldError{
			Field:   "budget.timezone",
			Message: fmt.Sprintf("unknown timezone %q", cfg.Timezone),
		})
	}
	return errs
}

func validateUsage(cfg *UsageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "sqlite":
		if cfg.SQLitePath == "" {
			errs = append(errs, FieldError{Field: "usage.sqlite_path", Message: "path is required for the sqlite backend"})
		}
	case "memory":
	default:
		errs = append(errs, FieldError{
			Field:   "usage.backend",
			Message: fmt.Sprintf("invalid backend %q (valid: sqlite, memory)", cfg.Backend),
		})
	}

	if cfg.RetentionDays < 0 {
		errs = append(errs, FieldError{Field: "usage.retention_days", Message: "must be non-negative"})
	}
	if cfg.RetentionDays > 0 {
		if _, err := cron.ParseStandard(cfg.PruneSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "usage.prune_schedule",
				Message: fmt.Sprintf("invalid cron expression %q: %v", cfg.PruneSchedule, err),
			})
		}
	}
	return errs
}

func validateStore(cfg *StoreConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "store.sqlite.path", Message: "path is required for the sqlite backend"})
		}
		if cfg.SQLite.MaxOpenConns < 0 || cfg.SQLite.MaxIdleConns < 0 {
			errs = append(errs, FieldError{Field: "store.sqlite.max_open_conns", Message: "connection limits must be non-negative"})
		}
		if cfg.SQLite.MaxIdleConns > cfg.SQLite.MaxOpenConns && cfg.SQLite.MaxOpenConns > 0 {
			errs = append(errs, FieldError{
				Field:   "store.sqlite.max_idle_conns",
				Message: "max idle connections cannot exceed max open connections",
			})
		}
	case "memory":
	default:
		errs = append(errs, FieldError{
			Field:   "store.backend",
			Message: fmt.Sprintf("invalid backend %q (valid: sqlite, memory)", cfg.Backend),
		})
	}
	return errs
}

func validateRequest(cfg *RequestConfig) []FieldError {
	var errs []FieldError

	errs = append(errs, nonNegativeDuration("request.default_timeout", cfg.DefaultTimeout)...)
	errs = append(errs, nonNegativeDuration("request.idle_conn_timeout", cfg.IdleConnTimeout)...)
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{Field: "request.max_body_bytes", Message: "must be non-negative"})
	}
	if cfg.StickyCapacity < 0 {
		errs = append(errs, FieldError{Field: "request.sticky_capacity", Message: "must be non-negative"})
	}
	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", cfg.Logging.Level),
		})
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text", "console":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (valid: json, text)", cfg.Logging.Format),
		})
	}
	for i, p := range cfg.Logging.RedactPatterns {
		if _, err := regexp.Compile(p.Pattern); err != nil {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("telemetry.logging.redact_patterns[%d].pattern", i),
				Message: fmt.Sprintf("invalid regular expression: %v", err),
			})
		}
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "path must start with /"})
	}
	for i := 1; i < len(cfg.Metrics.LatencyBuckets); i++ {
		if cfg.Metrics.LatencyBuckets[i] <= cfg.Metrics.LatencyBuckets[i-1] {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.latency_buckets",
				Message: "buckets must be in increasing order",
			})
			break
		}
	}

	switch cfg.Tracing.Sampler {
	case "always", "never", "ratio":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q (valid: always, never, ratio)", cfg.Tracing.Sampler),
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "tracing endpoint is required when tracing is enabled",
		})
	}
	errs = append(errs, nonNegativeDuration("telemetry.tracing.timeout", cfg.Tracing.Timeout)...)
	return errs
}

func nonNegativeDuration(field string, d time.Duration) []FieldError {
	if d < 0 {
		return []FieldError{{Field: field, Message: "duration must be non-negative"}}
	}
	return nil
}

// fieldErrorFrom converts a provider or routing error into a FieldError.
func fieldErrorFrom(prefix string, err error) FieldError {
	var cfgErr *providers.ConfigError
	if errors.As(err, &cfgErr) {
		field := prefix
		if cfgErr.Field != "" && !strings.HasPrefix(cfgErr.Field, "routing.") {
			field = prefix + "." + cfgErr.Field
		} else if cfgErr.Field != "" {
			field = cfgErr.Field
		}
		return FieldError{Field: field, Message: cfgErr.Message}
	}
	return FieldError{Field: prefix, Message: err.Error()}
}
