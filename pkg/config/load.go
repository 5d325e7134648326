package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "PROXYROUTER_"

// LoadConfig loads configuration from a YAML file at the specified path.
// The file is decoded on top of Default, so omitted fields keep their
// defaults. Unknown fields are rejected. The result is validated.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML configuration on top of Default and applies
// defaults. It does not validate.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	// Default's catch-all must not survive when the file brings its own rules.
	cfg.Routing.Rules = nil

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	ApplyDefaults(cfg)
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies environment variable overrides. Variables follow the convention
// PROXYROUTER_SECTION_FIELD (e.g., PROXYROUTER_SERVER_LISTEN_ADDRESS) and
// always take precedence over the file.
//
// The loading sequence is:
// 1. Load YAML from file on top of defaults
// 2. Apply environment variable overrides
// 3. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// envOverride binds one environment variable to a config field.
type envOverride struct {
	name  string
	apply func(cfg *Config, val string) error
}

func stringVar(name string, field func(*Config) *string) envOverride {
	return envOverride{name: name, apply: func(cfg *Config, val string) error {
		*field(cfg) = val
		return nil
	}}
}

func durationVar(name string, field func(*Config) *time.Duration) envOverride {
	return envOverride{name: name, apply: func(cfg *Config, val string) error {
		d, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		*field(cfg) = d
		return nil
	}}
}

func intVar(name string, field func(*Config) *int) envOverride {
	return envOverride{name: name, apply: func(cfg *Config, val string) error {
		i, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		*field(cfg) = i
		return nil
	}}
}

func floatVar(name string, field func(*Config) *float64) envOverride {
	return envOverride{name: name, apply: func(cfg *Config, val string) error {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return err
		}
		*field(cfg) = f
		return nil
	}}
}

func boolVar(name string, field func(*Config) *bool) envOverride {
	return envOverride{name: name, apply: func(cfg *Config, val string) error {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return err
		}
		*field(cfg) = b
		return nil
	}}
}

var envOverrides = []envOverride{
	// Server overrides
	stringVar("SERVER_LISTEN_ADDRESS", func(c *Config) *string { return &c.Server.ListenAddress }),
	durationVar("SERVER_READ_TIMEOUT", func(c *Config) *time.Duration { return &c.Server.ReadTimeout }),
	durationVar("SERVER_WRITE_TIMEOUT", func(c *Config) *time.Duration { return &c.Server.WriteTimeout }),
	durationVar("SERVER_SHUTDOWN_TIMEOUT", func(c *Config) *time.Duration { return &c.Server.ShutdownTimeout }),
	boolVar("SERVER_WATCH_CONFIG", func(c *Config) *bool { return &c.Server.WatchConfig }),

	// Health overrides
	floatVar("HEALTH_MIN_HEALTHY_SCORE", func(c *Config) *float64 { return &c.Health.MinHealthyScore }),
	intVar("HEALTH_MIN_SAMPLES", func(c *Config) *int { return &c.Health.MinSamples }),

	// Budget overrides
	floatVar("BUDGET_DAILY_LIMIT", func(c *Config) *float64 { return &c.Budget.DailyLimit }),
	floatVar("BUDGET_ALERT_THRESHOLD", func(c *Config) *float64 { return &c.Budget.AlertThreshold }),
	stringVar("BUDGET_TIMEZONE", func(c *Config) *string { return &c.Budget.Timezone }),

	// Usage overrides
	stringVar("USAGE_BACKEND", func(c *Config) *string { return &c.Usage.Backend }),
	stringVar("USAGE_SQLITE_PATH", func(c *Config) *string { return &c.Usage.SQLitePath }),
	intVar("USAGE_RETENTION_DAYS", func(c *Config) *int { return &c.Usage.RetentionDays }),
	stringVar("USAGE_PRUNE_SCHEDULE", func(c *Config) *string { return &c.Usage.PruneSchedule }),

	// Store overrides
	stringVar("STORE_BACKEND", func(c *Config) *string { return &c.Store.Backend }),
	stringVar("STORE_SQLITE_PATH", func(c *Config) *string { return &c.Store.SQLite.Path }),

	// Credentials overrides
	stringVar("CREDENTIALS_ENV_PREFIX", func(c *Config) *string { return &c.Credentials.EnvPrefix }),
	stringVar("CREDENTIALS_FILE", func(c *Config) *string { return &c.Credentials.File }),
	durationVar("CREDENTIALS_CACHE_TTL", func(c *Config) *time.Duration { return &c.Credentials.CacheTTL }),

	// Request overrides
	durationVar("REQUEST_DEFAULT_TIMEOUT", func(c *Config) *time.Duration { return &c.Request.DefaultTimeout }),

	// Telemetry overrides
	stringVar("TELEMETRY_LOGGING_LEVEL", func(c *Config) *string { return &c.Telemetry.Logging.Level }),
	stringVar("TELEMETRY_LOGGING_FORMAT", func(c *Config) *string { return &c.Telemetry.Logging.Format }),
	boolVar("TELEMETRY_METRICS_ENABLED", func(c *Config) *bool { return &c.Telemetry.Metrics.Enabled }),
	stringVar("TELEMETRY_METRICS_PATH", func(c *Config) *string { return &c.Telemetry.Metrics.Path }),
	boolVar("TELEMETRY_TRACING_ENABLED", func(c *Config) *bool { return &c.Telemetry.Tracing.Enabled }),
	stringVar("TELEMETRY_TRACING_ENDPOINT", func(c *Config) *string { return &c.Telemetry.Tracing.Endpoint }),
	floatVar("TELEMETRY_TRACING_SAMPLE_RATIO", func(c *Config) *float64 { return &c.Telemetry.Tracing.SampleRatio }),
}

// applyEnvOverrides applies PROXYROUTER_* environment variables. Values
// that fail to parse are reported as a ValidationError.
func applyEnvOverrides(cfg *Config) error {
	var errs []FieldError
	for _, o := range envOverrides {
		val, ok := os.LookupEnv(EnvPrefix + o.name)
		if !ok || val == "" {
			continue
		}
		if err := o.apply(cfg, val); err != nil {
			errs = append(errs, FieldError{
				Field:   EnvPrefix + o.name,
				Message: fmt.Sprintf("invalid value %q: %v", val, err),
			})
		}
	}
	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}
