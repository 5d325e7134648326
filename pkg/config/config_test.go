package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
server:
  listen_address: "0.0.0.0:9000"
providers:
  - name: brightdata
    enabled: true
    priority: 1
    cost_per_gb: 8.4
    gateway_host: brd.superproxy.io
    gateway_port: 22225
    geo_coverage: [us, de]
    url_template_preset: brightdata
  - name: oxylabs
    enabled: true
    priority: 2
    cost_per_gb: 7
    gateway_host: pr.oxylabs.io
    gateway_port: 7777
    url_template_preset: oxylabs
routing:
  rules:
    - id: linkedin
      domain_pattern: "*.linkedin.com"
      preferred_providers: [brightdata]
      session_type: sticky
      sticky_duration_seconds: 600
      max_retries: 1
      failover: true
      priority: 10
budget:
  daily_limit: 25
usage:
  backend: memory
telemetry:
  logging:
    level: debug
    format: text
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "proxyrouter.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9000" {
		t.Errorf("ListenAddress = %q", cfg.Server.ListenAddress)
	}
	if cfg.Server.ReadTimeout != DefaultReadTimeout {
		t.Errorf("ReadTimeout = %v, want default", cfg.Server.ReadTimeout)
	}
	if len(cfg.Providers) != 2 || cfg.Providers[0].GeoCoverage[0] != "US" {
		t.Errorf("Providers = %+v", cfg.Providers)
	}
	if cfg.Providers[0].Weight != 1 {
		t.Errorf("Weight default = %v, want 1", cfg.Providers[0].Weight)
	}

	// The configured rule plus the injected catch-all.
	if len(cfg.Routing.Rules) != 2 || cfg.Routing.Rules[1].DomainPattern != "*" {
		t.Errorf("Rules = %+v", cfg.Routing.Rules)
	}
	if cfg.Budget.DailyLimit != 25 || cfg.Budget.AlertThreshold != DefaultBudgetAlertThreshold {
		t.Errorf("Budget = %+v", cfg.Budget)
	}
	if cfg.Usage.Backend != "memory" {
		t.Errorf("Usage.Backend = %q", cfg.Usage.Backend)
	}
	if !cfg.Telemetry.Metrics.Enabled || !cfg.Telemetry.Logging.RedactCredentials {
		t.Error("boolean defaults lost")
	}
	if !cfg.Store.SQLite.WALMode {
		t.Error("WALMode default lost")
	}
}

func TestLoadConfig_ExplicitFalseKept(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
telemetry:
  logging:
    redact_credentials: false
  metrics:
    enabled: false
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telemetry.Logging.RedactCredentials || cfg.Telemetry.Metrics.Enabled {
		t.Errorf("explicit false overwritten: %+v", cfg.Telemetry)
	}
}

func TestLoadConfig_EmptyFile(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if len(cfg.Routing.Rules) != 1 || !cfg.Routing.Rules[0].IsCatchAll() {
		t.Errorf("Rules = %+v, want only the default catch-all", cfg.Routing.Rules)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "unknown field", content: "servr:\n  listen_address: x\n", want: "field servr not found"},
		{name: "bad yaml", content: "server: [", want: "failed to parse"},
		{name: "bad duration", content: "server:\n  read_timeout: soon\n", want: "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadConfig() error = %v, want containing %q", err, tt.want)
			}
		})
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v", err)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, validYAML)

	t.Setenv("PROXYROUTER_SERVER_LISTEN_ADDRESS", "127.0.0.1:7000")
	t.Setenv("PROXYROUTER_BUDGET_DAILY_LIMIT", "5.5")
	t.Setenv("PROXYROUTER_REQUEST_DEFAULT_TIMEOUT", "10s")
	t.Setenv("PROXYROUTER_TELEMETRY_METRICS_ENABLED", "false")
	t.Setenv("PROXYROUTER_USAGE_RETENTION_DAYS", "7")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() error = %v", err)
	}
	if cfg.Server.ListenAddress != "127.0.0.1:7000" {
		t.Errorf("ListenAddress = %q", cfg.Server.ListenAddress)
	}
	if cfg.Budget.DailyLimit != 5.5 {
		t.Errorf("DailyLimit = %v", cfg.Budget.DailyLimit)
	}
	if cfg.Request.DefaultTimeout != 10*time.Second {
		t.Errorf("DefaultTimeout = %v", cfg.Request.DefaultTimeout)
	}
	if cfg.Telemetry.Metrics.Enabled {
		t.Error("metrics should be disabled by env")
	}
	if cfg.Usage.RetentionDays != 7 {
		t.Errorf("RetentionDays = %d", cfg.Usage.RetentionDays)
	}
}

func TestLoadConfigWithEnvOverrides_InvalidValue(t *testing.T) {
	path := writeConfig(t, validYAML)
	t.Setenv("PROXYROUTER_BUDGET_DAILY_LIMIT", "lots")

	_, err := LoadConfigWithEnvOverrides(path)
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if verr.Errors[0].Field != "PROXYROUTER_BUDGET_DAILY_LIMIT" {
		t.Errorf("Field = %q", verr.Errors[0].Field)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate(Default()) error = %v", err)
	}

	before := len(cfg.Routing.Rules)
	ApplyDefaults(cfg)
	if len(cfg.Routing.Rules) != before {
		t.Error("ApplyDefaults is not idempotent")
	}
	if cfg.Telemetry.Metrics.Namespace != DefaultMetricsNamespace {
		t.Errorf("Namespace = %q", cfg.Telemetry.Metrics.Namespace)
	}
}
