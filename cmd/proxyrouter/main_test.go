package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testConfig = `
server:
  listen_address: "127.0.0.1:0"
providers:
  - name: gw
    enabled: true
    priority: 1
    cost_per_gb: 5
    gateway_host: gw.example
    gateway_port: 8000
    url_template_preset: plain
  - name: backup
    enabled: true
    priority: 2
    cost_per_gb: 2
    gateway_host: backup.example
    gateway_port: 9000
    url_template_preset: plain
routing:
  rules:
    - id: shop
      domain_pattern: "*.shop.example"
      preferred_providers: [backup]
      priority: 10
budget:
  daily_limit: 10
store:
  backend: memory
usage:
  backend: sqlite
  sqlite_path: {{USAGE}}
telemetry:
  logging:
    level: error
`

// writeTestConfig writes testConfig with a temp usage database and
// returns the config path.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	content := strings.ReplaceAll(testConfig, "{{USAGE}}", filepath.Join(dir, "usage.db"))
	path := filepath.Join(dir, "proxyrouter.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}
