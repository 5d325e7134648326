// Package telemetry groups the proxy router's observability packages.
//
//   - logging: slog setup, request-scoped loggers and credential redaction
//   - metrics: Prometheus counters and histograms per provider and request
//   - tracing: OpenTelemetry spans per proxied request and attempt
//   - probe: liveness and readiness endpoints
//
// Proxy URLs embed provider passwords. Every package here treats them as
// secrets: logs mask the password, metrics label by provider name only and
// spans record the target host, never a URL.
package telemetry
