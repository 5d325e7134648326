// Package server exposes the proxy router over HTTP.
//
// Routes:
//
//   - POST /v1/proxy/requests - execute a proxied request with failover
//   - POST /v1/proxy/url - show the proxy a target URL would use
//   - GET /v1/proxy/status - providers, health, rules and budget
//   - GET /v1/proxy/providers, PUT /v1/proxy/providers/{name}
//   - POST /v1/proxy/providers/{name}/enable, .../disable
//   - GET /v1/proxy/rules, PUT and DELETE /v1/proxy/rules/{id}
//   - GET /v1/proxy/usage - spend summary by provider
//   - GET /health, GET /metrics
//
// Requests pass through panic recovery, request ID assignment, access
// logging and a body size cap, outermost first.
//
// A proxied request that fails upstream is still answered with 200: the
// JSON result carries success=false, the attempt count and the last
// error. Non-2xx statuses are reserved for calls the router itself
// rejects: 400 for configuration errors, 402 while the daily budget is
// exhausted, 404 for unknown providers or rules, 409 when deleting the
// last catch-all rule, 503 when no provider is available.
package server
