package executor

import (
	"time"

	"machinaos/proxyrouter/pkg/providers"
)

// Request is one logical proxied HTTP request.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte

	// Timeout bounds each attempt. Zero uses the executor default.
	Timeout time.Duration

	// MaxRetriesOverride replaces the routing rule's max_retries.
	MaxRetriesOverride *int

	// ProviderOverride forces a provider for every attempt.
	ProviderOverride string

	Geo *providers.GeoTarget

	// StickySessionID keys sticky exit bindings. Defaults to SessionID.
	StickySessionID string

	// SessionID, NodeID and WorkflowID attribute usage records.
	SessionID  string
	NodeID     string
	WorkflowID string
}

// Result is the structured outcome of Execute. Failures are reported
// here, never as Go errors, so callers can branch on Success.
type Result struct {
	Success bool `json:"success"`

	// Status is the HTTP status of the last response (0 when none).
	Status int `json:"status"`

	// Data is the decoded JSON body, or the body as a string.
	Data any `json:"data,omitempty"`

	Headers map[string]string `json:"headers,omitempty"`
	URL     string            `json:"url"`

	// Provider served the last attempt.
	Provider string `json:"provider,omitempty"`

	// LatencyMs is the wall-clock time of the last attempt.
	LatencyMs float64 `json:"latency_ms"`

	// Bytes and Cost sum over all attempts.
	Bytes int64   `json:"bytes"`
	Cost  float64 `json:"cost"`

	// Attempt is the number of attempts made.
	Attempt int `json:"attempt"`

	Error string `json:"error,omitempty"`
}
