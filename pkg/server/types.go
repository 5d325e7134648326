package server

import (
	"bytes"
	"encoding/json"
	"time"

	"machinaos/proxyrouter/pkg/executor"
	"machinaos/proxyrouter/pkg/providers"
)

// ProxyRequest is the body of POST /v1/proxy/requests.
type ProxyRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`

	// Body is sent as-is when it is a JSON string, and as encoded JSON
	// otherwise.
	Body json.RawMessage `json:"body,omitempty"`

	// Timeout bounds each attempt, in seconds.
	Timeout float64 `json:"timeout,omitempty"`

	MaxRetries *int                 `json:"max_retries,omitempty"`
	Provider   string               `json:"provider,omitempty"`
	Geo        *providers.GeoTarget `json:"geo,omitempty"`

	StickySessionID string `json:"sticky_session_id,omitempty"`
	SessionID       string `json:"session_id,omitempty"`
	NodeID          string `json:"node_id,omitempty"`
	WorkflowID      string `json:"workflow_id,omitempty"`
}

// toExecutor converts the wire form into an executor.Request.
func (p *ProxyRequest) toExecutor() (executor.Request, error) {
	body, err := requestBody(p.Body)
	if err != nil {
		return executor.Request{}, providers.NewConfigError("", "body", "body must be a JSON string or JSON value")
	}
	if p.Timeout < 0 {
		return executor.Request{}, providers.NewConfigError("", "timeout", "timeout must be non-negative")
	}
	return executor.Request{
		Method:             p.Method,
		URL:                p.URL,
		Headers:            p.Headers,
		Body:               body,
		Timeout:            time.Duration(p.Timeout * float64(time.Second)),
		MaxRetriesOverride: p.MaxRetries,
		ProviderOverride:   p.Provider,
		Geo:                p.Geo,
		StickySessionID:    p.StickySessionID,
		SessionID:          p.SessionID,
		NodeID:             p.NodeID,
		WorkflowID:         p.WorkflowID,
	}, nil
}

func requestBody(raw json.RawMessage) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return []byte(s), nil
	}
	return []byte(raw), nil
}

// ProxyURLRequest is the body of POST /v1/proxy/url.
type ProxyURLRequest struct {
	URL       string               `json:"url"`
	Geo       *providers.GeoTarget `json:"geo,omitempty"`
	SessionID string               `json:"session_id,omitempty"`
	Provider  string               `json:"provider,omitempty"`
}

// ProxyURLResponse describes the proxy a target would use.
type ProxyURLResponse struct {
	ProxyURL  string `json:"proxy_url"`
	Provider  string `json:"provider"`
	RuleID    string `json:"rule_id"`
	Country   string `json:"country,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Degraded  bool   `json:"degraded"`
	Reason    string `json:"reason"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Enabled bool   `json:"enabled"`
}
