package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"machinaos/proxyrouter/pkg/providers"
	"machinaos/proxyrouter/pkg/proxy"
	"machinaos/proxyrouter/pkg/routing"
	"machinaos/proxyrouter/pkg/telemetry/logging"
	"machinaos/proxyrouter/pkg/telemetry/tracing"
	"machinaos/proxyrouter/pkg/usage"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/proxy/requests", s.handleExecute)
	mux.HandleFunc("POST /v1/proxy/url", s.handleProxyURL)
	mux.HandleFunc("GET /v1/proxy/status", s.handleStatus)

	mux.HandleFunc("GET /v1/proxy/providers", s.handleListProviders)
	mux.HandleFunc("PUT /v1/proxy/providers/{name}", s.handlePutProvider)
	mux.HandleFunc("POST /v1/proxy/providers/{name}/enable", s.handleToggleProvider(true))
	mux.HandleFunc("POST /v1/proxy/providers/{name}/disable", s.handleToggleProvider(false))

	mux.HandleFunc("GET /v1/proxy/rules", s.handleListRules)
	mux.HandleFunc("PUT /v1/proxy/rules/{id}", s.handlePutRule)
	mux.HandleFunc("DELETE /v1/proxy/rules/{id}", s.handleDeleteRule)

	mux.HandleFunc("GET /v1/proxy/usage", s.handleUsage)

	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET "+s.metricsPath, s.metrics.Handler())
	}
	if s.probes != nil {
		mux.HandleFunc("GET /livez", s.probes.LivenessHandler())
		mux.HandleFunc("GET /readyz", s.probes.ReadinessHandler())
	}

	return chain(mux,
		recovery(s.logger),
		requestID,
		tracing.Middleware(s.tracer),
		accessLog(s.logger),
		limitBody(s.config.MaxRequestBodyBytes),
	)
}

// handleExecute runs a proxied request. Execution failures are part of
// the result body, so any request that decodes is answered with 200.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var body ProxyRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	req, err := body.toExecutor()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx := logging.WithSession(r.Context(), req.SessionID)
	ctx = logging.WithWorkflow(ctx, req.WorkflowID, req.NodeID)

	writeJSON(w, http.StatusOK, s.executor.Execute(ctx, req))
}

func (s *Server) handleProxyURL(w http.ResponseWriter, r *http.Request) {
	var body ProxyURLRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	sel, err := s.service.Select(r.Context(), body.URL, proxy.SelectParams{
		Geo:              body.Geo,
		SessionID:        body.SessionID,
		ProviderOverride: body.Provider,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ProxyURLResponse{
		ProxyURL:  sel.ProxyURL,
		Provider:  sel.Provider,
		RuleID:    sel.Rule.ID,
		Country:   sel.Country,
		SessionID: sel.SessionID,
		Degraded:  sel.Degraded,
		Reason:    sel.Reason,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Status())
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.GetProviders())
}

func (s *Server) handlePutProvider(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var cfg providers.Config
	if err := decodeJSON(r, &cfg); err != nil {
		s.writeError(w, r, err)
		return
	}
	if cfg.Name == "" {
		cfg.Name = name
	}
	if cfg.Name != name {
		s.writeError(w, r, providers.NewConfigError(name, "name",
			fmt.Sprintf("body names provider %q", cfg.Name)))
		return
	}

	if err := s.service.UpsertProvider(r.Context(), cfg); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeProvider(w, r, name)
}

func (s *Server) handleToggleProvider(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if err := s.service.SetProviderEnabled(r.Context(), name, enabled); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeProvider(w, r, name)
	}
}

func (s *Server) writeProvider(w http.ResponseWriter, r *http.Request, name string) {
	for _, p := range s.service.GetProviders() {
		if p.Name == name {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	s.writeError(w, r, &proxy.ProviderNotFoundError{Name: name})
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.GetRules())
}

func (s *Server) handlePutRule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var rule routing.Rule
	if err := decodeJSON(r, &rule); err != nil {
		s.writeError(w, r, err)
		return
	}
	if rule.ID == "" {
		rule.ID = id
	}
	if rule.ID != id {
		s.writeError(w, r, providers.NewConfigError("", "routing.rules.id",
			fmt.Sprintf("body names rule %q", rule.ID)))
		return
	}

	if err := s.service.UpsertRule(r.Context(), rule); err != nil {
		s.writeError(w, r, err)
		return
	}
	for _, got := range s.service.GetRules() {
		if got.ID == id {
			writeJSON(w, http.StatusOK, got)
			return
		}
	}
	s.writeError(w, r, &routing.RuleNotFoundError{ID: id})
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteRule(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		writeErrorMessage(w, http.StatusNotFound, errTypeNotFound, "usage ledger is not configured")
		return
	}

	filter, err := usageFilter(r, time.Now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	summary, err := s.usage.Summarize(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Enabled: s.service.IsEnabled()})
}

// usageFilter reads session_id, workflow_id, provider and since. since is
// an RFC 3339 timestamp or a duration back from now, e.g. "24h".
func usageFilter(r *http.Request, now time.Time) (usage.Filter, error) {
	q := r.URL.Query()
	f := usage.Filter{
		SessionID:  q.Get("session_id"),
		WorkflowID: q.Get("workflow_id"),
		Provider:   q.Get("provider"),
	}
	if since := strings.TrimSpace(q.Get("since")); since != "" {
		t, err := ParseSince(since, now)
		if err != nil {
			return usage.Filter{}, providers.NewConfigError("", "since", err.Error())
		}
		f.Since = t
	}
	return f, nil
}

// ParseSince parses an RFC 3339 timestamp or a duration before now.
func ParseSince(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("since %q is neither an RFC 3339 time nor a positive duration", s)
	}
	return now.Add(-d), nil
}

// decodeJSON decodes a single JSON object, rejecting unknown fields.
// Decoding failures are reported as configuration errors.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return providers.NewConfigError("", "body", "request body is empty")
		}
		return providers.NewConfigError("", "body", fmt.Sprintf("invalid JSON: %v", err))
	}
	return nil
}
