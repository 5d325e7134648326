package proxy

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"time"

	"machinaos/proxyrouter/pkg/health"
	"machinaos/proxyrouter/pkg/providers"
	"machinaos/proxyrouter/pkg/routing"
)

// SelectParams are the per-request inputs to provider selection.
type SelectParams struct {
	// Geo is the requested exit location. A rule's RequiredCountry
	// overrides Geo.Country.
	Geo *providers.GeoTarget

	// SessionID identifies the caller's logical session. Under a sticky
	// rule, requests with the same SessionID keep their provider and
	// exit IP until the sticky duration elapses.
	SessionID string

	// ProviderOverride forces a provider, bypassing health ranking and
	// the rule's preferred list. The provider must be enabled.
	ProviderOverride string

	// Avoid lists providers already tried for this logical request. They
	// are only chosen when nothing else qualifies.
	Avoid []string
}

// defaultStickyTTL bounds bindings when neither rule nor provider states a
// sticky duration.
const defaultStickyTTL = 10 * time.Minute

// Selection is the outcome of a successful Select.
type Selection struct {
	Provider string
	ProxyURL string
	Rule     routing.Rule
	Country  string

	// SessionID is the provider-side sticky session id (empty for
	// rotating sessions).
	SessionID string

	// Degraded is true when no healthy provider existed and the least
	// unhealthy one was used.
	Degraded bool

	// Reason is how the provider was chosen: "healthy", "degraded",
	// "override", "pinned" or "sticky".
	Reason string
}

// Select matches target to a routing rule, picks a provider and renders
// its proxy URL.
//
// Errors:
//   - *NoHealthyProviderError when the service is disabled or no
//     provider passes the rule's filters
//   - *budget.BudgetExceededError while the daily budget is exhausted
//   - *providers.ConfigError for unmatched targets or template failures
//   - *providers.ProviderError when credentials cannot be loaded
func (s *Service) Select(ctx context.Context, target string, params SelectParams) (*Selection, error) {
	snap := s.snap.Load()

	if !snap.enabled {
		s.metrics.RecordSelectionFailure("no_provider")
		return nil, &NoHealthyProviderError{Reason: "no enabled providers configured"}
	}

	if s.budget != nil {
		if err := s.budget.Err(); err != nil {
			s.metrics.RecordSelectionFailure("budget")
			return nil, err
		}
	}

	rule, err := snap.table.Match(target)
	if err != nil {
		s.matches.RecordError()
		s.metrics.RecordSelectionFailure("config")
		return nil, err
	}
	s.matches.RecordMatch(rule)

	country := rule.RequiredCountry
	if country == "" && params.Geo != nil {
		country = strings.ToUpper(strings.TrimSpace(params.Geo.Country))
	}
	host, _ := routing.Hostname(target)

	entry, reason, degraded, bound, err := s.choose(snap, rule, country, params)
	if err != nil {
		var nhp *NoHealthyProviderError
		if errors.As(err, &nhp) {
			nhp.Target = host
			s.metrics.RecordSelectionFailure("no_provider")
		} else {
			s.metrics.RecordSelectionFailure("config")
		}
		return nil, err
	}

	sel, err := s.render(ctx, entry, rule, country, params, bound)
	if err != nil {
		return nil, err
	}
	sel.Degraded = degraded
	sel.Reason = reason

	s.metrics.RecordSelection(rule.ID, entry.config.Name, reason)
	s.logger.Debug("proxy selected",
		"target", host,
		"rule_id", rule.ID,
		"provider", entry.config.Name,
		"reason", reason,
		"country", country,
	)
	return sel, nil
}

// GetProxyURL returns the proxy URL for target. An empty string with a
// nil error means no provider is available.
func (s *Service) GetProxyURL(ctx context.Context, target string, params SelectParams) (string, error) {
	sel, err := s.Select(ctx, target, params)
	if errors.Is(err, ErrNoProviderAvailable) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return sel.ProxyURL, nil
}

// choose picks the provider entry. bound is the reused sticky binding,
// if any.
func (s *Service) choose(snap *snapshot, rule routing.Rule, country string, params SelectParams) (entry *providerEntry, reason string, degraded bool, bound *binding, err error) {
	noProvider := func(reason string) error {
		return &NoHealthyProviderError{RuleID: rule.ID, Country: country, Reason: reason}
	}

	if name := strings.TrimSpace(params.ProviderOverride); name != "" {
		e, ok := snap.providers[name]
		if !ok {
			return nil, "", false, nil, providers.NewConfigError(name, "provider_override", "unknown provider")
		}
		if !e.config.Enabled {
			return nil, "", false, nil, noProvider("provider " + name + " is disabled")
		}
		return e, "override", false, nil, nil
	}

	if b, ok := s.reusableBinding(snap, rule, params); ok {
		return snap.providers[b.Provider], "sticky", false, &b, nil
	}

	candidates, preferredOnly := candidatesFor(snap, rule, country)
	if len(candidates) == 0 {
		if country != "" {
			return nil, "", false, nil, noProvider("no enabled provider covers country " + country)
		}
		return nil, "", false, nil, noProvider("no enabled provider matches")
	}

	// Explicit provider lists are never overridden when failover is off.
	if !rule.Failover && preferredOnly {
		for _, name := range rule.PreferredProviders {
			for _, c := range candidates {
				if c.config.Name == name {
					return c, "pinned", !s.health.HealthyFor(name, rule.MinSuccessRate), nil, nil
				}
			}
		}
	}

	ranked := s.rank(candidates, rule, params.Avoid)
	top := ranked[0]
	if top.Healthy {
		return snap.providers[top.Name], "healthy", false, nil, nil
	}
	return snap.providers[top.Name], "degraded", true, nil, nil
}

// candidatesFor filters enabled providers by country and the rule's
// preferred list. When the preferred list leaves nothing, every enabled
// provider covering the country qualifies; preferredOnly reports which
// case applied.
func candidatesFor(snap *snapshot, rule routing.Rule, country string) (out []*providerEntry, preferredOnly bool) {
	var fallback []*providerEntry
	for _, e := range snap.ordered {
		if !e.config.Enabled || !e.config.Covers(country) {
			continue
		}
		fallback = append(fallback, e)
		if len(rule.PreferredProviders) > 0 && slices.Contains(rule.PreferredProviders, e.config.Name) {
			out = append(out, e)
		}
	}
	if len(out) > 0 {
		return out, true
	}
	return fallback, false
}

// rank orders candidates by health, then moves saturated providers and
// providers in avoid behind the rest, keeping relative order.
func (s *Service) rank(candidates []*providerEntry, rule routing.Rule, avoid []string) []health.Ranked {
	cands := make([]health.Candidate, len(candidates))
	for i, e := range candidates {
		cands[i] = health.Candidate{
			Name:           e.config.Name,
			Priority:       e.config.Priority,
			Weight:         e.config.Weight,
			MinSuccessRate: rule.MinSuccessRate,
		}
	}
	ranked := s.health.Rank(cands)

	penalty := func(r health.Ranked) int {
		p := 0
		if slices.Contains(avoid, r.Name) {
			p += 2
		}
		if s.limits.Get(r.Name).Saturated() {
			p++
		}
		return p
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return penalty(ranked[i]) < penalty(ranked[j])
	})
	return ranked
}

// reusableBinding returns the caller session's sticky binding when the
// bound provider can still serve it.
func (s *Service) reusableBinding(snap *snapshot, rule routing.Rule, params SelectParams) (binding, bool) {
	if rule.SessionType != providers.SessionSticky || params.SessionID == "" {
		return binding{}, false
	}
	b, ok := s.sticky.get(rule.ID, params.SessionID)
	if !ok {
		return binding{}, false
	}
	e, exists := snap.providers[b.Provider]
	if !exists || !e.config.Enabled || slices.Contains(params.Avoid, b.Provider) {
		return binding{}, false
	}
	if !s.health.HealthyFor(b.Provider, rule.MinSuccessRate) {
		return binding{}, false
	}
	return b, true
}

// render resolves credentials and formats the proxy URL.
func (s *Service) render(ctx context.Context, e *providerEntry, rule routing.Rule, country string, params SelectParams, bound *binding) (*Selection, error) {
	name := e.config.Name

	var creds providers.Credentials
	if s.creds != nil {
		c, err := s.creds.GetProviderCredentials(ctx, name)
		if err != nil {
			return nil, &providers.ProviderError{Provider: name, Message: "loading credentials", Cause: err}
		}
		if c != nil {
			creds = *c
		}
	}

	geo := &providers.GeoTarget{Country: country}
	if params.Geo != nil {
		geo.State = params.Geo.State
		geo.City = params.Geo.City
	}

	req := providers.FormatRequest{
		Username:     creds.Username,
		Password:     creds.Password,
		Host:         e.config.GatewayHost,
		Port:         e.config.GatewayPort,
		Geo:          geo,
		SessionType:  providers.SessionRotating,
		NewSessionID: s.newSessionID,
	}

	sticky := rule.SessionType == providers.SessionSticky && e.config.StickySupport
	var ttl time.Duration
	if sticky {
		var secs int
		secs, ttl = stickyDuration(rule, e.config)
		req.SessionType = providers.SessionSticky
		req.StickyDurationMinutes = (secs + 59) / 60
		if bound != nil {
			req.SessionID = bound.ProxySession
		} else {
			req.SessionID = s.newSessionID()
		}
	}

	proxyURL, err := e.template.FormatProxyURL(req)
	if err != nil {
		var ce *providers.ConfigError
		if errors.As(err, &ce) && ce.Provider == "" {
			ce.Provider = name
		}
		return nil, err
	}

	if sticky && bound == nil && params.SessionID != "" {
		s.sticky.set(rule.ID, params.SessionID, binding{Provider: name, ProxySession: req.SessionID}, ttl)
	}

	sel := &Selection{
		Provider: name,
		ProxyURL: proxyURL,
		Rule:     rule,
		Country:  country,
	}
	if sticky {
		sel.SessionID = req.SessionID
	}
	return sel, nil
}

// stickyDuration returns the requested duration in seconds, clamped to
// the provider maximum (0 when the rule leaves it to the provider), and
// how long the session binding is kept.
func stickyDuration(rule routing.Rule, cfg providers.Config) (int, time.Duration) {
	secs := rule.StickyDurationSeconds
	if cfg.MaxStickySeconds > 0 && secs > cfg.MaxStickySeconds {
		secs = cfg.MaxStickySeconds
	}
	switch {
	case secs > 0:
		return secs, time.Duration(secs) * time.Second
	case cfg.MaxStickySeconds > 0:
		return 0, time.Duration(cfg.MaxStickySeconds) * time.Second
	default:
		return 0, defaultStickyTTL
	}
}
