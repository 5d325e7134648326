package routing

import (
	"fmt"
	"path"
	"strings"

	"machinaos/proxyrouter/pkg/providers"
)

// CatchAllPattern matches every hostname.
const CatchAllPattern = "*"

// Rule maps target hostnames to a provider subset, geo constraint, session
// mode and retry policy.
type Rule struct {
	// ID uniquely identifies the rule.
	ID string `json:"id" yaml:"id"`

	// DomainPattern is a case-insensitive glob over the target hostname,
	// e.g. "*.linkedin.com" or "*".
	DomainPattern string `json:"domain_pattern" yaml:"domain_pattern"`

	// PreferredProviders restricts selection to these providers, in order
	// of preference. Empty means any provider.
	PreferredProviders []string `json:"preferred_providers,omitempty" yaml:"preferred_providers"`

	// RequiredCountry forces an exit country (ISO-3166-1 alpha-2).
	RequiredCountry string `json:"required_country,omitempty" yaml:"required_country"`

	// SessionType selects rotating or sticky exits. Default: rotating
	SessionType providers.SessionType `json:"session_type" yaml:"session_type"`

	// StickyDurationSeconds is the requested sticky session lifetime.
	StickyDurationSeconds int `json:"sticky_duration_seconds,omitempty" yaml:"sticky_duration_seconds"`

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// Failover allows retries to move to a different provider.
	Failover bool `json:"failover" yaml:"failover"`

	// MinSuccessRate skips providers whose success rate fell below it,
	// even when preferred (0 disables the check).
	MinSuccessRate float64 `json:"min_success_rate,omitempty" yaml:"min_success_rate"`

	// Priority orders rule evaluation; lower values are evaluated first.
	Priority int `json:"priority" yaml:"priority"`
}

// IsCatchAll reports whether the rule matches every hostname.
func (r *Rule) IsCatchAll() bool {
	return strings.TrimSpace(r.DomainPattern) == CatchAllPattern
}

// Normalize fills defaults and canonicalizes fields in place.
func (r *Rule) Normalize() {
	r.ID = strings.TrimSpace(r.ID)
	r.DomainPattern = strings.ToLower(strings.TrimSpace(r.DomainPattern))
	r.RequiredCountry = strings.ToUpper(strings.TrimSpace(r.RequiredCountry))
	if r.SessionType == "" {
		r.SessionType = providers.SessionRotating
	}
	if len(r.PreferredProviders) > 0 {
		preferred := make([]string, 0, len(r.PreferredProviders))
		for _, p := range r.PreferredProviders {
			if p = strings.TrimSpace(p); p != "" {
				preferred = append(preferred, p)
			}
		}
		r.PreferredProviders = preferred
	}
}

// Validate checks the rule's fields. Errors are *providers.ConfigError.
func (r *Rule) Validate() error {
	field := func(name string) string {
		return fmt.Sprintf("routing.rules[%s].%s", r.ID, name)
	}

	if r.ID == "" {
		return providers.NewConfigError("", "routing.rules.id", "rule id is required")
	}
	if r.DomainPattern == "" {
		return providers.NewConfigError("", field("domain_pattern"), "domain pattern is required")
	}
	if _, err := path.Match(r.DomainPattern, ""); err != nil {
		return providers.NewConfigError("", field("domain_pattern"),
			fmt.Sprintf("invalid glob %q: %v", r.DomainPattern, err))
	}
	if _, err := providers.ParseSessionType(string(r.SessionType)); err != nil {
		return providers.NewConfigError("", field("session_type"), err.Error())
	}
	if r.StickyDurationSeconds < 0 {
		return providers.NewConfigError("", field("sticky_duration_seconds"), "must be non-negative")
	}
	if r.MaxRetries < 0 {
		return providers.NewConfigError("", field("max_retries"), "must be non-negative")
	}
	if r.MinSuccessRate < 0 || r.MinSuccessRate > 1 {
		return providers.NewConfigError("", field("min_success_rate"),
			fmt.Sprintf("must be between 0 and 1, got %v", r.MinSuccessRate))
	}
	if r.RequiredCountry != "" && !providers.IsCountryCode(r.RequiredCountry) {
		return providers.NewConfigError("", field("required_country"),
			fmt.Sprintf("%q is not an ISO-3166-1 alpha-2 country code", r.RequiredCountry))
	}
	return nil
}

// Clone returns a deep copy of the rule.
func (r Rule) Clone() Rule {
	if r.PreferredProviders != nil {
		r.PreferredProviders = append([]string(nil), r.PreferredProviders...)
	}
	return r
}

// DefaultCatchAll is the rule injected when a configuration defines none.
func DefaultCatchAll() Rule {
	return Rule{
		ID:            "default",
		DomainPattern: CatchAllPattern,
		SessionType:   providers.SessionRotating,
		MaxRetries:    2,
		Failover:      true,
		Priority:      1000,
	}
}
