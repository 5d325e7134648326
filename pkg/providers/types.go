package providers

import (
	"fmt"
	"strings"
	"time"
)

// SessionType controls whether consecutive requests may exit through
// different IPs (rotating) or are pinned to one exit IP (sticky).
type SessionType string

const (
	// SessionRotating lets every request exit through a different IP.
	SessionRotating SessionType = "rotating"

	// SessionSticky pins the exit IP for a bounded duration using a session
	// id embedded in the proxy credentials.
	SessionSticky SessionType = "sticky"
)

// ParseSessionType parses a session type name. An empty string means rotating.
func ParseSessionType(s string) (SessionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(SessionRotating):
		return SessionRotating, nil
	case string(SessionSticky):
		return SessionSticky, nil
	default:
		return "", fmt.Errorf("unknown session type %q (valid: rotating, sticky)", s)
	}
}

// Config is the static definition of an upstream proxy provider.
// Name is the unique key and never changes once the provider exists.
type Config struct {
	// Name uniquely identifies the provider (e.g., "brightdata", "oxylabs").
	Name string `json:"name" yaml:"name"`

	// Enabled controls whether the provider takes part in selection.
	// Disabling keeps health history and usage records.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Priority orders providers; lower values are preferred.
	Priority int `json:"priority" yaml:"priority"`

	// Weight is used for the weighted random tie-break between providers
	// with identical health and priority. Default: 1
	Weight float64 `json:"weight" yaml:"weight"`

	// CostPerGB is the provider's traffic price in USD per GiB.
	CostPerGB float64 `json:"cost_per_gb" yaml:"cost_per_gb"`

	// GatewayHost and GatewayPort address the provider's proxy gateway.
	GatewayHost string `json:"gateway_host" yaml:"gateway_host"`
	GatewayPort int    `json:"gateway_port" yaml:"gateway_port"`

	// GeoCoverage lists the ISO-3166-1 alpha-2 countries the provider can
	// exit from. Empty means global coverage.
	GeoCoverage []string `json:"geo_coverage" yaml:"geo_coverage"`

	// StickySupport reports whether the provider supports sticky sessions.
	StickySupport bool `json:"sticky_support" yaml:"sticky_support"`

	// MaxStickySeconds caps the sticky session duration (0 = no cap).
	MaxStickySeconds int `json:"max_sticky_seconds" yaml:"max_sticky_seconds"`

	// MaxConcurrent limits in-flight requests through this provider
	// (0 = unlimited).
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent"`

	// URLTemplate is the JSON (or JSONC) credential formatting template.
	URLTemplate string `json:"url_template,omitempty" yaml:"url_template"`

	// URLTemplatePreset names a bundled template used when URLTemplate is empty.
	URLTemplatePreset string `json:"url_template_preset,omitempty" yaml:"url_template_preset"`

	// UpdatedAt is set by the config store on every save.
	UpdatedAt time.Time `json:"updated_at,omitempty" yaml:"-"`
}

// Covers reports whether the provider can exit from the given country.
// An empty country or an empty coverage list always matches.
func (c *Config) Covers(country string) bool {
	if country == "" || len(c.GeoCoverage) == 0 {
		return true
	}
	for _, cc := range c.GeoCoverage {
		if strings.EqualFold(cc, country) {
			return true
		}
	}
	return false
}

// Normalize fills defaults and canonicalizes country codes in place.
func (c *Config) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.GatewayHost = strings.TrimSpace(c.GatewayHost)
	if c.Weight == 0 {
		c.Weight = 1
	}
	for i, cc := range c.GeoCoverage {
		c.GeoCoverage[i] = strings.ToUpper(strings.TrimSpace(cc))
	}
}

// Validate checks the static fields of the provider definition. The URL
// template is validated separately by ResolveTemplate.
func (c *Config) Validate() error {
	if c.Name == "" {
		return NewConfigError("", "name", "provider name is required")
	}
	if c.GatewayHost == "" {
		return NewConfigError(c.Name, "gateway_host", "gateway host is required")
	}
	if c.GatewayPort <= 0 || c.GatewayPort > 65535 {
		return NewConfigError(c.Name, "gateway_port",
			fmt.Sprintf("gateway port must be between 1 and 65535, got %d", c.GatewayPort))
	}
	if c.Priority < 0 {
		return NewConfigError(c.Name, "priority", "priority must be non-negative")
	}
	if c.Weight < 0 {
		return NewConfigError(c.Name, "weight", "weight must be non-negative")
	}
	if c.CostPerGB < 0 {
		return NewConfigError(c.Name, "cost_per_gb", "cost per GB must be non-negative")
	}
	if c.MaxStickySeconds < 0 {
		return NewConfigError(c.Name, "max_sticky_seconds", "max sticky seconds must be non-negative")
	}
	if c.MaxConcurrent < 0 {
		return NewConfigError(c.Name, "max_concurrent", "max concurrent must be non-negative")
	}
	for _, cc := range c.GeoCoverage {
		if !IsCountryCode(cc) {
			return NewConfigError(c.Name, "geo_coverage",
				fmt.Sprintf("%q is not an ISO-3166-1 alpha-2 country code", cc))
		}
	}
	return nil
}

// Clone returns a deep copy of the config.
func (c Config) Clone() Config {
	if c.GeoCoverage != nil {
		c.GeoCoverage = append([]string(nil), c.GeoCoverage...)
	}
	return c
}

// IsCountryCode reports whether s looks like an ISO-3166-1 alpha-2 code.
func IsCountryCode(s string) bool {
	if len(s) != 2 {
		return false
	}
	for i := 0; i < 2; i++ {
		ch := s[i] | 0x20
		if ch < 'a' || ch > 'z' {
			return false
		}
	}
	return true
}

// GeoTarget is the requested exit location. All fields are optional.
type GeoTarget struct {
	Country string `json:"country,omitempty" yaml:"country"`
	State   string `json:"state,omitempty" yaml:"state"`
	City    string `json:"city,omitempty" yaml:"city"`
}

// IsZero reports whether no geo field is set.
func (g *GeoTarget) IsZero() bool {
	return g == nil || (g.Country == "" && g.State == "" && g.City == "")
}

// Credentials are the provider account credentials before any template
// parameters are encoded into them.
type Credentials struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}
