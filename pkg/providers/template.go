package providers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"
)

// ParamField selects which credential field carries the rendered geo and
// session parameters.
type ParamField int

const (
	// UsernameEncoded appends parameters to the username (most vendors).
	UsernameEncoded ParamField = iota

	// PasswordEncoded appends parameters to the password.
	PasswordEncoded

	// Unencoded leaves both credentials untouched.
	Unencoded
)

// String returns the template spelling of the field.
func (f ParamField) String() string {
	switch f {
	case UsernameEncoded:
		return "username"
	case PasswordEncoded:
		return "password"
	case Unencoded:
		return "none"
	default:
		return fmt.Sprintf("ParamField(%d)", int(f))
	}
}

func parseParamField(s string) (ParamField, bool) {
	switch s {
	case "", "username":
		return UsernameEncoded, true
	case "password":
		return PasswordEncoded, true
	case "none":
		return Unencoded, true
	default:
		return 0, false
	}
}

// CountryCase controls how country codes are rendered.
type CountryCase string

const (
	CountryLower CountryCase = "lower"
	CountryUpper CountryCase = "upper"
	CountryAsIs  CountryCase = "asis"
)

// Semantic parameter keys understood in param_keys.
const (
	KeyCountry         = "country"
	KeyState           = "state"
	KeyCity            = "city"
	KeySessionID       = "session_id"
	KeySessionDuration = "session_duration"
)

var knownParamKeys = map[string]bool{
	KeyCountry:         true,
	KeyState:           true,
	KeyCity:            true,
	KeySessionID:       true,
	KeySessionDuration: true,
}

const (
	usernamePlaceholder = "{username}"
	valuePlaceholder    = "{v}"
)

// Template is a validated, declarative credential-encoding scheme for one
// proxy vendor. A zero Template is not valid; use ParseTemplate or
// ResolveTemplate.
type Template struct {
	paramField             ParamField
	usernamePrefix         string
	usernameParamSeparator string
	paramSeparator         string
	paramKeys              map[string]string
	countryCase            CountryCase
	citySeparator          string
}

// templateDocument is the on-disk JSON shape of a template.
type templateDocument struct {
	ParamField             string            `json:"param_field"`
	UsernamePrefix         *string           `json:"username_prefix"`
	UsernameParamSeparator *string           `json:"username_param_separator"`
	ParamSeparator         *string           `json:"param_separator"`
	ParamKeys              map[string]string `json:"param_keys"`
	CountryCase            string            `json:"country_case"`
	CitySeparator          *string           `json:"city_separator"`
}

// ParseTemplate parses and validates a JSONC template document.
// Comments and trailing commas are allowed; unknown fields are rejected.
// All problems are reported as *ConfigError.
func ParseTemplate(data []byte) (*Template, error) {
	stripped := jsonc.ToJSON(data)
	if len(bytes.TrimSpace(stripped)) == 0 {
		return nil, NewConfigError("", "url_template", "template is empty")
	}

	dec := json.NewDecoder(bytes.NewReader(stripped))
	dec.DisallowUnknownFields()

	var doc templateDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, NewConfigError("", "url_template", fmt.Sprintf("invalid template JSON: %v", err))
	}

	field, ok := parseParamField(doc.ParamField)
	if !ok {
		return nil, NewConfigError("", "url_template.param_field",
			fmt.Sprintf("unknown value %q (valid: username, password, none)", doc.ParamField))
	}

	t := &Template{
		paramField:             field,
		usernamePrefix:         stringOr(doc.UsernamePrefix, usernamePlaceholder),
		usernameParamSeparator: stringOr(doc.UsernameParamSeparator, "-"),
		paramSeparator:         stringOr(doc.ParamSeparator, "-"),
		paramKeys:              make(map[string]string, len(doc.ParamKeys)),
		countryCase:            CountryLower,
		citySeparator:          stringOr(doc.CitySeparator, "_"),
	}

	switch CountryCase(doc.CountryCase) {
	case "":
	case CountryLower, CountryUpper, CountryAsIs:
		t.countryCase = CountryCase(doc.CountryCase)
	default:
		return nil, NewConfigError("", "url_template.country_case",
			fmt.Sprintf("unknown value %q (valid: lower, upper, asis)", doc.CountryCase))
	}

	if !strings.Contains(t.usernamePrefix, usernamePlaceholder) {
		return nil, NewConfigError("", "url_template.username_prefix",
			fmt.Sprintf("prefix %q must contain %s", t.usernamePrefix, usernamePlaceholder))
	}

	keys := make([]string, 0, len(doc.ParamKeys))
	for k := range doc.ParamKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		format := doc.ParamKeys[k]
		if !knownParamKeys[k] {
			return nil, NewConfigError("", "url_template.param_keys",
				fmt.Sprintf("unknown parameter key %q", k))
		}
		if !strings.Contains(format, valuePlaceholder) {
			return nil, NewConfigError("", "url_template.param_keys."+k,
				fmt.Sprintf("format %q must contain %s", format, valuePlaceholder))
		}
		t.paramKeys[k] = format
	}

	return t, nil
}

// ResolveTemplate returns the parsed template for a provider: its inline
// URLTemplate if set, else the named preset, else the "plain" preset.
// Errors are tagged with the provider name.
func ResolveTemplate(cfg *Config) (*Template, error) {
	var (
		t   *Template
		err error
	)
	switch {
	case strings.TrimSpace(cfg.URLTemplate) != "":
		t, err = ParseTemplate([]byte(cfg.URLTemplate))
	case cfg.URLTemplatePreset != "":
		t, err = Preset(cfg.URLTemplatePreset)
	default:
		t, err = Preset(PresetPlain)
	}
	if err != nil {
		if ce, ok := err.(*ConfigError); ok {
			ce.Provider = cfg.Name
			return nil, ce
		}
		return nil, &ConfigError{Provider: cfg.Name, Field: "url_template", Message: err.Error()}
	}
	return t, nil
}

// ParamField returns where parameters are encoded.
func (t *Template) ParamField() ParamField { return t.paramField }

// HasParam reports whether the template renders the given semantic key.
func (t *Template) HasParam(key string) bool {
	_, ok := t.paramKeys[key]
	return ok
}

func stringOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}
