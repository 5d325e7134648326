package routing

import (
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"

	"golang.org/x/net/idna"

	"machinaos/proxyrouter/pkg/providers"
)

// compiledRule is a validated rule with its normalized pattern.
type compiledRule struct {
	rule    Rule
	pattern string

	// prefix is the length of the literal text before the first wildcard.
	prefix int

	// literals counts all non-wildcard characters.
	literals int
}

// Table is an immutable, validated set of routing rules.
// Build a new Table to change rules.
type Table struct {
	// rules sorted by priority ascending, then ID
	rules []compiledRule
}

// NewTable validates rules and compiles their patterns. Rule IDs must be
// unique. A table without a catch-all rule is allowed, but Match fails
// for hostnames no rule matches.
func NewTable(rules []Rule) (*Table, error) {
	seen := make(map[string]bool, len(rules))
	compiled := make([]compiledRule, 0, len(rules))

	for _, r := range rules {
		r = r.Clone()
		r.Normalize()
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if seen[r.ID] {
			return nil, providers.NewConfigError("", "routing.rules.id",
				fmt.Sprintf("duplicate rule id %q", r.ID))
		}
		seen[r.ID] = true

		pattern := normalizePattern(r.DomainPattern)
		compiled = append(compiled, compiledRule{
			rule:     r,
			pattern:  pattern,
			prefix:   literalPrefix(pattern),
			literals: literalCount(pattern),
		})
	}

	sort.SliceStable(compiled, func(i, j int) bool {
		if compiled[i].rule.Priority != compiled[j].rule.Priority {
			return compiled[i].rule.Priority < compiled[j].rule.Priority
		}
		return compiled[i].rule.ID < compiled[j].rule.ID
	})

	return &Table{rules: compiled}, nil
}

// Match returns the single rule that applies to rawURL.
//
// Rules are evaluated in ascending priority. Among matching rules with the
// lowest priority value, the one with the longest literal prefix before
// its first wildcard wins, then the one with the most literal characters
// overall, then the longer pattern, then the lower ID. When no
// rule matches and no catch-all exists, Match returns a
// *providers.ConfigError.
func (t *Table) Match(rawURL string) (Rule, error) {
	host, err := Hostname(rawURL)
	if err != nil {
		return Rule{}, err
	}

	var best *compiledRule
	for i := range t.rules {
		cr := &t.rules[i]
		if best != nil && cr.rule.Priority > best.rule.Priority {
			break
		}
		if !cr.matches(host) {
			continue
		}
		if best == nil || cr.moreSpecificThan(best) {
			best = cr
		}
	}

	if best == nil {
		return Rule{}, providers.NewConfigError("", "routing.rules",
			fmt.Sprintf("no routing rule matches %q and no catch-all %q rule is configured", host, CatchAllPattern))
	}
	return best.rule.Clone(), nil
}

// Rules returns copies of all rules in evaluation order.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	for i, cr := range t.rules {
		out[i] = cr.rule.Clone()
	}
	return out
}

// Get returns the rule with the given ID.
func (t *Table) Get(id string) (Rule, bool) {
	for _, cr := range t.rules {
		if cr.rule.ID == id {
			return cr.rule.Clone(), true
		}
	}
	return Rule{}, false
}

// CatchAll returns the catch-all rule that would apply to an unmatched
// hostname.
func (t *Table) CatchAll() (Rule, bool) {
	for _, cr := range t.rules {
		if cr.pattern == CatchAllPattern {
			return cr.rule.Clone(), true
		}
	}
	return Rule{}, false
}

// Len returns the number of rules.
func (t *Table) Len() int {
	return len(t.rules)
}

func (cr *compiledRule) matches(host string) bool {
	ok, err := path.Match(cr.pattern, host)
	return err == nil && ok
}

func (cr *compiledRule) moreSpecificThan(other *compiledRule) bool {
	if cr.prefix != other.prefix {
		return cr.prefix > other.prefix
	}
	if cr.literals != other.literals {
		return cr.literals > other.literals
	}
	if len(cr.pattern) != len(other.pattern) {
		return len(cr.pattern) > len(other.pattern)
	}
	return cr.rule.ID < other.rule.ID
}

// Hostname extracts the lower-cased, ASCII (punycode) hostname from a URL.
// A missing scheme is tolerated: "example.com/path" parses as http.
func Hostname(rawURL string) (string, error) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return "", providers.NewConfigError("", "url", "target URL is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", providers.NewConfigError("", "url", fmt.Sprintf("malformed target URL %q: %v", rawURL, err))
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return "", providers.NewConfigError("", "url", fmt.Sprintf("target URL %q has no host", rawURL))
	}

	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		host = ascii
	}
	return host, nil
}

// normalizePattern lower-cases the pattern and converts internationalized
// labels without wildcards to punycode, so patterns and hostnames compare
// in the same form. Labels IDNA rejects (e.g. with underscores) are kept
// as written.
func normalizePattern(pattern string) string {
	pattern = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(pattern)), ".")
	if pattern == CatchAllPattern {
		return pattern
	}

	labels := strings.Split(pattern, ".")
	for i, label := range labels {
		if label == "" || strings.ContainsAny(label, "*?[") {
			continue
		}
		if ascii, err := idna.Lookup.ToASCII(label); err == nil {
			labels[i] = ascii
		}
	}
	return strings.Join(labels, ".")
}

// literalPrefix returns the length of pattern up to its first wildcard or
// character class.
func literalPrefix(pattern string) int {
	if i := strings.IndexAny(pattern, "*?["); i >= 0 {
		return i
	}
	return len(pattern)
}

// literalCount counts pattern characters that are not wildcards.
func literalCount(pattern string) int {
	n := 0
	for _, ch := range pattern {
		if ch != '*' && ch != '?' {
			n++
		}
	}
	return n
}
