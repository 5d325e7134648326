// Package routing maps target URLs to routing rules.
//
// A Rule binds a hostname glob to a provider subset, an exit country, a
// session mode and a retry policy. A Table holds an immutable, validated
// rule set and resolves every URL to exactly one rule:
//
//	table, err := routing.NewTable([]routing.Rule{
//	    {ID: "linkedin", DomainPattern: "*.linkedin.com", PreferredProviders: []string{"brightdata"}, Priority: 10},
//	    routing.DefaultCatchAll(),
//	})
//	rule, err := table.Match("https://www.linkedin.com/in/someone")
//
// Hostnames are lower-cased and converted to punycode before matching, so
// internationalized domains match whichever form the pattern uses.
package routing
