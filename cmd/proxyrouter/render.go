package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"machinaos/proxyrouter/pkg/cli"
	"machinaos/proxyrouter/pkg/providers"
	"machinaos/proxyrouter/pkg/proxy"
	"machinaos/proxyrouter/pkg/telemetry/logging"
)

type renderFlags struct {
	country     string
	state       string
	city        string
	session     string
	provider    string
	showSecrets bool
	format      string
}

// renderResult is what render prints.
type renderResult struct {
	Target    string `json:"target" yaml:"target"`
	ProxyURL  string `json:"proxy_url" yaml:"proxy_url"`
	Provider  string `json:"provider" yaml:"provider"`
	RuleID    string `json:"rule_id" yaml:"rule_id"`
	Country   string `json:"country,omitempty" yaml:"country,omitempty"`
	SessionID string `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Reason    string `json:"reason" yaml:"reason"`
}

func newRenderCmd(g *globalFlags) *cobra.Command {
	flags := &renderFlags{}
	cmd := &cobra.Command{
		Use:   "render URL",
		Short: "Print the proxy URL a target would use",
		Long: `Match URL against the routing rules, select a provider with the
cold-start health state and print the rendered proxy URL.

Passwords are masked unless --show-secrets is given.

Examples:
  proxyrouter render https://www.linkedin.com/in/someone
  proxyrouter render https://example.com --country US --city "New York"
  proxyrouter render https://example.com --provider oxylabs --show-secrets`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(flags.format)
			if err != nil {
				return err
			}
			cfg, err := g.loadConfig()
			if err != nil {
				return cli.NewConfigError("", err.Error())
			}
			logger, err := g.newLogger(cmd, cfg)
			if err != nil {
				return cli.NewConfigError("telemetry.logging", err.Error())
			}

			// Render never records usage, so it runs without a ledger.
			a, err := newApp(cmd.Context(), cfg, nil, logger)
			if err != nil {
				return cli.NewCommandError("render", err)
			}
			defer a.Close()

			params := proxy.SelectParams{
				SessionID:        flags.session,
				ProviderOverride: flags.provider,
			}
			if flags.country != "" || flags.state != "" || flags.city != "" {
				params.Geo = &providers.GeoTarget{Country: flags.country, State: flags.state, City: flags.city}
			}

			sel, err := a.service.Select(cmd.Context(), args[0], params)
			if err != nil {
				return cli.NewCommandError("render", err)
			}

			res := renderResult{
				Target:    args[0],
				ProxyURL:  sel.ProxyURL,
				Provider:  sel.Provider,
				RuleID:    sel.Rule.ID,
				Country:   sel.Country,
				SessionID: sel.SessionID,
				Reason:    sel.Reason,
			}
			if !flags.showSecrets {
				res.ProxyURL = logging.RedactProxyURL(res.ProxyURL)
			}
			return writeRender(cmd.OutOrStdout(), format, res)
		},
	}

	cmd.Flags().StringVar(&flags.country, "country", "", "exit country (ISO-3166-1 alpha-2)")
	cmd.Flags().StringVar(&flags.state, "state", "", "exit state or region")
	cmd.Flags().StringVar(&flags.city, "city", "", "exit city")
	cmd.Flags().StringVar(&flags.session, "session", "", "caller session ID for sticky rules")
	cmd.Flags().StringVar(&flags.provider, "provider", "", "force a provider")
	cmd.Flags().BoolVar(&flags.showSecrets, "show-secrets", false, "print credentials unmasked")
	cmd.Flags().StringVarP(&flags.format, "format", "o", "text", "output format: text, json, yaml")
	return cmd
}

func writeRender(w io.Writer, format cli.OutputFormat, res renderResult) error {
	if format != cli.FormatText {
		return cli.NewFormatter(format).FormatTo(w, res)
	}
	fmt.Fprintln(w, res.ProxyURL)
	fmt.Fprintf(w, "  provider: %s (%s)\n", res.Provider, res.Reason)
	fmt.Fprintf(w, "  rule:     %s\n", res.RuleID)
	if res.Country != "" {
		fmt.Fprintf(w, "  country:  %s\n", res.Country)
	}
	if res.SessionID != "" {
		fmt.Fprintf(w, "  session:  %s\n", res.SessionID)
	}
	return nil
}
