package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"machinaos/proxyrouter/pkg/cli"
	"machinaos/proxyrouter/pkg/providers"
)

func newValidateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Long: `Load the configuration with environment overrides and validate it.

Every provider's URL template is compiled, routing rules are checked for
valid patterns and a catch-all, and all errors are reported at once.

Examples:
  proxyrouter validate --config config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return cli.NewConfigError("", err.Error())
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "configuration valid: %d providers, %d routing rules\n",
				len(cfg.Providers), len(cfg.Routing.Rules))
			for _, p := range cfg.Providers {
				tmpl, err := providers.ResolveTemplate(&p)
				if err != nil {
					return cli.NewConfigError("providers["+p.Name+"]", err.Error())
				}
				state := "enabled"
				if !p.Enabled {
					state = "disabled"
				}
				fmt.Fprintf(out, "  provider %-12s %-8s %s:%d param_field=%s\n",
					p.Name, state, p.GatewayHost, p.GatewayPort, tmpl.ParamField())
			}
			for _, r := range cfg.Routing.Rules {
				fmt.Fprintf(out, "  rule     %-12s %s (priority %d, max_retries %d)\n",
					r.ID, r.DomainPattern, r.Priority, r.MaxRetries)
			}
			return nil
		},
	}
}
