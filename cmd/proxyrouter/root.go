package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"machinaos/proxyrouter/pkg/config"
	"machinaos/proxyrouter/pkg/telemetry/logging"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	cfgFile string
	verbose bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "proxyrouter",
		Short: "Residential proxy routing with health-based failover",
		Long: `proxyrouter routes outbound HTTP requests through residential proxy
providers (Bright Data, Oxylabs, Smartproxy, IPRoyal or any plain gateway).

For every request it:
  - matches the target host against domain routing rules
  - ranks providers by recent success rate and latency
  - renders provider-specific credentials for geo and sticky sessions
  - retries failures through the next-best provider
  - records bytes and cost against a daily budget`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVarP(&flags.cfgFile, "config", "c", "config.yaml", "config file path")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newRunCmd(flags),
		newValidateCmd(flags),
		newRenderCmd(flags),
		newStatusCmd(flags),
		newUsageCmd(flags),
		newVersionCmd(),
		newCompletionCmd(root),
	)
	return root
}

// loadConfig loads the config file with environment overrides applied.
func (f *globalFlags) loadConfig() (*config.Config, error) {
	return config.LoadConfigWithEnvOverrides(f.cfgFile)
}

// newLogger builds the process logger from cfg, honoring --verbose.
func (f *globalFlags) newLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	lc := logging.FromConfig(cfg.Telemetry.Logging)
	if f.verbose {
		lc.Level = "debug"
	}
	lc.Writer = cmd.ErrOrStderr()
	return logging.New(lc)
}
