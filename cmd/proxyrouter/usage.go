package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"machinaos/proxyrouter/pkg/cli"
	"machinaos/proxyrouter/pkg/server"
	"machinaos/proxyrouter/pkg/usage"
)

type usageFlags struct {
	session  string
	workflow string
	provider string
	since    string
	format   string
}

// usageTable renders a usage summary as rows plus a total.
type usageTable struct {
	usage.Summary
}

func (t usageTable) Header() []string {
	return []string{"PROVIDER", "REQUESTS", "SUCCESSES", "BYTES", "COST_USD"}
}

func (t usageTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.Providers)+1)
	for _, p := range t.Providers {
		rows = append(rows, []string{
			p.Provider,
			strconv.FormatInt(p.Requests, 10),
			strconv.FormatInt(p.Successes, 10),
			strconv.FormatInt(p.Bytes, 10),
			strconv.FormatFloat(p.Cost, 'f', 8, 64),
		})
	}
	rows = append(rows, []string{
		"TOTAL",
		strconv.FormatInt(t.TotalRequests, 10),
		"",
		strconv.FormatInt(t.TotalBytes, 10),
		strconv.FormatFloat(t.TotalCost, 'f', 8, 64),
	})
	return rows
}

func newUsageCmd(g *globalFlags) *cobra.Command {
	flags := &usageFlags{}
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Summarize proxy spend from the usage ledger",
		Long: `Aggregate recorded proxy usage by provider.

--since accepts an RFC 3339 timestamp or a duration back from now.

Examples:
  proxyrouter usage --since 24h
  proxyrouter usage --workflow wf-123 --format csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(flags.format)
			if err != nil {
				return err
			}
			filter := usage.Filter{
				SessionID:  flags.session,
				WorkflowID: flags.workflow,
				Provider:   flags.provider,
			}
			if flags.since != "" {
				since, err := server.ParseSince(flags.since, time.Now())
				if err != nil {
					return cli.NewConfigError("since", err.Error())
				}
				filter.Since = since
			}

			cfg, err := g.loadConfig()
			if err != nil {
				return cli.NewConfigError("", err.Error())
			}
			ledger, err := openLedger(cfg.Usage)
			if err != nil {
				return cli.NewCommandError("usage", err)
			}
			defer ledger.Close()

			summary, err := ledger.Summarize(cmd.Context(), filter)
			if err != nil {
				return cli.NewCommandError("usage", err)
			}

			if format == cli.FormatJSON || format == cli.FormatYAML {
				return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), summary)
			}
			return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), usageTable{summary})
		},
	}

	cmd.Flags().StringVar(&flags.session, "session", "", "only this session")
	cmd.Flags().StringVar(&flags.workflow, "workflow", "", "only this workflow")
	cmd.Flags().StringVar(&flags.provider, "provider", "", "only this provider")
	cmd.Flags().StringVar(&flags.since, "since", "", "only records since (RFC 3339 or duration, e.g. 24h)")
	cmd.Flags().StringVarP(&flags.format, "format", "o", "text", "output format: text, json, yaml, csv")

	cmd.AddCommand(newUsagePruneCmd(g))
	return cmd
}

func newUsagePruneCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete usage records older than usage.retention_days",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return cli.NewConfigError("", err.Error())
			}
			ledger, err := openLedger(cfg.Usage)
			if err != nil {
				return cli.NewCommandError("usage prune", err)
			}
			defer ledger.Close()

			n, err := usage.NewRetentionScheduler(ledger, usage.RetentionConfig{
				RetentionDays: cfg.Usage.RetentionDays,
				PruneSchedule: cfg.Usage.PruneSchedule,
			}).Prune(cmd.Context())
			if err != nil {
				return cli.NewCommandError("usage prune", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d usage records older than %d days\n", n, cfg.Usage.RetentionDays)
			return nil
		},
	}
}
