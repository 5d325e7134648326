package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"machinaos/proxyrouter/pkg/cli"
	"machinaos/proxyrouter/pkg/proxy"
	"machinaos/proxyrouter/pkg/server"
)

type statusFlags struct {
	server  string
	format  string
	timeout time.Duration
	check   bool
}

// statusTable renders provider health as rows.
type statusTable struct {
	proxy.Status
}

func (t statusTable) Header() []string {
	return []string{"PROVIDER", "ENABLED", "PRIORITY", "HEALTHY", "SCORE", "SUCCESS", "LATENCY_MS", "REQUESTS", "IN_FLIGHT"}
}

func (t statusTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.Providers))
	for _, p := range t.Providers {
		st := t.Stats[p.Name]
		rows = append(rows, []string{
			p.Name,
			strconv.FormatBool(p.Enabled),
			strconv.Itoa(p.Priority),
			strconv.FormatBool(st.Healthy),
			strconv.FormatFloat(st.Score, 'f', 3, 64),
			strconv.FormatFloat(st.SuccessRate, 'f', 3, 64),
			strconv.FormatFloat(st.AvgLatencyMs, 'f', 0, 64),
			strconv.FormatInt(st.TotalRequests, 10),
			strconv.FormatInt(t.InFlight[p.Name], 10),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })
	return rows
}

func newStatusCmd(g *globalFlags) *cobra.Command {
	flags := &statusFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show provider health from a running server",
		Long: `Fetch /v1/proxy/status from a running proxy router and print
provider health, in-flight requests and budget.

The server address defaults to server.listen_address from the config.

Examples:
  proxyrouter status
  proxyrouter status --server http://10.0.0.5:8090 --format json
  proxyrouter status --check   # exit 4 when no provider can be selected`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(flags.format)
			if err != nil {
				return err
			}

			base := flags.server
			if base == "" {
				cfg, err := g.loadConfig()
				if err != nil {
					return cli.NewConfigError("", err.Error())
				}
				base = cfg.Server.ListenAddress
			}
			if !strings.Contains(base, "://") {
				base = "http://" + base
			}

			st, err := fetchStatus(cmd, strings.TrimSuffix(base, "/")+"/v1/proxy/status", flags.timeout)
			if err != nil {
				return cli.NewCommandError("status", err)
			}

			out := cmd.OutOrStdout()
			if format != cli.FormatText && format != cli.FormatCSV {
				if err := cli.NewFormatter(format).FormatTo(out, st); err != nil {
					return err
				}
				return checkStatus(flags.check, st)
			}
			if err := cli.NewFormatter(format).FormatTo(out, statusTable{st}); err != nil {
				return err
			}
			if format == cli.FormatText {
				if !st.Enabled {
					fmt.Fprintln(out, "\nservice disabled: no enabled providers")
				}
				if st.Budget != nil && st.Budget.Limit > 0 {
					fmt.Fprintf(out, "\nbudget: $%.4f of $%.2f used, resets %s\n",
						st.Budget.Used, st.Budget.Limit, st.Budget.ResetAt.Format(time.RFC3339))
				}
			}
			return checkStatus(flags.check, st)
		},
	}

	cmd.Flags().StringVar(&flags.server, "server", "", "server base URL (default: config listen address)")
	cmd.Flags().StringVarP(&flags.format, "format", "o", "text", "output format: text, json, yaml, csv")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 10*time.Second, "request timeout")
	cmd.Flags().BoolVar(&flags.check, "check", false, "fail when the service is disabled or the budget is exhausted")
	return cmd
}

// checkStatus fails with cli.ErrNotReady when check is set and the
// server could not select a provider right now.
func checkStatus(check bool, st proxy.Status) error {
	if !check {
		return nil
	}
	if !st.Enabled {
		return cli.NewCommandError("status", fmt.Errorf("%w: no enabled providers", cli.ErrNotReady))
	}
	if st.Budget != nil && !st.Budget.Allowed {
		return cli.NewCommandError("status", fmt.Errorf("%w: %s", cli.ErrNotReady, st.Budget.Reason))
	}
	return nil
}

func fetchStatus(cmd *cobra.Command, url string, timeout time.Duration) (proxy.Status, error) {
	var st proxy.Status

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
	if err != nil {
		return st, err
	}
	resp, err := (&http.Client{Timeout: timeout}).Do(req)
	if err != nil {
		return st, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e server.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error.Message != "" {
			return st, fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error.Message)
		}
		return st, fmt.Errorf("server returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("decoding status: %w", err)
	}
	return st, nil
}
