package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	server string
	key    string
	output string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "infrawatch-cli",
		Short:        "Query an infrawatch API",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.server, "server", envOr("API_BASE", "http://localhost:8080"), "API base URL")
	root.PersistentFlags().StringVar(&opts.key, "key", os.Getenv("API_KEY"), "API key")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "output format: table, json, yaml")

	root.AddCommand(newSeriesCmd(opts), newSummaryCmd(opts), newRunCmd(opts))
	return root
}

func newSeriesCmd(opts *options) *cobra.Command {
	var asset string
	cmd := &cobra.Command{
		Use:       "series latency|uptime",
		Short:     "Show a bucketed series (24h global, 7d with --asset)",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"latency", "uptime"},
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newClient(opts.server, opts.key).series(cmd.Context(), args[0], asset)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, s, func(w io.Writer) {
				if s.Asset != "" {
					fmt.Fprintf(w, "asset: %s\n", s.Asset)
				}
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "BUCKET\tVALUE")
				for i, l := range s.Labels {
					fmt.Fprintf(tw, "%s\t%.2f\n", l, s.Values[i])
				}
				tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&asset, "asset", "", "asset ID for the 7 day series")
	return cmd
}

func newSummaryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show the dashboard summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newClient(opts.server, opts.key).summary(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, s, func(w io.Writer) {
				fmt.Fprintln(w, "infrawatch dashboard")
				fmt.Fprintln(w, strings.Repeat("=", 40))
				fmt.Fprintf(w, "  Assets:        %d\n", s.Assets)
				fmt.Fprintf(w, "  Checks:        %d\n", s.Checks)
				fmt.Fprintf(w, "  Open alerts:   %d\n", s.OpenAlerts)
				fmt.Fprintf(w, "  Uptime 24h:    %.2f%%\n", s.Uptime24h)
				fmt.Fprintf(w, "  Latency 24h:   %.1f ms\n", s.AvgLatency24h)
				fmt.Fprintf(w, "  Results 24h:   %d\n", s.Results24h)
				if len(s.FailingChecks) > 0 {
					fmt.Fprintln(w, "\nFailing in the last hour:")
					tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
					for _, f := range s.FailingChecks {
						fmt.Fprintf(tw, "  %s\t%s\t%d\n", f.Asset, f.Check, f.Fails)
					}
					tw.Flush()
				}
			})
		},
	}
}

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run CHECK_ID",
		Short: "Queue a check for immediate execution (admin key)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient(opts.server, opts.key).run(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %s\n", args[0])
			return nil
		},
	}
}

func render(w io.Writer, format string, v any, table func(io.Writer)) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(v)
	case "table", "":
		table(w)
		return nil
	}
	return fmt.Errorf("unknown output format %q", format)
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
