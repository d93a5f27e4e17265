package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"chain-tax-lab/internal/address"
	"chain-tax-lab/internal/domain"
)

func jobsCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List stored report jobs of an address, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			user, err := address.Normalize(cfg.Network, addr)
			if err != nil {
				return err
			}

			b, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			jobs, err := b.Jobs.ListByAddress(ctx, user)
			if err != nil {
				return err
			}
			printJobs(cmd.OutOrStdout(), jobs)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "address", "", "wallet address (required)")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

func quotesCmd() *cobra.Command {
	var token, from, to string

	cmd := &cobra.Command{
		Use:   "quotes",
		Short: "Show the cached price quote history of a token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			start, err := parseTimestamp(from)
			if err != nil {
				return err
			}
			end, err := parseTimestamp(to)
			if err != nil {
				return err
			}
			if token, err = address.Normalize(cfg.Network, token); err != nil {
				return err
			}

			b, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			quotes, err := b.Quotes.GetByTimeRange(ctx, cfg.Network, token, start, end)
			if err != nil {
				return err
			}
			printQuotes(cmd.OutOrStdout(), quotes)
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", domain.NativeToken, "token address or "+domain.NativeToken)
	cmd.Flags().StringVar(&from, "from", "", "range start (YYYY-MM-DD, RFC 3339 or unix ms)")
	cmd.Flags().StringVar(&to, "to", "", "range end, inclusive")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func printJobs(w io.Writer, jobs []*domain.ReportJob) {
	if len(jobs) == 0 {
		fmt.Fprintln(w, "no jobs")
		return
	}
	for _, j := range jobs {
		fmt.Fprintf(w, "%s  %-9s  %-8s  %s..%s  events=%d errors=%d",
			j.JobID, j.Status, j.Stage, formatMs(j.PeriodStart), formatMs(j.PeriodEnd), j.Events, j.Errors)
		if j.Error != "" {
			fmt.Fprintf(w, "  %s", j.Error)
		}
		fmt.Fprintln(w)
	}
}

func printQuotes(w io.Writer, quotes []*domain.PriceQuote) {
	if len(quotes) == 0 {
		fmt.Fprintln(w, "no quotes")
		return
	}
	for _, q := range quotes {
		fmt.Fprintf(w, "%s  $%s  %s\n", time.UnixMilli(q.Timestamp).UTC().Format(time.RFC3339), q.PriceUSD, q.Source)
	}
}

// formatMs renders a period bound; 0 is open.
func formatMs(ms int64) string {
	if ms == 0 {
		return "open"
	}
	return time.UnixMilli(ms).UTC().Format(dateLayout)
}
