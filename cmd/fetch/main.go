package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"vnmarket/internal/app"
	"vnmarket/internal/config"
	"vnmarket/internal/logger"
	"vnmarket/internal/market"
	"vnmarket/internal/provider"
)

type rootOptions struct {
	configPath string
	logLevel   string
	timeout    time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "fetch",
		Short:        "Query Vietnamese market data (stocks, indices, funds, SJC gold) from the command line",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.json (optional)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level: debug|info|warn|error")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall deadline for the command")

	cmd.AddCommand(
		newQuoteCmd(opts),
		newHistoryCmd(opts),
		newSearchCmd(opts),
		newFundsCmd(opts),
	)
	return cmd
}

// setup builds the market service and loads the fund registry. A failed fund
// refresh is logged, not fatal, so stock, index and gold lookups still work.
func setup(ctx context.Context, opts *rootOptions, stderr io.Writer) (*app.App, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	lg := logger.New(logger.Config{Level: opts.logLevel, Pretty: true, Out: stderr})
	a := app.New(cfg, lg)
	if err := a.Market.Initialize(ctx); err != nil {
		lg.Warn().Err(err).Msg("fund registry not loaded")
	}
	return a, nil
}

func newQuoteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "quote SYMBOL...",
		Short: "Print the latest quote for each symbol",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			a, err := setup(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			quotes := make([]*provider.Quote, 0, len(args))
			for _, s := range args {
				q, err := a.Market.LatestQuote(ctx, s)
				if err != nil {
					return fmt.Errorf("%s: %w", s, err)
				}
				quotes = append(quotes, q)
			}
			return printJSON(cmd.OutOrStdout(), quotes)
		},
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var startStr, endStr string
	cmd := &cobra.Command{
		Use:   "history SYMBOL",
		Short: "Print daily records for SYMBOL between --start and --end",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			end := provider.Day(time.Now())
			if endStr != "" {
				t, err := time.Parse(time.DateOnly, endStr)
				if err != nil {
					return fmt.Errorf("bad --end: %w", err)
				}
				end = t
			}
			start := end.AddDate(0, -1, 0)
			if startStr != "" {
				t, err := time.Parse(time.DateOnly, startStr)
				if err != nil {
					return fmt.Errorf("bad --start: %w", err)
				}
				start = t
			}
			if start.After(end) {
				return market.ErrInvalidRange
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			a, err := setup(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			recs, err := a.Market.History(ctx, args[0], start, end)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), recs)
		},
	}
	cmd.Flags().StringVar(&startStr, "start", "", "first day, YYYY-MM-DD (default: one month before --end)")
	cmd.Flags().StringVar(&endStr, "end", "", "last day, YYYY-MM-DD (default: today)")
	return cmd
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search QUERY",
		Short: "Search stocks, funds and gold by symbol or name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			a, err := setup(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), a.Market.Search(ctx, args[0]))
		},
	}
}

func newFundsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "funds",
		Short: "Print the fund listing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			a := app.New(cfg, logger.New(logger.Config{Level: opts.logLevel, Pretty: true, Out: cmd.ErrOrStderr()}))
			funds, err := a.FMarket.FundsListing(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), funds)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
