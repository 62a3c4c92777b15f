package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"vnmarket/internal/app"
	"vnmarket/internal/config"
	"vnmarket/internal/httpx"
	"vnmarket/internal/logger"
	"vnmarket/internal/provider"
	"vnmarket/internal/provider/fmarket"
)

type navSource interface {
	AllNavHistory(ctx context.Context, fundID int) ([]fmarket.NavRecord, error)
}

type dumpOptions struct {
	concurrency int
	retries     int
	timeout     time.Duration
	backoff     time.Duration
}

type fundDump struct {
	Fund provider.FundInfo   `json:"fund"`
	NAVs []fmarket.NavRecord `json:"navs"`
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		outPath string
		cfgPath string
		only    string
		opts    = dumpOptions{backoff: 250 * time.Millisecond}
	)
	cmd := &cobra.Command{
		Use:          "navdump",
		Short:        "Dump the full NAV history of every fund to a JSON file",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			lg := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: true, Out: cmd.ErrOrStderr()})
			a := app.New(cfg, lg)

			funds, err := a.FMarket.RefreshFunds(cmd.Context())
			if err != nil {
				return fmt.Errorf("fund listing: %w", err)
			}
			funds = filterFunds(funds, only)
			if len(funds) == 0 {
				return errors.New("no funds to dump")
			}
			lg.Info().Int("funds", len(funds)).Msg("dumping NAV history")

			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("create out: %w", err)
			}
			defer f.Close()
			n, err := dump(cmd.Context(), a.FMarket, funds, f, opts, lg)
			if err != nil {
				return err
			}
			lg.Info().Int("written", n).Int("failed", len(funds)-n).Str("out", outPath).Msg("done")
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "fund_nav_history.json", "output JSON file path")
	cmd.Flags().StringVar(&cfgPath, "config", os.Getenv("CONFIG_FILE"), "path to config.json (optional)")
	cmd.Flags().StringVar(&only, "only", "", "comma-separated fund short names to restrict the dump to")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 4, "number of parallel requests")
	cmd.Flags().IntVar(&opts.retries, "retries", 3, "max retries on 429/5xx")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "per-fund request timeout")
	return cmd
}

// dump streams {"generated_at":..., "funds":[...]} to w, fetching histories
// with a bounded worker pool. Funds that keep failing are logged and skipped.
// It returns how many funds were written.
func dump(ctx context.Context, src navSource, funds []provider.FundInfo, w io.Writer, opts dumpOptions, lg zerolog.Logger) (int, error) {
	if opts.concurrency <= 0 {
		opts.concurrency = 1
	}
	bw := bufio.NewWriterSize(w, 1<<20)
	header, _ := json.Marshal(time.Now().UTC().Format(time.RFC3339))
	_, _ = bw.WriteString(`{"generated_at":` + string(header) + `,"funds":[`)

	var (
		writeMu sync.Mutex
		first   = true
		written int
		wg      sync.WaitGroup
	)
	jobs := make(chan provider.FundInfo, opts.concurrency*2)

	worker := func() {
		defer wg.Done()
		for fund := range jobs {
			navs, err := fetchWithRetry(ctx, src, fund.ID, opts)
			if err != nil {
				lg.Warn().Err(err).Str("fund", fund.ShortName).Int("fund_id", fund.ID).Msg("skipping fund")
				continue
			}
			raw, err := json.Marshal(fundDump{Fund: fund, NAVs: navs})
			if err != nil {
				lg.Warn().Err(err).Str("fund", fund.ShortName).Msg("encode failed")
				continue
			}
			writeMu.Lock()
			if !first {
				_, _ = bw.WriteString(",")
			} else {
				first = false
			}
			_, _ = bw.Write(raw)
			written++
			writeMu.Unlock()
		}
	}
	for i := 0; i < opts.concurrency; i++ {
		wg.Add(1)
		go worker()
	}
	for _, f := range funds {
		jobs <- f
	}
	close(jobs)
	wg.Wait()

	_, _ = bw.WriteString("]}\n")
	if err := bw.Flush(); err != nil {
		return written, fmt.Errorf("flush: %w", err)
	}
	return written, nil
}

// fetchWithRetry retries 429 and 5xx responses with exponential backoff.
func fetchWithRetry(ctx context.Context, src navSource, fundID int, opts dumpOptions) ([]fmarket.NavRecord, error) {
	for attempt := 0; ; attempt++ {
		reqCtx := ctx
		cancel := func() {}
		if opts.timeout > 0 {
			reqCtx, cancel = context.WithTimeout(ctx, opts.timeout)
		}
		navs, err := src.AllNavHistory(reqCtx, fundID)
		cancel()
		if err == nil {
			return navs, nil
		}
		if !retryable(err) || attempt >= opts.retries {
			return nil, err
		}
		t := time.NewTimer(opts.backoff * time.Duration(1<<attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func retryable(err error) bool {
	var se *httpx.StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == http.StatusTooManyRequests || (se.Code >= 500 && se.Code < 600)
}

func filterFunds(funds []provider.FundInfo, csv string) []provider.FundInfo {
	if strings.TrimSpace(csv) == "" {
		return funds
	}
	want := map[string]bool{}
	for _, s := range strings.Split(csv, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			want[s] = true
		}
	}
	var out []provider.FundInfo
	for _, f := range funds {
		if want[strings.ToUpper(f.ShortName)] || (f.Code != "" && want[strings.ToUpper(f.Code)]) {
			out = append(out, f)
		}
	}
	return out
}
