package fmarket

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"vnmarket/internal/provider"
)

// listingFetchTimeout bounds a shared listing refresh, which runs detached
// from the caller that started it.
const listingFetchTimeout = time.Minute

// Config controls the fund adapter.
type Config struct {
	// ListingTTL caches the fund listing for this long.
	// Defaults to six hours when <= 0.
	ListingTTL time.Duration
}

// Adapter normalizes FMarket NAV data into provider records. Unlike the other
// sources it addresses funds by provider id, so callers resolve the symbol
// first. It keeps the last fetched fund listing as session state.
type Adapter struct {
	cfg    Config
	client *Client
	log    zerolog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	funds   []provider.FundInfo
	expires time.Time
	sf      singleflight.Group
}

func New(cfg Config, client *Client, log zerolog.Logger) *Adapter {
	if cfg.ListingTTL <= 0 {
		cfg.ListingTTL = 6 * time.Hour
	}
	return &Adapter{
		cfg:    cfg,
		client: client,
		log:    log.With().Str("client", "fmarket").Logger(),
		now:    time.Now,
	}
}

func (a *Adapter) Name() string { return "FMarket" }

// FundsListing returns the fund listing, served from the session copy while it
// is fresh.
func (a *Adapter) FundsListing(ctx context.Context) ([]provider.FundInfo, error) {
	a.mu.RLock()
	if a.funds != nil && a.now().Before(a.expires) {
		f := a.funds
		a.mu.RUnlock()
		return f, nil
	}
	a.mu.RUnlock()
	return a.RefreshFunds(ctx)
}

// RefreshFunds fetches the listing upstream regardless of the session copy and
// replaces it. Concurrent refreshes share one upstream call; a caller whose
// ctx ends stops waiting without cancelling the call for the others.
func (a *Adapter) RefreshFunds(ctx context.Context) ([]provider.FundInfo, error) {
	ch := a.sf.DoChan("funds", func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), listingFetchTimeout)
		defer cancel()
		rows, err := a.client.Funds(fetchCtx)
		if err != nil {
			return nil, err
		}
		funds := make([]provider.FundInfo, 0, len(rows))
		for _, r := range rows {
			if strings.TrimSpace(r.ShortName) == "" {
				continue
			}
			funds = append(funds, provider.FundInfo{
				ID:        r.ID,
				ShortName: strings.TrimSpace(r.ShortName),
				Code:      strings.TrimSpace(r.Code),
				Name:      strings.TrimSpace(r.Name),
			})
		}
		a.mu.Lock()
		a.funds = funds
		a.expires = a.now().Add(a.cfg.ListingTTL)
		a.mu.Unlock()
		a.log.Debug().Int("funds", len(funds)).Msg("fund listing refreshed")
		return funds, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]provider.FundInfo), nil
	}
}

// AllNavHistory returns the raw, full NAV history of a fund.
func (a *Adapter) AllNavHistory(ctx context.Context, fundID int) ([]NavRecord, error) {
	return a.client.AllNavHistory(ctx, fundID, a.now())
}

// NavHistory returns the raw NAV history of a fund within [start, end].
func (a *Adapter) NavHistory(ctx context.Context, fundID int, start, end time.Time) ([]NavRecord, error) {
	return a.client.NavHistory(ctx, fundID, start, end)
}

// LatestQuote derives the latest quote from the full NAV history, there being
// no dedicated endpoint: the chronologically last parseable entry wins.
// It returns nil when no entry is usable.
func (a *Adapter) LatestQuote(ctx context.Context, fundID int, symbol string) (*provider.Quote, error) {
	navs, err := a.AllNavHistory(ctx, fundID)
	if err != nil {
		return nil, err
	}
	var latest *provider.Quote
	for _, r := range navs {
		q, ok := toRecord(symbol, r)
		if !ok {
			continue
		}
		// ties keep the later row
		if latest == nil || !q.Date.Before(latest.Date) {
			latest = &q
		}
	}
	return latest, nil
}

// History returns the NAV series within [start, end] in upstream order.
// Rows whose date or NAV does not parse are dropped.
func (a *Adapter) History(ctx context.Context, fundID int, symbol string, start, end time.Time) ([]provider.Record, error) {
	navs, err := a.NavHistory(ctx, fundID, start, end)
	if err != nil {
		return nil, err
	}
	out := make([]provider.Record, 0, len(navs))
	dropped := 0
	for _, r := range navs {
		q, ok := toRecord(symbol, r)
		if !ok {
			dropped++
			continue
		}
		out = append(out, q)
	}
	if dropped > 0 {
		a.log.Warn().Int("fund_id", fundID).Int("dropped", dropped).Msg("skipped NAV rows with unparseable dates or values")
	}
	return out, nil
}

func toRecord(symbol string, r NavRecord) (provider.Quote, bool) {
	date, err := r.Date()
	if err != nil {
		return provider.Quote{}, false
	}
	nav, err := r.NAV.Decimal()
	if err != nil {
		return provider.Quote{}, false
	}
	return provider.NewFlatRecord(symbol, provider.Fund, date, nav).WithNAV(nav), true
}
