package vci

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"vnmarket/internal/classify"
	"vnmarket/internal/provider"
)

// exchangeTZ is the exchange's local time; bar timestamps are converted to
// calendar dates in this zone.
var exchangeTZ = time.FixedZone("ICT", 7*60*60)

// latestCountBack is how many bars are requested to find the most recent one.
const latestCountBack = 10

// listingFetchTimeout bounds a shared listing refresh, which runs detached
// from the caller that started it.
const listingFetchTimeout = time.Minute

// Config controls the equity adapter.
type Config struct {
	// ListingTTL caches the full symbol listing for this long.
	// Defaults to one hour when <= 0.
	ListingTTL time.Duration
}

// Adapter normalizes the VCI API into provider records for stocks and indices.
type Adapter struct {
	cfg    Config
	client *Client
	log    zerolog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	listing []provider.Listing
	expires time.Time
	sf      singleflight.Group
}

func New(cfg Config, client *Client, log zerolog.Logger) *Adapter {
	if cfg.ListingTTL <= 0 {
		cfg.ListingTTL = time.Hour
	}
	return &Adapter{
		cfg:    cfg,
		client: client,
		log:    log.With().Str("client", "vci").Logger(),
		now:    time.Now,
	}
}

func (a *Adapter) Name() string { return "VCI" }

// LatestQuote returns the most recent daily bar, or nil when there is none.
func (a *Adapter) LatestQuote(ctx context.Context, symbol string) (*provider.Quote, error) {
	code, t := upstreamSymbol(symbol)
	bars, err := a.client.DailyBars(ctx, code, a.now(), latestCountBack)
	if err != nil {
		return nil, err
	}
	records := toRecords(bars, code, t)
	if len(records) == 0 {
		return nil, nil
	}
	q := records[len(records)-1]
	return &q, nil
}

// History returns daily bars whose date falls within [start, end], oldest first.
func (a *Adapter) History(ctx context.Context, symbol string, start, end time.Time) ([]provider.Record, error) {
	code, t := upstreamSymbol(symbol)
	from, to := provider.Day(start), provider.Day(end)
	// trading days never outnumber calendar days
	countBack := int(to.Sub(from).Hours()/24) + 1
	bars, err := a.client.DailyBars(ctx, code, to.AddDate(0, 0, 1), countBack)
	if err != nil {
		return nil, err
	}
	all := toRecords(bars, code, t)
	out := make([]provider.Record, 0, len(all))
	for _, r := range all {
		if r.Date.Before(from) || r.Date.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// AllSymbols returns the full listing, served from an in-memory copy for
// ListingTTL. Concurrent refreshes are coalesced.
func (a *Adapter) AllSymbols(ctx context.Context) ([]provider.Listing, error) {
	a.mu.RLock()
	if a.listing != nil && a.now().Before(a.expires) {
		l := a.listing
		a.mu.RUnlock()
		return l, nil
	}
	a.mu.RUnlock()

	ch := a.sf.DoChan("listing", func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), listingFetchTimeout)
		defer cancel()
		infos, err := a.client.AllSymbols(fetchCtx)
		if err != nil {
			return nil, err
		}
		l := make([]provider.Listing, 0, len(infos))
		for _, in := range infos {
			l = append(l, toListing(in))
		}
		a.mu.Lock()
		a.listing = l
		a.expires = a.now().Add(a.cfg.ListingTTL)
		a.mu.Unlock()
		a.log.Debug().Int("symbols", len(l)).Msg("symbol listing refreshed")
		return l, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]provider.Listing), nil
	}
}

// upstreamSymbol maps index aliases to provider index codes.
func upstreamSymbol(symbol string) (string, provider.AssetType) {
	if code, ok := classify.IndexCode(symbol); ok {
		return code, provider.Index
	}
	s := classify.Normalize(symbol)
	if classify.IsIndex(s) {
		return s, provider.Index
	}
	return s, provider.Stock
}

// toRecords zips the columnar payload into records. Rows with a missing
// column or an unparseable timestamp are skipped.
func toRecords(b *Bars, symbol string, t provider.AssetType) []provider.Record {
	if b == nil {
		return nil
	}
	n := len(b.T)
	for _, l := range []int{len(b.O), len(b.H), len(b.L), len(b.C), len(b.V)} {
		if l < n {
			n = l
		}
	}
	out := make([]provider.Record, 0, n)
	for i := 0; i < n; i++ {
		sec, err := b.T[i].Int64()
		if err != nil {
			continue
		}
		date := time.Unix(sec, 0).In(exchangeTZ)
		out = append(out, provider.NewRecord(
			symbol, t, date,
			decimal.NewFromFloat(b.O[i]),
			decimal.NewFromFloat(b.H[i]),
			decimal.NewFromFloat(b.L[i]),
			decimal.NewFromFloat(b.C[i]),
			decimal.NewFromInt(b.V[i]),
		))
	}
	return out
}

var boardNames = map[string]string{
	"HSX":   "HOSE",
	"HOSE":  "HOSE",
	"HNX":   "HNX",
	"UPCOM": "UPCOM",
}

func toListing(in SymbolInfo) provider.Listing {
	name := strings.TrimSpace(in.OrganShortName)
	if name == "" {
		name = strings.TrimSpace(in.OrganName)
	}
	board := strings.ToUpper(strings.TrimSpace(in.Board))
	exchange := board
	if v, ok := boardNames[board]; ok {
		exchange = v
	}
	return provider.Listing{
		Symbol:   strings.ToUpper(strings.TrimSpace(in.Symbol)),
		Name:     name,
		Exchange: exchange,
		Listed:   board != "DELISTED",
		Stock:    strings.EqualFold(in.Type, "STOCK"),
	}
}
