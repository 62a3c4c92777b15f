// Package market is the single entry point for quotes, history and search
// across the equity, fund and gold sources.
package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"vnmarket/internal/classify"
	"vnmarket/internal/provider"
	"vnmarket/internal/provider/cache"
	"vnmarket/internal/registry"
)

// defaultFetchTimeout bounds a shared upstream fetch on the latest-quote path.
const defaultFetchTimeout = 30 * time.Second

var (
	// ErrInvalidRange is returned by History when start is after end.
	ErrInvalidRange = errors.New("invalid date range: start is after end")
	// ErrEmptySymbol is returned for blank symbols.
	ErrEmptySymbol = errors.New("empty symbol")
)

// EquitySource serves listed stocks and market indices.
type EquitySource interface {
	provider.Source
	AllSymbols(ctx context.Context) ([]provider.Listing, error)
}

// FundSource serves mutual funds. Funds are addressed by provider id, which
// the service resolves through its registry.
type FundSource interface {
	FundsListing(ctx context.Context) ([]provider.FundInfo, error)
	RefreshFunds(ctx context.Context) ([]provider.FundInfo, error)
	LatestQuote(ctx context.Context, fundID int, symbol string) (*provider.Quote, error)
	History(ctx context.Context, fundID int, symbol string, start, end time.Time) ([]provider.Record, error)
}

// Service classifies symbols and routes them to the matching source. Latest
// quotes are cached per (symbol, asset type); history and search never are.
type Service struct {
	equity EquitySource
	funds  FundSource
	gold   provider.Source

	registry   *registry.Registry
	classifier *classify.Classifier
	quotes     *cache.Quotes
	log        zerolog.Logger

	// collapses concurrent cold-path lookups of the same key
	sf           singleflight.Group
	fetchTimeout time.Duration
}

func New(equity EquitySource, funds FundSource, gold provider.Source, quotes *cache.Quotes, log zerolog.Logger) *Service {
	log = log.With().Str("component", "market").Logger()
	reg := registry.New(funds, log)
	return &Service{
		equity:       equity,
		funds:        funds,
		gold:         gold,
		registry:     reg,
		classifier:   classify.New(reg),
		quotes:       quotes,
		log:          log,
		fetchTimeout: defaultFetchTimeout,
	}
}

// Initialize loads the fund registry. Until it succeeds, fund tickers are
// classified as stocks; gold and index symbols are unaffected.
func (s *Service) Initialize(ctx context.Context) error {
	n, err := s.RefreshFundCache(ctx)
	if err != nil {
		return err
	}
	s.log.Info().Int("funds", n).Msg("market data service initialized")
	return nil
}

// RefreshFundCache re-fetches the fund listing and swaps the registry. The
// classifier reads the registry directly, so new aliases apply immediately.
func (s *Service) RefreshFundCache(ctx context.Context) (int, error) {
	return s.registry.Refresh(ctx)
}

// Classify returns the asset type symbol currently resolves to.
func (s *Service) Classify(symbol string) provider.AssetType {
	return s.classifier.Classify(symbol)
}

// PurgeQuotes drops every cached quote and returns how many were removed.
func (s *Service) PurgeQuotes() int {
	return s.quotes.Purge()
}

// LatestQuote returns the most recent quote for symbol. A cache hit returns
// without I/O and is never revalidated.
func (s *Service) LatestQuote(ctx context.Context, symbol string) (*provider.Quote, error) {
	sym := classify.Normalize(symbol)
	if sym == "" {
		return nil, ErrEmptySymbol
	}
	t := s.classifier.Classify(sym)
	if q, ok := s.quotes.Get(sym, t); ok {
		return &q, nil
	}

	// The shared fetch outlives any single caller: it runs detached with its
	// own deadline, and each caller stops waiting when its own ctx is done.
	ch := s.sf.DoChan(sym+"|"+t.String(), func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()
		q, err := s.source(t).LatestQuote(fetchCtx, sym)
		if err != nil {
			return nil, err
		}
		if q == nil {
			return nil, &provider.NoDataError{Symbol: sym, Date: "latest"}
		}
		out := *q
		out.Symbol = sym
		out.AssetType = t
		s.quotes.Set(out)
		return out, nil
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Shared {
		s.log.Debug().Str("symbol", sym).Str("asset_type", t.String()).Msg("latest quote shared with in-flight call")
	}
	q := res.Val.(provider.Quote)
	return &q, nil
}

// History returns the records for symbol within [start, end] in the order
// the source produced them. An empty range yields an empty slice.
func (s *Service) History(ctx context.Context, symbol string, start, end time.Time) ([]provider.Record, error) {
	sym := classify.Normalize(symbol)
	if sym == "" {
		return nil, ErrEmptySymbol
	}
	if start.After(end) {
		return nil, fmt.Errorf("%w: %s > %s", ErrInvalidRange, start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	t := s.classifier.Classify(sym)
	recs, err := s.source(t).History(ctx, sym, start, end)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []provider.Record{}
	}
	for i := range recs {
		recs[i].Symbol = sym
		recs[i].AssetType = t
	}
	return recs, nil
}

// source is the single dispatch point from asset type to upstream.
func (s *Service) source(t provider.AssetType) provider.Source {
	switch t {
	case provider.Stock, provider.Index:
		return s.equity
	case provider.Fund:
		return fundSource{registry: s.registry, funds: s.funds}
	case provider.Gold:
		return s.gold
	}
	panic(fmt.Sprintf("market: unhandled asset type %q", t))
}

// fundSource resolves fund symbols to provider ids before calling upstream.
type fundSource struct {
	registry *registry.Registry
	funds    FundSource
}

func (f fundSource) Name() string { return "fund" }

func (f fundSource) LatestQuote(ctx context.Context, symbol string) (*provider.Quote, error) {
	id, err := f.registry.Resolve(symbol)
	if err != nil {
		return nil, err
	}
	return f.funds.LatestQuote(ctx, id, symbol)
}

func (f fundSource) History(ctx context.Context, symbol string, start, end time.Time) ([]provider.Record, error) {
	id, err := f.registry.Resolve(symbol)
	if err != nil {
		return nil, err
	}
	return f.funds.History(ctx, id, symbol, start, end)
}
