package market

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"vnmarket/internal/classify"
	"vnmarket/internal/provider"
)

// maxEquityResults caps equity matches; fund matches are not capped.
const maxEquityResults = 20

// SearchResult is one search hit. It is never cached.
type SearchResult struct {
	Symbol    string             `json:"symbol"`
	Name      string             `json:"name"`
	AssetType provider.AssetType `json:"asset_type"`
	Exchange  string             `json:"exchange"`
}

var goldResults = []SearchResult{
	{Symbol: classify.GoldTael, Name: "SJC Gold (Lượng)", AssetType: provider.Gold, Exchange: "SJC"},
	{Symbol: classify.GoldChi, Name: "SJC Gold (Chỉ)", AssetType: provider.Gold, Exchange: "SJC"},
}

// Search matches query case-insensitively against symbols and names: listed
// stocks first, then funds, then the gold symbols when the query asks for
// gold. Each source contributes independently; a failing source is logged
// and left out, so Search never fails.
func (s *Service) Search(ctx context.Context, query string) []SearchResult {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []SearchResult{}
	}

	var equities, funds []SearchResult
	var g errgroup.Group
	g.Go(func() error {
		listings, err := s.equity.AllSymbols(ctx)
		if err != nil {
			s.log.Warn().Err(err).Str("query", query).Msg("equity listing unavailable, omitting from search")
			return nil
		}
		equities = matchListings(listings, q)
		return nil
	})
	g.Go(func() error {
		listing, err := s.funds.FundsListing(ctx)
		if err != nil {
			s.log.Warn().Err(err).Str("query", query).Msg("fund listing unavailable, omitting from search")
			return nil
		}
		funds = matchFunds(listing, q)
		return nil
	})
	_ = g.Wait()

	out := make([]SearchResult, 0, len(equities)+len(funds)+len(goldResults))
	out = append(out, equities...)
	out = append(out, funds...)
	if wantsGold(q) {
		out = append(out, goldResults...)
	}
	return out
}

func matchListings(listings []provider.Listing, q string) []SearchResult {
	var out []SearchResult
	for _, l := range listings {
		if !l.Listed || !l.Stock {
			continue
		}
		if !contains(l.Symbol, q) && !contains(l.Name, q) {
			continue
		}
		out = append(out, SearchResult{Symbol: l.Symbol, Name: l.Name, AssetType: provider.Stock, Exchange: l.Exchange})
		if len(out) == maxEquityResults {
			break
		}
	}
	return out
}

func matchFunds(funds []provider.FundInfo, q string) []SearchResult {
	var out []SearchResult
	for _, f := range funds {
		if !contains(f.ShortName, q) && !contains(f.Name, q) && !contains(f.Code, q) {
			continue
		}
		out = append(out, SearchResult{Symbol: f.ShortName, Name: f.Name, AssetType: provider.Fund, Exchange: "FUND"})
	}
	return out
}

// wantsGold expects a lower-cased query.
func wantsGold(q string) bool {
	return strings.Contains(q, "gold") || strings.Contains(q, "vàng") || q == "sjc"
}

func contains(s, lowerQuery string) bool {
	return s != "" && strings.Contains(strings.ToLower(s), lowerQuery)
}
