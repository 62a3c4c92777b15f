// Package app assembles the upstream clients, adapters and market service
// from configuration. The binaries share it so they stay wired identically.
package app

import (
	"github.com/rs/zerolog"

	"vnmarket/internal/config"
	"vnmarket/internal/httpx"
	"vnmarket/internal/market"
	"vnmarket/internal/provider/cache"
	"vnmarket/internal/provider/fmarket"
	"vnmarket/internal/provider/ratelimit"
	"vnmarket/internal/provider/sjc"
	"vnmarket/internal/provider/vci"
)

// App holds the assembled components.
type App struct {
	VCI     *vci.Adapter
	FMarket *fmarket.Adapter
	SJC     *sjc.Adapter
	Quotes  *cache.Quotes
	Market  *market.Service
}

// New builds every upstream behind its own HTTP client and rate limiter.
// The returned service still needs Initialize before funds are classified.
func New(cfg config.Config, log zerolog.Logger) *App {
	vciClient := vci.NewClient(
		vci.WithBaseURL(cfg.VCI.BaseURL),
		vci.WithHTTPClient(doer(cfg.VCI, log)),
	)
	fmClient := fmarket.NewClient(
		fmarket.WithBaseURL(cfg.FMarket.BaseURL),
		fmarket.WithHTTPClient(doer(cfg.FMarket, log)),
	)
	sjcClient := sjc.NewClient(
		sjc.WithBaseURL(cfg.SJC.BaseURL),
		sjc.WithHTTPClient(doer(cfg.SJC, log)),
	)

	a := &App{
		VCI:     vci.New(vci.Config{ListingTTL: cfg.VCI.ListingTTL()}, vciClient, log),
		FMarket: fmarket.New(fmarket.Config{ListingTTL: cfg.FMarket.ListingTTL()}, fmClient, log),
		SJC:     sjc.New(sjcClient, log),
		Quotes:  cache.New(cfg.Cache.QuoteTTL(), cfg.Cache.MaxItems),
	}
	a.Market = market.New(a.VCI, a.FMarket, a.SJC, a.Quotes, log)
	return a
}

func doer(u config.Upstream, log zerolog.Logger) httpx.Doer {
	c := httpx.New(u.Timeout(), log)
	return ratelimit.New(c, u.MaxRequestsPerMinute, u.Burst, u.MinInterval())
}
