package provider

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Currency is attached to every record; all three upstreams quote in dong.
const Currency = "VND"

// AssetType tags a symbol with the upstream that serves it.
// It is derived per call from the symbol and the fund registry, never stored
// as ground truth.
type AssetType string

const (
	Stock AssetType = "STOCK"
	Index AssetType = "INDEX"
	Fund  AssetType = "FUND"
	Gold  AssetType = "GOLD"
)

func (t AssetType) String() string { return string(t) }

// Valid reports whether t is one of the four known asset types.
func (t AssetType) Valid() bool {
	switch t {
	case Stock, Index, Fund, Gold:
		return true
	}
	return false
}

// Quote is the normalized record shape returned by all sources, both for the
// latest quote and for every row of a historical series.
//
// Exactly one of {OHLCV, NAV, Buy/Sell} carries real signal per asset type:
// funds and gold repeat their single published price in all four OHLC fields
// and report zero volume.
type Quote struct {
	Symbol    string              `json:"symbol"`
	AssetType AssetType           `json:"asset_type"`
	Date      time.Time           `json:"date"`
	Open      decimal.Decimal     `json:"open"`
	High      decimal.Decimal     `json:"high"`
	Low       decimal.Decimal     `json:"low"`
	Close     decimal.Decimal     `json:"close"`
	Volume    decimal.Decimal     `json:"volume"`
	NAV       decimal.NullDecimal `json:"nav"`
	BuyPrice  decimal.NullDecimal `json:"buy_price"`
	SellPrice decimal.NullDecimal `json:"sell_price"`
	Currency  string              `json:"currency"`
}

// Record is one row of a historical series. It shares the Quote shape.
type Record = Quote

// NewRecord builds an OHLCV record. The date is truncated to its calendar day.
func NewRecord(symbol string, t AssetType, date time.Time, open, high, low, close, volume decimal.Decimal) Quote {
	return Quote{
		Symbol:    symbol,
		AssetType: t,
		Date:      Day(date),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    volume,
		Currency:  Currency,
	}
}

// NewFlatRecord builds a record for sources publishing a single price per
// date: OHLC all equal price and volume is zero.
func NewFlatRecord(symbol string, t AssetType, date time.Time, price decimal.Decimal) Quote {
	return NewRecord(symbol, t, date, price, price, price, price, decimal.Zero)
}

// WithNAV returns q carrying nav as its net asset value.
func (q Quote) WithNAV(nav decimal.Decimal) Quote {
	q.NAV = decimal.NewNullDecimal(nav)
	return q
}

// WithGoldPrices returns q carrying the published buy and sell prices.
func (q Quote) WithGoldPrices(buy, sell decimal.Decimal) Quote {
	q.BuyPrice = decimal.NewNullDecimal(buy)
	q.SellPrice = decimal.NewNullDecimal(sell)
	return q
}

// Day returns the calendar date of t as midnight UTC, discarding time of day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Listing is one entry of the equity/index symbol listing.
type Listing struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
	Listed   bool   `json:"listed"`
	Stock    bool   `json:"stock"`
}

// FundInfo is one entry of the mutual fund listing.
// Code is empty when the provider publishes no secondary code.
type FundInfo struct {
	ID        int    `json:"id"`
	ShortName string `json:"short_name"`
	Code      string `json:"code,omitempty"`
	Name      string `json:"name"`
}

// Source is the capability shared by every upstream adapter.
// LatestQuote returns (nil, nil) when the upstream has no usable record.
type Source interface {
	Name() string
	LatestQuote(ctx context.Context, symbol string) (*Quote, error)
	History(ctx context.Context, symbol string, start, end time.Time) ([]Record, error)
}
