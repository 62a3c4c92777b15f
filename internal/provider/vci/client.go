// Package vci talks to the VCI (Vietcap) trading API for listed equities and
// market indices.
package vci

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"vnmarket/internal/httpx"
)

const baseURL = "https://trading.vietcap.com.vn/api"

// Client is a client for the VCI trading API.
type Client struct {
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient sends the requests.
	httpClient httpx.Doer
	// header contains additional headers to be sent with each request.
	header http.Header
}

// Option is a configuration option for the VCI client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient httpx.Doer) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) Option {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// NewClient creates a new VCI client.
func NewClient(options ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
	}
	// The API rejects requests without a browser-like referer.
	c.header.Set("Referer", "https://trading.vietcap.com.vn/")
	c.header.Set("Origin", "https://trading.vietcap.com.vn")
	for _, option := range options {
		option(c)
	}
	return c
}

// Bars is the columnar OHLCV payload returned per symbol by the chart API.
// T holds epoch seconds, sometimes encoded as strings.
type Bars struct {
	Symbol string        `json:"symbol"`
	O      []float64     `json:"o"`
	H      []float64     `json:"h"`
	L      []float64     `json:"l"`
	C      []float64     `json:"c"`
	V      []int64       `json:"v"`
	T      []json.Number `json:"t"`
}

// SymbolInfo is one row of the full symbol listing.
type SymbolInfo struct {
	ID             int    `json:"id"`
	Symbol         string `json:"symbol"`
	Type           string `json:"type"`
	Board          string `json:"board"`
	OrganName      string `json:"organName"`
	EnOrganName    string `json:"enOrganName"`
	OrganShortName string `json:"organShortName"`
}

type chartRequest struct {
	TimeFrame string   `json:"timeFrame"`
	Symbols   []string `json:"symbols"`
	To        int64    `json:"to"`
	CountBack int      `json:"countBack"`
}

// DailyBars returns up to countBack daily bars for symbol ending before to.
func (c *Client) DailyBars(ctx context.Context, symbol string, to time.Time, countBack int) (*Bars, error) {
	body, err := json.Marshal(chartRequest{
		TimeFrame: "ONE_DAY",
		Symbols:   []string{symbol},
		To:        to.Unix(),
		CountBack: countBack,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding chart request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/chart/OHLCChart/gap-chart", body)
	if err != nil {
		return nil, err
	}
	var out []Bars
	if err := httpx.DecodeJSON(c.httpClient, req, &out); err != nil {
		return nil, fmt.Errorf("vci chart %s: %w", symbol, err)
	}
	for i := range out {
		if out[i].Symbol == symbol {
			return &out[i], nil
		}
	}
	if len(out) == 1 {
		return &out[0], nil
	}
	return &Bars{Symbol: symbol}, nil
}

// AllSymbols returns every symbol known to the exchange feed, delisted ones
// included.
func (c *Client) AllSymbols(ctx context.Context) ([]SymbolInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/price/symbols/getAll", nil)
	if err != nil {
		return nil, err
	}
	var out []SymbolInfo
	if err := httpx.DecodeJSON(c.httpClient, req, &out); err != nil {
		return nil, fmt.Errorf("vci symbols: %w", err)
	}
	return out, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, http.NoBody)
	}
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}
