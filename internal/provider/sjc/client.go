// Package sjc talks to the SJC price service for physical gold bullion.
package sjc

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"vnmarket/internal/httpx"
)

const baseURL = "https://sjc.com.vn"

const (
	servicePath = "/GoldPrice/Services/PriceService.ashx"
	// dateLayout is the day-first format the service expects and returns.
	dateLayout = "02/01/2006"
	// barGoldID selects SJC 1L/10L/1KG bars in the history endpoint.
	barGoldID = 1
)

// vnTZ is the zone SJC publishes in.
var vnTZ = time.FixedZone("ICT", 7*60*60)

// Client is a client for the SJC price service.
type Client struct {
	baseURL    string
	httpClient httpx.Doer
	header     http.Header
}

// Option is a configuration option for the SJC client.
type Option func(*Client)

// WithBaseURL sets the base URL for the service.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithHTTPClient sets the HTTP client for the service.
func WithHTTPClient(httpClient httpx.Doer) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// NewClient creates a new SJC client.
func NewClient(options ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// PriceRow is one published buy/sell pair. GroupDate is only set by the
// history endpoint, as a .NET JSON date ("/Date(1735750800000)/").
type PriceRow struct {
	ID         int     `json:"Id"`
	TypeName   string  `json:"TypeName"`
	BranchName string  `json:"BranchName"`
	BuyValue   float64 `json:"BuyValue"`
	SellValue  float64 `json:"SellValue"`
	GroupDate  string  `json:"GroupDate"`
}

// Date parses GroupDate into a calendar date in Vietnam time.
func (r PriceRow) Date() (time.Time, error) {
	s := strings.TrimSpace(r.GroupDate)
	if !strings.HasPrefix(s, "/Date(") || !strings.HasSuffix(s, ")/") {
		return time.Time{}, fmt.Errorf("parsing group date %q: not a JSON date", r.GroupDate)
	}
	s = s[len("/Date(") : len(s)-len(")/")]
	// drop an optional timezone offset suffix like +0700
	if i := strings.IndexAny(s, "+-"); i > 0 {
		s = s[:i]
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing group date %q: %w", r.GroupDate, err)
	}
	return time.UnixMilli(ms).In(vnTZ), nil
}

// DailyPrices is the price board for one day.
type DailyPrices struct {
	Success    bool       `json:"success"`
	LatestDate string     `json:"latestDate"`
	Data       []PriceRow `json:"data"`
}

// UpdatedAt parses LatestDate ("15:04 02/01/2006").
func (d DailyPrices) UpdatedAt() (time.Time, error) {
	return time.ParseInLocation("15:04 "+dateLayout, strings.TrimSpace(d.LatestDate), vnTZ)
}

// PricesByDate returns the price board published on day.
func (c *Client) PricesByDate(ctx context.Context, day time.Time) (*DailyPrices, error) {
	form := url.Values{}
	form.Set("method", "GetSJCGoldPriceByDate")
	form.Set("toDate", day.In(vnTZ).Format(dateLayout))
	var out DailyPrices
	if err := c.post(ctx, form, &out); err != nil {
		return nil, fmt.Errorf("sjc prices by date: %w", err)
	}
	if !out.Success {
		return nil, fmt.Errorf("sjc prices by date: service reported failure")
	}
	return &out, nil
}

type historyResponse struct {
	Success bool       `json:"success"`
	Data    []PriceRow `json:"data"`
}

// PriceHistory returns bar gold prices published within [start, end].
func (c *Client) PriceHistory(ctx context.Context, start, end time.Time) ([]PriceRow, error) {
	form := url.Values{}
	form.Set("method", "GetGoldPriceHistory")
	form.Set("goldPriceId", strconv.Itoa(barGoldID))
	form.Set("fromDate", start.Format(dateLayout))
	form.Set("toDate", end.Format(dateLayout))
	var out historyResponse
	if err := c.post(ctx, form, &out); err != nil {
		return nil, fmt.Errorf("sjc price history: %w", err)
	}
	if !out.Success {
		return nil, fmt.Errorf("sjc price history: service reported failure")
	}
	return out.Data, nil
}

func (c *Client) post(ctx context.Context, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+servicePath, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	return httpx.DecodeJSON(c.httpClient, req, out)
}
