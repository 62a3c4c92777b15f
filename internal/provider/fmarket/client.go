// Package fmarket talks to the FMarket API for open-end mutual funds: the
// fund listing and per-fund NAV history.
package fmarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"vnmarket/internal/httpx"
)

const baseURL = "https://api.fmarket.vn/res"

// dateLayout is the compact date format the NAV history endpoint expects.
const dateLayout = "20060102"

// Client is a client for the FMarket API.
type Client struct {
	baseURL    string
	httpClient httpx.Doer
	header     http.Header
}

// Option is a configuration option for the FMarket client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient httpx.Doer) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// NewClient creates a new FMarket client.
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

// FundRow is one fund of the product listing.
type FundRow struct {
	ID        int    `json:"id"`
	ShortName string `json:"shortName"`
	Code      string `json:"code"`
	Name      string `json:"name"`
}

// Amount is a numeric field the API sends either as a JSON number or as a
// string. Decoding never fails; Decimal reports values that are not numbers,
// so one bad row does not sink the whole response.
type Amount string

func (a *Amount) UnmarshalJSON(b []byte) error {
	*a = Amount(strings.Trim(strings.TrimSpace(string(b)), `"`))
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if _, err := a.Decimal(); err != nil || !json.Valid([]byte(a)) {
		return json.Marshal(string(a))
	}
	return []byte(a), nil
}

// Decimal parses the amount.
func (a Amount) Decimal() (decimal.Decimal, error) {
	return decimal.NewFromString(string(a))
}

// NavRecord is one published NAV. NavDate is usually YYYY-MM-DD but may carry
// a time suffix.
type NavRecord struct {
	NAV     Amount `json:"nav"`
	NavDate string `json:"navDate"`
}

// NormalizedDate returns the YYYY-MM-DD prefix of NavDate.
func (r NavRecord) NormalizedDate() string {
	s := strings.TrimSpace(r.NavDate)
	if i := strings.IndexAny(s, "T "); i >= 0 {
		s = s[:i]
	}
	return s
}

// Date parses the normalized NAV date.
func (r NavRecord) Date() (time.Time, error) {
	return time.Parse(time.DateOnly, r.NormalizedDate())
}

type filterRequest struct {
	Types             []string `json:"types"`
	IssuerIDs         []int    `json:"issuerIds"`
	SortOrder         string   `json:"sortOrder"`
	SortField         string   `json:"sortField"`
	Page              int      `json:"page"`
	PageSize          int      `json:"pageSize"`
	IsIpo             bool     `json:"isIpo"`
	FundAssetTypes    []string `json:"fundAssetTypes"`
	BondRemainPeriods []string `json:"bondRemainPeriods"`
	SearchField       string   `json:"searchField"`
	IsBuyByReward     bool     `json:"isBuyByReward"`
	ThirdAppIDs       []string `json:"thirdAppIds"`
}

type filterResponse struct {
	Status int `json:"status"`
	Data   struct {
		Total int       `json:"total"`
		Rows  []FundRow `json:"rows"`
	} `json:"data"`
}

// Funds returns every fund currently offered.
func (c *Client) Funds(ctx context.Context) ([]FundRow, error) {
	var out filterResponse
	err := c.post(ctx, "/products/filter", filterRequest{
		Types:             []string{"NEW_FUND", "TRADING_FUND"},
		IssuerIDs:         []int{},
		SortOrder:         "DESC",
		SortField:         "navTo6Months",
		Page:              1,
		PageSize:          500,
		FundAssetTypes:    []string{},
		BondRemainPeriods: []string{},
		ThirdAppIDs:       []string{},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("fmarket funds: %w", err)
	}
	return out.Data.Rows, nil
}

type navRequest struct {
	IsAllData int     `json:"isAllData"`
	ProductID int     `json:"productId"`
	FromDate  *string `json:"fromDate"`
	ToDate    string  `json:"toDate"`
}

type navResponse struct {
	Status int         `json:"status"`
	Data   []NavRecord `json:"data"`
}

// AllNavHistory returns every NAV ever published for fundID.
func (c *Client) AllNavHistory(ctx context.Context, fundID int, now time.Time) ([]NavRecord, error) {
	var out navResponse
	err := c.post(ctx, "/product/get-nav-history", navRequest{
		IsAllData: 1,
		ProductID: fundID,
		ToDate:    now.Format(dateLayout),
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("fmarket nav history %d: %w", fundID, err)
	}
	return out.Data, nil
}

// NavHistory returns the NAVs published for fundID within [start, end].
func (c *Client) NavHistory(ctx context.Context, fundID int, start, end time.Time) ([]NavRecord, error) {
	from := start.Format(dateLayout)
	var out navResponse
	err := c.post(ctx, "/product/get-nav-history", navRequest{
		ProductID: fundID,
		FromDate:  &from,
		ToDate:    end.Format(dateLayout),
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("fmarket nav history %d: %w", fundID, err)
	}
	return out.Data, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()
	req.Header.Set("Content-Type", "application/json")
	return httpx.DecodeJSON(c.httpClient, req, out)
}
