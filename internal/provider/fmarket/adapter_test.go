package fmarket_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"vnmarket/internal/provider"
	"vnmarket/internal/provider/fmarket"
)

type upstream struct {
	navs      []map[string]any
	funds     []map[string]any
	fundCalls atomic.Int32

	// when set, the listing handler signals entered and waits on gate
	entered chan struct{}
	gate    chan struct{}

	mu      sync.Mutex
	lastNav map[string]any
}

func (u *upstream) lastNavRequest() map[string]any {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastNav
}

func (u *upstream) start(t *testing.T) *fmarket.Adapter {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /products/filter", func(w http.ResponseWriter, r *http.Request) {
		u.fundCalls.Add(1)
		if u.gate != nil {
			select {
			case u.entered <- struct{}{}:
			default:
			}
			<-u.gate
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": 200,
			"data":   map[string]any{"total": len(u.funds), "rows": u.funds},
		})
	})
	mux.HandleFunc("POST /product/get-nav-history", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		u.mu.Lock()
		u.lastNav = body
		u.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"status": 200, "data": u.navs})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	client := fmarket.NewClient(fmarket.WithBaseURL(srv.URL), fmarket.WithHTTPClient(srv.Client()))
	return fmarket.New(fmarket.Config{ListingTTL: time.Hour}, client, zerolog.Nop())
}

func TestAdapter_HistoryDropsUnparseableDates(t *testing.T) {
	t.Parallel()

	u := &upstream{navs: []map[string]any{
		{"nav": 10000, "navDate": "2025-01-01"},
		{"nav": 10100, "navDate": "bad-date"},
		{"nav": 10200, "navDate": "2025-01-03"},
	}}
	a := u.start(t)

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)
	rows, err := a.History(t.Context(), 28, "DCDS", start, end)
	require.NoError(t, err)

	require.Len(t, rows, 2)
	require.Equal(t, start, rows[0].Date)
	require.Equal(t, end, rows[1].Date)
	require.True(t, rows[0].Date.Before(rows[1].Date))

	// range-scoped request
	sent := u.lastNavRequest()
	require.InDelta(t, 0, sent["isAllData"], 0)
	require.InDelta(t, 28, sent["productId"], 0)
	require.Equal(t, "20250101", sent["fromDate"])
	require.Equal(t, "20250103", sent["toDate"])
}

func TestAdapter_LatestQuoteIsChronologicallyLast(t *testing.T) {
	t.Parallel()

	u := &upstream{navs: []map[string]any{
		{"nav": 10000, "navDate": "2025-01-01"},
		{"nav": 10500, "navDate": "2025-01-05T00:00:00"},
	}}
	a := u.start(t)

	q, err := a.LatestQuote(t.Context(), 28, "DCDS")
	require.NoError(t, err)
	require.NotNil(t, q)

	nav := decimal.NewFromInt(10500)
	require.Equal(t, time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC), q.Date)
	require.Equal(t, provider.Fund, q.AssetType)
	require.True(t, q.NAV.Valid)
	require.True(t, q.NAV.Decimal.Equal(nav))
	for _, v := range []decimal.Decimal{q.Open, q.High, q.Low, q.Close} {
		require.True(t, v.Equal(nav))
	}
	require.True(t, q.Volume.IsZero())

	// full history request
	sent := u.lastNavRequest()
	require.InDelta(t, 1, sent["isAllData"], 0)
	require.Nil(t, sent["fromDate"])
}

func TestAdapter_LatestQuoteEmptyHistory(t *testing.T) {
	t.Parallel()

	u := &upstream{navs: []map[string]any{{"nav": 1, "navDate": "n/a"}}}
	q, err := u.start(t).LatestQuote(t.Context(), 1, "X")
	require.NoError(t, err)
	require.Nil(t, q)
}

func TestAdapter_FundsListingUsesSessionCopy(t *testing.T) {
	t.Parallel()

	u := &upstream{funds: []map[string]any{
		{"id": 28, "shortName": "DCDS", "code": "DCDS", "name": "Quỹ Đầu tư Chứng khoán Năng động DC"},
		{"id": 46, "shortName": " VESAF ", "name": "Quỹ Đầu tư Cổ phiếu Tiếp cận Thị trường VinaCapital"},
		{"id": 99, "shortName": ""},
	}}
	a := u.start(t)

	funds, err := a.FundsListing(t.Context())
	require.NoError(t, err)
	require.Equal(t, []provider.FundInfo{
		{ID: 28, ShortName: "DCDS", Code: "DCDS", Name: "Quỹ Đầu tư Chứng khoán Năng động DC"},
		{ID: 46, ShortName: "VESAF", Name: "Quỹ Đầu tư Cổ phiếu Tiếp cận Thị trường VinaCapital"},
	}, funds)

	_, err = a.FundsListing(t.Context())
	require.NoError(t, err)
	require.Equal(t, int32(1), u.fundCalls.Load())

	_, err = a.RefreshFunds(t.Context())
	require.NoError(t, err)
	require.Equal(t, int32(2), u.fundCalls.Load(), "refresh bypasses the session copy")
}

func TestAdapter_RefreshFundsSurvivesCancelledCaller(t *testing.T) {
	t.Parallel()

	// Arrange: the listing request blocks until the gate opens
	u := &upstream{
		funds:   []map[string]any{{"id": 28, "shortName": "DCDS", "name": "DC Dynamic"}},
		entered: make(chan struct{}, 1),
		gate:    make(chan struct{}),
	}
	a := u.start(t)

	firstCtx, cancelFirst := context.WithCancel(t.Context())
	firstErr := make(chan error, 1)
	go func() {
		_, err := a.RefreshFunds(firstCtx)
		firstErr <- err
	}()
	<-u.entered

	type result struct {
		funds []provider.FundInfo
		err   error
	}
	second := make(chan result, 1)
	go func() {
		funds, err := a.RefreshFunds(t.Context())
		second <- result{funds, err}
	}()
	time.Sleep(100 * time.Millisecond)

	// Act
	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)
	close(u.gate)
	got := <-second

	// Assert
	require.NoError(t, got.err)
	require.Len(t, got.funds, 1)
	require.Equal(t, int32(1), u.fundCalls.Load())
}

func TestAdapter_HistoryDropsUnparseableNAVs(t *testing.T) {
	t.Parallel()

	// Arrange: NAVs arrive as numbers, numeric strings and junk
	u := &upstream{navs: []map[string]any{
		{"nav": 10000, "navDate": "2025-01-01"},
		{"nav": "10250.5", "navDate": "2025-01-02"},
		{"nav": "n/a", "navDate": "2025-01-03"},
		{"nav": nil, "navDate": "2025-01-04"},
		{"nav": 10300, "navDate": "2025-01-05"},
	}}
	a := u.start(t)

	// Act
	rows, err := a.History(t.Context(), 28, "DCDS",
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC))

	// Assert
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.True(t, rows[1].NAV.Decimal.Equal(decimal.RequireFromString("10250.5")))
	require.Equal(t, time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC), rows[2].Date)
}
