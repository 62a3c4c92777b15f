package market

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"vnmarket/internal/provider"
	"vnmarket/internal/provider/cache"
)

type fixture struct {
	equity *MockEquitySource
	funds  *MockFundSource
	gold   *MockGoldSource
	svc    *Service
}

func newFixture() *fixture {
	f := &fixture{
		equity: new(MockEquitySource),
		funds:  new(MockFundSource),
		gold:   new(MockGoldSource),
	}
	f.svc = New(f.equity, f.funds, f.gold, cache.New(time.Minute, 0), zerolog.Nop())
	return f
}

var jan2 = time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

func price(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestLatestQuote_SecondCallServedFromCache(t *testing.T) {
	t.Parallel()

	// Arrange
	f := newFixture()
	q := provider.NewRecord("VNM", provider.Stock, jan2, price(61000), price(62000), price(60500), price(61800), price(1234500))
	f.equity.On("LatestQuote", mock.Anything, "VNM").Return(&q, nil)

	// Act
	first, err := f.svc.LatestQuote(t.Context(), " vnm ")
	require.NoError(t, err)
	second, err := f.svc.LatestQuote(t.Context(), "VNM")
	require.NoError(t, err)

	// Assert
	f.equity.AssertNumberOfCalls(t, "LatestQuote", 1)
	assert.Equal(t, "VNM", first.Symbol)
	assert.Equal(t, provider.Stock, first.AssetType)
	assert.Equal(t, *first, *second)
}

func TestLatestQuote_IndexStampedWithClassifiedType(t *testing.T) {
	t.Parallel()

	f := newFixture()
	q := provider.NewRecord("VNINDEX", provider.Stock, jan2, price(1270), price(1275), price(1265), price(1272), price(500000000))
	f.equity.On("LatestQuote", mock.Anything, "VN-INDEX").Return(&q, nil).Once()

	got, err := f.svc.LatestQuote(t.Context(), "vn-index")

	require.NoError(t, err)
	assert.Equal(t, "VN-INDEX", got.Symbol)
	assert.Equal(t, provider.Index, got.AssetType)
	f.equity.AssertExpectations(t)
}

func TestLatestQuote_GoldIgnoresRegistryState(t *testing.T) {
	t.Parallel()

	// Arrange: registry never refreshed
	f := newFixture()
	sell := price(86500000)
	q := provider.NewFlatRecord("SJC", provider.Gold, jan2, sell).WithGoldPrices(price(84500000), sell)
	f.gold.On("LatestQuote", mock.Anything, "SJC").Return(&q, nil).Once()

	// Act
	got, err := f.svc.LatestQuote(t.Context(), "sjc")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, provider.Gold, got.AssetType)
	for _, v := range []decimal.Decimal{got.Open, got.High, got.Low, got.Close} {
		assert.True(t, v.Equal(got.SellPrice.Decimal))
	}
	f.equity.AssertNotCalled(t, "LatestQuote", mock.Anything, mock.Anything)
}

func TestLatestQuote_FundRecognizedOnlyAfterRefresh(t *testing.T) {
	t.Parallel()

	// Arrange
	f := newFixture()
	f.funds.On("RefreshFunds", mock.Anything).Return([]provider.FundInfo{
		{ID: 28, ShortName: "DCDS", Code: "DC-DS", Name: "Quỹ Đầu tư Chứng khoán Năng động DC"},
	}, nil).Once()
	nav := price(102000)
	q := provider.NewFlatRecord("DCDS", provider.Fund, jan2, nav).WithNAV(nav)
	f.funds.On("LatestQuote", mock.Anything, 28, "DCDS").Return(&q, nil).Once()

	require.Equal(t, provider.Stock, f.svc.Classify("DCDS"))

	// Act
	require.NoError(t, f.svc.Initialize(t.Context()))
	got, err := f.svc.LatestQuote(t.Context(), "dcds")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, provider.Fund, f.svc.Classify("DC-DS"))
	assert.Equal(t, provider.Fund, got.AssetType)
	for _, v := range []decimal.Decimal{got.Open, got.High, got.Low, got.Close} {
		assert.True(t, v.Equal(nav))
	}
	assert.True(t, got.Volume.IsZero())
	f.funds.AssertExpectations(t)
	f.equity.AssertNotCalled(t, "LatestQuote", mock.Anything, mock.Anything)
}

func TestLatestQuote_NoDataIsNotCached(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.gold.On("LatestQuote", mock.Anything, "VN.GOLD").Return(nil, nil)

	for i := 0; i < 2; i++ {
		_, err := f.svc.LatestQuote(t.Context(), "VN.GOLD")
		require.ErrorIs(t, err, provider.ErrNoData)

		var noData *provider.NoDataError
		require.True(t, errors.As(err, &noData))
		assert.Equal(t, "VN.GOLD", noData.Symbol)
		assert.Equal(t, "latest", noData.Date)
	}
	f.gold.AssertNumberOfCalls(t, "LatestQuote", 2)
}

func TestLatestQuote_SourceErrorPropagates(t *testing.T) {
	t.Parallel()

	f := newFixture()
	upstream := errors.New("connection reset")
	f.equity.On("LatestQuote", mock.Anything, "FPT").Return(nil, upstream)

	_, err := f.svc.LatestQuote(t.Context(), "FPT")

	require.ErrorIs(t, err, upstream)
}

func TestLatestQuote_EmptySymbol(t *testing.T) {
	t.Parallel()

	f := newFixture()

	_, err := f.svc.LatestQuote(t.Context(), "   ")

	require.ErrorIs(t, err, ErrEmptySymbol)
}

func TestLatestQuote_ConcurrentColdCallsCollapse(t *testing.T) {
	t.Parallel()

	// Arrange: the upstream call blocks until every caller is waiting on it
	f := newFixture()
	release := make(chan struct{})
	q := provider.NewFlatRecord("HPG", provider.Stock, jan2, price(26000))
	f.equity.On("LatestQuote", mock.Anything, "HPG").
		Run(func(mock.Arguments) { <-release }).
		Return(&q, nil)

	// Act
	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.LatestQuote(t.Context(), "HPG")
			errs <- err
		}()
	}
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	// Assert
	for err := range errs {
		require.NoError(t, err)
	}
	f.equity.AssertNumberOfCalls(t, "LatestQuote", 1)
}

// blockingEquity answers once released and gives up when its ctx is done,
// like a real HTTP-backed source.
type blockingEquity struct {
	*MockEquitySource
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingEquity) LatestQuote(ctx context.Context, symbol string) (*provider.Quote, error) {
	if b.calls.Add(1) == 1 {
		close(b.started)
	}
	select {
	case <-b.release:
		q := provider.NewFlatRecord(symbol, provider.Stock, jan2, price(33000))
		return &q, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestLatestQuote_CancelledCallerDoesNotFailOthers(t *testing.T) {
	t.Parallel()

	// Arrange
	eq := &blockingEquity{MockEquitySource: new(MockEquitySource), started: make(chan struct{}), release: make(chan struct{})}
	svc := New(eq, new(MockFundSource), new(MockGoldSource), cache.New(time.Minute, 0), zerolog.Nop())

	firstCtx, cancelFirst := context.WithCancel(t.Context())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.LatestQuote(firstCtx, "SSI")
		firstErr <- err
	}()
	<-eq.started

	type result struct {
		q   *provider.Quote
		err error
	}
	second := make(chan result, 1)
	go func() {
		q, err := svc.LatestQuote(t.Context(), "SSI")
		second <- result{q, err}
	}()
	time.Sleep(100 * time.Millisecond)

	// Act: the first caller gives up while the fetch is in flight
	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)
	close(eq.release)
	got := <-second

	// Assert
	require.NoError(t, got.err)
	assert.Equal(t, "SSI", got.q.Symbol)
	assert.EqualValues(t, 1, eq.calls.Load())
	_, cached := svc.quotes.Get("SSI", provider.Stock)
	assert.True(t, cached)
}

func TestResolve_FundNotFoundAfterReplacement(t *testing.T) {
	t.Parallel()

	// Arrange
	f := newFixture()
	f.funds.On("RefreshFunds", mock.Anything).Return([]provider.FundInfo{
		{ID: 1, ShortName: "AFUND"}, {ID: 2, ShortName: "BFUND"},
	}, nil).Once()
	f.funds.On("RefreshFunds", mock.Anything).Return([]provider.FundInfo{{ID: 3, ShortName: "CFUND"}}, nil).Once()

	// Act
	n, err := f.svc.RefreshFundCache(t.Context())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	n, err = f.svc.RefreshFundCache(t.Context())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// Assert
	src := f.svc.source(provider.Fund)
	_, err = src.LatestQuote(t.Context(), "AFUND")
	require.ErrorIs(t, err, provider.ErrFundNotFound)
	assert.Equal(t, provider.Stock, f.svc.Classify("AFUND"))
	assert.Equal(t, provider.Fund, f.svc.Classify("CFUND"))
	f.funds.AssertNotCalled(t, "LatestQuote", mock.Anything, mock.Anything, mock.Anything)
}

func TestRefreshFundCache_ErrorKeepsRegistry(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.funds.On("RefreshFunds", mock.Anything).Return([]provider.FundInfo{{ID: 7, ShortName: "VESAF"}}, nil).Once()
	f.funds.On("RefreshFunds", mock.Anything).Return(nil, errors.New("timeout")).Once()

	_, err := f.svc.RefreshFundCache(t.Context())
	require.NoError(t, err)
	_, err = f.svc.RefreshFundCache(t.Context())
	require.Error(t, err)

	assert.Equal(t, provider.Fund, f.svc.Classify("VESAF"))
}

func TestHistory_NeverCached(t *testing.T) {
	t.Parallel()

	// Arrange
	f := newFixture()
	end := jan2.AddDate(0, 0, 1)
	recs := []provider.Record{
		provider.NewFlatRecord("ACB", provider.Stock, jan2, price(25000)),
		provider.NewFlatRecord("ACB", provider.Stock, end, price(25100)),
	}
	f.equity.On("History", mock.Anything, "ACB", jan2, end).Return(recs, nil)

	// Act
	for i := 0; i < 2; i++ {
		got, err := f.svc.History(t.Context(), "acb", jan2, end)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.True(t, got[0].Date.Before(got[1].Date))
	}

	// Assert
	f.equity.AssertNumberOfCalls(t, "History", 2)
	assert.Zero(t, f.svc.quotes.Len())
}

func TestHistory_FundResolvesID(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.funds.On("RefreshFunds", mock.Anything).Return([]provider.FundInfo{{ID: 23, ShortName: "VCBF-BCF"}}, nil)
	require.NoError(t, f.svc.Initialize(t.Context()))
	end := jan2.AddDate(0, 0, 3)
	f.funds.On("History", mock.Anything, 23, "VCBF-BCF", jan2, end).Return(nil, nil).Once()

	got, err := f.svc.History(t.Context(), "vcbf-bcf", jan2, end)

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got)
	f.funds.AssertExpectations(t)
}

func TestHistory_InvalidRange(t *testing.T) {
	t.Parallel()

	f := newFixture()

	_, err := f.svc.History(t.Context(), "VNM", jan2, jan2.AddDate(0, 0, -1))

	require.ErrorIs(t, err, ErrInvalidRange)
	f.equity.AssertNotCalled(t, "History", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPurgeQuotes(t *testing.T) {
	t.Parallel()

	f := newFixture()
	q := provider.NewFlatRecord("MWG", provider.Stock, jan2, price(60000))
	f.equity.On("LatestQuote", mock.Anything, "MWG").Return(&q, nil)

	_, err := f.svc.LatestQuote(t.Context(), "MWG")
	require.NoError(t, err)
	require.Equal(t, 1, f.svc.PurgeQuotes())
	_, err = f.svc.LatestQuote(t.Context(), "MWG")
	require.NoError(t, err)

	f.equity.AssertNumberOfCalls(t, "LatestQuote", 2)
}
