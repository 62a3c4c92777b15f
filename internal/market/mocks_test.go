package market

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"vnmarket/internal/provider"
)

// MockEquitySource is a mock equity/index source for testing
type MockEquitySource struct {
	mock.Mock
}

func (m *MockEquitySource) Name() string { return "equity" }

func (m *MockEquitySource) LatestQuote(ctx context.Context, symbol string) (*provider.Quote, error) {
	args := m.Called(ctx, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.Quote), args.Error(1)
}

func (m *MockEquitySource) History(ctx context.Context, symbol string, start, end time.Time) ([]provider.Record, error) {
	args := m.Called(ctx, symbol, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]provider.Record), args.Error(1)
}

func (m *MockEquitySource) AllSymbols(ctx context.Context) ([]provider.Listing, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]provider.Listing), args.Error(1)
}

// MockFundSource is a mock fund source for testing
type MockFundSource struct {
	mock.Mock
}

func (m *MockFundSource) FundsListing(ctx context.Context) ([]provider.FundInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]provider.FundInfo), args.Error(1)
}

func (m *MockFundSource) RefreshFunds(ctx context.Context) ([]provider.FundInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]provider.FundInfo), args.Error(1)
}

func (m *MockFundSource) LatestQuote(ctx context.Context, fundID int, symbol string) (*provider.Quote, error) {
	args := m.Called(ctx, fundID, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.Quote), args.Error(1)
}

func (m *MockFundSource) History(ctx context.Context, fundID int, symbol string, start, end time.Time) ([]provider.Record, error) {
	args := m.Called(ctx, fundID, symbol, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]provider.Record), args.Error(1)
}

// MockGoldSource is a mock bullion source for testing
type MockGoldSource struct {
	mock.Mock
}

func (m *MockGoldSource) Name() string { return "gold" }

func (m *MockGoldSource) LatestQuote(ctx context.Context, symbol string) (*provider.Quote, error) {
	args := m.Called(ctx, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.Quote), args.Error(1)
}

func (m *MockGoldSource) History(ctx context.Context, symbol string, start, end time.Time) ([]provider.Record, error) {
	args := m.Called(ctx, symbol, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]provider.Record), args.Error(1)
}
