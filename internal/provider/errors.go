package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrNoData matches any NoDataError via errors.Is.
	ErrNoData = errors.New("no data")
	// ErrFundNotFound matches any FundNotFoundError via errors.Is.
	ErrFundNotFound = errors.New("fund not found")
)

// NoDataError reports that an upstream returned no usable record.
// Date is "latest" for latest-quote requests, otherwise a date or range token.
type NoDataError struct {
	Symbol string
	Date   string
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("no data for %s at %s", e.Symbol, e.Date)
}

func (e *NoDataError) Is(target error) bool { return target == ErrNoData }

// FundNotFoundError reports a fund-classified symbol with no id in the
// current registry snapshot.
type FundNotFoundError struct {
	Symbol string
}

func (e *FundNotFoundError) Error() string {
	return fmt.Sprintf("fund not found: %s", e.Symbol)
}

func (e *FundNotFoundError) Is(target error) bool { return target == ErrFundNotFound }
