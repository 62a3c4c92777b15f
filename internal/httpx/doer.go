package httpx

import "net/http"

// Doer sends a single HTTP request. *Client and *http.Client satisfy it, as do
// the rate limit decorators wrapping either.
//
//go:generate mockgen -package=httpxmock -destination=httpxmock/doer.go -source=doer.go Doer
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}
