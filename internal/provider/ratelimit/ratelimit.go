package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"vnmarket/internal/httpx"
)

// MinInterval wraps a Doer and enforces a minimum time between requests.
// Concurrent requests wait until the interval has elapsed since the last one,
// or return early if the request context is canceled.
type MinInterval struct {
	D        httpx.Doer
	Interval time.Duration
	mu       sync.Mutex
	next     time.Time
}

func (m *MinInterval) Do(req *http.Request) (*http.Response, error) {
	if m.Interval > 0 {
		// reserve a slot so concurrent callers queue behind each other
		m.mu.Lock()
		now := time.Now()
		slot := m.next
		if slot.Before(now) {
			slot = now
		}
		m.next = slot.Add(m.Interval)
		m.mu.Unlock()
		if wait := time.Until(slot); wait > 0 {
			t := time.NewTimer(wait)
			defer t.Stop()
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-t.C:
			}
		}
	}
	return m.D.Do(req)
}

// New picks the limiter matching the configured knobs: a token bucket when
// maxPerMinute is set, otherwise a min-interval gate, otherwise d unchanged.
func New(d httpx.Doer, maxPerMinute, burst int, minInterval time.Duration) httpx.Doer {
	if maxPerMinute > 0 {
		if burst <= 0 {
			burst = 1
		}
		return &TokenBucketDoer{D: d, TB: NewTokenBucket(float64(maxPerMinute)/60.0, burst)}
	}
	if minInterval > 0 {
		return &MinInterval{D: d, Interval: minInterval}
	}
	return d
}
