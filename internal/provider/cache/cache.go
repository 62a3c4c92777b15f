package cache

import (
	"strings"
	"sync"
	"time"

	"vnmarket/internal/provider"
)

// Key identifies a cached quote. The asset type is part of the key because a
// literal ticker may be classified differently once the fund registry changes.
type Key struct {
	Symbol    string
	AssetType provider.AssetType
}

func NewKey(symbol string, t provider.AssetType) Key {
	return Key{Symbol: strings.ToUpper(strings.TrimSpace(symbol)), AssetType: t}
}

// entry stores a cached quote with expiry.
type entry struct {
	expiresAt time.Time
	quote     provider.Quote
}

// Quotes caches the last fetched quote per (symbol, asset type) for a TTL.
// A TTL <= 0 disables caching: Get always misses and Set is a no-op.
// The zero value is not usable; call New.
type Quotes struct {
	TTL      time.Duration
	MaxItems int

	now func() time.Time

	mu    sync.RWMutex
	items map[Key]entry
}

func New(ttl time.Duration, maxItems int) *Quotes {
	return &Quotes{TTL: ttl, MaxItems: maxItems, now: time.Now, items: make(map[Key]entry)}
}

// Get returns the cached quote for (symbol, t) if present and not expired.
func (c *Quotes) Get(symbol string, t provider.AssetType) (provider.Quote, bool) {
	if c.TTL <= 0 {
		return provider.Quote{}, false
	}
	k := NewKey(symbol, t)
	c.mu.RLock()
	e, ok := c.items[k]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expiresAt) {
		return provider.Quote{}, false
	}
	return e.quote, true
}

// Set stores q under (q.Symbol, q.AssetType), replacing any previous entry.
func (c *Quotes) Set(q provider.Quote) {
	if c.TTL <= 0 {
		return
	}
	now := c.now()
	k := NewKey(q.Symbol, q.AssetType)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[k] = entry{expiresAt: now.Add(c.TTL), quote: q}
	// best-effort cap cache size
	if c.MaxItems > 0 && len(c.items) > c.MaxItems {
		// remove expired first, then arbitrary keys other than the one just set
		for key, v := range c.items {
			if !now.Before(v.expiresAt) {
				delete(c.items, key)
			}
		}
		for key := range c.items {
			if len(c.items) <= c.MaxItems {
				break
			}
			if key == k {
				continue
			}
			delete(c.items, key)
		}
	}
}

// Len returns the number of stored entries, expired ones included.
func (c *Quotes) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Purge drops every entry and returns how many were removed.
func (c *Quotes) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.items)
	c.items = make(map[Key]entry)
	return n
}
