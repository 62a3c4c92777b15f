// Package registry keeps the fund alias -> fund id mapping used to classify
// and resolve mutual fund symbols.
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"vnmarket/internal/provider"
)

// Lister fetches the full, fresh fund listing.
type Lister interface {
	RefreshFunds(ctx context.Context) ([]provider.FundInfo, error)
}

// snapshot is immutable once published. The alias set and the id map are
// built and swapped together so a reader never sees an alias without its id.
type snapshot struct {
	ids map[string]int
}

// Registry maps fund aliases (upper-cased short name and optional code) to
// provider fund ids. It is replaced wholesale on every refresh.
type Registry struct {
	lister Lister
	log    zerolog.Logger

	refreshMu sync.Mutex // one refresh at a time

	mu   sync.RWMutex
	snap *snapshot
}

func New(lister Lister, log zerolog.Logger) *Registry {
	return &Registry{
		lister: lister,
		log:    log.With().Str("component", "fund_registry").Logger(),
		snap:   &snapshot{ids: map[string]int{}},
	}
}

// Refresh fetches the fund listing and atomically replaces the registry with
// it, returning the number of funds listed. On error the current registry is
// left untouched.
func (r *Registry) Refresh(ctx context.Context) (int, error) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	funds, err := r.lister.RefreshFunds(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("fund listing refresh failed, keeping previous registry")
		return 0, fmt.Errorf("refreshing fund registry: %w", err)
	}

	next := &snapshot{ids: make(map[string]int, len(funds)*2)}
	for _, f := range funds {
		if s := normalize(f.ShortName); s != "" {
			next.ids[s] = f.ID
		}
		if c := normalize(f.Code); c != "" {
			next.ids[c] = f.ID
		}
	}

	r.mu.Lock()
	r.snap = next
	r.mu.Unlock()

	r.log.Info().Int("funds", len(funds)).Int("aliases", r.Len()).Msg("fund registry refreshed")
	return len(funds), nil
}

func (r *Registry) current() *snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap
}

// Resolve returns the fund id for symbol, or a *provider.FundNotFoundError.
func (r *Registry) Resolve(symbol string) (int, error) {
	id, ok := r.current().ids[normalize(symbol)]
	if !ok {
		return 0, &provider.FundNotFoundError{Symbol: symbol}
	}
	return id, nil
}

// Contains reports whether alias is known. alias is matched case-insensitively.
func (r *Registry) Contains(alias string) bool {
	_, ok := r.current().ids[normalize(alias)]
	return ok
}

// KnownAliases returns a copy of the current alias set.
func (r *Registry) KnownAliases() map[string]struct{} {
	s := r.current()
	out := make(map[string]struct{}, len(s.ids))
	for a := range s.ids {
		out[a] = struct{}{}
	}
	return out
}

// Len returns the number of known aliases.
func (r *Registry) Len() int { return len(r.current().ids) }

func normalize(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }
