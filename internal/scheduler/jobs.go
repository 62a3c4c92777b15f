package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// FundRefresher reloads the fund registry.
type FundRefresher interface {
	RefreshFundCache(ctx context.Context) (int, error)
}

// FundRefreshJob periodically reloads the fund registry so funds listed
// upstream after startup become classifiable.
type FundRefreshJob struct {
	refresher FundRefresher
	timeout   time.Duration
	log       zerolog.Logger
}

// NewFundRefreshJob bounds every run by timeout (one minute when <= 0).
func NewFundRefreshJob(refresher FundRefresher, timeout time.Duration, log zerolog.Logger) *FundRefreshJob {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &FundRefreshJob{
		refresher: refresher,
		timeout:   timeout,
		log:       log.With().Str("job", "fund_refresh").Logger(),
	}
}

func (j *FundRefreshJob) Name() string { return "fund_refresh" }

func (j *FundRefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	n, err := j.refresher.RefreshFundCache(ctx)
	if err != nil {
		return err
	}
	j.log.Info().Int("funds", n).Msg("fund registry reloaded")
	return nil
}

// QuotePurger drops cached quotes.
type QuotePurger interface {
	PurgeQuotes() int
}

// CachePurgeJob empties the quote cache, typically right after the close so
// the next request picks up the settled end-of-day price.
type CachePurgeJob struct {
	purger QuotePurger
	log    zerolog.Logger
}

func NewCachePurgeJob(purger QuotePurger, log zerolog.Logger) *CachePurgeJob {
	return &CachePurgeJob{purger: purger, log: log.With().Str("job", "cache_purge").Logger()}
}

func (j *CachePurgeJob) Name() string { return "cache_purge" }

func (j *CachePurgeJob) Run() error {
	n := j.purger.PurgeQuotes()
	j.log.Info().Int("purged", n).Msg("quote cache purged")
	return nil
}
