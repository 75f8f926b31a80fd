package dashboard

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"greeks-dashboard/internal/errors"
	"greeks-dashboard/internal/metrics"
	"greeks-dashboard/internal/models"
	"greeks-dashboard/internal/store"
	"greeks-dashboard/pkg/utils"
)

// CachingFetcher serves closed trading days from the local sample store and
// sends the live day upstream. Closed days fetched upstream are saved.
type CachingFetcher struct {
	upstream Fetcher
	store    store.SampleStore
	metrics  *metrics.Recorder
	logger   zerolog.Logger
	now      func() time.Time
}

// NewCachingFetcher wraps upstream with st. A nil st disables caching.
func NewCachingFetcher(upstream Fetcher, st store.SampleStore, rec *metrics.Recorder, logger zerolog.Logger) *CachingFetcher {
	return &CachingFetcher{
		upstream: upstream,
		store:    st,
		metrics:  rec,
		logger:   logger,
		now:      time.Now,
	}
}

// FetchSamples implements Fetcher.
func (f *CachingFetcher) FetchSamples(ctx context.Context, q models.SeriesQuery) ([]models.RawSample, error) {
	samples, _, err := f.FetchSamplesCached(ctx, q)
	return samples, err
}

// FetchSamplesCached is FetchSamples that also reports a store hit.
func (f *CachingFetcher) FetchSamplesCached(ctx context.Context, q models.SeriesQuery) ([]models.RawSample, bool, error) {
	if !f.cacheable(q) {
		samples, err := f.upstream.FetchSamples(ctx, q)
		return samples, false, err
	}

	set, err := f.store.GetSamples(ctx, q)
	switch {
	case err == nil:
		f.metrics.RecordCacheLookup("store", true)
		return set.Samples, true, nil
	case errors.Is(err, errors.ErrDataNotFound):
		f.metrics.RecordCacheLookup("store", false)
	default:
		f.logger.Warn().Err(err).Str("key", q.Key()).Msg("Sample store read failed")
	}

	samples, err := f.upstream.FetchSamples(ctx, q)
	if err != nil {
		return nil, false, err
	}
	// An empty day may still be ingesting upstream; ask again next time.
	if len(samples) == 0 {
		return samples, false, nil
	}
	if err := f.store.SaveSamples(ctx, q, samples); err != nil {
		f.logger.Warn().Err(err).Str("key", q.Key()).Msg("Sample store write failed")
	}
	return samples, false, nil
}

// cacheable reports whether q names a finished trading day.
func (f *CachingFetcher) cacheable(q models.SeriesQuery) bool {
	if f.store == nil || q.Date.IsZero() {
		return false
	}
	now := f.now()
	if utils.DateOnly(q.Date).After(utils.DateOnly(now)) {
		return false
	}
	return !utils.IsLiveSession(q.Date, now)
}
