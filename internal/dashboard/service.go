// Package dashboard wires the backend fetch to the Greeks pipeline and keeps
// live series refreshed for subscribers.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"greeks-dashboard/internal/greeks"
	"greeks-dashboard/internal/logging"
	"greeks-dashboard/internal/metrics"
	"greeks-dashboard/internal/models"
)

// Fetcher returns the raw samples for one series query. *api.Client
// implements it.
type Fetcher interface {
	FetchSamples(ctx context.Context, q models.SeriesQuery) ([]models.RawSample, error)
}

// cachedFetcher also reports whether samples came from a local cache.
type cachedFetcher interface {
	FetchSamplesCached(ctx context.Context, q models.SeriesQuery) ([]models.RawSample, bool, error)
}

// Loader produces a derived series for a request.
type Loader interface {
	Load(ctx context.Context, req Request) (*models.Series, error)
}

// Request selects a series and how to normalize it.
type Request struct {
	Query      models.SeriesQuery
	Baseline   bool
	Truncation greeks.Truncation
	// Owner partitions caches and streams per caller. It never reaches the backend.
	Owner string
}

// Topic identifies the request for caches and stream subscriptions.
func (r Request) Topic() string {
	topic := fmt.Sprintf("%s|baseline=%t|%s", r.Query.Key(), r.Baseline, r.Truncation)
	if r.Owner != "" {
		topic = r.Owner + "|" + topic
	}
	return topic
}

// Service loads raw samples and runs them through the pipeline.
type Service struct {
	fetcher Fetcher
	metrics *metrics.Recorder
	logger  zerolog.Logger
	now     func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMetrics records fetch and series metrics on r.
func WithMetrics(r *metrics.Recorder) ServiceOption {
	return func(s *Service) { s.metrics = r }
}

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the wall clock used for grid truncation.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service over f.
func NewService(f Fetcher, opts ...ServiceOption) *Service {
	s := &Service{
		fetcher: f,
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load fetches the samples for req and derives the series. A fetch failure is
// returned as is and the pipeline does not run.
func (s *Service) Load(ctx context.Context, req Request) (*models.Series, error) {
	if _, err := greeks.NewSession(req.Query.Date); err != nil {
		return nil, err
	}

	logger := logging.WithQuery(s.logger, req.Query)

	start := time.Now()
	var (
		samples []models.RawSample
		cached  bool
		err     error
	)
	if cf, ok := s.fetcher.(cachedFetcher); ok {
		samples, cached, err = cf.FetchSamplesCached(ctx, req.Query)
	} else {
		samples, err = s.fetcher.FetchSamples(ctx, req.Query)
	}
	elapsed := time.Since(start)
	s.metrics.RecordFetch(req.Query.Index, elapsed, err)
	logging.LogFetch(logger, req.Query, len(samples), cached, elapsed, err)
	if err != nil {
		return nil, err
	}

	series, err := greeks.Run(greeks.Input{
		Query:    req.Query,
		Samples:  samples,
		Baseline: req.Baseline,
		Now:      s.now(),
		Grid:     greeks.GridOptions{Truncation: req.Truncation},
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordSeries(series)
	logging.LogPipeline(logger, series)
	return series, nil
}
