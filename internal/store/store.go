// Package store persists raw backend samples so closed trading days can be
// served without another round trip.
package store

import (
	"context"
	"time"

	"greeks-dashboard/internal/models"
)

// SampleStore is the local cache of raw samples keyed by series query.
// Only transport results are stored; derived series are always recomputed.
type SampleStore interface {
	SaveSamples(ctx context.Context, q models.SeriesQuery, samples []models.RawSample) error
	// GetSamples returns ErrDataNotFound when nothing is cached for q.
	GetSamples(ctx context.Context, q models.SeriesQuery) (*SampleSet, error)
	ListSets(ctx context.Context, filter SetFilter) ([]SetInfo, error)
	PurgeSamples(ctx context.Context, before time.Time) (int64, error)
	PurgeAll(ctx context.Context) (int64, error)

	GetLastSync(dataType string) time.Time
	SetLastSync(dataType string, t time.Time) error

	Ping(ctx context.Context) error
	Close() error
}

// SampleSet is one cached backend answer.
type SampleSet struct {
	Query     models.SeriesQuery
	Samples   []models.RawSample
	FetchedAt time.Time
}

// SetInfo describes a cached set without its payload.
type SetInfo struct {
	Query       models.SeriesQuery `json:"query"`
	SampleCount int                `json:"sample_count"`
	FetchedAt   time.Time          `json:"fetched_at"`
}

// SetFilter narrows ListSets.
type SetFilter struct {
	Index models.Index
	From  time.Time
	To    time.Time
	Limit int
}

// Sync data types recorded through SetLastSync.
const (
	SyncTypeSamples = "samples"
	SyncTypePurge   = "purge"
)

// Freshness reports how long ago dataType was last synced.
type Freshness struct {
	DataType    string
	LastUpdated time.Time
	Age         time.Duration
	IsFresh     bool
}

// CheckFreshness compares the last sync of dataType with maxAge.
func CheckFreshness(s SampleStore, dataType string, maxAge time.Duration, now time.Time) Freshness {
	last := s.GetLastSync(dataType)
	f := Freshness{DataType: dataType, LastUpdated: last}
	if last.IsZero() {
		return f
	}
	f.Age = now.Sub(last)
	f.IsFresh = f.Age <= maxAge
	return f
}
