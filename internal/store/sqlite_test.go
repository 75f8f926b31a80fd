package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"greeks-dashboard/internal/errors"
	"greeks-dashboard/internal/models"
	"greeks-dashboard/pkg/utils"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "samples.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func query(day int, index models.Index) models.SeriesQuery {
	return models.SeriesQuery{
		Date:   time.Date(2024, 1, day, 0, 0, 0, 0, utils.IndiaLocation),
		Index:  index,
		Expiry: "25JAN",
		Source: models.SourceHistorical,
	}
}

func TestSaveAndGetSamples(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	q := query(15, models.IndexNifty)

	in := []models.RawSample{
		{Timestamp: "2024-01-15T09:15:00+05:30", Values: map[string]interface{}{"call_vega": 1.25, "put_vega": "-2"}},
		{Timestamp: "2024-01-15T09:16:00+05:30", Values: map[string]interface{}{"call_vega": nil}},
	}
	if err := s.SaveSamples(ctx, q, in); err != nil {
		t.Fatalf("SaveSamples: %v", err)
	}

	set, err := s.GetSamples(ctx, q)
	if err != nil {
		t.Fatalf("GetSamples: %v", err)
	}
	if len(set.Samples) != 2 {
		t.Fatalf("got %d samples", len(set.Samples))
	}
	if set.Samples[0].Timestamp != in[0].Timestamp {
		t.Errorf("timestamp = %s", set.Samples[0].Timestamp)
	}
	if got := set.Samples[0].Values["call_vega"]; got == nil || got.(interface{ String() string }).String() != "1.25" {
		t.Errorf("call_vega = %v", got)
	}
	if got := set.Samples[0].Values["put_vega"]; got != "-2" {
		t.Errorf("put_vega = %v", got)
	}
	if set.FetchedAt.IsZero() {
		t.Error("FetchedAt not set")
	}
	if s.GetLastSync(SyncTypeSamples).IsZero() {
		t.Error("last sync not recorded")
	}
}

func TestGetSamplesMiss(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetSamples(context.Background(), query(15, models.IndexNifty))
	if !errors.Is(err, errors.ErrDataNotFound) {
		t.Errorf("got %v, want ErrDataNotFound", err)
	}
}

func TestSaveReplacesExistingSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	q := query(15, models.IndexNifty)

	s.SaveSamples(ctx, q, []models.RawSample{{Timestamp: "a"}, {Timestamp: "b"}})
	s.SaveSamples(ctx, q, []models.RawSample{{Timestamp: "c"}})

	set, err := s.GetSamples(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if len(set.Samples) != 1 || set.Samples[0].Timestamp != "c" {
		t.Errorf("samples = %+v", set.Samples)
	}
}

func TestListAndPurge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, q := range []models.SeriesQuery{
		query(10, models.IndexNifty),
		query(11, models.IndexBankNifty),
		query(12, models.IndexNifty),
	} {
		if err := s.SaveSamples(ctx, q, []models.RawSample{{Timestamp: "x"}}); err != nil {
			t.Fatal(err)
		}
	}

	sets, err := s.ListSets(ctx, SetFilter{Index: models.IndexNifty})
	if err != nil {
		t.Fatal(err)
	}
	if len(sets) != 2 || sets[0].Query.DateString() != "2024-01-12" || sets[0].SampleCount != 1 {
		t.Errorf("sets = %+v", sets)
	}

	n, err := s.PurgeSamples(ctx, time.Date(2024, 1, 11, 0, 0, 0, 0, utils.IndiaLocation))
	if err != nil || n != 1 {
		t.Errorf("PurgeSamples = %d, %v", n, err)
	}
	n, err = s.PurgeAll(ctx)
	if err != nil || n != 2 {
		t.Errorf("PurgeAll = %d, %v", n, err)
	}
	sets, _ = s.ListSets(ctx, SetFilter{})
	if len(sets) != 0 {
		t.Errorf("expected empty cache, got %d sets", len(sets))
	}
}

func TestCheckFreshness(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	if f := CheckFreshness(s, SyncTypeSamples, time.Hour, now); f.IsFresh {
		t.Error("never-synced data reported fresh")
	}
	s.SetLastSync(SyncTypeSamples, now.Add(-10*time.Minute))
	if f := CheckFreshness(s, SyncTypeSamples, time.Hour, now); !f.IsFresh || f.Age != 10*time.Minute {
		t.Errorf("freshness = %+v", f)
	}
}
