package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"greeks-dashboard/internal/models"
	"greeks-dashboard/internal/stream"
)

func TestRecordFetch(t *testing.T) {
	r := NewWithRegistry(prometheus.NewRegistry())
	r.RecordFetch(models.IndexNifty, 20*time.Millisecond, nil)
	r.RecordFetch(models.IndexNifty, 20*time.Millisecond, errors.New("boom"))
	r.RecordFetch(models.IndexNifty, 20*time.Millisecond, nil)

	if got := testutil.ToFloat64(r.fetchTotal.WithLabelValues("NIFTY", "ok")); got != 2 {
		t.Errorf("ok fetches = %v", got)
	}
	if got := testutil.ToFloat64(r.fetchTotal.WithLabelValues("NIFTY", "error")); got != 1 {
		t.Errorf("failed fetches = %v", got)
	}
}

func TestRecordSeries(t *testing.T) {
	r := NewWithRegistry(prometheus.NewRegistry())
	r.RecordSeries(&models.Series{
		Query:   models.SeriesQuery{Index: models.IndexBankNifty},
		Dropped: 3,
		Summary: models.SeriesSummary{TotalSlots: 376, FilledSlots: 100, LatestTrend: models.TrendBullish},
	})

	if got := testutil.ToFloat64(r.pipelineSlots.WithLabelValues("BANKNIFTY", "filled")); got != 100 {
		t.Errorf("filled = %v", got)
	}
	if got := testutil.ToFloat64(r.dropped.WithLabelValues("BANKNIFTY")); got != 3 {
		t.Errorf("dropped = %v", got)
	}
	if got := testutil.ToFloat64(r.latestTrend.WithLabelValues("BANKNIFTY", "BULLISH")); got != 1 {
		t.Errorf("bullish = %v", got)
	}
	if got := testutil.ToFloat64(r.latestTrend.WithLabelValues("BANKNIFTY", "NEUTRAL")); got != 0 {
		t.Errorf("neutral = %v", got)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.RecordFetch(models.IndexNifty, time.Second, nil)
	r.RecordSeries(&models.Series{})
	r.RecordHTTP("/x", "GET", 200, time.Second)
	r.InFlight(1)
	if r.Gatherer() == nil {
		t.Error("nil recorder must still return a gatherer")
	}
}

func TestStatusClass(t *testing.T) {
	for code, want := range map[int]string{101: "1xx", 204: "2xx", 304: "3xx", 404: "4xx", 503: "5xx"} {
		if got := StatusClass(code); got != want {
			t.Errorf("StatusClass(%d) = %s, want %s", code, got, want)
		}
	}
}

func TestRegisterHub(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegistry(reg)
	stats := stream.HubMetrics{Received: 5, Delivered: 4, Dropped: 1, Subscribers: 2, Topics: 1, Retained: 1}
	if err := r.RegisterHub(func() stream.HubMetrics { return stats }); err != nil {
		t.Fatal(err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range m.GetLabel() {
				key += "/" + lp.GetValue()
			}
			if c := m.GetCounter(); c != nil {
				got[key] = c.GetValue()
			}
			if g := m.GetGauge(); g != nil {
				got[key] = g.GetValue()
			}
		}
	}
	want := map[string]float64{
		"greeks_stream_snapshots_total/received":  5,
		"greeks_stream_snapshots_total/delivered": 4,
		"greeks_stream_snapshots_total/dropped":   1,
		"greeks_stream_subscribers":               2,
		"greeks_stream_topics":                    1,
		"greeks_stream_retained_snapshots":        1,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}

	stats.Retained = 0
	families, _ = reg.Gather()
	for _, mf := range families {
		if mf.GetName() == "greeks_stream_retained_snapshots" && mf.GetMetric()[0].GetGauge().GetValue() != 0 {
			t.Error("gauge not read at scrape time")
		}
	}

	if err := r.RegisterHub(func() stream.HubMetrics { return stats }); err == nil {
		t.Error("second registration on the same registry should fail")
	}

	var nilRecorder *Recorder
	if err := nilRecorder.RegisterHub(func() stream.HubMetrics { return stats }); err != nil {
		t.Errorf("nil recorder: %v", err)
	}
}
