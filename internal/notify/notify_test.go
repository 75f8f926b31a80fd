package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"greeks-dashboard/internal/config"
	"greeks-dashboard/internal/models"
	"greeks-dashboard/pkg/utils"
)

type recorder struct {
	mu   sync.Mutex
	sent []Notification
}

func (r *recorder) Send(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func seriesWith(trend models.Trend, minute int, diffVega float64) *models.Series {
	slot := &models.DerivedSlot{
		Timestamp: time.Date(2024, 1, 16, 9, 15+minute, 0, 0, utils.IndiaLocation),
		Metrics:   models.Metrics{models.FieldCallVega: 1},
		Diffs:     map[models.Greek]float64{models.Vega: diffVega},
		Trend:     trend,
	}
	return &models.Series{
		Query:   models.SeriesQuery{Index: models.IndexNifty},
		Summary: models.SeriesSummary{Latest: slot, LatestTrend: trend},
	}
}

func TestSeriesAlertsTrendFlip(t *testing.T) {
	rec := &recorder{}
	a := NewSeriesAlerts(rec)
	ctx := context.Background()

	_ = a.Observe(ctx, seriesWith(models.TrendNeutral, 0, 0), "", false)
	_ = a.Observe(ctx, seriesWith(models.TrendNeutral, 1, 0), "", false)
	if len(rec.sent) != 0 {
		t.Fatalf("sent %d notifications before any change", len(rec.sent))
	}

	_ = a.Observe(ctx, seriesWith(models.TrendBullish, 2, 1.5), "", false)
	if len(rec.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(rec.sent))
	}
	n := rec.sent[0]
	if n.Type != NotificationTrend || n.Data["trend"] != models.TrendBullish || n.Data["previous"] != models.TrendNeutral {
		t.Errorf("notification = %+v", n)
	}
	if !strings.Contains(n.Message, "09:17") || !strings.Contains(n.Message, "+1.50") {
		t.Errorf("message = %q", n.Message)
	}

	// A poll without a computed trend keeps the reference.
	_ = a.Observe(ctx, seriesWith(models.TrendNone, 3, 0), "", false)
	_ = a.Observe(ctx, seriesWith(models.TrendBullish, 4, 2), "", false)
	if len(rec.sent) != 1 {
		t.Errorf("sent = %d after unchanged trend", len(rec.sent))
	}
}

func TestSeriesAlertsErrorsAndSession(t *testing.T) {
	rec := &recorder{}
	a := NewSeriesAlerts(rec)
	ctx := context.Background()

	_ = a.Observe(ctx, nil, "backend unavailable", false)
	_ = a.Observe(ctx, nil, "backend unavailable", false)
	_ = a.Observe(ctx, seriesWith(models.TrendNeutral, 0, 0), "", true)
	_ = a.Observe(ctx, seriesWith(models.TrendNeutral, 1, 0), "", true)
	_ = a.Observe(ctx, nil, "timeout", false)

	var types []NotificationType
	for _, n := range rec.sent {
		types = append(types, n.Type)
	}
	want := []NotificationType{NotificationError, NotificationSession, NotificationError}
	if len(types) != len(want) {
		t.Fatalf("types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("types = %v, want %v", types, want)
			break
		}
	}
}

func TestMultiNotifierLevels(t *testing.T) {
	var buf bytes.Buffer
	mn := NewMultiNotifier(config.NotifyConfig{Level: string(LevelTrendOnly)})
	mn.AddChannel(NewTerminalNotifier(&buf, true, false))

	ctx := context.Background()
	_ = mn.Send(ctx, Notification{Type: NotificationError, Title: "Poll failed", Message: "x", Priority: 1})
	if buf.Len() != 0 {
		t.Errorf("error sent at trend_only level: %q", buf.String())
	}
	_ = mn.Send(ctx, Notification{Type: NotificationTrend, Title: "NIFTY BULLISH", Message: "flip", Priority: 2})
	out := buf.String()
	if !strings.HasPrefix(out, "\a") || !strings.Contains(out, "NIFTY BULLISH: flip") {
		t.Errorf("terminal output = %q", out)
	}
}

func TestWebhookNotifier(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	mn := NewMultiNotifier(config.NotifyConfig{WebhookURL: srv.URL})
	err := mn.Send(context.Background(), Notification{Type: NotificationTrend, Title: "t", Message: "m"})
	if err != nil {
		t.Fatal(err)
	}
	if got["type"] != "trend" || got["title"] != "t" || got["timestamp"] == "" {
		t.Errorf("payload = %v", got)
	}

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()
	mn = NewMultiNotifier(config.NotifyConfig{WebhookURL: failing.URL})
	if err := mn.Send(context.Background(), Notification{Type: NotificationInfo}); err == nil || !strings.Contains(err.Error(), "webhook") {
		t.Errorf("err = %v", err)
	}
}
