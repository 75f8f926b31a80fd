package notify

import (
	"context"
	"fmt"

	"greeks-dashboard/internal/models"
	"greeks-dashboard/pkg/utils"
)

// SeriesAlerts turns successive polls of one selection into notifications:
// a change of the latest Vega trend, the first failed poll after a good one,
// and the session entering its expiry warning window.
type SeriesAlerts struct {
	notifier Notifier

	primed  bool
	last    models.Trend
	failing bool
	warned  bool
}

// NewSeriesAlerts creates alerts sent through n.
func NewSeriesAlerts(n Notifier) *SeriesAlerts {
	if n == nil {
		n = NoOpNotifier{}
	}
	return &SeriesAlerts{notifier: n}
}

// Observe records one poll. The first observed trend sets the reference and
// is never reported.
func (a *SeriesAlerts) Observe(ctx context.Context, series *models.Series, pollErr string, sessionWarning bool) error {
	var sends []Notification

	if pollErr != "" {
		if !a.failing {
			sends = append(sends, Notification{
				Type:     NotificationError,
				Title:    "Poll failed",
				Message:  pollErr,
				Priority: 1,
			})
		}
		a.failing = true
	} else {
		a.failing = false
	}

	if series != nil && series.Summary.Latest != nil {
		trend := series.Summary.LatestTrend
		latest := series.Summary.Latest
		if a.primed && trend != a.last && trend != models.TrendNone {
			v, _ := latest.Diff(models.Vega)
			sends = append(sends, Notification{
				Type:  NotificationTrend,
				Title: fmt.Sprintf("%s %s", series.Query.Index, trend),
				Message: fmt.Sprintf("trend %s -> %s at %s, net vega %s",
					orNone(a.last), trend, utils.FormatClock(latest.Timestamp), utils.FormatSigned(v, true, 2)),
				Data: map[string]interface{}{
					"index":     series.Query.Index,
					"previous":  a.last,
					"trend":     trend,
					"slot":      latest.Timestamp,
					"diff_vega": v,
				},
				Priority: 2,
			})
		}
		if trend != models.TrendNone {
			a.last = trend
			a.primed = true
		}
	}

	if sessionWarning && !a.warned {
		sends = append(sends, Notification{
			Type:     NotificationSession,
			Title:    "Session expiring",
			Message:  "run 'greeks login' to keep watching",
			Priority: 1,
		})
	}
	a.warned = sessionWarning

	var firstErr error
	for _, n := range sends {
		if err := a.notifier.Send(ctx, n); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func orNone(t models.Trend) string {
	if t == models.TrendNone {
		return "none"
	}
	return string(t)
}
