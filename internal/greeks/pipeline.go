package greeks

import (
	"time"

	"greeks-dashboard/internal/models"
)

// Input is everything one pipeline run needs.
type Input struct {
	Query    models.SeriesQuery
	Samples  []models.RawSample
	Baseline bool // rebase against the first sample of the day
	Now      time.Time
	Grid     GridOptions
}

// Run builds the grid, aligns samples, optionally rebases and derives the series.
// The only error is an unusable session date.
func Run(in Input) (*models.Series, error) {
	session, err := NewSession(in.Query.Date)
	if err != nil {
		return nil, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	grid, err := BuildGrid(session, now, in.Grid)
	if err != nil {
		return nil, err
	}

	aligned, stats := AlignWithStats(in.Samples, grid)
	normalized, baseline := Normalize(aligned, in.Baseline)
	derived := Derive(normalized)

	query := in.Query
	query.Date = session.Date

	return &models.Series{
		Query:           query,
		GeneratedAt:     now,
		BaselineApplied: baseline != nil,
		Baseline:        baseline,
		Dropped:         stats.Dropped,
		Slots:           derived,
		Summary:         Summarize(derived),
	}, nil
}

// Summarize counts filled slots and trends and picks the latest slot with data.
func Summarize(slots []models.DerivedSlot) models.SeriesSummary {
	sum := models.SeriesSummary{
		TotalSlots:  len(slots),
		TrendCounts: make(map[models.Trend]int, len(models.AllTrends)),
	}
	for i := range slots {
		s := slots[i]
		if !s.HasData() {
			continue
		}
		sum.FilledSlots++
		if s.Trend != models.TrendNone {
			sum.TrendCounts[s.Trend]++
		}
		latest := s
		sum.Latest = &latest
	}
	if sum.Latest != nil {
		sum.LatestTrend = sum.Latest.Trend
	}
	return sum
}
