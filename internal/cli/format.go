package cli

import (
	"math"
	"strconv"
	"strings"

	"greeks-dashboard/internal/models"
	"greeks-dashboard/pkg/utils"
)

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// Sparkline renders one rune per value scaled between the series min and max.
// Absent values (ok[i] false) render as a space.
func Sparkline(values []float64, ok []bool) string {
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, v := range values {
		if !present(ok, i) || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	var b strings.Builder
	for i, v := range values {
		if !present(ok, i) || math.IsNaN(v) || math.IsInf(v, 0) {
			b.WriteRune(' ')
			continue
		}
		level := 0
		if hi > lo {
			level = int((v - lo) / (hi - lo) * float64(len(sparkLevels)-1))
		}
		b.WriteRune(sparkLevels[level])
	}
	return b.String()
}

func present(ok []bool, i int) bool {
	return i < len(ok) && ok[i]
}

// TrendBar renders count out of total as a fixed-width bar.
func TrendBar(count, total, width int) string {
	if width <= 0 {
		return ""
	}
	filled := 0
	if total > 0 && count > 0 {
		filled = int(math.Round(float64(width) * float64(count) / float64(total)))
		if filled > width {
			filled = width
		}
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// visibleSlots picks the slots a table shows: only those with data unless all
// is set, newest first, at most limit (0 means no limit).
func visibleSlots(series *models.Series, all bool, limit int) []models.DerivedSlot {
	out := make([]models.DerivedSlot, 0, len(series.Slots))
	for i := len(series.Slots) - 1; i >= 0; i-- {
		slot := series.Slots[i]
		if !all && !slot.HasData() {
			continue
		}
		out = append(out, slot)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// vegaSparkline draws the net vega across the whole grid.
func vegaSparkline(series *models.Series) string {
	values := make([]float64, len(series.Slots))
	ok := make([]bool, len(series.Slots))
	for i, slot := range series.Slots {
		values[i], ok[i] = slot.Diff(models.Vega)
	}
	return Sparkline(values, ok)
}

// renderSeriesTable prints one row per slot: time, vega legs, net greeks and trend.
func renderSeriesTable(output *Output, slots []models.DerivedSlot, precision int) {
	table := NewTable(output, "TIME", "CALL VEGA", "PUT VEGA", "NET VEGA", "NET DELTA", "NET GAMMA", "NET THETA", "NET IV", "TREND")
	for _, slot := range slots {
		cells := []string{utils.FormatClock(slot.Timestamp)}

		cv, cok := slot.Metrics.Get(models.Vega.CallField())
		pv, pok := slot.Metrics.Get(models.Vega.PutField())
		cells = append(cells,
			utils.FormatGreek(cv, cok, precision),
			utils.FormatGreek(pv, pok, precision),
		)
		for _, g := range models.Greeks {
			v, ok := slot.Diff(g)
			cells = append(cells, output.Signed(utils.FormatSigned(v, ok, precision), v, ok))
		}
		cells = append(cells, output.Trend(slot.Trend))
		table.AddRow(cells...)
	}
	table.Render()
}

// renderTrendHistogram prints how many slots fell into each trend.
func renderTrendHistogram(output *Output, summary models.SeriesSummary) {
	total := 0
	for _, n := range summary.TrendCounts {
		total += n
	}
	table := NewTable(output, "TREND", "SLOTS", "SHARE", "")
	for _, t := range models.AllTrends {
		n := summary.TrendCounts[t]
		share := 0.0
		if total > 0 {
			share = float64(n) / float64(total)
		}
		table.AddRow(output.Trend(t), strconv.Itoa(n), utils.FormatPercent(share), TrendBar(n, total, 24))
	}
	table.Render()
}
