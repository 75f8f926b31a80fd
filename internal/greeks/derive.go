package greeks

import "greeks-dashboard/internal/models"

// DisplayPutVega flips a positive put Vega negative. The backend reports put
// Vega as a magnitude; the dashboard reads it as a short-volatility exposure.
func DisplayPutVega(putVega float64) float64 {
	if putVega > 0 {
		return -putVega
	}
	return putVega
}

// trendRule is one row of the Vega sign table. Rows are checked in order.
type trendRule struct {
	call, put, diff func(float64) bool
	trend           models.Trend
}

func positive(v float64) bool { return v > 0 }
func negative(v float64) bool { return v < 0 }

// The table is intentionally not exhaustive; unmatched sign patterns are NEUTRAL.
var trendRules = []trendRule{
	{positive, negative, negative, models.TrendBullish},
	{negative, negative, negative, models.TrendSidewaysBullish},
	{negative, positive, positive, models.TrendBearish},
	{negative, negative, positive, models.TrendSidewaysBearish},
}

// ClassifyTrend labels a slot from call Vega, display put Vega and their net value.
func ClassifyTrend(callVega, displayPutVega, diffVega float64) models.Trend {
	for _, r := range trendRules {
		if r.call(callVega) && r.put(displayPutVega) && r.diff(diffVega) {
			return r.trend
		}
	}
	return models.TrendNeutral
}

// Derive computes net values and the trend for every slot.
// Slots without data stay empty: no diffs and no trend.
func Derive(slots []models.AlignedSlot) []models.DerivedSlot {
	out := make([]models.DerivedSlot, len(slots))
	for i, s := range slots {
		out[i] = DeriveSlot(s)
	}
	return out
}

// DeriveSlot computes the derived values for a single slot.
func DeriveSlot(s models.AlignedSlot) models.DerivedSlot {
	d := models.DerivedSlot{Timestamp: s.Timestamp}
	if !s.HasData() {
		return d
	}

	d.Metrics = s.Metrics.Clone()
	d.Diffs = make(map[models.Greek]float64, len(models.Greeks))

	if pv, ok := d.Metrics.Get(models.FieldPutVega); ok {
		d.Metrics[models.FieldPutVega] = DisplayPutVega(pv)
	}

	for _, g := range models.Greeks {
		call, okCall := d.Metrics.Get(g.CallField())
		put, okPut := d.Metrics.Get(g.PutField())
		if !okCall || !okPut {
			continue
		}
		d.Diffs[g] = Sub2(put, call)
	}

	callVega, okCall := d.Metrics.Get(models.FieldCallVega)
	putVega, okPut := d.Metrics.Get(models.FieldPutVega)
	diffVega, okDiff := d.Diff(models.Vega)
	if okCall && okPut && okDiff {
		d.Trend = ClassifyTrend(callVega, putVega, diffVega)
	}
	return d
}
