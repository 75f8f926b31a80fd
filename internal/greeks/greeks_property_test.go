package greeks

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"greeks-dashboard/internal/models"
	"greeks-dashboard/pkg/utils"
)

// Property: every past session has 376 one-minute instants from 09:15 to 15:30.
// Property: aligned slot count always equals grid length.
// Property: the later of two samples sharing a minute owns the slot.
// Property: after rebasing, the baseline slot nets to zero for every Greek.
// Property: display put Vega is never positive and keeps magnitude.
// Property: empty slots never carry diffs or a trend.

var epoch = time.Date(2015, 1, 1, 0, 0, 0, 0, utils.IndiaLocation)

func propertyParams() *gopter.TestParameters {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	parameters.MaxShrinkCount = 0
	return parameters
}

func pastGrid(dayOffset int) Grid {
	session, _ := NewSession(epoch.AddDate(0, 0, dayOffset))
	grid, _ := BuildGrid(session, session.End.AddDate(0, 0, 1), GridOptions{})
	return grid
}

// samplesAt builds one sample per minute offset; offsets may repeat and may
// fall outside the session.
func samplesAt(session Session, offsets []int) []models.RawSample {
	out := make([]models.RawSample, len(offsets))
	for i, off := range offsets {
		ts := session.Start.Add(time.Duration(off) * time.Minute)
		out[i] = models.RawSample{
			Timestamp: ts.Format(time.RFC3339),
			Values: map[string]interface{}{
				string(models.FieldCallVega): float64(i),
				string(models.FieldPutVega):  float64(off),
			},
		}
	}
	return out
}

func TestProperty_GridCompleteness(t *testing.T) {
	properties := gopter.NewProperties(propertyParams())

	properties.Property("past session grid spans 09:15 to 15:30 in 60s steps", prop.ForAll(
		func(dayOffset int) bool {
			grid := pastGrid(dayOffset)
			if grid.Len() != 376 {
				return false
			}
			if MinuteKey(grid.First()) != "09:15" || MinuteKey(grid.Last()) != "15:30" {
				return false
			}
			for i := 1; i < grid.Len(); i++ {
				if grid.Instants[i].Sub(grid.Instants[i-1]) != Step {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 4000),
	))

	properties.Property("truncated grid is never empty and never passes now", prop.ForAll(
		func(dayOffset, minuteOfDay int) bool {
			session, _ := NewSession(epoch.AddDate(0, 0, dayOffset))
			now := session.Date.Add(time.Duration(minuteOfDay) * time.Minute)
			grid, err := BuildGrid(session, now, GridOptions{Truncation: TruncateAtNow})
			if err != nil || grid.Len() < 1 {
				return false
			}
			return grid.Len() == 1 || !grid.Last().After(now)
		},
		gen.IntRange(0, 4000),
		gen.IntRange(0, 24*60-1),
	))

	properties.TestingRun(t)
}

func TestProperty_AlignmentCardinality(t *testing.T) {
	properties := gopter.NewProperties(propertyParams())

	properties.Property("one slot per grid instant", prop.ForAll(
		func(dayOffset int, offsets []int) bool {
			grid := pastGrid(dayOffset)
			slots := Align(samplesAt(grid.Session, offsets), grid)
			if len(slots) != grid.Len() {
				return false
			}
			for i := range slots {
				if !slots[i].Timestamp.Equal(grid.Instants[i]) {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 4000),
		gen.SliceOf(gen.IntRange(-30, 420)),
	))

	properties.TestingRun(t)
}

func TestProperty_CollisionLastWins(t *testing.T) {
	properties := gopter.NewProperties(propertyParams())

	properties.Property("later sample in input order owns the minute", prop.ForAll(
		func(minute, secA, secB int, first, second float64) bool {
			grid := pastGrid(100)
			base := grid.Session.Start.Add(time.Duration(minute) * time.Minute)
			samples := []models.RawSample{
				{Timestamp: base.Add(time.Duration(secA) * time.Second).Format(time.RFC3339), Values: map[string]interface{}{"call_delta": first}},
				{Timestamp: base.Add(time.Duration(secB) * time.Second).Format(time.RFC3339), Values: map[string]interface{}{"call_delta": second}},
			}
			slots := Align(samples, grid)
			got, ok := slots[minute].Metrics.Get(models.FieldCallDelta)
			return ok && got == second
		},
		gen.IntRange(0, 375),
		gen.IntRange(0, 59),
		gen.IntRange(0, 59),
		gen.Float64Range(-100, 100),
		gen.Float64Range(-100, 100),
	))

	properties.TestingRun(t)
}

func TestProperty_BaselineSlotNetsToZero(t *testing.T) {
	properties := gopter.NewProperties(propertyParams())

	properties.Property("rebased baseline slot has zero diffs and NEUTRAL trend", prop.ForAll(
		func(lead int, values []float64) bool {
			metrics := make(models.Metrics, len(models.TrackedFields))
			for i, f := range models.TrackedFields {
				metrics[f] = values[i]
			}
			slots := make([]models.AlignedSlot, lead+2)
			slots[lead].Metrics = metrics
			slots[lead+1].Metrics = models.Metrics{models.FieldCallVega: 1, models.FieldPutVega: 1}

			normalized, baseline := Normalize(slots, true)
			if !reflect.DeepEqual(baseline, metrics) {
				return false
			}
			d := DeriveSlot(normalized[lead])
			for _, g := range models.Greeks {
				if v, ok := d.Diff(g); !ok || v != 0 {
					return false
				}
			}
			for i := 0; i < lead; i++ {
				if normalized[i].HasData() {
					return false
				}
			}
			return d.Trend == models.TrendNeutral
		},
		gen.IntRange(0, 20),
		gen.SliceOfN(len(models.TrackedFields), gen.Float64Range(-500, 500)),
	))

	properties.Property("rebasing is deterministic for a fixed baseline", prop.ForAll(
		func(values []float64) bool {
			slots := make([]models.AlignedSlot, len(values))
			for i, v := range values {
				slots[i].Metrics = models.Metrics{models.FieldCallGamma: v}
			}
			a, _ := Normalize(slots, true)
			b, _ := Normalize(slots, true)
			return reflect.DeepEqual(a, b)
		},
		gen.SliceOfN(10, gen.Float64Range(-10, 10)),
	))

	properties.TestingRun(t)
}

func TestProperty_VegaInversion(t *testing.T) {
	properties := gopter.NewProperties(propertyParams())

	properties.Property("display put vega is -|put| for positive put, unchanged otherwise", prop.ForAll(
		func(put float64) bool {
			got := DisplayPutVega(put)
			if put > 0 {
				return got == -put
			}
			return got == put
		},
		gen.Float64Range(-1e6, 1e6),
	))

	properties.Property("derived put_vega is never positive", prop.ForAll(
		func(call, put float64) bool {
			d := DeriveSlot(models.AlignedSlot{Metrics: models.Metrics{
				models.FieldCallVega: call,
				models.FieldPutVega:  put,
			}})
			pv, _ := d.Metrics.Get(models.FieldPutVega)
			diff, _ := d.Diff(models.Vega)
			return pv <= 0 && diff == Sub2(pv, call) && d.Trend != models.TrendBearish
		},
		gen.Float64Range(-1000, 1000),
		gen.Float64Range(-1000, 1000),
	))

	properties.TestingRun(t)
}

func TestProperty_NullPropagation(t *testing.T) {
	properties := gopter.NewProperties(propertyParams())

	properties.Property("empty slots carry no diffs and no trend", prop.ForAll(
		func(mask []bool) bool {
			slots := make([]models.AlignedSlot, len(mask))
			for i, filled := range mask {
				if filled {
					slots[i].Metrics = models.Metrics{models.FieldCallVega: 2, models.FieldPutVega: 1}
				}
			}
			derived := Derive(slots)
			for i, d := range derived {
				if mask[i] != d.HasData() {
					return false
				}
				if !mask[i] && (d.Diffs != nil || d.Trend != models.TrendNone) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}

func TestProperty_Round2(t *testing.T) {
	properties := gopter.NewProperties(propertyParams())

	properties.Property("round2 is idempotent and within half a cent", prop.ForAll(
		func(x float64) bool {
			r := Round2(x)
			return Round2(r) == r && math.Abs(r-x) <= 0.005+1e-9
		},
		gen.Float64Range(-1e6, 1e6),
	))

	properties.Property("round2 is symmetric around zero", prop.ForAll(
		func(x float64) bool {
			return Round2(-x) == -Round2(x)
		},
		gen.Float64Range(-1e4, 1e4),
	))

	properties.TestingRun(t)
}

func TestProperty_RunIsDeterministic(t *testing.T) {
	properties := gopter.NewProperties(propertyParams())

	properties.Property("same input gives the same series", prop.ForAll(
		func(offsets []int, baseline bool) bool {
			session, _ := NewSession(epoch.AddDate(0, 0, 10))
			in := Input{
				Query:    models.SeriesQuery{Date: session.Date, Index: models.IndexBankNifty},
				Samples:  samplesAt(session, offsets),
				Baseline: baseline,
				Now:      session.End.Add(time.Hour),
			}
			a, errA := Run(in)
			b, errB := Run(in)
			return errA == nil && errB == nil && reflect.DeepEqual(a, b)
		},
		gen.SliceOf(gen.IntRange(0, 375)),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
