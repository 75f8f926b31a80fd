package greeks

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"greeks-dashboard/internal/models"
	"greeks-dashboard/pkg/utils"
)

// MinuteKeyLayout is the join key between raw samples and grid instants.
const MinuteKeyLayout = "15:04"

// timestamp layouts tried in order; zone-less forms are read in the exchange zone.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// MinuteKey truncates t to HH:mm in the exchange zone.
func MinuteKey(t time.Time) string {
	return t.In(utils.IndiaLocation).Format(MinuteKeyLayout)
}

// ParseTimestamp parses a raw sample timestamp.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for i, layout := range timestampLayouts {
		var (
			t   time.Time
			err error
		)
		if i == 0 {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, utils.IndiaLocation)
		}
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// CoerceMetrics extracts the tracked fields of a raw sample as finite floats.
// Fields that are missing, null or non-numeric are left out.
func CoerceMetrics(values map[string]interface{}) models.Metrics {
	out := make(models.Metrics, len(models.TrackedFields))
	for _, f := range models.TrackedFields {
		raw, ok := values[string(f)]
		if !ok {
			continue
		}
		if v, ok := coerceFloat(raw); ok {
			out[f] = v
		}
	}
	return out
}

func coerceFloat(v interface{}) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case int32:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// minuteIndex maps minute keys to the sample metrics that claimed them.
// put overwrites, so the sample seen last in input order owns the minute.
type minuteIndex struct {
	keys    []string
	samples map[string]models.Metrics
}

func newMinuteIndex(capacity int) *minuteIndex {
	return &minuteIndex{samples: make(map[string]models.Metrics, capacity)}
}

func (m *minuteIndex) put(key string, metrics models.Metrics) {
	if _, seen := m.samples[key]; !seen {
		m.keys = append(m.keys, key)
	}
	m.samples[key] = metrics
}

func (m *minuteIndex) get(key string) (models.Metrics, bool) {
	metrics, ok := m.samples[key]
	return metrics, ok
}

// AlignStats reports what happened to the raw input during alignment.
type AlignStats struct {
	Samples    int // raw samples seen
	Dropped    int // unparseable timestamps
	Duplicates int // samples that overwrote an earlier one for the same minute
	Matched    int // grid slots that received a sample
}

// Align maps samples onto grid, one slot per instant in grid order.
func Align(samples []models.RawSample, grid Grid) []models.AlignedSlot {
	slots, _ := AlignWithStats(samples, grid)
	return slots
}

// AlignWithStats is Align plus counters for dropped and duplicate samples.
func AlignWithStats(samples []models.RawSample, grid Grid) ([]models.AlignedSlot, AlignStats) {
	stats := AlignStats{Samples: len(samples)}

	index := newMinuteIndex(len(samples))
	for _, s := range samples {
		ts, ok := ParseTimestamp(s.Timestamp)
		if !ok {
			stats.Dropped++
			continue
		}
		key := MinuteKey(ts)
		if _, seen := index.get(key); seen {
			stats.Duplicates++
		}
		index.put(key, CoerceMetrics(s.Values))
	}

	slots := make([]models.AlignedSlot, len(grid.Instants))
	for i, instant := range grid.Instants {
		slots[i].Timestamp = instant
		if metrics, ok := index.get(MinuteKey(instant)); ok {
			slots[i].Metrics = metrics.Clone()
			stats.Matched++
		}
	}
	return slots, stats
}
