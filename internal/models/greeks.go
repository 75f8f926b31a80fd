package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Field is the wire name of a raw per-side Greek metric.
type Field string

const (
	FieldCallVega  Field = "call_vega"
	FieldPutVega   Field = "put_vega"
	FieldCallDelta Field = "call_delta"
	FieldPutDelta  Field = "put_delta"
	FieldCallGamma Field = "call_gamma"
	FieldPutGamma  Field = "put_gamma"
	FieldCallTheta Field = "call_theta"
	FieldPutTheta  Field = "put_theta"
	FieldCallIV    Field = "call_iv"
	FieldPutIV     Field = "put_iv"
)

// TrackedFields lists every raw field the pipeline reads, in display order.
var TrackedFields = []Field{
	FieldCallVega, FieldPutVega,
	FieldCallDelta, FieldPutDelta,
	FieldCallGamma, FieldPutGamma,
	FieldCallTheta, FieldPutTheta,
	FieldCallIV, FieldPutIV,
}

var trackedFieldSet = func() map[Field]bool {
	m := make(map[Field]bool, len(TrackedFields))
	for _, f := range TrackedFields {
		m[f] = true
	}
	return m
}()

// IsTracked reports whether name is one of the raw metric fields.
func IsTracked(name string) bool {
	return trackedFieldSet[Field(name)]
}

// Greek identifies a sensitivity measure tracked on both the call and put side.
type Greek string

const (
	Vega  Greek = "vega"
	Delta Greek = "delta"
	Gamma Greek = "gamma"
	Theta Greek = "theta"
	IV    Greek = "iv"
)

// Greeks lists the tracked Greeks in display order.
var Greeks = []Greek{Vega, Delta, Gamma, Theta, IV}

// CallField returns the call-side field for the Greek.
func (g Greek) CallField() Field { return Field("call_" + string(g)) }

// PutField returns the put-side field for the Greek.
func (g Greek) PutField() Field { return Field("put_" + string(g)) }

// DiffKey returns the wire name of the net (put - call) value.
func (g Greek) DiffKey() string { return "diff_" + string(g) }

// Metrics holds numeric field values. A missing key means the value is absent.
type Metrics map[Field]float64

// Get returns the value for f and whether it is present.
func (m Metrics) Get(f Field) (float64, bool) {
	if m == nil {
		return 0, false
	}
	v, ok := m[f]
	return v, ok
}

// Clone returns a copy of m. Cloning nil yields nil.
func (m Metrics) Clone() Metrics {
	if m == nil {
		return nil
	}
	out := make(Metrics, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// RawSample is one backend tick: a timestamp plus loosely typed metric values.
// Values are kept as decoded so coercion rules live in one place.
type RawSample struct {
	Timestamp string
	Values    map[string]interface{}
}

// UnmarshalJSON decodes the flat backend shape {"timestamp": ..., "call_vega": ...}.
func (r *RawSample) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	r.Values = make(map[string]interface{}, len(raw))
	for k, v := range raw {
		if k == "timestamp" {
			switch ts := v.(type) {
			case string:
				r.Timestamp = ts
			case nil:
				r.Timestamp = ""
			default:
				r.Timestamp = fmt.Sprint(ts)
			}
			continue
		}
		r.Values[k] = v
	}
	return nil
}

// MarshalJSON encodes the sample back into the flat backend shape.
func (r RawSample) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Values)+1)
	for k, v := range r.Values {
		out[k] = v
	}
	out["timestamp"] = r.Timestamp
	return json.Marshal(out)
}

// AlignedSlot is one grid minute with the sample that landed on it, if any.
type AlignedSlot struct {
	Timestamp time.Time
	Metrics   Metrics // nil when no sample matched this minute
}

// HasData reports whether a sample matched the slot.
func (s AlignedSlot) HasData() bool { return s.Metrics != nil }

// Trend is the Vega-derived sentiment label.
type Trend string

const (
	TrendNone            Trend = ""
	TrendBullish         Trend = "BULLISH"
	TrendSidewaysBullish Trend = "SIDEWAYS BULLISH"
	TrendBearish         Trend = "BEARISH"
	TrendSidewaysBearish Trend = "SIDEWAYS BEARISH"
	TrendNeutral         Trend = "NEUTRAL"
)

// AllTrends lists the computed trend labels.
var AllTrends = []Trend{TrendBullish, TrendSidewaysBullish, TrendBearish, TrendSidewaysBearish, TrendNeutral}

// IsBullish reports whether the trend leans bullish.
func (t Trend) IsBullish() bool {
	return t == TrendBullish || t == TrendSidewaysBullish
}

// IsBearish reports whether the trend leans bearish.
func (t Trend) IsBearish() bool {
	return t == TrendBearish || t == TrendSidewaysBearish
}

// DerivedSlot is the final per-minute output unit.
type DerivedSlot struct {
	Timestamp time.Time
	Metrics   Metrics           // call_X and put_X, put_vega already display-inverted
	Diffs     map[Greek]float64 // net put - call values
	Trend     Trend             // TrendNone when not computed
}

// HasData reports whether the slot carries derived values.
func (s DerivedSlot) HasData() bool { return s.Metrics != nil }

// Diff returns the net value for g and whether it is present.
func (s DerivedSlot) Diff(g Greek) (float64, bool) {
	if s.Diffs == nil {
		return 0, false
	}
	v, ok := s.Diffs[g]
	return v, ok
}

// MarshalJSON flattens the slot into the shape chart and table consumers read.
func (s DerivedSlot) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"timestamp": s.Timestamp.Format(time.RFC3339),
		"has_data":  s.HasData(),
	}
	for f, v := range s.Metrics {
		out[string(f)] = v
	}
	for g, v := range s.Diffs {
		out[g.DiffKey()] = v
	}
	if s.Trend != TrendNone {
		out["trend"] = string(s.Trend)
	}
	return json.Marshal(out)
}

// Series is the pipeline output for one (date, index, expiry, source) selection.
type Series struct {
	Query           SeriesQuery   `json:"query"`
	GeneratedAt     time.Time     `json:"generated_at"`
	BaselineApplied bool          `json:"baseline_applied"`
	Baseline        Metrics       `json:"baseline,omitempty"`
	Dropped         int           `json:"dropped_samples"`
	Slots           []DerivedSlot `json:"slots"`
	Summary         SeriesSummary `json:"summary"`
}

// SeriesSummary condenses a series for status lines and metrics.
type SeriesSummary struct {
	TotalSlots  int           `json:"total_slots"`
	FilledSlots int           `json:"filled_slots"`
	Latest      *DerivedSlot  `json:"latest,omitempty"`
	LatestTrend Trend         `json:"latest_trend,omitempty"`
	TrendCounts map[Trend]int `json:"trend_counts"`
}

// Index is an option underlying symbol.
type Index string

const (
	IndexNifty      Index = "NIFTY"
	IndexBankNifty  Index = "BANKNIFTY"
	IndexFinNifty   Index = "FINNIFTY"
	IndexMidcpNifty Index = "MIDCPNIFTY"
	IndexSensex     Index = "SENSEX"
)

// SupportedIndices lists the indices the backend publishes Greeks for.
var SupportedIndices = []Index{IndexNifty, IndexBankNifty, IndexFinNifty, IndexMidcpNifty, IndexSensex}

// Source selects which backend feed produced the samples.
type Source string

const (
	SourceLive       Source = "live"
	SourceHistorical Source = "historical"
)

// SeriesQuery selects one dataset on the backend.
type SeriesQuery struct {
	Date   time.Time `json:"date"`
	Index  Index     `json:"index"`
	Expiry string    `json:"expiry"`
	Source Source    `json:"source"`
}

// DateString returns the query date as YYYY-MM-DD.
func (q SeriesQuery) DateString() string {
	return q.Date.Format("2006-01-02")
}

// Key returns a stable identifier for caches.
func (q SeriesQuery) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s", q.DateString(), q.Index, q.Expiry, q.Source)
}
