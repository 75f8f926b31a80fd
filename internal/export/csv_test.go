package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"greeks-dashboard/internal/models"
	"greeks-dashboard/pkg/utils"
)

func testSeries() *models.Series {
	at := func(hh, mm int) time.Time { return time.Date(2024, 1, 15, hh, mm, 0, 0, utils.IndiaLocation) }
	return &models.Series{
		Query: models.SeriesQuery{
			Date:   time.Date(2024, 1, 15, 0, 0, 0, 0, utils.IndiaLocation),
			Index:  models.IndexNifty,
			Expiry: "25JAN",
		},
		Slots: []models.DerivedSlot{
			{
				Timestamp: at(9, 15),
				Metrics:   models.Metrics{models.FieldCallVega: 1.5, models.FieldPutVega: -2},
				Diffs:     map[models.Greek]float64{models.Vega: -0.5},
				Trend:     models.TrendSidewaysBearish,
			},
			{Timestamp: at(9, 16)},
			{
				Timestamp: at(9, 17),
				Metrics:   models.Metrics{models.FieldCallDelta: 0.456},
			},
		},
	}
}

func TestWriteCSVDescending(t *testing.T) {
	var buf bytes.Buffer
	n, err := WriteCSV(&buf, testSeries(), DefaultOptions())
	if err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if n != 2 {
		t.Errorf("rows = %d, want 2", n)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d: %q", len(lines), buf.String())
	}
	if lines[0] != Header() {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "09:17,,,,,0.46,") {
		t.Errorf("first row = %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "09:15,1.50,-2.00,-0.50,SIDEWAYS BEARISH,") {
		t.Errorf("second row = %q", lines[2])
	}
}

func TestRowsAscendingWithEmpty(t *testing.T) {
	rows := Rows(testSeries(), Options{Order: Ascending, Precision: 1, IncludeEmpty: true})
	if len(rows) != 3 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0].Time != "09:15" || rows[1].Time != "09:16" || rows[1].CallVega != "" {
		t.Errorf("rows = %+v %+v", rows[0], rows[1])
	}
	if rows[0].CallVega != "1.5" {
		t.Errorf("precision not applied: %q", rows[0].CallVega)
	}
}

func TestWriteCSVEmptySeriesKeepsHeader(t *testing.T) {
	var buf bytes.Buffer
	n, err := WriteCSV(&buf, &models.Series{}, DefaultOptions())
	if err != nil || n != 0 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if strings.TrimSpace(buf.String()) != Header() {
		t.Errorf("got %q", buf.String())
	}
}

func TestFilename(t *testing.T) {
	s := testSeries()
	if got := Filename(s); got != "greeks_NIFTY_25JAN_2024-01-15.csv" {
		t.Errorf("got %s", got)
	}
	s.Query.Expiry = ""
	if got := Filename(s); got != "greeks_NIFTY_ALL_2024-01-15.csv" {
		t.Errorf("got %s", got)
	}
}

func TestParseOrder(t *testing.T) {
	if o, _ := ParseOrder(""); o != Descending {
		t.Errorf("default = %s", o)
	}
	if o, _ := ParseOrder("ASC"); o != Ascending {
		t.Errorf("ASC = %s", o)
	}
	if _, err := ParseOrder("sideways"); err == nil {
		t.Error("expected error")
	}
}
