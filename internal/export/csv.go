// Package export writes derived series as CSV.
package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"

	"greeks-dashboard/internal/errors"
	"greeks-dashboard/internal/models"
	"greeks-dashboard/pkg/utils"
)

// Order is the row order of an export.
type Order string

const (
	Descending Order = "desc" // newest first
	Ascending  Order = "asc"
)

// ParseOrder accepts asc or desc; empty means Descending.
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "desc", "descending":
		return Descending, nil
	case "asc", "ascending":
		return Ascending, nil
	default:
		return "", errors.NewValidationError("order", s, "must be asc or desc")
	}
}

// Options controls WriteCSV.
type Options struct {
	Order        Order
	Precision    int
	IncludeEmpty bool // also write minutes without data
}

// DefaultOptions returns newest-first rows with two decimals.
func DefaultOptions() Options {
	return Options{Order: Descending, Precision: 2}
}

// Row is one exported minute. Absent values are empty cells.
type Row struct {
	Time      string `csv:"time"`
	CallVega  string `csv:"call_vega"`
	PutVega   string `csv:"put_vega"`
	DiffVega  string `csv:"diff_vega"`
	Trend     string `csv:"trend"`
	CallDelta string `csv:"call_delta"`
	PutDelta  string `csv:"put_delta"`
	DiffDelta string `csv:"diff_delta"`
	CallGamma string `csv:"call_gamma"`
	PutGamma  string `csv:"put_gamma"`
	DiffGamma string `csv:"diff_gamma"`
	CallTheta string `csv:"call_theta"`
	PutTheta  string `csv:"put_theta"`
	DiffTheta string `csv:"diff_theta"`
	CallIV    string `csv:"call_iv"`
	PutIV     string `csv:"put_iv"`
	DiffIV    string `csv:"diff_iv"`
}

// Rows converts the series into export rows in the requested order.
func Rows(series *models.Series, opts Options) []*Row {
	if opts.Precision < 0 {
		opts.Precision = 0
	}
	rows := make([]*Row, 0, len(series.Slots))
	for i := range series.Slots {
		slot := series.Slots[i]
		if !slot.HasData() && !opts.IncludeEmpty {
			continue
		}
		rows = append(rows, toRow(slot, opts.Precision))
	}
	if opts.Order != Ascending {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}
	return rows
}

func toRow(slot models.DerivedSlot, precision int) *Row {
	cell := func(f models.Field) string {
		v, ok := slot.Metrics.Get(f)
		return formatCell(v, ok, precision)
	}
	diff := func(g models.Greek) string {
		v, ok := slot.Diff(g)
		return formatCell(v, ok, precision)
	}
	return &Row{
		Time:      utils.FormatClock(slot.Timestamp),
		CallVega:  cell(models.FieldCallVega),
		PutVega:   cell(models.FieldPutVega),
		DiffVega:  diff(models.Vega),
		Trend:     string(slot.Trend),
		CallDelta: cell(models.FieldCallDelta),
		PutDelta:  cell(models.FieldPutDelta),
		DiffDelta: diff(models.Delta),
		CallGamma: cell(models.FieldCallGamma),
		PutGamma:  cell(models.FieldPutGamma),
		DiffGamma: diff(models.Gamma),
		CallTheta: cell(models.FieldCallTheta),
		PutTheta:  cell(models.FieldPutTheta),
		DiffTheta: diff(models.Theta),
		CallIV:    cell(models.FieldCallIV),
		PutIV:     cell(models.FieldPutIV),
		DiffIV:    diff(models.IV),
	}
}

func formatCell(v float64, ok bool, precision int) string {
	if !ok {
		return ""
	}
	return strconv.FormatFloat(v, 'f', precision, 64)
}

// WriteCSV writes the series to w with a header row. It returns the number of
// data rows written.
func WriteCSV(w io.Writer, series *models.Series, opts Options) (int, error) {
	if series == nil {
		return 0, errors.NewDataError("series", "", "nothing to export", errors.ErrDataNotFound)
	}
	rows := Rows(series, opts)
	if len(rows) == 0 {
		// gocsv writes nothing for an empty slice; keep the header.
		_, err := io.WriteString(w, Header()+"\n")
		return 0, err
	}
	if err := gocsv.Marshal(&rows, w); err != nil {
		return 0, fmt.Errorf("write csv: %w", err)
	}
	return len(rows), nil
}

// Header returns the CSV header line.
func Header() string {
	return strings.Join([]string{
		"time",
		"call_vega", "put_vega", "diff_vega", "trend",
		"call_delta", "put_delta", "diff_delta",
		"call_gamma", "put_gamma", "diff_gamma",
		"call_theta", "put_theta", "diff_theta",
		"call_iv", "put_iv", "diff_iv",
	}, ",")
}

// Filename returns greeks_<INDEX>_<EXPIRY>_<YYYY-MM-DD>.csv. A missing
// expiry is written as ALL.
func Filename(series *models.Series) string {
	expiry := series.Query.Expiry
	if expiry == "" {
		expiry = "ALL"
	}
	return fmt.Sprintf("greeks_%s_%s_%s.csv", series.Query.Index, sanitize(expiry), series.Query.DateString())
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '-'
		}
	}, s)
}
