// Package greeks turns raw per-tick option Greek samples into a normalized,
// minute-aligned series with net values and a Vega trend label.
//
// Every function in this package is pure: no I/O, no goroutines, and inputs
// are never mutated.
package greeks

import (
	"strings"
	"time"

	"greeks-dashboard/internal/errors"
	"greeks-dashboard/pkg/utils"
)

// SessionDateLayout is the calendar-date format accepted on the command line and in queries.
const SessionDateLayout = "2006-01-02"

// Session is one trading day on the exchange with its fixed market hours.
type Session struct {
	Date  time.Time // midnight in the exchange zone
	Start time.Time // 09:15
	End   time.Time // 15:30
}

// NewSession builds the session for the exchange calendar day containing date.
func NewSession(date time.Time) (Session, error) {
	if date.IsZero() {
		return Session{}, errors.NewConfigError("date", "", "trading date is required", errors.ErrInvalidDate)
	}
	start, end := utils.SessionBounds(date)
	return Session{
		Date:  utils.DateOnly(date),
		Start: start,
		End:   end,
	}, nil
}

// ParseSessionDate parses a YYYY-MM-DD calendar date in the exchange zone.
func ParseSessionDate(s string) (Session, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Session{}, errors.NewConfigError("date", s, "trading date is required", errors.ErrInvalidDate)
	}
	d, err := time.ParseInLocation(SessionDateLayout, s, utils.IndiaLocation)
	if err != nil {
		return Session{}, errors.NewConfigError("date", s, "expected YYYY-MM-DD", errors.Wrap(errors.ErrInvalidDate, err.Error()))
	}
	return NewSession(d)
}

// IsToday reports whether the session falls on now's exchange calendar day.
func (s Session) IsToday(now time.Time) bool {
	return utils.SameTradingDay(s.Date, now)
}

// Minutes returns the number of one-minute instants in the full session, inclusive.
func (s Session) Minutes() int {
	return int(s.End.Sub(s.Start)/time.Minute) + 1
}

// String returns the session date as YYYY-MM-DD.
func (s Session) String() string {
	return s.Date.Format(SessionDateLayout)
}
