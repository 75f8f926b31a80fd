package utils

import (
	"time"

	"greeks-dashboard/internal/models"
)

// IndiaLocation is the timezone for Indian markets.
var IndiaLocation *time.Location

func init() {
	var err error
	IndiaLocation, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Fallback to UTC+5:30
		IndiaLocation = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// Cash and F&O session bounds, minutes after midnight IST.
const (
	PreOpenMinute      = 9 * 60     // 09:00
	SessionOpenMinute  = 9*60 + 15  // 09:15
	SessionCloseMinute = 15*60 + 30 // 15:30
)

// SessionBounds returns the open and close instants of the session on date.
func SessionBounds(date time.Time) (open, close time.Time) {
	d := date.In(IndiaLocation)
	open = time.Date(d.Year(), d.Month(), d.Day(), 9, 15, 0, 0, IndiaLocation)
	close = time.Date(d.Year(), d.Month(), d.Day(), 15, 30, 0, 0, IndiaLocation)
	return open, close
}

// DateOnly truncates t to midnight of its IST calendar day.
func DateOnly(t time.Time) time.Time {
	d := t.In(IndiaLocation)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, IndiaLocation)
}

// SameTradingDay reports whether a and b fall on the same IST calendar day.
func SameTradingDay(a, b time.Time) bool {
	return DateOnly(a).Equal(DateOnly(b))
}

// IsWeekend reports whether t falls on a Saturday or Sunday in IST.
func IsWeekend(t time.Time) bool {
	wd := t.In(IndiaLocation).Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// MarketStatusAt returns the market status at the given instant.
func MarketStatusAt(now time.Time) models.MarketStatus {
	now = now.In(IndiaLocation)

	if IsWeekend(now) {
		return models.MarketClosed
	}

	timeMinutes := now.Hour()*60 + now.Minute()

	// Pre-open: 9:00 - 9:15
	if timeMinutes >= PreOpenMinute && timeMinutes < SessionOpenMinute {
		return models.MarketPreOpen
	}

	// Market open: 9:15 - 15:30
	if timeMinutes >= SessionOpenMinute && timeMinutes < SessionCloseMinute {
		return models.MarketOpen
	}

	return models.MarketClosed
}

// GetMarketStatus returns the current market status.
func GetMarketStatus() models.MarketStatus {
	return MarketStatusAt(time.Now())
}

// IsMarketOpen returns true if the market is currently open.
func IsMarketOpen() bool {
	return GetMarketStatus() == models.MarketOpen
}

// IsLiveSession reports whether date is today's session and the market has not closed yet.
func IsLiveSession(date, now time.Time) bool {
	if !SameTradingDay(date, now) || IsWeekend(now) {
		return false
	}
	_, closeAt := SessionBounds(now)
	return now.Before(closeAt)
}

// LatestTradingDay returns the most recent weekday whose session has opened at now.
func LatestTradingDay(now time.Time) time.Time {
	now = now.In(IndiaLocation)
	day := DateOnly(now)

	openAt, _ := SessionBounds(now)
	if now.Before(openAt) {
		day = day.AddDate(0, 0, -1)
	}
	for IsWeekend(day) {
		day = day.AddDate(0, 0, -1)
	}
	return day
}

// NextMarketOpen returns the next market opening time after now.
func NextMarketOpen(now time.Time) time.Time {
	now = now.In(IndiaLocation)

	// Start with today at 9:15
	next, _ := SessionBounds(now)

	// If already past today's open, move to tomorrow
	if now.After(next) {
		next = next.AddDate(0, 0, 1)
	}

	// Skip weekends
	for IsWeekend(next) {
		next = next.AddDate(0, 0, 1)
	}

	return next
}

// TimeUntilMarketClose returns the duration until today's close.
func TimeUntilMarketClose(now time.Time) time.Duration {
	_, closeAt := SessionBounds(now)
	return closeAt.Sub(now)
}
