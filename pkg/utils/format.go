package utils

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// FormatGreek renders v with the given number of decimals, or "-" when absent.
func FormatGreek(v float64, ok bool, precision int) string {
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	if precision < 0 {
		precision = 2
	}
	return strconv.FormatFloat(v, 'f', precision, 64)
}

// FormatSigned renders v with an explicit sign, used for net (put - call) values.
func FormatSigned(v float64, ok bool, precision int) string {
	if !ok {
		return "-"
	}
	s := FormatGreek(v, true, precision)
	if v > 0 {
		return "+" + s
	}
	return s
}

// FormatClock renders t as HH:MM in exchange time.
func FormatClock(t time.Time) string {
	return t.In(IndiaLocation).Format("15:04")
}

// FormatRemaining renders a countdown like "4m05s", clamping negatives to zero.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	m := int(d / time.Minute)
	s := int((d % time.Minute) / time.Second)
	if m >= 60 {
		return fmt.Sprintf("%dh%02dm", m/60, m%60)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

// FormatPercent formats a ratio in [0,1] as a percentage.
func FormatPercent(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}
