package cli

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Sparkline draws exactly one rune per value, spaces exactly where values are
// absent, and the extremes at the lowest and highest level.
func TestPropertySparklineShape(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("one rune per value with absent slots blank", prop.ForAll(
		func(values []float64, mask []bool) bool {
			ok := make([]bool, len(values))
			for i := range ok {
				ok[i] = i < len(mask) && mask[i]
			}

			line := Sparkline(values, ok)
			runes := []rune(line)
			if len(runes) != len(values) {
				t.Logf("len %d want %d", len(runes), len(values))
				return false
			}
			for i, r := range runes {
				if (r == ' ') != !ok[i] {
					t.Logf("slot %d: rune %q present=%v", i, r, ok[i])
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(-1e6, 1e6)),
		gen.SliceOf(gen.Bool()),
	))

	properties.Property("min and max map to the end levels", prop.ForAll(
		func(values []float64) bool {
			ok := make([]bool, len(values))
			lo, hi := 0, 0
			for i := range values {
				ok[i] = true
				if values[i] < values[lo] {
					lo = i
				}
				if values[i] > values[hi] {
					hi = i
				}
			}
			runes := []rune(Sparkline(values, ok))
			if values[lo] == values[hi] {
				return runes[lo] == sparkLevels[0]
			}
			return runes[lo] == sparkLevels[0] && runes[hi] == sparkLevels[len(sparkLevels)-1]
		},
		gen.SliceOfN(8, gen.Float64Range(-500, 500)),
	))

	properties.TestingRun(t)
}

// TrendBar always has the requested width and never shrinks as count grows.
func TestPropertyTrendBarWidth(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("fixed width and monotonic fill", prop.ForAll(
		func(count, total, width int) bool {
			bar := TrendBar(count, total, width)
			if utf8.RuneCountInString(bar) != width {
				t.Logf("TrendBar(%d,%d,%d) width %d", count, total, width, utf8.RuneCountInString(bar))
				return false
			}
			next := TrendBar(count+1, total, width)
			return strings.Count(next, "█") >= strings.Count(bar, "█")
		},
		gen.IntRange(0, 400),
		gen.IntRange(0, 400),
		gen.IntRange(1, 60),
	))

	properties.TestingRun(t)
}
