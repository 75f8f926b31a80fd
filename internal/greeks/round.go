package greeks

import (
	"math"

	"github.com/shopspring/decimal"
)

// Round2 rounds x to two decimals on x's shortest decimal representation, so
// 1.005 becomes 1.01. Halves round away from zero for both signs: -0.125
// becomes -0.13, not -0.12.
func Round2(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	return decimal.NewFromFloat(x).Round(2).InexactFloat64()
}

// Sub2 returns a - b rounded to two decimals, subtracting in decimal.
func Sub2(a, b float64) float64 {
	if math.IsNaN(a) || math.IsInf(a, 0) || math.IsNaN(b) || math.IsInf(b, 0) {
		return a - b
	}
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Round(2).InexactFloat64()
}
