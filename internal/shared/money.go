package shared

import "github.com/shopspring/decimal"

// Monetary values are whole currency units. All rounding in the codebase
// funnels through these helpers so the policy (half away from zero, zero
// decimals) lives in exactly one place.

// RoundUnit rounds to the nearest whole currency unit, halves away from zero.
func RoundUnit(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(0).Float64()
	return f
}

// Portion computes round(total * numerator / denominator) in decimal space,
// avoiding float drift before the final rounding step. Returns 0 when the
// denominator is zero.
func Portion(total, numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	d := decimal.NewFromFloat(total).
		Mul(decimal.NewFromFloat(numerator)).
		Div(decimal.NewFromFloat(denominator)).
		Round(0)
	f, _ := d.Float64()
	return f
}

// Percent computes round(total * percent / 100) as whole currency units.
func Percent(total, percent float64) float64 {
	return Portion(total, percent, 100)
}
