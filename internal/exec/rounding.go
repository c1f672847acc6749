package exec

import "math"

// roundHalfAwayFromZero rounds v to decimals places, rounding exact halves
// away from zero (spec.md §6: all egress numeric fields use this rule, not
// banker's rounding).
func roundHalfAwayFromZero(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	scaled := v * scale
	if scaled >= 0 {
		return math.Floor(scaled+0.5) / scale
	}
	return math.Ceil(scaled-0.5) / scale
}
