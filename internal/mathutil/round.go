package mathutil

import "math"

// RoundHalfEven rounds x to the given number of decimal places, resolving
// ties to the nearest even digit.
func RoundHalfEven(x float64, decimals int) float64 {
	if decimals == 0 {
		return math.RoundToEven(x)
	}
	p := math.Pow(10, float64(decimals))
	return math.RoundToEven(x*p) / p
}

// ToFrames converts seconds to the nearest whole number of frames.
// Ties go to the even frame count.
func ToFrames(seconds, hopRate float64) int {
	return int(math.RoundToEven(seconds / hopRate))
}

// IsFinite reports whether x is neither NaN nor ±Inf.
func IsFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
