package mathutil

import "math"

// MeanLog returns the mean of log(x) over xs, or NaN for an empty slice.
func MeanLog(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, x := range xs {
		sum += math.Log(x)
	}
	return sum / float64(len(xs))
}
