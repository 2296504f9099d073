package mathutil

import (
	"errors"
	"math"
)

// ErrNoBracket is returned when f has the same sign at both ends of the interval.
var ErrNoBracket = errors.New("root not bracketed")

// Bisect finds a root of f in [lo, hi] by bisection.
// f(lo) and f(hi) must have opposite signs. Iteration stops once the
// interval is narrower than tol relative to its midpoint.
func Bisect(f func(float64) float64, lo, hi, tol float64) (float64, error) {
	flo := f(lo)
	if flo == 0 {
		return lo, nil
	}
	fhi := f(hi)
	if fhi == 0 {
		return hi, nil
	}
	if math.Signbit(flo) == math.Signbit(fhi) {
		return math.NaN(), ErrNoBracket
	}
	for i := 0; i < 200; i++ {
		mid := 0.5 * (lo + hi)
		fm := f(mid)
		if fm == 0 || (hi-lo) <= tol*math.Abs(mid) {
			return mid, nil
		}
		if math.Signbit(fm) == math.Signbit(flo) {
			lo, flo = mid, fm
		} else {
			hi = mid
		}
	}
	return 0.5 * (lo + hi), nil
}
