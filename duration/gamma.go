package duration

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ieee0824/rhythm-go/internal/mathutil"
)

// Gamma is a gamma distribution with location fixed at zero.
type Gamma struct {
	Shape float64 `json:"shape" yaml:"shape"`
	Scale float64 `json:"scale" yaml:"scale"`
}

// NewGamma validates the parameters and returns the distribution.
func NewGamma(shape, scale float64) (Gamma, error) {
	g := Gamma{Shape: shape, Scale: scale}
	if !g.Valid() {
		return Gamma{}, fmt.Errorf("invalid gamma parameters: shape=%v scale=%v", shape, scale)
	}
	return g, nil
}

// Valid reports whether shape and scale are finite and positive.
func (g Gamma) Valid() bool {
	return mathutil.IsFinite(g.Shape) && mathutil.IsFinite(g.Scale) && g.Shape > 0 && g.Scale > 0
}

func (g Gamma) dist() distuv.Gamma {
	return distuv.Gamma{Alpha: g.Shape, Beta: 1 / g.Scale}
}

// CDF returns P(X <= x).
func (g Gamma) CDF(x float64) float64 {
	if math.IsNaN(x) {
		return math.NaN()
	}
	if x <= 0 {
		return 0
	}
	return g.dist().CDF(x)
}

// Quantile returns the inverse CDF at p. It returns NaN for p outside
// [0, 1] instead of panicking.
func (g Gamma) Quantile(p float64) float64 {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return math.NaN()
	}
	switch p {
	case 0:
		return 0
	case 1:
		return math.Inf(1)
	}
	return g.dist().Quantile(p)
}

// Mean returns shape*scale.
func (g Gamma) Mean() float64 { return g.Shape * g.Scale }

// Median returns the 50th percentile.
func (g Gamma) Median() float64 { return g.Quantile(0.5) }

// Remap moves x from its percentile under src to the same percentile
// under dst. ok is false when the result is not a finite duration, in which
// case the caller keeps x.
func Remap(src, dst Gamma, x float64) (y float64, ok bool) {
	y = dst.Quantile(src.CDF(x))
	if !mathutil.IsFinite(y) {
		return x, false
	}
	return y, true
}
