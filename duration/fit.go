package duration

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat"

	"github.com/ieee0824/rhythm-go/internal/mathutil"
	"github.com/ieee0824/rhythm-go/segment"
)

// ErrDegenerateFit is returned when samples admit no finite
// maximum-likelihood gamma fit (a single sample, or zero variance).
var ErrDegenerateFit = errors.New("degenerate gamma fit")

// minSpread is the smallest log(mean) - mean(log x) treated as variance.
const minSpread = 1e-14

// DegenerateFitError describes a degenerate sample set.
type DegenerateFitError struct {
	N      int     // number of samples
	Value  float64 // sample mean
	Spread float64 // log(mean) - mean(log x)
}

func (e *DegenerateFitError) Error() string {
	return fmt.Sprintf("%v: %d samples around %.4gs (spread %.3g)", ErrDegenerateFit, e.N, e.Value, e.Spread)
}

func (e *DegenerateFitError) Unwrap() error { return ErrDegenerateFit }

// ClusterError identifies the cluster a fit failed on.
type ClusterError struct {
	Cluster segment.SoundType
	Err     error
}

func (e *ClusterError) Error() string {
	return fmt.Sprintf("cluster %q: %v", e.Cluster, e.Err)
}

func (e *ClusterError) Unwrap() error { return e.Err }

// DegeneratePolicy selects what Fit does with degenerate clusters.
type DegeneratePolicy int

const (
	// PolicySkip leaves degenerate clusters unfit; they pass through
	// unchanged when transforming.
	PolicySkip DegeneratePolicy = iota
	// PolicyError fails the whole fit.
	PolicyError
)

func (p DegeneratePolicy) String() string {
	switch p {
	case PolicySkip:
		return "skip"
	case PolicyError:
		return "error"
	}
	return fmt.Sprintf("DegeneratePolicy(%d)", int(p))
}

// ParsePolicy parses "skip" or "error".
func ParsePolicy(s string) (DegeneratePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return PolicySkip, nil
	case "error":
		return PolicyError, nil
	}
	return PolicySkip, fmt.Errorf("unknown degenerate policy %q", s)
}

// FitGamma estimates shape and scale by maximum likelihood with the
// location fixed at zero. The shape solves log(a) - digamma(a) = s where
// s = log(mean) - mean(log x); the scale is mean/a.
func FitGamma(samples []float64) (Gamma, error) {
	if len(samples) == 0 {
		return Gamma{}, fmt.Errorf("%w: no samples", ErrDegenerateFit)
	}
	for i, x := range samples {
		if !mathutil.IsFinite(x) || x <= 0 {
			return Gamma{}, fmt.Errorf("sample %d: duration %v is not positive", i, x)
		}
	}

	mean := stat.Mean(samples, nil)
	s := math.Log(mean) - mathutil.MeanLog(samples)
	if len(samples) < 2 || !(s > minSpread) {
		return Gamma{}, &DegenerateFitError{N: len(samples), Value: mean, Spread: s}
	}

	shape, err := solveShape(s)
	if err != nil {
		return Gamma{}, fmt.Errorf("solve gamma shape (spread %g): %w", s, err)
	}
	return NewGamma(shape, mean/shape)
}

// solveShape finds a > 0 with log(a) - digamma(a) = s, s > 0.
func solveShape(s float64) (float64, error) {
	f := func(a float64) float64 {
		return math.Log(a) - mathext.Digamma(a) - s
	}
	// Closed-form starting point (Choi & Wette), within a few percent.
	a0 := (3 - s + math.Sqrt((s-3)*(s-3)+24*s)) / (12 * s)
	lo, hi := a0/2, a0*2
	for i := 0; i < 64 && f(lo) < 0; i++ {
		lo /= 2
	}
	for i := 0; i < 64 && f(hi) > 0; i++ {
		hi *= 2
	}
	return mathutil.Bisect(f, lo, hi, 1e-13)
}

// Fitted is the outcome of fitting one side.
type Fitted struct {
	Dists   map[segment.SoundType]Gamma
	Skipped []segment.SoundType // degenerate clusters left out under PolicySkip
	Counts  map[segment.SoundType]int
}

// Fit fits a gamma distribution to every cluster of samples, in label order.
func Fit(samples Samples, policy DegeneratePolicy) (Fitted, error) {
	out := Fitted{
		Dists:  make(map[segment.SoundType]Gamma, len(samples)),
		Counts: make(map[segment.SoundType]int, len(samples)),
	}
	for _, c := range samples.Clusters() {
		out.Counts[c] = len(samples[c])
		g, err := FitGamma(samples[c])
		if err != nil {
			if errors.Is(err, ErrDegenerateFit) && policy == PolicySkip {
				out.Skipped = append(out.Skipped, c)
				continue
			}
			return Fitted{}, &ClusterError{Cluster: c, Err: err}
		}
		out.Dists[c] = g
	}
	return out, nil
}
