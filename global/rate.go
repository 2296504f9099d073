// Package global estimates a speaker's overall speaking rate and the tempo
// ratio between a source and a target speaker.
package global

import (
	"errors"
	"fmt"
	"math"

	"github.com/ieee0824/rhythm-go/internal/mathutil"
	"github.com/ieee0824/rhythm-go/segment"
)

// ErrNoSpeech is returned for an utterance without non-silence time.
var ErrNoSpeech = errors.New("utterance has no speech")

// timeDecimals is the rounding applied to boundary times, in seconds.
const timeDecimals = 2

// SegmentRate returns sonorant segments per second of non-silence speech.
// Boundary times are rounded to 10 ms before durations are summed.
// Silence time does not enter the denominator.
func SegmentRate(u segment.Utterance, vocab segment.Vocabulary, unitRate float64) (float64, error) {
	if !(unitRate > 0) || math.IsInf(unitRate, 1) {
		return 0, fmt.Errorf("%w: unit rate %v", segment.ErrInvalidFrameConfig, unitRate)
	}
	if err := u.Validate(); err != nil {
		return 0, err
	}
	sonorant := 0
	total := 0.0
	for i, c := range u.Clusters {
		if vocab.IsSilence(c) {
			continue
		}
		t0 := mathutil.RoundHalfEven(float64(u.Boundaries[i])*unitRate, timeDecimals)
		tn := mathutil.RoundHalfEven(float64(u.Boundaries[i+1])*unitRate, timeDecimals)
		total += tn - t0
		if vocab.IsSonorant(c) {
			sonorant++
		}
	}
	if total <= 0 {
		return 0, fmt.Errorf("%w: %d segments, none timed outside silence", ErrNoSpeech, len(u.Clusters))
	}
	return float64(sonorant) / total, nil
}
