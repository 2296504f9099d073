package segment

import (
	"errors"
	"fmt"
)

// ErrInvalidFrameConfig is returned for a non-positive hop length or
// sample rate.
var ErrInvalidFrameConfig = errors.New("invalid frame config")

// FrameConfig is the frame geometry that converts frame counts to seconds.
// Fitted models are only meaningful under the geometry they were fit with.
type FrameConfig struct {
	HopLength  int `yaml:"hop_length" json:"hop_length"`   // samples between frames
	SampleRate int `yaml:"sample_rate" json:"sample_rate"` // Hz
}

// DefaultFrameConfig returns 320-sample hops at 16 kHz (20 ms frames).
func DefaultFrameConfig() FrameConfig {
	return FrameConfig{HopLength: 320, SampleRate: 16000}
}

// HopRate returns seconds per frame.
func (c FrameConfig) HopRate() float64 {
	return float64(c.HopLength) / float64(c.SampleRate)
}

// Validate checks that both values are positive.
func (c FrameConfig) Validate() error {
	if c.HopLength <= 0 || c.SampleRate <= 0 {
		return fmt.Errorf("%w: hop_length=%d sample_rate=%d", ErrInvalidFrameConfig, c.HopLength, c.SampleRate)
	}
	return nil
}
