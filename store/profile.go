package store

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ieee0824/rhythm-go/duration"
	"github.com/ieee0824/rhythm-go/finegrained"
	"github.com/ieee0824/rhythm-go/segment"
)

// Profile is one speaker's side of both rhythm models.
type Profile struct {
	Speaker    string                                   `json:"speaker" yaml:"speaker" validate:"required,max=128"`
	HopLength  int                                      `json:"hop_length" yaml:"hop_length" validate:"gt=0"`
	SampleRate int                                      `json:"sample_rate" yaml:"sample_rate" validate:"gt=0"`
	Durations  map[segment.SoundType]finegrained.Params `json:"durations" yaml:"durations"`
	Skipped    []segment.SoundType                      `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Rate       *float64                                 `json:"rate,omitempty" yaml:"rate,omitempty" validate:"omitempty,gte=0"`
	Utterances int                                      `json:"utterances" yaml:"utterances" validate:"gte=0"`
	UpdatedAt  time.Time                                `json:"updated_at" yaml:"updated_at"`
}

var validate = validator.New()

// Validate checks the profile fields and that every stored distribution
// parameter set is usable.
func (p Profile) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("profile %q: %w", p.Speaker, err)
	}
	for c, params := range p.Durations {
		if _, err := params.Gamma(); err != nil {
			return fmt.Errorf("profile %q cluster %q: %w", p.Speaker, c, err)
		}
	}
	return nil
}

// Frame returns the frame geometry the profile was fit with.
func (p Profile) Frame() segment.FrameConfig {
	return segment.FrameConfig{HopLength: p.HopLength, SampleRate: p.SampleRate}
}

// BuildProfile assembles a profile from one side of a fit. rate may be nil
// when only the fine-grained model was fit.
func BuildProfile(speaker string, cfg segment.FrameConfig, fitted duration.Fitted, rate *float64, utterances int) Profile {
	p := Profile{
		Speaker:    speaker,
		HopLength:  cfg.HopLength,
		SampleRate: cfg.SampleRate,
		Durations:  make(map[segment.SoundType]finegrained.Params, len(fitted.Dists)),
		Skipped:    fitted.Skipped,
		Utterances: utterances,
		UpdatedAt:  time.Now().UTC(),
	}
	for c, g := range fitted.Dists {
		p.Durations[c] = finegrained.Params{g.Shape, g.Scale}
	}
	if rate != nil {
		r := *rate
		p.Rate = &r
	}
	return p
}
