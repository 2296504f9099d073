// Package rhythm converts the speaking rhythm of a source speaker to that of
// a target speaker. A Converter pairs a fine-grained model, which remaps the
// duration of every segment, with a global model, which yields one tempo
// ratio for the whole utterance.
package rhythm

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/ieee0824/rhythm-go/duration"
	"github.com/ieee0824/rhythm-go/finegrained"
	"github.com/ieee0824/rhythm-go/global"
	"github.com/ieee0824/rhythm-go/internal/metrics"
	"github.com/ieee0824/rhythm-go/segment"
	"github.com/ieee0824/rhythm-go/store"
)

// ErrHopRateMismatch is returned when two profiles were fit at different
// frame rates. Their durations are not comparable.
var ErrHopRateMismatch = errors.New("profiles fit at different hop rates")

// Config is the frame geometry shared by both models.
type Config = segment.FrameConfig

// DefaultConfig returns 320-sample hops at 16 kHz.
func DefaultConfig() Config { return segment.DefaultFrameConfig() }

// Converter is the top-level rhythm converter.
type Converter struct {
	cfg    Config
	fine   *finegrained.Model
	global *global.Model
	logger *zap.Logger

	vocab   segment.Vocabulary
	policy  duration.DegeneratePolicy
	metrics *metrics.Collector
}

// Option configures a Converter.
type Option func(*Converter)

// WithVocabulary sets the silence and sonorant partition of both models.
func WithVocabulary(v segment.Vocabulary) Option {
	return func(c *Converter) { c.vocab = v }
}

// WithDegeneratePolicy sets how the fine-grained model handles clusters
// without a finite fit.
func WithDegeneratePolicy(p duration.DegeneratePolicy) Option {
	return func(c *Converter) { c.policy = p }
}

// WithLogger sets the logger of both models.
func WithLogger(l *zap.Logger) Option {
	return func(c *Converter) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the metrics collector of both models.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Converter) { c.metrics = m }
}

// New creates a Converter with both models unfit.
func New(cfg Config, opts ...Option) *Converter {
	c := &Converter{
		cfg:    cfg,
		vocab:  segment.DefaultVocabulary(),
		policy: duration.PolicySkip,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.fine = finegrained.New(cfg,
		finegrained.WithVocabulary(c.vocab),
		finegrained.WithDegeneratePolicy(c.policy),
		finegrained.WithLogger(c.logger),
		finegrained.WithMetrics(c.metrics))
	c.global = global.New(cfg,
		global.WithVocabulary(c.vocab),
		global.WithLogger(c.logger),
		global.WithMetrics(c.metrics))
	return c
}

// Config returns the frame geometry.
func (c *Converter) Config() Config { return c.cfg }

// FineGrained returns the fine-grained model.
func (c *Converter) FineGrained() *finegrained.Model { return c.fine }

// Global returns the global model.
func (c *Converter) Global() *global.Model { return c.global }

// FitReport summarizes the fit of one side.
type FitReport struct {
	Fitted     duration.Fitted
	Rate       float64
	Utterances int
}

// FitSource fits the source side of both models. If either fit fails,
// neither model changes.
func (c *Converter) FitSource(utts []segment.Utterance) (FitReport, error) {
	return c.fit(utts, c.global.FitSource, c.fine.FitSource)
}

// FitTarget fits the target side of both models. If either fit fails,
// neither model changes.
func (c *Converter) FitTarget(utts []segment.Utterance) (FitReport, error) {
	return c.fit(utts, c.global.FitTarget, c.fine.FitTarget)
}

func (c *Converter) fit(
	utts []segment.Utterance,
	fitRate func([]segment.Utterance) (float64, error),
	fitDists func([]segment.Utterance) (duration.Fitted, error),
) (FitReport, error) {
	// Estimate fails on every input the global fit rejects, so once the
	// fine-grained side is committed the global fit cannot fail.
	if _, err := c.global.Estimate(utts); err != nil {
		return FitReport{}, err
	}
	fitted, err := fitDists(utts)
	if err != nil {
		return FitReport{}, err
	}
	rate, err := fitRate(utts)
	if err != nil {
		return FitReport{}, err
	}
	return FitReport{Fitted: fitted, Rate: rate, Utterances: len(utts)}, nil
}

// Result is the conversion of one utterance.
type Result struct {
	Durations []int                       // new duration in frames per kept segment
	Segments  []finegrained.SegmentResult // per-segment detail, aligned with Durations
	Ratio     float64                     // utterance tempo scale factor
}

// Convert remaps the segment durations of u and reports the tempo ratio.
func (c *Converter) Convert(u segment.Utterance) (Result, error) {
	ratio, err := c.global.Ratio()
	if err != nil {
		return Result{}, err
	}
	segs, err := c.fine.TransformSegments(u)
	if err != nil {
		return Result{}, err
	}
	res := Result{
		Durations: make([]int, len(segs)),
		Segments:  segs,
		Ratio:     ratio,
	}
	for i, s := range segs {
		res.Durations[i] = s.Frames
	}
	return res, nil
}

// Ratio returns the global tempo ratio.
func (c *Converter) Ratio() (float64, error) { return c.global.Ratio() }

// State is the persisted form of both models.
type State struct {
	FineGrained finegrained.State `json:"fine_grained" yaml:"fine_grained"`
	Global      global.State      `json:"global" yaml:"global"`
}

// State returns the persisted form of both models.
func (c *Converter) State() State {
	return State{FineGrained: c.fine.State(), Global: c.global.State()}
}

// LoadState loads s into both models. Sides absent from s keep their
// current state.
func (c *Converter) LoadState(s State) error {
	if err := c.fine.LoadState(s.FineGrained); err != nil {
		return fmt.Errorf("load fine-grained state: %w", err)
	}
	if err := c.global.LoadState(s.Global); err != nil {
		return fmt.Errorf("load global state: %w", err)
	}
	return nil
}

// Save writes both models to w, fine-grained first, using gob encoding.
func (c *Converter) Save(w io.Writer) error {
	if err := c.fine.Save(w); err != nil {
		return fmt.Errorf("save fine-grained model: %w", err)
	}
	if err := c.global.Save(w); err != nil {
		return fmt.Errorf("save global model: %w", err)
	}
	return nil
}

// Load reads a Converter written by Save.
func Load(r io.Reader, opts ...Option) (*Converter, error) {
	// A shared buffered reader keeps each gob decoder from reading ahead
	// into the next model.
	br := bufio.NewReader(r)
	fine, err := finegrained.Load(br)
	if err != nil {
		return nil, fmt.Errorf("load fine-grained model: %w", err)
	}
	glob, err := global.Load(br)
	if err != nil {
		return nil, fmt.Errorf("load global model: %w", err)
	}
	if fine.Config() != glob.Config() {
		return nil, fmt.Errorf("load: fine-grained geometry %+v differs from global %+v", fine.Config(), glob.Config())
	}
	c := New(fine.Config(), opts...)
	st := State{FineGrained: fine.State(), Global: glob.State()}
	if err := c.LoadState(st); err != nil {
		return nil, err
	}
	return c, nil
}

// FromProfiles builds a Converter from two stored speaker profiles. The
// converter takes the source profile's frame geometry.
func FromProfiles(source, target store.Profile, opts ...Option) (*Converter, error) {
	for _, p := range []store.Profile{source, target} {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	cfg := source.Frame()
	if cfg.HopRate() != target.Frame().HopRate() {
		return nil, fmt.Errorf("%w: %q at %gs, %q at %gs", ErrHopRateMismatch,
			source.Speaker, cfg.HopRate(), target.Speaker, target.Frame().HopRate())
	}
	c := New(cfg, opts...)
	st := State{
		FineGrained: finegrained.State{Source: profileParams(source), Target: profileParams(target)},
		Global:      global.State{SourceRate: source.Rate, TargetRate: target.Rate},
	}
	if err := c.LoadState(st); err != nil {
		return nil, err
	}
	c.logger.Info("converter built from profiles",
		zap.String("source", source.Speaker),
		zap.String("target", target.Speaker))
	return c, nil
}

func profileParams(p store.Profile) map[segment.SoundType]finegrained.Params {
	if p.Durations == nil {
		return map[segment.SoundType]finegrained.Params{}
	}
	return p.Durations
}
