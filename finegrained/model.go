// Package finegrained models the duration distribution of each sound type
// and remaps segment durations from a source speaker to a target speaker.
package finegrained

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ieee0824/rhythm-go/duration"
	"github.com/ieee0824/rhythm-go/internal/metrics"
	"github.com/ieee0824/rhythm-go/segment"
)

// ErrMissingState is returned when a side is used before it was fit.
var ErrMissingState = errors.New("fine-grained model not fit")

const (
	sideSource = "source"
	sideTarget = "target"
)

// Config is the frame geometry shared by fitting and transforming.
type Config = segment.FrameConfig

// DefaultConfig returns 320-sample hops at 16 kHz (20 ms frames).
func DefaultConfig() Config { return segment.DefaultFrameConfig() }

// snapshot is an immutable view of both sides. A nil map means the side
// was never fit.
type snapshot struct {
	source map[segment.SoundType]duration.Gamma
	target map[segment.SoundType]duration.Gamma
}

// Model is the fine-grained rhythm model. Fits replace one side of an
// immutable snapshot, so Transform may run concurrently with a fit and
// always sees a consistent state.
type Model struct {
	cfg     Config
	hopRate float64
	vocab   segment.Vocabulary
	policy  duration.DegeneratePolicy
	logger  *zap.Logger
	metrics *metrics.Collector

	state atomic.Pointer[snapshot]
}

// Option configures a Model.
type Option func(*Model)

// WithVocabulary sets the silence and sonorant partition.
func WithVocabulary(v segment.Vocabulary) Option {
	return func(m *Model) { m.vocab = v }
}

// WithDegeneratePolicy sets how clusters without a finite fit are handled.
func WithDegeneratePolicy(p duration.DegeneratePolicy) Option {
	return func(m *Model) { m.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Model) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Model) { m.metrics = c }
}

// New creates an empty model.
func New(cfg Config, opts ...Option) *Model {
	m := &Model{
		cfg:     cfg,
		hopRate: cfg.HopRate(),
		vocab:   segment.DefaultVocabulary(),
		policy:  duration.PolicySkip,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("model", "finegrained"))
	m.state.Store(&snapshot{})
	return m
}

// Config returns the frame geometry.
func (m *Model) Config() Config { return m.cfg }

// HopRate returns seconds per frame.
func (m *Model) HopRate() float64 { return m.hopRate }

// FitSource fits the source speaker's duration distributions, replacing
// any previous source fit.
func (m *Model) FitSource(utts []segment.Utterance) (duration.Fitted, error) {
	return m.fit(sideSource, utts)
}

// FitTarget fits the target speaker's duration distributions, replacing
// any previous target fit.
func (m *Model) FitTarget(utts []segment.Utterance) (duration.Fitted, error) {
	return m.fit(sideTarget, utts)
}

func (m *Model) fit(side string, utts []segment.Utterance) (duration.Fitted, error) {
	start := time.Now()
	if err := m.cfg.Validate(); err != nil {
		return duration.Fitted{}, fmt.Errorf("fit %s: %w", side, err)
	}
	samples, err := duration.Tally(utts, m.hopRate, m.vocab)
	if err != nil {
		return duration.Fitted{}, fmt.Errorf("fit %s: %w", side, err)
	}
	fitted, err := duration.Fit(samples, m.policy)
	if err != nil {
		return duration.Fitted{}, fmt.Errorf("fit %s: %w", side, err)
	}

	m.swap(side, fitted.Dists)

	for _, c := range fitted.Skipped {
		m.logger.Warn("degenerate duration samples, cluster left unfit",
			zap.String("side", side),
			zap.String("cluster", string(c)),
			zap.Int("samples", fitted.Counts[c]))
	}
	m.logger.Info("fit duration distributions",
		zap.String("side", side),
		zap.Int("utterances", len(utts)),
		zap.Int("samples", samples.Count()),
		zap.Int("clusters", len(fitted.Dists)),
		zap.Int("skipped", len(fitted.Skipped)))
	m.metrics.RecordFit("finegrained", side, time.Since(start), len(fitted.Skipped))
	return fitted, nil
}

// swap installs dists on one side, keeping the other side of whatever
// snapshot is current.
func (m *Model) swap(side string, dists map[segment.SoundType]duration.Gamma) {
	for {
		old := m.state.Load()
		next := *old
		if side == sideSource {
			next.source = dists
		} else {
			next.target = dists
		}
		if m.state.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Source returns a copy of the source distributions, or nil if unfit.
func (m *Model) Source() map[segment.SoundType]duration.Gamma {
	return copyDists(m.state.Load().source)
}

// Target returns a copy of the target distributions, or nil if unfit.
func (m *Model) Target() map[segment.SoundType]duration.Gamma {
	return copyDists(m.state.Load().target)
}

func copyDists(in map[segment.SoundType]duration.Gamma) map[segment.SoundType]duration.Gamma {
	if in == nil {
		return nil
	}
	out := make(map[segment.SoundType]duration.Gamma, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
