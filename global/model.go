package global

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/ieee0824/rhythm-go/internal/metrics"
	"github.com/ieee0824/rhythm-go/segment"
)

var (
	// ErrMissingState is returned when a rate is used before it was fit.
	ErrMissingState = errors.New("global model not fit")
	// ErrZeroRate is returned when the target speaking rate is zero.
	ErrZeroRate = errors.New("target speaking rate is zero")
)

const (
	sideSource = "source"
	sideTarget = "target"
)

// Config is the frame geometry; the hop rate is the unit rate of SegmentRate.
type Config = segment.FrameConfig

// DefaultConfig returns 320-sample hops at 16 kHz.
func DefaultConfig() Config { return segment.DefaultFrameConfig() }

type snapshot struct {
	source *float64
	target *float64
}

// Model is the global rhythm model.
type Model struct {
	cfg     Config
	hopRate float64
	vocab   segment.Vocabulary
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
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("model", "global"))
	m.state.Store(&snapshot{})
	return m
}

// Config returns the frame geometry.
func (m *Model) Config() Config { return m.cfg }

// FitSource estimates the source speaking rate as the mean over utts.
func (m *Model) FitSource(utts []segment.Utterance) (float64, error) {
	return m.fit(sideSource, utts)
}

// FitTarget estimates the target speaking rate as the mean over utts.
func (m *Model) FitTarget(utts []segment.Utterance) (float64, error) {
	return m.fit(sideTarget, utts)
}

// Estimate returns the mean speaking rate of utts without changing the
// model.
func (m *Model) Estimate(utts []segment.Utterance) (float64, error) {
	if err := m.cfg.Validate(); err != nil {
		return 0, err
	}
	if len(utts) == 0 {
		return 0, segment.ErrEmptyBatch
	}
	rates := make([]float64, len(utts))
	for i, u := range utts {
		r, err := SegmentRate(u, m.vocab, m.hopRate)
		if err != nil {
			return 0, &segment.UtteranceError{Index: i, ID: u.ID, Err: err}
		}
		rates[i] = r
	}
	return stat.Mean(rates, nil), nil
}

func (m *Model) fit(side string, utts []segment.Utterance) (float64, error) {
	start := time.Now()
	rate, err := m.Estimate(utts)
	if err != nil {
		return 0, fmt.Errorf("fit %s: %w", side, err)
	}
	m.swap(side, &rate)

	m.logger.Info("fit speaking rate",
		zap.String("side", side),
		zap.Int("utterances", len(utts)),
		zap.Float64("rate", rate))
	m.metrics.RecordFit("global", side, time.Since(start), 0)
	return rate, nil
}

func (m *Model) swap(side string, rate *float64) {
	for {
		old := m.state.Load()
		next := *old
		if side == sideSource {
			next.source = rate
		} else {
			next.target = rate
		}
		if m.state.CompareAndSwap(old, &next) {
			return
		}
	}
}

// SourceRate returns the source rate and whether it was fit.
func (m *Model) SourceRate() (float64, bool) { return deref(m.state.Load().source) }

// TargetRate returns the target rate and whether it was fit.
func (m *Model) TargetRate() (float64, bool) { return deref(m.state.Load().target) }

func deref(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Ratio returns source rate / target rate, the factor by which the
// utterance tempo should be scaled.
func (m *Model) Ratio() (float64, error) {
	st := m.state.Load()
	if st.source == nil {
		return 0, fmt.Errorf("%w: no source rate", ErrMissingState)
	}
	if st.target == nil {
		return 0, fmt.Errorf("%w: no target rate", ErrMissingState)
	}
	if *st.target == 0 {
		return 0, ErrZeroRate
	}
	return *st.source / *st.target, nil
}
