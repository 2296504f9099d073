package finegrained

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ieee0824/rhythm-go/duration"
	"github.com/ieee0824/rhythm-go/internal/mathutil"
	"github.com/ieee0824/rhythm-go/segment"
)

// Outcome tells how a segment's output duration was produced.
type Outcome int

const (
	// OutcomeRemapped: mapped through the source CDF and target quantile.
	OutcomeRemapped Outcome = iota
	// OutcomeFallback: the remap was not finite, the input duration is kept.
	OutcomeFallback
	// OutcomePassthrough: the cluster has no distribution on one side.
	OutcomePassthrough
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRemapped:
		return "remapped"
	case OutcomeFallback:
		return "fallback"
	case OutcomePassthrough:
		return "passthrough"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// SegmentResult is the transform of one kept segment.
type SegmentResult struct {
	Index        int               // segment index in the input utterance
	Cluster      segment.SoundType // segment label
	SourceFrames int               // input duration in frames
	Seconds      float64           // output duration in seconds
	Frames       int               // output duration in frames
	Outcome      Outcome
}

// Transform remaps the durations of u to the target rhythm and returns one
// frame count per kept segment. Silences of segment.NoiseFrames frames or
// fewer are dropped, so the result can be shorter than u.Clusters.
func (m *Model) Transform(u segment.Utterance) ([]int, error) {
	results, err := m.TransformSegments(u)
	if err != nil {
		return nil, err
	}
	frames := make([]int, len(results))
	for i, r := range results {
		frames[i] = r.Frames
	}
	return frames, nil
}

// TransformSegments is Transform with per-segment detail.
func (m *Model) TransformSegments(u segment.Utterance) ([]SegmentResult, error) {
	if err := m.cfg.Validate(); err != nil {
		return nil, err
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	st := m.state.Load()
	if st.source == nil {
		return nil, fmt.Errorf("%w: no source distributions", ErrMissingState)
	}
	if st.target == nil {
		return nil, fmt.Errorf("%w: no target distributions", ErrMissingState)
	}

	durations := u.FrameDurations()
	results := make([]SegmentResult, 0, len(durations))
	for i, frames := range durations {
		cluster := u.Clusters[i]
		if m.vocab.IsNoise(cluster, frames) {
			continue
		}
		seconds := m.hopRate * float64(frames)
		r := SegmentResult{
			Index:        i,
			Cluster:      cluster,
			SourceFrames: frames,
			Seconds:      seconds,
			Frames:       frames,
			Outcome:      OutcomePassthrough,
		}
		src, okSrc := st.source[cluster]
		dst, okDst := st.target[cluster]
		if okSrc && okDst {
			if y, ok := duration.Remap(src, dst, seconds); ok {
				r.Seconds = y
				r.Frames = mathutil.ToFrames(y, m.hopRate)
				r.Outcome = OutcomeRemapped
			} else {
				r.Outcome = OutcomeFallback
				m.logger.Debug("non-finite remap, keeping source duration",
					zap.String("utterance", u.ID),
					zap.Int("segment", i),
					zap.String("cluster", string(cluster)),
					zap.Float64("seconds", seconds))
			}
		}
		m.metrics.RecordSegment(r.Outcome.String())
		results = append(results, r)
	}
	m.metrics.RecordDropped(len(durations) - len(results))
	return results, nil
}
