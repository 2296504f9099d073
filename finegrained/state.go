package finegrained

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ieee0824/rhythm-go/duration"
	"github.com/ieee0824/rhythm-go/segment"
)

// Params are the persisted parameters of one distribution: (shape, scale),
// or (shape, loc, scale) with loc == 0 as written by other fitters.
type Params []float64

// Gamma converts p to a distribution.
func (p Params) Gamma() (duration.Gamma, error) {
	var shape, scale float64
	switch len(p) {
	case 2:
		shape, scale = p[0], p[1]
	case 3:
		if p[1] != 0 {
			return duration.Gamma{}, fmt.Errorf("gamma location must be 0, got %v", p[1])
		}
		shape, scale = p[0], p[2]
	default:
		return duration.Gamma{}, fmt.Errorf("expected (shape, scale), got %d values", len(p))
	}
	return duration.NewGamma(shape, scale)
}

// State is the persisted form of the model. A nil side was never fit and
// is omitted when encoded; a fitted side with no clusters encodes as {}.
type State struct {
	Source map[segment.SoundType]Params `json:"source,omitempty" yaml:"source,omitempty"`
	Target map[segment.SoundType]Params `json:"target,omitempty" yaml:"target,omitempty"`
}

// MarshalJSON keeps empty fitted sides, which omitempty would drop.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.fields())
}

// MarshalYAML keeps empty fitted sides, which omitempty would drop.
func (s State) MarshalYAML() (any, error) {
	return s.fields(), nil
}

func (s State) fields() map[string]map[segment.SoundType]Params {
	out := make(map[string]map[segment.SoundType]Params, 2)
	if s.Source != nil {
		out[sideSource] = s.Source
	}
	if s.Target != nil {
		out[sideTarget] = s.Target
	}
	return out
}

// State returns the persisted form of the current distributions.
func (m *Model) State() State {
	st := m.state.Load()
	return State{Source: toParams(st.source), Target: toParams(st.target)}
}

func toParams(dists map[segment.SoundType]duration.Gamma) map[segment.SoundType]Params {
	if dists == nil {
		return nil
	}
	out := make(map[segment.SoundType]Params, len(dists))
	for c, g := range dists {
		out[c] = Params{g.Shape, g.Scale}
	}
	return out
}

// LoadState replaces the sides present in s. Sides absent from s keep
// their current state. Nothing is changed if any parameter is invalid.
func (m *Model) LoadState(s State) error {
	source, err := fromParams(sideSource, s.Source)
	if err != nil {
		return err
	}
	target, err := fromParams(sideTarget, s.Target)
	if err != nil {
		return err
	}
	for {
		old := m.state.Load()
		next := *old
		if source != nil {
			next.source = source
		}
		if target != nil {
			next.target = target
		}
		if m.state.CompareAndSwap(old, &next) {
			return nil
		}
	}
}

func fromParams(side string, params map[segment.SoundType]Params) (map[segment.SoundType]duration.Gamma, error) {
	if params == nil {
		return nil, nil
	}
	out := make(map[segment.SoundType]duration.Gamma, len(params))
	for c, p := range params {
		g, err := p.Gamma()
		if err != nil {
			return nil, fmt.Errorf("load %s cluster %q: %w", side, c, err)
		}
		out[c] = g
	}
	return out, nil
}

// serializable types for gob encoding
type serializedModel struct {
	HopLength  int
	SampleRate int
	HasSource  bool
	HasTarget  bool
	Source     map[string]serializedGamma
	Target     map[string]serializedGamma
}

type serializedGamma struct {
	Shape float64
	Scale float64
}

// Save serializes the model to a writer using gob encoding.
func (m *Model) Save(w io.Writer) error {
	st := m.state.Load()
	sm := serializedModel{
		HopLength:  m.cfg.HopLength,
		SampleRate: m.cfg.SampleRate,
		HasSource:  st.source != nil,
		HasTarget:  st.target != nil,
		Source:     toSerialized(st.source),
		Target:     toSerialized(st.target),
	}
	return gob.NewEncoder(w).Encode(sm)
}

func toSerialized(dists map[segment.SoundType]duration.Gamma) map[string]serializedGamma {
	out := make(map[string]serializedGamma, len(dists))
	for c, g := range dists {
		out[string(c)] = serializedGamma{Shape: g.Shape, Scale: g.Scale}
	}
	return out
}

// Load deserializes a model written by Save. The frame geometry comes from
// the stream; opts configure everything else.
func Load(r io.Reader, opts ...Option) (*Model, error) {
	var sm serializedModel
	if err := gob.NewDecoder(r).Decode(&sm); err != nil {
		return nil, err
	}
	cfg := Config{HopLength: sm.HopLength, SampleRate: sm.SampleRate}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var st State
	if sm.HasSource {
		st.Source = fromSerialized(sm.Source)
	}
	if sm.HasTarget {
		st.Target = fromSerialized(sm.Target)
	}
	m := New(cfg, opts...)
	if err := m.LoadState(st); err != nil {
		return nil, err
	}
	return m, nil
}

func fromSerialized(in map[string]serializedGamma) map[segment.SoundType]Params {
	out := make(map[segment.SoundType]Params, len(in))
	for c, g := range in {
		out[segment.SoundType(c)] = Params{g.Shape, g.Scale}
	}
	return out
}
