package global

import (
	"encoding/gob"
	"fmt"
	"io"
	"math"
)

// State is the persisted form of the model. A nil rate was never fit.
type State struct {
	SourceRate *float64 `json:"source_rate,omitempty" yaml:"source_rate,omitempty"`
	TargetRate *float64 `json:"target_rate,omitempty" yaml:"target_rate,omitempty"`
}

// State returns the persisted form of the current rates.
func (m *Model) State() State {
	st := m.state.Load()
	return State{SourceRate: clone(st.source), TargetRate: clone(st.target)}
}

func clone(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// LoadState replaces the rates present in s; absent rates keep their
// current value.
func (m *Model) LoadState(s State) error {
	for name, r := range map[string]*float64{"source_rate": s.SourceRate, "target_rate": s.TargetRate} {
		if r != nil && (math.IsNaN(*r) || math.IsInf(*r, 0) || *r < 0) {
			return fmt.Errorf("load %s: invalid rate %v", name, *r)
		}
	}
	for {
		old := m.state.Load()
		next := *old
		if s.SourceRate != nil {
			next.source = clone(s.SourceRate)
		}
		if s.TargetRate != nil {
			next.target = clone(s.TargetRate)
		}
		if m.state.CompareAndSwap(old, &next) {
			return nil
		}
	}
}

// serializable types for gob encoding
type serializedModel struct {
	HopLength  int
	SampleRate int
	HasSource  bool
	HasTarget  bool
	SourceRate float64
	TargetRate float64
}

// Save serializes the model to a writer using gob encoding.
func (m *Model) Save(w io.Writer) error {
	st := m.state.Load()
	sm := serializedModel{
		HopLength:  m.cfg.HopLength,
		SampleRate: m.cfg.SampleRate,
	}
	if st.source != nil {
		sm.HasSource, sm.SourceRate = true, *st.source
	}
	if st.target != nil {
		sm.HasTarget, sm.TargetRate = true, *st.target
	}
	return gob.NewEncoder(w).Encode(sm)
}

// Load deserializes a model written by Save.
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
		st.SourceRate = &sm.SourceRate
	}
	if sm.HasTarget {
		st.TargetRate = &sm.TargetRate
	}
	m := New(cfg, opts...)
	if err := m.LoadState(st); err != nil {
		return nil, err
	}
	return m, nil
}
