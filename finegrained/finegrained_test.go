package finegrained

import (
	"bytes"
	"encoding/json"
	"math"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ieee0824/rhythm-go/duration"
	"github.com/ieee0824/rhythm-go/internal/metrics"
	"github.com/ieee0824/rhythm-go/segment"
)

var testVocab = segment.NewVocabulary([]segment.SoundType{"sil"}, []segment.SoundType{"a"})

type seg struct {
	label  segment.SoundType
	frames int
}

func build(segs ...seg) segment.Utterance {
	u := segment.Utterance{Boundaries: []int{0}}
	for _, s := range segs {
		u.Clusters = append(u.Clusters, s.label)
		u.Boundaries = append(u.Boundaries, u.Boundaries[len(u.Boundaries)-1]+s.frames)
	}
	return u
}

// speaker returns ten utterances whose "a" segments last each of aFrames
// and whose long silences last each of silFrames.
func speaker(aFrames, silFrames []int) []segment.Utterance {
	var utts []segment.Utterance
	for i := 0; i < 10; i++ {
		var segs []seg
		for j, f := range aFrames {
			segs = append(segs, seg{"a", f})
			if j < len(silFrames) {
				segs = append(segs, seg{"sil", silFrames[j]})
			}
		}
		utts = append(utts, build(segs...))
	}
	return utts
}

func newFitted(t *testing.T, opts ...Option) *Model {
	t.Helper()
	m := New(DefaultConfig(), append([]Option{WithVocabulary(testVocab)}, opts...)...)
	_, err := m.FitSource(speaker([]int{4, 5, 6}, []int{8, 10, 12}))
	require.NoError(t, err)
	_, err = m.FitTarget(speaker([]int{9, 10, 11}, []int{16, 20, 24}))
	require.NoError(t, err)
	return m
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.InDelta(t, 0.02, cfg.HopRate(), 1e-15)
	assert.NoError(t, cfg.Validate())
	assert.Error(t, Config{HopLength: 0, SampleRate: 16000}.Validate())
	assert.Error(t, Config{HopLength: 320}.Validate())
}

func TestFitPopulatesSides(t *testing.T) {
	m := New(DefaultConfig(), WithVocabulary(testVocab))
	assert.Nil(t, m.Source())
	assert.Nil(t, m.Target())

	fitted, err := m.FitSource(speaker([]int{4, 5, 6}, []int{8, 10, 12}))
	require.NoError(t, err)
	assert.Len(t, fitted.Dists, 2)
	assert.Empty(t, fitted.Skipped)

	src := m.Source()
	require.Contains(t, src, segment.SoundType("a"))
	assert.InDelta(t, 0.10, src["a"].Mean(), 1e-9)
	assert.InDelta(t, 0.20, src["sil"].Mean(), 1e-9)
	assert.Nil(t, m.Target())
}

func TestFitReplacesSide(t *testing.T) {
	m := newFitted(t)
	_, err := m.FitSource(speaker([]int{20, 25, 30}, nil))
	require.NoError(t, err)
	src := m.Source()
	assert.InDelta(t, 0.50, src["a"].Mean(), 1e-9)
	assert.NotContains(t, src, segment.SoundType("sil"), "refit should replace, not merge")
	assert.Contains(t, m.Target(), segment.SoundType("sil"))
}

func TestFailedFitKeepsState(t *testing.T) {
	m := newFitted(t)
	before := m.State()

	_, err := m.FitSource(nil)
	assert.ErrorIs(t, err, segment.ErrEmptyBatch)

	_, err = m.FitSource([]segment.Utterance{{Clusters: []segment.SoundType{"a"}, Boundaries: []int{0}}})
	assert.ErrorIs(t, err, segment.ErrInvalidUtterance)

	assert.Equal(t, before, m.State())
}

func TestFitDegeneratePolicy(t *testing.T) {
	single := []segment.Utterance{build(seg{"a", 5}, seg{"b", 3}), build(seg{"a", 6})}

	m := New(DefaultConfig(), WithVocabulary(testVocab))
	fitted, err := m.FitSource(single)
	require.NoError(t, err)
	assert.Equal(t, []segment.SoundType{"b"}, fitted.Skipped)
	assert.NotContains(t, m.Source(), segment.SoundType("b"))

	strict := New(DefaultConfig(), WithVocabulary(testVocab), WithDegeneratePolicy(duration.PolicyError))
	_, err = strict.FitSource(single)
	assert.ErrorIs(t, err, duration.ErrDegenerateFit)
	assert.Nil(t, strict.Source())
}

// A source "a" segment at the source median lands near the target median.
func TestTransformMatchesTargetRhythm(t *testing.T) {
	m := newFitted(t)
	got, err := m.Transform(build(seg{"a", 5}))
	require.NoError(t, err)
	assert.Equal(t, []int{10}, got)
}

func TestTransformDropsShortSilence(t *testing.T) {
	m := newFitted(t)
	u := build(seg{"a", 5}, seg{"sil", 2}, seg{"a", 5})
	results, err := m.TransformSegments(u)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].Index)
	assert.Equal(t, 2, results[1].Index)
	for _, r := range results {
		assert.Equal(t, segment.SoundType("a"), r.Cluster)
	}
}

func TestTransformRemapsLongSilence(t *testing.T) {
	m := newFitted(t)
	results, err := m.TransformSegments(build(seg{"sil", 10}))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeRemapped, results[0].Outcome)
	assert.Equal(t, 10, results[0].SourceFrames)
	assert.Equal(t, 20, results[0].Frames)
	assert.InDelta(t, 0.40, results[0].Seconds, 1e-6)
}

func TestTransformPassesThroughUnknownClusters(t *testing.T) {
	m := New(DefaultConfig(), WithVocabulary(testVocab))
	_, err := m.FitSource(speaker([]int{4, 5, 6}, []int{8, 10, 12}))
	require.NoError(t, err)
	// Target has "a" but no "sil".
	_, err = m.FitTarget(speaker([]int{9, 10, 11}, nil))
	require.NoError(t, err)

	u := build(seg{"sil", 7}, seg{"a", 5}, seg{"nasal", 13}, seg{"sil", 30})
	results, err := m.TransformSegments(u)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, OutcomePassthrough, results[0].Outcome)
	assert.Equal(t, 7, results[0].Frames)
	assert.Equal(t, OutcomeRemapped, results[1].Outcome)
	assert.Equal(t, OutcomePassthrough, results[2].Outcome)
	assert.Equal(t, 13, results[2].Frames)
	assert.Equal(t, 30, results[3].Frames)
}

func TestTransformFallsBackOnNonFinite(t *testing.T) {
	reg := prometheus.NewRegistry()
	mc := metrics.NewCollector("test", reg)
	m := New(DefaultConfig(), WithVocabulary(testVocab), WithMetrics(mc))
	require.NoError(t, m.LoadState(State{
		Source: map[segment.SoundType]Params{"a": {100, 0.001}},
		Target: map[segment.SoundType]Params{"a": {2, 0.05}},
	}))

	// 500 frames is far beyond the source distribution: CDF saturates at 1.
	results, err := m.TransformSegments(build(seg{"a", 500}, seg{"a", 5}, seg{"sil", 1}))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, OutcomeFallback, results[0].Outcome)
	assert.Equal(t, 500, results[0].Frames)
	assert.InDelta(t, 10.0, results[0].Seconds, 1e-9)
	assert.Equal(t, OutcomeRemapped, results[1].Outcome)

	assert.Equal(t, 1.0, gatheredCounter(t, reg, "test_segments_total", "fallback"))
	assert.Equal(t, 1.0, gatheredCounter(t, reg, "test_segments_total", "remapped"))
	assert.Equal(t, 1.0, gatheredCounter(t, reg, "test_segments_dropped_total", ""))
}

func TestTransformMissingState(t *testing.T) {
	m := New(DefaultConfig(), WithVocabulary(testVocab))
	u := build(seg{"a", 5})

	_, err := m.Transform(u)
	assert.ErrorIs(t, err, ErrMissingState)

	_, err = m.FitSource(speaker([]int{4, 5, 6}, nil))
	require.NoError(t, err)
	_, err = m.Transform(u)
	assert.ErrorIs(t, err, ErrMissingState)
	assert.Contains(t, err.Error(), "target")
}

func TestTransformInvalidUtterance(t *testing.T) {
	m := newFitted(t)
	_, err := m.Transform(segment.Utterance{Clusters: []segment.SoundType{"a"}, Boundaries: []int{3, 3}})
	assert.ErrorIs(t, err, segment.ErrInvalidUtterance)
}

func TestTransformEmptyUtterance(t *testing.T) {
	m := newFitted(t)
	got, err := m.Transform(segment.Utterance{Boundaries: []int{0}})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStateJSONLayout(t *testing.T) {
	m := New(DefaultConfig())
	require.NoError(t, m.LoadState(State{Source: map[segment.SoundType]Params{"vowel": {2.5, 0.04}}}))

	data, err := json.Marshal(m.State())
	require.NoError(t, err)
	assert.JSONEq(t, `{"source":{"vowel":[2.5,0.04]}}`, string(data))

	empty, err := json.Marshal(New(DefaultConfig()).State())
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(empty))
}

func TestStateRoundTrip(t *testing.T) {
	m := newFitted(t)
	probe := build(seg{"a", 4}, seg{"sil", 9}, seg{"a", 6}, seg{"sil", 3}, seg{"a", 5}, seg{"sil", 12})
	want, err := m.Transform(probe)
	require.NoError(t, err)

	codecs := map[string]func(State) (State, error){
		"json": func(s State) (State, error) {
			data, err := json.Marshal(s)
			if err != nil {
				return State{}, err
			}
			var out State
			return out, json.Unmarshal(data, &out)
		},
		"yaml": func(s State) (State, error) {
			data, err := yaml.Marshal(s)
			if err != nil {
				return State{}, err
			}
			var out State
			return out, yaml.Unmarshal(data, &out)
		},
	}
	for name, roundTrip := range codecs {
		t.Run(name, func(t *testing.T) {
			st, err := roundTrip(m.State())
			require.NoError(t, err)
			loaded := New(DefaultConfig(), WithVocabulary(testVocab))
			require.NoError(t, loaded.LoadState(st))
			assertSameDists(t, m.Source(), loaded.Source())
			assertSameDists(t, m.Target(), loaded.Target())

			got, err := loaded.Transform(probe)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestSaveLoad(t *testing.T) {
	m := newFitted(t)
	var buf bytes.Buffer
	require.NoError(t, m.Save(&buf))

	loaded, err := Load(&buf, WithVocabulary(testVocab))
	require.NoError(t, err)
	assert.Equal(t, m.Config(), loaded.Config())
	assertSameDists(t, m.Source(), loaded.Source())
	assertSameDists(t, m.Target(), loaded.Target())
}

func TestSaveLoadPartial(t *testing.T) {
	m := New(Config{HopLength: 160, SampleRate: 16000}, WithVocabulary(testVocab))
	_, err := m.FitTarget(speaker([]int{9, 10, 11}, nil))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, m.Save(&buf))
	loaded, err := Load(&buf)
	require.NoError(t, err)
	assert.InDelta(t, 0.01, loaded.HopRate(), 1e-15)
	assert.Nil(t, loaded.Source())
	assertSameDists(t, m.Target(), loaded.Target())
}

func TestLoadStateThreeTuple(t *testing.T) {
	m := New(DefaultConfig())
	require.NoError(t, m.LoadState(State{
		Source: map[segment.SoundType]Params{"a": {3, 0, 0.05}},
	}))
	assert.Equal(t, duration.Gamma{Shape: 3, Scale: 0.05}, m.Source()["a"])
}

func TestLoadStateRejectsBadParams(t *testing.T) {
	bad := []Params{{3, 0.1, 0.05}, {3}, {1, 2, 3, 4}, {-1, 0.05}, {2, 0}, {math.NaN(), 1}}
	for _, p := range bad {
		m := newFitted(t)
		before := m.State()
		err := m.LoadState(State{
			Source: map[segment.SoundType]Params{"a": {2, 0.05}},
			Target: map[segment.SoundType]Params{"a": p},
		})
		assert.Error(t, err, "params %v", p)
		assert.Equal(t, before, m.State(), "state must be unchanged after %v", p)
	}
}

func TestLoadStateKeepsAbsentSide(t *testing.T) {
	m := newFitted(t)
	target := m.Target()
	require.NoError(t, m.LoadState(State{Source: map[segment.SoundType]Params{"a": {2, 0.05}}}))
	assert.Len(t, m.Source(), 1)
	assertSameDists(t, target, m.Target())
}

func TestConcurrentFitAndTransform(t *testing.T) {
	m := newFitted(t)
	u := build(seg{"a", 5}, seg{"sil", 10})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, err := m.FitSource(speaker([]int{4, 5, 6}, []int{8, 10, 12}))
				assert.NoError(t, err)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				got, err := m.Transform(u)
				assert.NoError(t, err)
				assert.Equal(t, []int{10, 20}, got)
			}
		}()
	}
	wg.Wait()
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "remapped", OutcomeRemapped.String())
	assert.Equal(t, "fallback", OutcomeFallback.String())
	assert.Equal(t, "passthrough", OutcomePassthrough.String())
	assert.Equal(t, "Outcome(9)", Outcome(9).String())
}

func assertSameDists(t *testing.T, want, got map[segment.SoundType]duration.Gamma) {
	t.Helper()
	require.Len(t, got, len(want))
	for c, g := range want {
		require.Contains(t, got, c)
		assert.InDelta(t, g.Shape, got[c].Shape, 1e-9*g.Shape, "shape of %s", c)
		assert.InDelta(t, g.Scale, got[c].Scale, 1e-12, "scale of %s", c)
	}
}

func gatheredCounter(t *testing.T, reg *prometheus.Registry, name, outcome string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			if outcome == "" {
				return metric.GetCounter().GetValue()
			}
			for _, l := range metric.GetLabel() {
				if l.GetName() == "outcome" && l.GetValue() == outcome {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	t.Fatalf("no %s{outcome=%q}", name, outcome)
	return 0
}

func TestInvalidFrameConfig(t *testing.T) {
	m := New(Config{}, WithVocabulary(testVocab))
	_, err := m.FitSource(speaker([]int{4, 5, 6}, []int{8, 10, 12}))
	assert.ErrorIs(t, err, segment.ErrInvalidFrameConfig)
	assert.Nil(t, m.Source())

	require.NoError(t, m.LoadState(State{
		Source: map[segment.SoundType]Params{"a": {2, 0.05}},
		Target: map[segment.SoundType]Params{"a": {2, 0.1}},
	}))
	_, err = m.Transform(build(seg{"a", 5}))
	assert.ErrorIs(t, err, segment.ErrInvalidFrameConfig)
}
