package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ieee0824/rhythm-go/duration"
	"github.com/ieee0824/rhythm-go/finegrained"
	"github.com/ieee0824/rhythm-go/segment"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testProfile(speaker string) Profile {
	rate := 4.5
	fitted := duration.Fitted{
		Dists: map[segment.SoundType]duration.Gamma{
			segment.Vowel:   {Shape: 2, Scale: 0.05},
			segment.Silence: {Shape: 3, Scale: 0.1},
		},
		Skipped: []segment.SoundType{segment.Stop},
	}
	return BuildProfile(speaker, segment.DefaultFrameConfig(), fitted, &rate, 12)
}

func TestBuildProfile(t *testing.T) {
	p := testProfile("alice")
	assert.Equal(t, "alice", p.Speaker)
	assert.Equal(t, 320, p.HopLength)
	assert.Equal(t, 16000, p.SampleRate)
	assert.Equal(t, finegrained.Params{2, 0.05}, p.Durations[segment.Vowel])
	assert.Equal(t, []segment.SoundType{segment.Stop}, p.Skipped)
	require.NotNil(t, p.Rate)
	assert.Equal(t, 4.5, *p.Rate)
	assert.Equal(t, 12, p.Utterances)
	assert.False(t, p.UpdatedAt.IsZero())
	assert.Equal(t, segment.DefaultFrameConfig(), p.Frame())
	assert.NoError(t, p.Validate())
}

func TestPutGet(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	want := testProfile("alice")
	require.NoError(t, s.Put(ctx, want))

	got, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, want.Durations, got.Durations)
	assert.Equal(t, want.Skipped, got.Skipped)
	assert.Equal(t, *want.Rate, *got.Rate)
	assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt))
}

func TestPutReplaces(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, testProfile("alice")))

	p := testProfile("alice")
	p.Rate = nil
	p.Utterances = 3
	require.NoError(t, s.Put(ctx, p))

	got, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, got.Rate)
	assert.Equal(t, 3, got.Utterances)
}

func TestGetDeleteNotFound(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "nobody"), ErrNotFound)

	require.NoError(t, s.Put(ctx, testProfile("bob")))
	require.NoError(t, s.Delete(ctx, "bob"))
	_, err = s.Get(ctx, "bob")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	speakers, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, speakers)

	for _, name := range []string{"carol", "alice", "bob"} {
		require.NoError(t, s.Put(ctx, testProfile(name)))
	}
	speakers, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol"}, speakers)
}

func TestPutRejectsInvalid(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*Profile)
	}{
		{"no speaker", func(p *Profile) { p.Speaker = "" }},
		{"zero hop", func(p *Profile) { p.HopLength = 0 }},
		{"zero sample rate", func(p *Profile) { p.SampleRate = 0 }},
		{"negative rate", func(p *Profile) { r := -1.0; p.Rate = &r }},
		{"bad params", func(p *Profile) { p.Durations[segment.Vowel] = finegrained.Params{-1, 0.1} }},
		{"wrong arity", func(p *Profile) { p.Durations[segment.Vowel] = finegrained.Params{1} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testProfile("alice")
			tt.mutate(&p)
			assert.Error(t, s.Put(ctx, p))
		})
	}
	speakers, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, speakers)
}

func TestCanceledContext(t *testing.T) {
	s := openTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Put(ctx, testProfile("alice")), context.Canceled)
	_, err := s.Get(ctx, "alice")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.Delete(ctx, "alice"), context.Canceled)
}

func TestOnDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, testProfile("alice")))
	require.NoError(t, s.Close())

	s, err = Open(dir, nil)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, finegrained.Params{3, 0.1}, got.Durations[segment.Silence])
}
