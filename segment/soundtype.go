package segment

import "sort"

// SoundType is a discrete sound-type label assigned to a segment by the
// upstream unit-discovery model.
type SoundType string

const (
	Vowel       SoundType = "vowel"
	Approximant SoundType = "approximant"
	Nasal       SoundType = "nasal"
	Fricative   SoundType = "fricative"
	Stop        SoundType = "stop"
	Silence     SoundType = "silence"
)

// AllSoundTypes returns the default closed vocabulary.
func AllSoundTypes() []SoundType {
	return []SoundType{Vowel, Approximant, Nasal, Fricative, Stop, Silence}
}

// NoiseFrames is the longest silence, in frames, treated as measurement
// noise. Silences of this length or shorter are neither fit nor transformed.
const NoiseFrames = 3

// Vocabulary partitions sound types into silence and sonorant sets.
// A label may belong to neither set or to both.
type Vocabulary struct {
	silence  map[SoundType]struct{}
	sonorant map[SoundType]struct{}
}

// NewVocabulary builds a Vocabulary from explicit silence and sonorant labels.
func NewVocabulary(silence, sonorant []SoundType) Vocabulary {
	v := Vocabulary{
		silence:  make(map[SoundType]struct{}, len(silence)),
		sonorant: make(map[SoundType]struct{}, len(sonorant)),
	}
	for _, s := range silence {
		v.silence[s] = struct{}{}
	}
	for _, s := range sonorant {
		v.sonorant[s] = struct{}{}
	}
	return v
}

// DefaultVocabulary treats silence as non-speech and vowels, approximants
// and nasals as sonorants.
func DefaultVocabulary() Vocabulary {
	return NewVocabulary(
		[]SoundType{Silence},
		[]SoundType{Vowel, Approximant, Nasal},
	)
}

// IsSilence reports whether t is in the silence set.
func (v Vocabulary) IsSilence(t SoundType) bool {
	_, ok := v.silence[t]
	return ok
}

// IsSonorant reports whether t is in the sonorant set.
func (v Vocabulary) IsSonorant(t SoundType) bool {
	_, ok := v.sonorant[t]
	return ok
}

// IsNoise reports whether a segment of the given label and frame count is
// too short a silence to model. Fitting and transforming both use this
// predicate, so the set of ignored segments is the same on both paths.
func (v Vocabulary) IsNoise(t SoundType, frames int) bool {
	return frames <= NoiseFrames && v.IsSilence(t)
}

// SilenceTypes returns the silence set in sorted order.
func (v Vocabulary) SilenceTypes() []SoundType { return sortedKeys(v.silence) }

// SonorantTypes returns the sonorant set in sorted order.
func (v Vocabulary) SonorantTypes() []SoundType { return sortedKeys(v.sonorant) }

func sortedKeys(m map[SoundType]struct{}) []SoundType {
	out := make([]SoundType, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	SortSoundTypes(out)
	return out
}

// SortSoundTypes sorts ts in place by label.
func SortSoundTypes(ts []SoundType) {
	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })
}
