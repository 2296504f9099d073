package duration

import "github.com/ieee0824/rhythm-go/segment"

// Samples holds observed segment durations in seconds, per sound type.
type Samples map[segment.SoundType][]float64

// Clusters returns the sound types present, sorted by label.
func (s Samples) Clusters() []segment.SoundType {
	out := make([]segment.SoundType, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	segment.SortSoundTypes(out)
	return out
}

// Count returns the total number of samples across all clusters.
func (s Samples) Count() int {
	n := 0
	for _, d := range s {
		n += len(d)
	}
	return n
}

// Tally collects the duration of every segment in utts, in seconds.
// Silences no longer than segment.NoiseFrames are dropped. Clusters with no
// retained segment do not appear in the result.
func Tally(utts []segment.Utterance, hopRate float64, vocab segment.Vocabulary) (Samples, error) {
	if err := segment.ValidateBatch(utts); err != nil {
		return nil, err
	}
	tally := make(Samples)
	for _, u := range utts {
		for i, frames := range u.FrameDurations() {
			cluster := u.Clusters[i]
			if vocab.IsNoise(cluster, frames) {
				continue
			}
			tally[cluster] = append(tally[cluster], hopRate*float64(frames))
		}
	}
	return tally, nil
}
