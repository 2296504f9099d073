package segment

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidUtterance is returned for utterances that break the
	// boundary invariants.
	ErrInvalidUtterance = errors.New("invalid utterance")
	// ErrEmptyBatch is returned when a model is fit on zero utterances.
	ErrEmptyBatch = errors.New("empty utterance batch")
)

// Utterance is a segmented utterance. Segment i spans frames
// [Boundaries[i], Boundaries[i+1]) and carries label Clusters[i].
type Utterance struct {
	ID         string      `json:"id,omitempty"`
	Clusters   []SoundType `json:"clusters"`
	Boundaries []int       `json:"boundaries"`
}

// Len returns the number of segments.
func (u Utterance) Len() int { return len(u.Clusters) }

// Validate checks len(Boundaries) == len(Clusters)+1 and that boundaries
// are non-negative and strictly increasing.
func (u Utterance) Validate() error {
	if len(u.Boundaries) != len(u.Clusters)+1 {
		return fmt.Errorf("%w: %d clusters need %d boundaries, got %d",
			ErrInvalidUtterance, len(u.Clusters), len(u.Clusters)+1, len(u.Boundaries))
	}
	if u.Boundaries[0] < 0 {
		return fmt.Errorf("%w: negative boundary %d", ErrInvalidUtterance, u.Boundaries[0])
	}
	for i := 1; i < len(u.Boundaries); i++ {
		if u.Boundaries[i] <= u.Boundaries[i-1] {
			return fmt.Errorf("%w: boundary %d (%d) not after boundary %d (%d)",
				ErrInvalidUtterance, i, u.Boundaries[i], i-1, u.Boundaries[i-1])
		}
	}
	return nil
}

// FrameDurations returns the frame count of every segment.
// The utterance is assumed valid.
func (u Utterance) FrameDurations() []int {
	d := make([]int, len(u.Clusters))
	for i := range d {
		d[i] = u.Boundaries[i+1] - u.Boundaries[i]
	}
	return d
}

// UtteranceError identifies the utterance of a batch that failed.
type UtteranceError struct {
	Index int
	ID    string
	Err   error
}

func (e *UtteranceError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("utterance %d (%s): %v", e.Index, e.ID, e.Err)
	}
	return fmt.Sprintf("utterance %d: %v", e.Index, e.Err)
}

func (e *UtteranceError) Unwrap() error { return e.Err }

// ValidateBatch validates every utterance, failing on the first bad one.
func ValidateBatch(utts []Utterance) error {
	if len(utts) == 0 {
		return ErrEmptyBatch
	}
	for i, u := range utts {
		if err := u.Validate(); err != nil {
			return &UtteranceError{Index: i, ID: u.ID, Err: err}
		}
	}
	return nil
}

// Alignment is one labelled span of a frame-level alignment.
type Alignment struct {
	Cluster    SoundType
	StartFrame int // inclusive
	EndFrame   int // exclusive
}

// FromAlignment builds an Utterance from contiguous alignment spans.
func FromAlignment(spans []Alignment) (Utterance, error) {
	if len(spans) == 0 {
		return Utterance{}, fmt.Errorf("%w: empty alignment", ErrInvalidUtterance)
	}
	u := Utterance{
		Clusters:   make([]SoundType, 0, len(spans)),
		Boundaries: make([]int, 0, len(spans)+1),
	}
	u.Boundaries = append(u.Boundaries, spans[0].StartFrame)
	for i, s := range spans {
		if s.StartFrame != u.Boundaries[len(u.Boundaries)-1] {
			return Utterance{}, fmt.Errorf("%w: span %d starts at %d, previous ended at %d",
				ErrInvalidUtterance, i, s.StartFrame, u.Boundaries[len(u.Boundaries)-1])
		}
		u.Clusters = append(u.Clusters, s.Cluster)
		u.Boundaries = append(u.Boundaries, s.EndFrame)
	}
	return u, u.Validate()
}

// FromFrameLabels run-length encodes one label per frame into segments.
func FromFrameLabels(labels []SoundType) Utterance {
	u := Utterance{Boundaries: []int{0}}
	for t, l := range labels {
		if t == 0 || l != labels[t-1] {
			if t > 0 {
				u.Boundaries = append(u.Boundaries, t)
			}
			u.Clusters = append(u.Clusters, l)
		}
	}
	if len(labels) > 0 {
		u.Boundaries = append(u.Boundaries, len(labels))
	}
	return u
}
