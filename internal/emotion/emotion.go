// Package emotion holds the emotion distribution model shared by every
// modality and the fusion engine that combines them.
package emotion

import (
	"fmt"
	"sort"
)

// Label is an emotion category such as "happy" or "neutral". The vocabulary
// is open: classifiers may report labels the others never mention.
type Label string

// Common labels reported by the face detector.
const (
	Angry    Label = "angry"
	Disgust  Label = "disgust"
	Fear     Label = "fear"
	Happy    Label = "happy"
	Sad      Label = "sad"
	Surprise Label = "surprise"
	Neutral  Label = "neutral"
)

// Vocabulary lists the labels prompted for when a classifier needs a closed set.
var Vocabulary = []Label{Angry, Disgust, Fear, Happy, Sad, Surprise, Neutral}

// DefaultNoiseFloor is the minimum score kept in a normalized distribution.
const DefaultNoiseFloor = 0.01

// Distribution maps a label to a non-negative score.
type Distribution map[Label]float64

// Score pairs a label with its score, used when an ordering is needed.
type Score struct {
	Label Label   `json:"label" yaml:"label"`
	Score float64 `json:"score" yaml:"score"`
}

// Clone returns an independent copy. A nil distribution clones to an empty one.
func (d Distribution) Clone() Distribution {
	out := make(Distribution, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Total is the sum of all scores.
func (d Distribution) Total() float64 {
	total := 0.0
	for _, v := range d {
		total += v
	}
	return total
}

// Ranked returns the entries ordered by descending score, ties broken by label.
func (d Distribution) Ranked() []Score {
	out := make([]Score, 0, len(d))
	for k, v := range d {
		out = append(out, Score{Label: k, Score: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].Label < out[j].Label
		}
		return out[i].Score > out[j].Score
	})
	return out
}

// Dominant returns the highest scoring label, or false if the distribution is empty.
func (d Distribution) Dominant() (Label, bool) {
	ranked := d.Ranked()
	if len(ranked) == 0 {
		return "", false
	}
	return ranked[0].Label, true
}

// Floor drops every entry whose score is below floor.
func (d Distribution) Floor(floor float64) Distribution {
	out := make(Distribution, len(d))
	for k, v := range d {
		if v >= floor {
			out[k] = v
		}
	}
	return out
}

// Normalize divides every score by the total mass and applies the noise
// floor. Zero mass yields an empty distribution.
func Normalize(mass Distribution, floor float64) Distribution {
	total := mass.Total()
	out := make(Distribution, len(mass))
	if total <= 0 {
		return out
	}
	for k, v := range mass {
		if score := v / total; score >= floor {
			out[k] = score
		}
	}
	return out
}

// FromScores builds a distribution from label/score pairs. Repeated labels
// are summed and negative scores rejected.
func FromScores(scores []Score) (Distribution, error) {
	out := make(Distribution, len(scores))
	for _, s := range scores {
		if s.Score < 0 {
			return nil, fmt.Errorf("negative score %f for label %q", s.Score, s.Label)
		}
		out[s.Label] += s.Score
	}
	return out, nil
}
