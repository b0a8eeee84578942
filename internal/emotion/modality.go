package emotion

import (
	"errors"
	"fmt"
)

// Modality names one of the independent signal sources.
type Modality string

const (
	Facial Modality = "facial"
	Audio  Modality = "audio"
	Text   Modality = "text"
)

// Modalities is the canonical order used whenever modalities are combined.
var Modalities = []Modality{Facial, Audio, Text}

// Weights is the reliability weight assigned to each modality during fusion.
type Weights map[Modality]float64

// DefaultWeights returns the standard weight table.
func DefaultWeights() Weights {
	return Weights{Facial: 0.4, Audio: 0.3, Text: 0.3}
}

// Validate rejects negative weights and a table with no positive weight.
func (w Weights) Validate() error {
	positive := false
	for _, m := range Modalities {
		v := w[m]
		if v < 0 {
			return fmt.Errorf("weight for %s must be >= 0, got %f", m, v)
		}
		if v > 0 {
			positive = true
		}
	}
	if !positive {
		return errors.New("at least one modality weight must be positive")
	}
	return nil
}

// ParseModality converts a name into a Modality.
func ParseModality(s string) (Modality, error) {
	for _, m := range Modalities {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown modality %q", s)
}
