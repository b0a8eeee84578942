package emotion

import (
	"time"

	"github.com/google/uuid"
)

// Result is the outcome of analysing one video.
type Result struct {
	ID          uuid.UUID    `json:"id" yaml:"id"`
	VideoID     string       `json:"video_id" yaml:"video_id"`
	VideoPath   string       `json:"video_path" yaml:"video_path"`
	MaxDuration float64      `json:"max_duration" yaml:"max_duration"`
	Facial      Distribution `json:"facial_emotions" yaml:"facial_emotions"`
	Audio       Distribution `json:"audio_emotions" yaml:"audio_emotions"`
	Text        Distribution `json:"text_emotions" yaml:"text_emotions"`
	Combined    Distribution `json:"combined_emotions" yaml:"combined_emotions"`
	Dominant    Label        `json:"dominant,omitempty" yaml:"dominant,omitempty"`
	Transcript  string       `json:"transcript,omitempty" yaml:"transcript,omitempty"`
	Warnings    []string     `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	CreatedAt   time.Time    `json:"created_at" yaml:"created_at"`
}

// NewResult returns a result with a fresh ID and empty distributions.
func NewResult(videoPath string, maxDuration float64) *Result {
	return &Result{
		ID:          uuid.New(),
		VideoPath:   videoPath,
		MaxDuration: maxDuration,
		Facial:      Distribution{},
		Audio:       Distribution{},
		Text:        Distribution{},
		Combined:    Distribution{},
		CreatedAt:   time.Now().UTC(),
	}
}

// Modality returns the distribution recorded for m.
func (r *Result) Modality(m Modality) Distribution {
	switch m {
	case Facial:
		return r.Facial
	case Audio:
		return r.Audio
	case Text:
		return r.Text
	}
	return nil
}

// Inputs returns the per-modality distributions keyed by modality.
func (r *Result) Inputs() map[Modality]Distribution {
	return map[Modality]Distribution{
		Facial: r.Facial,
		Audio:  r.Audio,
		Text:   r.Text,
	}
}

// Combine fuses the modalities into Combined and records the dominant label.
func (r *Result) Combine(w Weights, floor float64) {
	r.Combined = Fuse(r.Inputs(), w, floor)
	r.Dominant, _ = r.Combined.Dominant()
}
