// Package classify adapts external emotion classifiers for the audio and
// text modalities. Their distributions are returned as reported.
package classify

import (
	"context"

	"github.com/andresmejia3/moodscan/internal/emotion"
)

// AudioClassifier scores the vocal tone of a WAV file.
type AudioClassifier interface {
	Classify(ctx context.Context, wavPath string) (emotion.Distribution, error)
}

// TextClassifier scores the emotion expressed in a transcript.
type TextClassifier interface {
	Classify(ctx context.Context, text string) (emotion.Distribution, error)
}

// AudioFunc adapts a function to AudioClassifier.
type AudioFunc func(ctx context.Context, wavPath string) (emotion.Distribution, error)

func (f AudioFunc) Classify(ctx context.Context, wavPath string) (emotion.Distribution, error) {
	return f(ctx, wavPath)
}

// TextFunc adapts a function to TextClassifier.
type TextFunc func(ctx context.Context, text string) (emotion.Distribution, error)

func (f TextFunc) Classify(ctx context.Context, text string) (emotion.Distribution, error) {
	return f(ctx, text)
}
