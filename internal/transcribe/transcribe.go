// Package transcribe turns audio chunks into a single transcript.
package transcribe

import (
	"context"
	"errors"
	"iter"
	"strings"

	"github.com/andresmejia3/moodscan/internal/audio"
	"github.com/sirupsen/logrus"
)

var (
	// ErrUnknownSpeech means the service could not recognize any speech in the chunk.
	ErrUnknownSpeech = errors.New("speech not recognized")
	// ErrServiceUnavailable means the service could not be reached or kept failing.
	ErrServiceUnavailable = errors.New("transcription service unavailable")
)

// Transcriber converts one WAV chunk to text.
type Transcriber interface {
	Transcribe(ctx context.Context, chunk audio.Chunk) (string, error)
}

// Status is the per-chunk outcome of a transcription pass.
type Status string

const (
	StatusOK            Status = "ok"
	StatusUnknownSpeech Status = "unknown_speech"
	StatusUnavailable   Status = "unavailable"
	StatusError         Status = "error"
)

type ChunkOutcome struct {
	Index  int
	Status Status
	Err    error
}

// Transcribe runs t over every chunk in order and joins the recognized text
// with single spaces. A chunk that fails for any reason contributes nothing;
// only a chunking error or a cancelled context stops the pass early.
func Transcribe(ctx context.Context, t Transcriber, chunks iter.Seq2[audio.Chunk, error], logger logrus.FieldLogger) (string, []ChunkOutcome, error) {
	var parts []string
	var outcomes []ChunkOutcome

	for chunk, err := range chunks {
		if err != nil {
			return strings.Join(parts, " "), outcomes, err
		}
		if err := ctx.Err(); err != nil {
			return strings.Join(parts, " "), outcomes, err
		}

		log := logger.WithField("chunk", chunk.Index)
		text, err := t.Transcribe(ctx, chunk)
		switch {
		case err == nil:
			outcomes = append(outcomes, ChunkOutcome{Index: chunk.Index, Status: StatusOK})
			if text = strings.TrimSpace(text); text != "" {
				parts = append(parts, text)
			}
		case errors.Is(err, ErrUnknownSpeech):
			log.Debug("No recognizable speech in chunk")
			outcomes = append(outcomes, ChunkOutcome{Index: chunk.Index, Status: StatusUnknownSpeech, Err: err})
		case errors.Is(err, ErrServiceUnavailable):
			log.WithError(err).Warn("Transcription service unavailable, skipping chunk")
			outcomes = append(outcomes, ChunkOutcome{Index: chunk.Index, Status: StatusUnavailable, Err: err})
		default:
			if ctx.Err() != nil {
				return strings.Join(parts, " "), outcomes, ctx.Err()
			}
			log.WithError(err).Warn("Transcription failed, skipping chunk")
			outcomes = append(outcomes, ChunkOutcome{Index: chunk.Index, Status: StatusError, Err: err})
		}
	}
	return strings.Join(parts, " "), outcomes, nil
}

// Count returns how many outcomes have the given status.
func Count(outcomes []ChunkOutcome, s Status) int {
	n := 0
	for _, o := range outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}
