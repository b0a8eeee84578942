// Package video reads frames from a video source within a time budget.
package video

import (
	"errors"
	"fmt"
	"io"
	"iter"
)

// Frame is one decoded frame and its position in the source.
type Frame struct {
	Index     int     // ordinal position in the source, starting at 0
	Timestamp float64 // seconds, Index / FPS
	Data      []byte  // JPEG bytes
}

// SampleOptions bounds the frame sequence.
type SampleOptions struct {
	MaxDuration float64 // seconds
	NthFrame    int     // yield every Nth frame, 1 = all
}

// Frames returns a single-use sequence over src. Iteration stops when the
// source is exhausted or a frame's timestamp exceeds MaxDuration. The source
// is closed when iteration ends for any reason, including the caller
// breaking out of the loop.
func Frames(src Source, opts SampleOptions) iter.Seq2[Frame, error] {
	nth := opts.NthFrame
	if nth < 1 {
		nth = 1
	}
	return func(yield func(Frame, error) bool) {
		defer src.Close()

		fps := src.FPS()
		if fps <= 0 {
			yield(Frame{}, fmt.Errorf("%w: invalid frame rate %f", ErrSourceUnavailable, fps))
			return
		}
		frameDuration := 1 / fps
		for index := 0; ; index++ {
			data, err := src.ReadFrame()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Frame{}, err)
				return
			}

			elapsed := float64(index) * frameDuration
			if elapsed > opts.MaxDuration {
				return
			}
			if index%nth != 0 {
				continue
			}
			if !yield(Frame{Index: index, Timestamp: elapsed, Data: data}, nil) {
				return
			}
		}
	}
}
