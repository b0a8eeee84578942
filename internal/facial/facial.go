// Package facial turns per-frame face detections into one emotion distribution.
package facial

import (
	"context"
	"errors"

	"github.com/andresmejia3/moodscan/internal/emotion"
	"github.com/andresmejia3/moodscan/internal/video"
)

// ErrDetectorUnavailable is returned by a Detector that can no longer serve
// any frame (for example a crashed worker process). It aborts aggregation.
var ErrDetectorUnavailable = errors.New("face detector unavailable")

// Detection is a single face found in a single frame with its raw,
// un-normalized per-label confidence.
type Detection struct {
	Box      [4]int
	Emotions emotion.Distribution
}

// Detector finds faces in a frame. A frame without faces yields an empty
// slice and no error.
type Detector interface {
	Detect(ctx context.Context, frame video.Frame) ([]Detection, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, frame video.Frame) ([]Detection, error)

func (f DetectorFunc) Detect(ctx context.Context, frame video.Frame) ([]Detection, error) {
	return f(ctx, frame)
}

// Stats summarizes one aggregation run.
type Stats struct {
	FramesAnalyzed int `json:"frames_analyzed"`
	Faces          int `json:"faces"`
	FailedFrames   int `json:"failed_frames"`
}

func (s *Stats) add(o Stats) {
	s.FramesAnalyzed += o.FramesAnalyzed
	s.Faces += o.Faces
	s.FailedFrames += o.FailedFrames
}
