package facial

import (
	"context"
	"errors"
	"iter"
	"math"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/andresmejia3/moodscan/internal/emotion"
	"github.com/andresmejia3/moodscan/internal/video"
)

// seq yields n empty frames indexed 0..n-1, optionally failing afterwards.
func seq(n int, tail error) iter.Seq2[video.Frame, error] {
	return func(yield func(video.Frame, error) bool) {
		for i := 0; i < n; i++ {
			if !yield(video.Frame{Index: i, Timestamp: float64(i)}, nil) {
				return
			}
		}
		if tail != nil {
			yield(video.Frame{}, tail)
		}
	}
}

// scripted returns the detections registered for a frame index.
func scripted(byFrame map[int][]Detection) Detector {
	return DetectorFunc(func(ctx context.Context, f video.Frame) ([]Detection, error) {
		return byFrame[f.Index], nil
	})
}

func testOpts() Options {
	logger, _ := test.NewNullLogger()
	return Options{NoiseFloor: emotion.DefaultNoiseFloor, Logger: logger}
}

func TestAggregate_AdditiveAcrossFacesAndFrames(t *testing.T) {
	det := scripted(map[int][]Detection{
		0: {{Emotions: emotion.Distribution{emotion.Happy: 0.6, emotion.Sad: 0.4}}},
		1: {
			{Emotions: emotion.Distribution{emotion.Happy: 0.9, emotion.Neutral: 0.1}},
			{Emotions: emotion.Distribution{emotion.Angry: 1.0}},
		},
		2: nil, // no faces
	})

	got, stats, err := Aggregate(context.Background(), seq(3, nil), []Detector{det}, testOpts())
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	// total mass = 1 + 1 + 1 = 3
	want := emotion.Distribution{
		emotion.Happy:   1.5 / 3,
		emotion.Sad:     0.4 / 3,
		emotion.Neutral: 0.1 / 3,
		emotion.Angry:   1.0 / 3,
	}
	for k, v := range want {
		if math.Abs(got[k]-v) > 1e-9 {
			t.Errorf("Label %q = %v, want %v", k, got[k], v)
		}
	}
	if len(got) != len(want) {
		t.Errorf("Expected %d labels, got %v", len(want), got)
	}
	if stats.FramesAnalyzed != 3 || stats.Faces != 3 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestAggregate_ValuesWithinRangeAndAboveFloor(t *testing.T) {
	det := scripted(map[int][]Detection{
		0: {{Emotions: emotion.Distribution{emotion.Happy: 0.995, emotion.Fear: 0.005}}},
		1: {{Emotions: emotion.Distribution{emotion.Happy: 0.98, emotion.Sad: 0.02}}},
	})
	got, _, err := Aggregate(context.Background(), seq(2, nil), []Detector{det}, testOpts())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got[emotion.Fear]; ok {
		t.Error("Expected fear (0.0025) to be dropped by the noise floor")
	}
	for k, v := range got {
		if v < emotion.DefaultNoiseFloor || v > 1 {
			t.Errorf("Label %q out of range: %v", k, v)
		}
	}
}

func TestAggregate_NoFacesIsEmptyNotError(t *testing.T) {
	det := scripted(nil)
	got, stats, err := Aggregate(context.Background(), seq(5, nil), []Detector{det}, testOpts())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected empty distribution, got %v", got)
	}
	if stats.FramesAnalyzed != 5 || stats.Faces != 0 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestAggregate_FrameErrorsAreSkipped(t *testing.T) {
	det := DetectorFunc(func(ctx context.Context, f video.Frame) ([]Detection, error) {
		if f.Index == 1 {
			return nil, errors.New("bad frame")
		}
		return []Detection{{Emotions: emotion.Distribution{emotion.Sad: 1}}}, nil
	})
	got, stats, err := Aggregate(context.Background(), seq(3, nil), []Detector{det}, testOpts())
	if err != nil {
		t.Fatal(err)
	}
	if got[emotion.Sad] != 1 {
		t.Errorf("Expected sad=1, got %v", got)
	}
	if stats.FailedFrames != 1 || stats.FramesAnalyzed != 2 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestAggregate_DetectorUnavailableAborts(t *testing.T) {
	det := DetectorFunc(func(ctx context.Context, f video.Frame) ([]Detection, error) {
		return nil, ErrDetectorUnavailable
	})
	_, _, err := Aggregate(context.Background(), seq(3, nil), []Detector{det}, testOpts())
	if !errors.Is(err, ErrDetectorUnavailable) {
		t.Errorf("Expected ErrDetectorUnavailable, got %v", err)
	}
}

func TestAggregate_SourceErrorAborts(t *testing.T) {
	boom := errors.New("decoder died")
	_, _, err := Aggregate(context.Background(), seq(2, boom), []Detector{scripted(nil)}, testOpts())
	if !errors.Is(err, boom) {
		t.Errorf("Expected source error, got %v", err)
	}
}

func TestAggregate_NoDetectors(t *testing.T) {
	if _, _, err := Aggregate(context.Background(), seq(1, nil), nil, testOpts()); err == nil {
		t.Error("Expected error without detectors")
	}
}

func TestAggregate_ParallelMatchesSequential(t *testing.T) {
	byFrame := map[int][]Detection{}
	for i := 0; i < 50; i++ {
		byFrame[i] = []Detection{{Emotions: emotion.Distribution{
			emotion.Happy:   float64(i%5) / 10,
			emotion.Sad:     float64(i%3) / 10,
			emotion.Neutral: 0.2,
		}}}
	}

	seqGot, seqStats, err := Aggregate(context.Background(), seq(50, nil), []Detector{scripted(byFrame)}, testOpts())
	if err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int64
	opts := testOpts()
	opts.OnFrame = func(int) { calls.Add(1) }
	engines := []Detector{scripted(byFrame), scripted(byFrame), scripted(byFrame)}
	parGot, parStats, err := Aggregate(context.Background(), seq(50, nil), engines, opts)
	if err != nil {
		t.Fatal(err)
	}

	if seqStats != parStats {
		t.Errorf("Stats differ: %+v vs %+v", seqStats, parStats)
	}
	if calls.Load() != 50 {
		t.Errorf("Expected OnFrame called 50 times, got %d", calls.Load())
	}
	for k, v := range seqGot {
		if math.Abs(parGot[k]-v) > 1e-9 {
			t.Errorf("Label %q: sequential %v, parallel %v", k, v, parGot[k])
		}
	}
}

func TestAggregate_ParallelDetectorUnavailable(t *testing.T) {
	bad := DetectorFunc(func(ctx context.Context, f video.Frame) ([]Detection, error) {
		return nil, ErrDetectorUnavailable
	})
	_, _, err := Aggregate(context.Background(), seq(20, nil), []Detector{bad, bad}, testOpts())
	if !errors.Is(err, ErrDetectorUnavailable) {
		t.Errorf("Expected ErrDetectorUnavailable, got %v", err)
	}
}
