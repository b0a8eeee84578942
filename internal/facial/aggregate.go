package facial

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/andresmejia3/moodscan/internal/emotion"
	"github.com/andresmejia3/moodscan/internal/types"
	"github.com/andresmejia3/moodscan/internal/video"
)

// Options tunes Aggregate.
type Options struct {
	NoiseFloor float64
	// OnFrame is called after each frame has been analysed. It may be called
	// from several goroutines when more than one detector is used.
	OnFrame func(frameIndex int)
	Logger  logrus.FieldLogger
}

// accumulate adds every detection's scores into mass.
func accumulate(mass emotion.Distribution, dets []Detection) emotion.Distribution {
	for _, d := range dets {
		for label, score := range d.Emotions {
			mass[label] += score
		}
	}
	return mass
}

// Aggregate folds the frame sequence through the detectors. Every face in
// every frame adds its raw scores to a running per-label mass, which is then
// normalized by the total mass and floored. No faces at all yields an empty
// distribution.
//
// With more than one detector, frames are fanned out and each engine folds
// its own partial mass; partials are merged once all frames are done.
func Aggregate(ctx context.Context, frames iter.Seq2[video.Frame, error], detectors []Detector, opts Options) (emotion.Distribution, Stats, error) {
	if len(detectors) == 0 {
		return nil, Stats{}, errors.New("no face detectors configured")
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	var (
		mass  emotion.Distribution
		stats Stats
		err   error
	)
	if len(detectors) == 1 {
		mass, stats, err = foldSequential(ctx, frames, detectors[0], opts)
	} else {
		mass, stats, err = foldParallel(ctx, frames, detectors, opts)
	}
	if err != nil {
		return nil, stats, err
	}
	return emotion.Normalize(mass, opts.NoiseFloor), stats, nil
}

// detectFrame runs one detection and folds the result into mass.
// Only context cancellation and ErrDetectorUnavailable are fatal.
func detectFrame(ctx context.Context, d Detector, frame video.Frame, mass emotion.Distribution, stats *Stats, opts Options) error {
	dets, err := d.Detect(ctx, frame)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrDetectorUnavailable) {
			return err
		}
		stats.FailedFrames++
		opts.Logger.WithError(err).WithField("frame", frame.Index).Debug("frame detection failed, skipping")
		return nil
	}
	stats.FramesAnalyzed++
	stats.Faces += len(dets)
	accumulate(mass, dets)
	if opts.OnFrame != nil {
		opts.OnFrame(frame.Index)
	}
	return nil
}

func foldSequential(ctx context.Context, frames iter.Seq2[video.Frame, error], d Detector, opts Options) (emotion.Distribution, Stats, error) {
	mass := emotion.Distribution{}
	var stats Stats
	for frame, err := range frames {
		if err != nil {
			return nil, stats, err
		}
		if err := detectFrame(ctx, d, frame, mass, &stats, opts); err != nil {
			return nil, stats, err
		}
	}
	return mass, stats, nil
}

type partial struct {
	mass  emotion.Distribution
	stats Stats
	err   error
}

func foldParallel(ctx context.Context, frames iter.Seq2[video.Frame, error], detectors []Detector, opts Options) (emotion.Distribution, Stats, error) {
	// Cancel stops both the producer and the engines on the first fatal error.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	taskChan := make(chan types.FrameTask, len(detectors))
	partials := make(chan partial, len(detectors))

	var wg sync.WaitGroup
	for i, d := range detectors {
		wg.Add(1)
		go func(engine int, d Detector) {
			defer wg.Done()
			p := partial{mass: emotion.Distribution{}}
			log := opts.Logger.WithField("engine", engine)
			engineOpts := opts
			engineOpts.Logger = log
			for task := range taskChan {
				if p.err != nil {
					continue // drain so the producer never blocks
				}
				frame := video.Frame{Index: task.Index, Timestamp: task.Timestamp, Data: task.Data}
				if err := detectFrame(ctx, d, frame, p.mass, &p.stats, engineOpts); err != nil {
					p.err = err
					cancel()
				}
			}
			partials <- p
		}(i, d)
	}

	var readErr error
	for frame, err := range frames {
		if err != nil {
			readErr = err
			break
		}
		select {
		case taskChan <- types.FrameTask{Index: frame.Index, Timestamp: frame.Timestamp, Data: frame.Data}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(taskChan)
	wg.Wait()
	close(partials)

	mass := emotion.Distribution{}
	var stats Stats
	var engineErr error
	for p := range partials {
		stats.add(p.stats)
		if p.err != nil && engineErr == nil && !errors.Is(p.err, context.Canceled) {
			engineErr = p.err
		}
		for label, v := range p.mass {
			mass[label] += v
		}
	}

	switch {
	case readErr != nil:
		return nil, stats, readErr
	case engineErr != nil:
		return nil, stats, engineErr
	}
	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}
	return mass, stats, nil
}
