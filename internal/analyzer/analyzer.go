// Package analyzer runs the facial, audio and text branches over one video
// and fuses their distributions.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/andresmejia3/moodscan/internal/audio"
	"github.com/andresmejia3/moodscan/internal/classify"
	"github.com/andresmejia3/moodscan/internal/emotion"
	"github.com/andresmejia3/moodscan/internal/facial"
	"github.com/andresmejia3/moodscan/internal/transcribe"
	"github.com/andresmejia3/moodscan/internal/utils"
	"github.com/andresmejia3/moodscan/internal/video"
)

// DetectorFactory starts the face detectors for one analysis. release is
// called once the facial branch is done with them.
type DetectorFactory func(ctx context.Context) (detectors []facial.Detector, release func(), err error)

// Analyzer wires the collaborators of one analysis. Opener and Detectors are
// required; a nil audio collaborator leaves its modality empty.
type Analyzer struct {
	Opener      video.Opener
	Detectors   DetectorFactory
	Extractor   audio.Extractor
	Transcriber transcribe.Transcriber
	Audio       classify.AudioClassifier
	Text        classify.TextClassifier

	Weights     emotion.Weights
	NoiseFloor  float64
	NthFrame    int
	ChunkLength time.Duration
	TempDir     string

	OnFrame func(frameIndex int)
	Logger  logrus.FieldLogger
}

// warnings collects degradation notes from concurrent branches.
type warnings struct {
	mu   sync.Mutex
	list []string
}

func (w *warnings) add(format string, args ...any) {
	w.mu.Lock()
	w.list = append(w.list, fmt.Sprintf(format, args...))
	w.mu.Unlock()
}

// Analyze produces a fused result for the video at path, reading at most
// maxDuration seconds of frames. A frame is sampled while its timestamp is
// within maxDuration, so 0 reads only the first frame and a negative value
// reads none; the audio branch covers the whole track either way. Only an
// unreadable video (wrapping video.ErrSourceUnavailable) or a cancelled ctx
// is returned as an error; every other failure empties the affected
// modality and is recorded in Result.Warnings.
func (a *Analyzer) Analyze(ctx context.Context, path string, maxDuration float64) (*emotion.Result, error) {
	log := a.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	weights := a.Weights
	if weights == nil {
		weights = emotion.DefaultWeights()
	}

	src, err := a.Opener.Open(ctx, path)
	if err != nil {
		return nil, err
	}

	res := emotion.NewResult(path, maxDuration)
	if id, err := utils.GenerateVideoID(path); err == nil {
		res.VideoID = id
	}
	log = log.WithField("analysis_id", res.ID.String())

	var warn warnings
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		res.Facial = a.facialBranch(ctx, src, maxDuration, log.WithField("modality", emotion.Facial), &warn)
	}()
	go func() {
		defer wg.Done()
		res.Audio, res.Text, res.Transcript = a.audioBranch(ctx, path, log, &warn)
	}()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res.Warnings = warn.list
	res.Combine(weights, a.NoiseFloor)
	log.WithFields(logrus.Fields{
		"dominant": res.Dominant,
		"warnings": len(res.Warnings),
	}).Info("Analysis complete")
	return res, nil
}

// facialBranch owns src and always closes it.
func (a *Analyzer) facialBranch(ctx context.Context, src video.Source, maxDuration float64, log logrus.FieldLogger, warn *warnings) emotion.Distribution {
	if a.Detectors == nil {
		src.Close()
		warn.add("facial: no face detector configured")
		return emotion.Distribution{}
	}
	detectors, release, err := a.Detectors(ctx)
	if err != nil {
		src.Close()
		log.WithError(err).Warn("Face detector failed to start, facial modality dropped")
		warn.add("facial: %v", err)
		return emotion.Distribution{}
	}
	if release != nil {
		defer release()
	}

	frames := video.Frames(src, video.SampleOptions{MaxDuration: maxDuration, NthFrame: a.NthFrame})
	dist, stats, err := facial.Aggregate(ctx, frames, detectors, facial.Options{
		NoiseFloor: a.NoiseFloor,
		OnFrame:    a.OnFrame,
		Logger:     log,
	})
	fields := logrus.Fields{
		"frames": stats.FramesAnalyzed,
		"faces":  stats.Faces,
		"failed": stats.FailedFrames,
	}
	if err != nil {
		if ctx.Err() == nil {
			log.WithFields(fields).WithError(err).Warn("Facial analysis failed, facial modality dropped")
			warn.add("facial: %v", err)
		}
		return emotion.Distribution{}
	}
	if stats.FailedFrames > 0 {
		warn.add("facial: detection failed on %d frame(s)", stats.FailedFrames)
	}
	log.WithFields(fields).Debug("Facial analysis done")
	return dist
}

// audioBranch extracts the audio once, then runs tone classification and
// transcription concurrently. The waveform is removed before returning.
func (a *Analyzer) audioBranch(ctx context.Context, path string, log logrus.FieldLogger, warn *warnings) (audioDist, textDist emotion.Distribution, transcript string) {
	audioDist, textDist = emotion.Distribution{}, emotion.Distribution{}
	if a.Extractor == nil {
		warn.add("audio: no audio extractor configured")
		return
	}

	wf, err := a.Extractor.Extract(ctx, path)
	if err != nil {
		switch {
		case ctx.Err() != nil:
		case errors.Is(err, audio.ErrNoAudioTrack):
			log.Info("Video has no audio track, audio and text modalities skipped")
			warn.add("audio: no audio track")
		default:
			log.WithError(err).Warn("Audio extraction failed, audio and text modalities dropped")
			warn.add("audio: %v", err)
		}
		return
	}
	defer func() {
		if err := wf.Remove(); err != nil {
			log.WithError(err).Warn("Failed to remove temporary waveform")
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		audioDist = a.classifyAudio(ctx, wf, log.WithField("modality", emotion.Audio), warn)
	}()
	transcript = a.transcribe(ctx, wf, log.WithField("modality", emotion.Text), warn)
	textDist = a.classifyText(ctx, transcript, log.WithField("modality", emotion.Text), warn)
	wg.Wait()
	return
}

func (a *Analyzer) classifyAudio(ctx context.Context, wf *audio.Waveform, log logrus.FieldLogger, warn *warnings) emotion.Distribution {
	if a.Audio == nil {
		warn.add("audio: no audio classifier configured")
		return emotion.Distribution{}
	}
	d, err := a.Audio.Classify(ctx, wf.Path)
	if err != nil {
		if ctx.Err() == nil {
			log.WithError(err).Warn("Audio classifier failed, audio modality dropped")
			warn.add("audio: %v", err)
		}
		return emotion.Distribution{}
	}
	if d == nil {
		d = emotion.Distribution{}
	}
	return d
}

func (a *Analyzer) transcribe(ctx context.Context, wf *audio.Waveform, log logrus.FieldLogger, warn *warnings) string {
	if a.Transcriber == nil {
		warn.add("text: no transcriber configured")
		return ""
	}
	length := a.ChunkLength
	if length <= 0 {
		length = audio.DefaultChunkLength
	}

	text, outcomes, err := transcribe.Transcribe(ctx, a.Transcriber, audio.Chunks(wf.Path, length, a.TempDir), log)
	if err != nil && ctx.Err() == nil {
		log.WithError(err).Warn("Audio chunking failed, transcript may be incomplete")
		warn.add("text: chunking: %v", err)
	}
	if n := transcribe.Count(outcomes, transcribe.StatusUnavailable); n > 0 {
		warn.add("text: transcription service unavailable for %d of %d chunk(s)", n, len(outcomes))
	}
	if n := transcribe.Count(outcomes, transcribe.StatusError); n > 0 {
		warn.add("text: transcription failed for %d of %d chunk(s)", n, len(outcomes))
	}
	log.WithFields(logrus.Fields{
		"chunks":     len(outcomes),
		"characters": len(text),
	}).Debug("Transcription done")
	return text
}

func (a *Analyzer) classifyText(ctx context.Context, transcript string, log logrus.FieldLogger, warn *warnings) emotion.Distribution {
	if transcript == "" || ctx.Err() != nil {
		return emotion.Distribution{}
	}
	if a.Text == nil {
		warn.add("text: no text classifier configured")
		return emotion.Distribution{}
	}
	d, err := a.Text.Classify(ctx, transcript)
	if err != nil {
		if ctx.Err() == nil {
			log.WithError(err).Warn("Text classifier failed, text modality dropped")
			warn.add("text: %v", err)
		}
		return emotion.Distribution{}
	}
	if d == nil {
		d = emotion.Distribution{}
	}
	return d
}
