// Package audio demuxes a video's audio track and splits it into chunks.
package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/andresmejia3/moodscan/internal/utils"
	"github.com/andresmejia3/moodscan/internal/video"
)

var (
	// ErrNoAudioTrack means the video has no audio stream.
	ErrNoAudioTrack = errors.New("video has no audio track")
	// ErrExtractionFailed wraps any I/O or decoder failure while demuxing.
	ErrExtractionFailed = errors.New("audio extraction failed")
)

// DefaultSampleRate is the PCM rate the extracted waveform is resampled to.
const DefaultSampleRate = 16000

// Waveform is a temporary mono PCM WAV file. The stage that created it owns
// it and must call Remove once it has been consumed.
type Waveform struct {
	Path       string
	SampleRate int
	Duration   time.Duration // 0 if unknown
}

// Remove deletes the backing file. Removing twice is not an error.
func (w *Waveform) Remove() error {
	if w == nil || w.Path == "" {
		return nil
	}
	if err := os.Remove(w.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Extractor writes a video's audio track to a temporary waveform.
type Extractor interface {
	Extract(ctx context.Context, videoPath string) (*Waveform, error)
}

// FFmpegExtractor demuxes with ffmpeg into 16-bit mono WAV.
type FFmpegExtractor struct {
	SampleRate int
	TempDir    string // "" uses the OS default
}

// Extract checks the video for an audio stream, then writes it to a temp file.
func (e FFmpegExtractor) Extract(ctx context.Context, videoPath string) (*Waveform, error) {
	meta, err := video.Probe(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	if !meta.HasAudio {
		return nil, ErrNoAudioTrack
	}

	rate := e.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}

	tmp, err := os.CreateTemp(e.TempDir, "moodscan-audio-*.wav")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	tmp.Close()
	wf := &Waveform{Path: tmp.Name(), SampleRate: rate}

	// ffmpeg -y -i input -vn -ac 1 -ar 16000 -acodec pcm_s16le -f wav output
	ffmpeg := utils.NewSafeCommand(ctx, "ffmpeg", "-hide_banner", "-loglevel", "error",
		"-y", "-i", videoPath,
		"-vn", "-ac", "1", "-ar", strconv.Itoa(rate),
		"-acodec", "pcm_s16le", "-f", "wav",
		wf.Path,
	)
	if err := ffmpeg.Run(); err != nil {
		wf.Remove()
		return nil, fmt.Errorf("%w: ffmpeg: %v: %s", ErrExtractionFailed, err, ffmpeg.Logs())
	}

	if meta.Duration > 0 {
		wf.Duration = time.Duration(meta.Duration * float64(time.Second))
	}
	return wf, nil
}
