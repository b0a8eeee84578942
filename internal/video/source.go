package video

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/andresmejia3/moodscan/internal/utils"
)

const megabyte = 1024 * 1024

// ErrSourceUnavailable means the video cannot be opened or decoded at all.
var ErrSourceUnavailable = errors.New("video source unavailable")

// Source yields encoded frames from an open video. ReadFrame returns io.EOF
// once the video is exhausted. Close releases the underlying handle and is
// safe to call more than once.
type Source interface {
	FPS() float64
	ReadFrame() ([]byte, error)
	Close() error
}

// Opener opens a video for frame-by-frame reading.
type Opener interface {
	Open(ctx context.Context, path string) (Source, error)
}

// FFmpegOpener decodes videos with an ffmpeg subprocess emitting MJPEG frames.
type FFmpegOpener struct{}

// Open probes path and starts the decoder. Every failure is reported as ErrSourceUnavailable.
func (FFmpegOpener) Open(ctx context.Context, path string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrSourceUnavailable, path)
	}

	meta, err := Probe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if !meta.HasVideo {
		return nil, fmt.Errorf("%w: no video stream in %s", ErrSourceUnavailable, path)
	}
	if meta.FPS <= 0 {
		return nil, fmt.Errorf("%w: cannot determine frame rate of %s", ErrSourceUnavailable, path)
	}

	// The decoder gets its own context so Close can stop it without
	// cancelling the caller.
	decCtx, cancel := context.WithCancel(ctx)
	ffmpeg := NewFFmpegCmd(decCtx, path)
	out, err := ffmpeg.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: decoder pipe: %v", ErrSourceUnavailable, err)
	}
	if err := ffmpeg.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: start decoder: %v", ErrSourceUnavailable, err)
	}

	scanner := bufio.NewScanner(out)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(SplitJpeg)

	return &ffmpegSource{
		cmd:     ffmpeg,
		cancel:  cancel,
		scanner: scanner,
		fps:     meta.FPS,
	}, nil
}

// NewFFmpegCmd creates a decoder that writes raw MJPEG frames to stdout.
func NewFFmpegCmd(ctx context.Context, inputPath string) *utils.SafeCommand {
	// -loglevel error keeps the captured stderr small
	return utils.NewSafeCommand(ctx, "ffmpeg", "-hide_banner", "-loglevel", "error",
		"-i", inputPath, "-an", "-f", "image2pipe", "-vcodec", "mjpeg", "-")
}

type ffmpegSource struct {
	cmd     *utils.SafeCommand
	cancel  context.CancelFunc
	scanner *bufio.Scanner
	fps     float64

	waitOnce sync.Once
	waitErr  error
}

func (s *ffmpegSource) FPS() float64 { return s.fps }

func (s *ffmpegSource) ReadFrame() ([]byte, error) {
	if s.scanner.Scan() {
		// The scanner reuses its buffer between calls.
		frame := make([]byte, len(s.scanner.Bytes()))
		copy(frame, s.scanner.Bytes())
		return frame, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("frame scanner failed: %w", err)
	}
	if err := s.wait(); err != nil {
		return nil, fmt.Errorf("decoder failed: %w: %s", err, s.cmd.Logs())
	}
	return nil, io.EOF
}

func (s *ffmpegSource) wait() error {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
	})
	return s.waitErr
}

// Close kills the decoder if it is still running and reaps it.
func (s *ffmpegSource) Close() error {
	s.cancel()
	_ = s.wait() // killed decoders always report an error
	return nil
}
