package audio

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// DefaultChunkLength keeps each chunk within typical transcription service limits.
const DefaultChunkLength = 30 * time.Second

// Chunk is one contiguous slice of a waveform exported to its own WAV file.
// The file only exists while the chunk is being yielded.
type Chunk struct {
	Index    int
	Path     string
	Start    time.Duration
	Duration time.Duration
}

// Chunks splits the WAV at path into contiguous, non-overlapping chunks of
// length; the last one may be shorter. Each chunk file is deleted as soon as
// the consumer moves on, stops early, or an error ends iteration.
func Chunks(path string, length time.Duration, tempDir string) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		if length <= 0 {
			yield(Chunk{}, fmt.Errorf("chunk length must be positive, got %s", length))
			return
		}

		f, err := os.Open(path)
		if err != nil {
			yield(Chunk{}, fmt.Errorf("open waveform: %w", err))
			return
		}
		defer f.Close()

		dec := wav.NewDecoder(f)
		if !dec.IsValidFile() {
			yield(Chunk{}, fmt.Errorf("%s is not a valid WAV file", path))
			return
		}
		format := dec.Format()
		bitDepth := int(dec.BitDepth)
		if format.SampleRate <= 0 || format.NumChannels <= 0 {
			yield(Chunk{}, fmt.Errorf("invalid WAV format: %d Hz, %d channels", format.SampleRate, format.NumChannels))
			return
		}

		perSecond := format.SampleRate * format.NumChannels
		samplesPerChunk := int(length.Seconds() * float64(format.SampleRate)) * format.NumChannels
		buf := &goaudio.IntBuffer{Format: format, Data: make([]int, samplesPerChunk), SourceBitDepth: bitDepth}

		var start time.Duration
		for index := 0; ; index++ {
			n, err := readFull(dec, buf, samplesPerChunk)
			if err != nil {
				yield(Chunk{}, fmt.Errorf("read chunk %d: %w", index, err))
				return
			}
			if n == 0 {
				return
			}

			chunkBuf := &goaudio.IntBuffer{Format: format, Data: buf.Data[:n], SourceBitDepth: bitDepth}
			duration := time.Duration(float64(n) / float64(perSecond) * float64(time.Second))
			chunkPath, err := writeChunk(tempDir, chunkBuf, bitDepth)
			if err != nil {
				yield(Chunk{}, fmt.Errorf("export chunk %d: %w", index, err))
				return
			}

			more := yieldChunk(yield, Chunk{Index: index, Path: chunkPath, Start: start, Duration: duration})
			if !more || n < samplesPerChunk {
				return
			}
			start += duration
		}
	}
}

// yieldChunk hands c to the consumer and removes its file afterwards, even
// if the consumer panics.
func yieldChunk(yield func(Chunk, error) bool, c Chunk) bool {
	defer os.Remove(c.Path)
	return yield(c, nil)
}

// readFull reads up to want samples into buf.Data, looping over short reads.
func readFull(dec *wav.Decoder, buf *goaudio.IntBuffer, want int) (int, error) {
	total := 0
	scratch := &goaudio.IntBuffer{Format: buf.Format, SourceBitDepth: buf.SourceBitDepth}
	for total < want {
		scratch.Data = buf.Data[total:want]
		n, err := dec.PCMBuffer(scratch)
		total += n
		if err != nil && !errors.Is(err, io.EOF) {
			return total, err
		}
		if n == 0 || errors.Is(err, io.EOF) {
			break
		}
	}
	return total, nil
}

func writeChunk(tempDir string, buf *goaudio.IntBuffer, bitDepth int) (string, error) {
	f, err := os.CreateTemp(tempDir, "moodscan-chunk-*.wav")
	if err != nil {
		return "", err
	}
	enc := wav.NewEncoder(f, buf.Format.SampleRate, bitDepth, buf.Format.NumChannels, 1)
	if err := enc.Write(buf); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := enc.Close(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
