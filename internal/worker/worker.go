package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/andresmejia3/moodscan/internal/emotion"
	"github.com/andresmejia3/moodscan/internal/facial"
	"github.com/andresmejia3/moodscan/internal/types"
	"github.com/andresmejia3/moodscan/internal/utils"
	"github.com/andresmejia3/moodscan/internal/video"
)

// Protocol status bytes sent by the Python side.
const (
	statusOK    byte = 0
	statusError byte = 1
)

const waitDelay = 2 * time.Second

// Config controls how the Python face-emotion worker is started.
type Config struct {
	Python      string        // interpreter, default "python3"
	Script      string        // worker script path
	ReadTimeout time.Duration // per-frame deadline, 0 disables it
	Debug       bool
}

// PythonWorker drives one face-emotion detector process. Frames go in on
// stdin; responses come back on a dedicated pipe (FD 3) so Python's own
// stdout/stderr chatter never corrupts the protocol.
type PythonWorker struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser

	readTimeout time.Duration
	mu          sync.Mutex // one frame in flight
	closeOnce   sync.Once
}

var _ facial.Detector = (*PythonWorker)(nil)

// NewPythonWorker starts the worker process.
func NewPythonWorker(ctx context.Context, id int, cfg Config) (*PythonWorker, error) {
	python := cfg.Python
	if python == "" {
		python = "python3"
	}
	args := []string{"-u", cfg.Script}
	if cfg.Debug {
		args = append(args, "--debug")
	}
	py := utils.NewSafeCommand(ctx, python, args...)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}
	// Bound Wait once the process is gone, even if a grandchild still holds stderr
	py.Cmd.WaitDelay = waitDelay

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close() // Prevent FD leak
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonWorker{
		ID:          id,
		Cmd:         py,
		Stdin:       stdin,
		DataPipe:    r,
		readTimeout: cfg.ReadTimeout,
	}, nil
}

// Communicate sends one length-prefixed message and reads one back.
func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	// Protocol: [Length][Data]
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // This is where a Python crash (e.g. ModuleNotFoundError) surfaces
	}

	respLen := binary.BigEndian.Uint32(header)
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// ProcessFrame sends a JPEG frame and decodes the detected faces.
//
// Response payload:
//
//	[Status:1]
//	OK:    [NumFaces:u32] then per face [Box:4×i32] [NumLabels:u16]
//	       and per label [LabelLen:u8] [Label] [Score:f32]
//	Error: [MsgLen:u32] [Msg]
func (w *PythonWorker) ProcessFrame(data []byte) ([]types.FaceResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	resp, err := w.Communicate(data)
	if err != nil {
		return nil, fmt.Errorf("%w: worker %d: %v", facial.ErrDetectorUnavailable, w.ID, err)
	}
	return decodeResponse(resp)
}

func decodeResponse(resp []byte) ([]types.FaceResult, error) {
	r := bytes.NewReader(resp)
	status, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("empty worker response: %w", err)
	}

	if status == statusError {
		var msgLen uint32
		if err := binary.Read(r, binary.BigEndian, &msgLen); err != nil {
			return nil, fmt.Errorf("malformed worker error: %w", err)
		}
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, fmt.Errorf("malformed worker error: %w", err)
		}
		return nil, &types.ErrorResult{Message: string(msg)}
	}
	if status != statusOK {
		return nil, fmt.Errorf("unknown worker status %d", status)
	}

	var numFaces uint32
	if err := binary.Read(r, binary.BigEndian, &numFaces); err != nil {
		return nil, fmt.Errorf("malformed face count: %w", err)
	}

	faces := make([]types.FaceResult, 0, numFaces)
	for i := uint32(0); i < numFaces; i++ {
		var box [4]int32
		if err := binary.Read(r, binary.BigEndian, &box); err != nil {
			return nil, fmt.Errorf("face %d: malformed box: %w", i, err)
		}
		var numLabels uint16
		if err := binary.Read(r, binary.BigEndian, &numLabels); err != nil {
			return nil, fmt.Errorf("face %d: malformed label count: %w", i, err)
		}

		face := types.FaceResult{
			Loc:      [4]int{int(box[0]), int(box[1]), int(box[2]), int(box[3])},
			Emotions: make(map[string]float64, numLabels),
		}
		for j := uint16(0); j < numLabels; j++ {
			labelLen, err := r.ReadByte()
			if err != nil {
				return nil, fmt.Errorf("face %d: malformed label: %w", i, err)
			}
			label := make([]byte, labelLen)
			if _, err := io.ReadFull(r, label); err != nil {
				return nil, fmt.Errorf("face %d: malformed label: %w", i, err)
			}
			var score float32
			if err := binary.Read(r, binary.BigEndian, &score); err != nil {
				return nil, fmt.Errorf("face %d: malformed score: %w", i, err)
			}
			s := float64(score)
			if math.IsNaN(s) || s < 0 {
				s = 0
			}
			face.Emotions[string(label)] += s
		}
		faces = append(faces, face)
	}
	return faces, nil
}

// Detect implements facial.Detector. A frame that exceeds the read timeout
// kills the worker, since its pipe can no longer be trusted.
func (w *PythonWorker) Detect(ctx context.Context, frame video.Frame) ([]facial.Detection, error) {
	type result struct {
		faces []types.FaceResult
		err   error
	}
	done := make(chan result, 1)
	go func() {
		faces, err := w.ProcessFrame(frame.Data)
		done <- result{faces, err}
	}()

	var timeout <-chan time.Time
	if w.readTimeout > 0 {
		timer := time.NewTimer(w.readTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		return toDetections(res.faces), nil
	case <-timeout:
		w.kill()
		return nil, fmt.Errorf("%w: worker %d timed out after %s on frame %d", facial.ErrDetectorUnavailable, w.ID, w.readTimeout, frame.Index)
	case <-ctx.Done():
		w.kill()
		return nil, ctx.Err()
	}
}

func toDetections(faces []types.FaceResult) []facial.Detection {
	out := make([]facial.Detection, 0, len(faces))
	for _, f := range faces {
		d := facial.Detection{Box: f.Loc, Emotions: make(emotion.Distribution, len(f.Emotions))}
		for k, v := range f.Emotions {
			d.Emotions[emotion.Label(k)] = v
		}
		out = append(out, d)
	}
	return out
}

// kill stops a worker that stopped answering. Closing the pipes alone
// would leave Close waiting for the process to exit on its own.
func (w *PythonWorker) kill() {
	if w.Cmd != nil && w.Cmd.Process != nil {
		w.Cmd.Process.Kill()
	}
	w.Close()
}

// Close shuts the worker down and reaps the process. Safe to call more than once.
func (w *PythonWorker) Close() {
	w.closeOnce.Do(func() {
		w.Stdin.Close()
		w.DataPipe.Close()
		if w.Cmd != nil {
			w.Cmd.Wait()
		}
	})
}
