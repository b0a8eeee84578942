package types

// FrameTask represents a single frame handed to a detector engine
type FrameTask struct {
	Index     int
	Timestamp float64
	Data      []byte
}

// FaceResult is one face decoded from the Python worker's response
type FaceResult struct {
	Loc      [4]int             `json:"loc"`      // [x, y, width, height]
	Emotions map[string]float64 `json:"emotions"` // raw per-label confidence
}

// ErrorResult captures the error message returned by Python on failure
type ErrorResult struct {
	Message string `json:"error"`
}

func (e *ErrorResult) Error() string {
	return "python worker error: " + e.Message
}
