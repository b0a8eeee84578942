package transcribe

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andresmejia3/moodscan/internal/audio"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type scriptedTranscriber map[int]struct {
	text string
	err  error
}

func (s scriptedTranscriber) Transcribe(_ context.Context, c audio.Chunk) (string, error) {
	r := s[c.Index]
	return r.text, r.err
}

func chunks(n int, tail error) iter.Seq2[audio.Chunk, error] {
	return func(yield func(audio.Chunk, error) bool) {
		for i := 0; i < n; i++ {
			if !yield(audio.Chunk{Index: i, Path: fmt.Sprintf("chunk-%d.wav", i)}, nil) {
				return
			}
		}
		if tail != nil {
			yield(audio.Chunk{}, tail)
		}
	}
}

func TestTranscribe_SkipsUnknownSpeech(t *testing.T) {
	logger, _ := test.NewNullLogger()
	tr := scriptedTranscriber{
		0: {text: "a"},
		1: {err: ErrUnknownSpeech},
		2: {text: "c"},
	}
	text, outcomes, err := Transcribe(context.Background(), tr, chunks(3, nil), logger)
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "a c" {
		t.Errorf("Expected %q, got %q", "a c", text)
	}
	want := []Status{StatusOK, StatusUnknownSpeech, StatusOK}
	for i, o := range outcomes {
		if o.Index != i || o.Status != want[i] {
			t.Errorf("Outcome %d = %+v, want status %s", i, o, want[i])
		}
	}
}

func TestTranscribe_ServiceUnavailableContinues(t *testing.T) {
	logger, hook := test.NewNullLogger()
	tr := scriptedTranscriber{
		0: {err: fmt.Errorf("%w: 503", ErrServiceUnavailable)},
		1: {text: "  hello  "},
		2: {err: errors.New("weird")},
		3: {text: ""},
		4: {text: "world"},
	}
	text, outcomes, err := Transcribe(context.Background(), tr, chunks(5, nil), logger)
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "hello world" {
		t.Errorf("Expected %q, got %q", "hello world", text)
	}
	if n := Count(outcomes, StatusUnavailable); n != 1 {
		t.Errorf("Expected 1 unavailable chunk, got %d", n)
	}
	if n := Count(outcomes, StatusError); n != 1 {
		t.Errorf("Expected 1 errored chunk, got %d", n)
	}

	warns := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warns++
		}
	}
	if warns != 2 {
		t.Errorf("Expected 2 warnings, got %d", warns)
	}
}

func TestTranscribe_AllChunksFail(t *testing.T) {
	logger, _ := test.NewNullLogger()
	tr := scriptedTranscriber{0: {err: ErrUnknownSpeech}, 1: {err: ErrUnknownSpeech}}
	text, _, err := Transcribe(context.Background(), tr, chunks(2, nil), logger)
	if err != nil || text != "" {
		t.Errorf("Expected empty transcript, got %q, %v", text, err)
	}
}

func TestTranscribe_ChunkingErrorStops(t *testing.T) {
	logger, _ := test.NewNullLogger()
	boom := errors.New("bad wav")
	tr := scriptedTranscriber{0: {text: "first"}}
	text, _, err := Transcribe(context.Background(), tr, chunks(1, boom), logger)
	if !errors.Is(err, boom) {
		t.Errorf("Expected chunking error, got %v", err)
	}
	if text != "first" {
		t.Errorf("Expected partial transcript, got %q", text)
	}
}

func writeChunk(t *testing.T) audio.Chunk {
	t.Helper()
	p := filepath.Join(t.TempDir(), "chunk.wav")
	if err := os.WriteFile(p, []byte("RIFF....WAVE"), 0644); err != nil {
		t.Fatal(err)
	}
	return audio.Chunk{Path: p}
}

func newTestClient(url string, retries int) *HTTPClient {
	logger, _ := test.NewNullLogger()
	c := NewHTTPClient(url, 5*time.Second, retries, logger)
	c.Retry.BaseDelay = time.Millisecond
	c.Retry.MaxDelay = time.Millisecond
	return c
}

func TestHTTPClient_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/transcribe" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.Close()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"hello there"}`))
	}))
	defer srv.Close()

	text, err := newTestClient(srv.URL+"/", 0).Transcribe(context.Background(), writeChunk(t))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "hello there" {
		t.Errorf("Expected %q, got %q", "hello there", text)
	}
}

func TestHTTPClient_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
		calls  int32
	}{
		{"unprocessable", http.StatusUnprocessableEntity, ErrUnknownSpeech, 1},
		{"server error retried", http.StatusServiceUnavailable, ErrServiceUnavailable, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				http.Error(w, "nope", tc.status)
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL, 2).Transcribe(context.Background(), writeChunk(t))
			if !errors.Is(err, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, err)
			}
			if got := calls.Load(); got != tc.calls {
				t.Errorf("Expected %d calls, got %d", tc.calls, got)
			}
		})
	}
}

func TestHTTPClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url, 1).Transcribe(context.Background(), writeChunk(t))
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("Expected ErrServiceUnavailable, got %v", err)
	}
}
