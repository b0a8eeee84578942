package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/andresmejia3/moodscan/internal/audio"
	"github.com/andresmejia3/moodscan/internal/retry"
	"github.com/sirupsen/logrus"
)

// HTTPClient talks to a transcription service exposing POST /transcribe.
type HTTPClient struct {
	BaseURL string
	Retry   retry.Config
	Logger  logrus.FieldLogger
	c       *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration, retries int, logger logrus.FieldLogger) *HTTPClient {
	cfg := retry.DefaultConfig()
	cfg.MaxRetries = retries
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Retry:   cfg,
		Logger:  logger,
		c:       &http.Client{Timeout: timeout},
	}
}

type transcribeResp struct {
	Text string `json:"text"`
}

// Transcribe uploads the chunk as multipart form field "file". A 422 maps to
// ErrUnknownSpeech; network failures and 5xx after retries map to
// ErrServiceUnavailable.
func (h *HTTPClient) Transcribe(ctx context.Context, chunk audio.Chunk) (string, error) {
	text, err := retry.Do(ctx, retry.Options{Config: h.Retry, Retryable: retry.Transient, Logger: h.Logger, Name: "transcriber"},
		func(int) (string, int, error) {
			return h.post(ctx, chunk.Path)
		})
	if err == nil {
		return text, nil
	}
	var se *statusError
	isStatus := errors.As(err, &se)
	switch {
	case isStatus && se.code == http.StatusUnprocessableEntity:
		return "", fmt.Errorf("%w: %s", ErrUnknownSpeech, se.body)
	case isStatus && se.code < 500 && se.code != http.StatusTooManyRequests:
		return "", err
	case ctx.Err() != nil:
		return "", ctx.Err()
	default:
		return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
}

func (h *HTTPClient) post(ctx context.Context, wavPath string) (string, int, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	fw, err := w.CreateFormFile("file", filepath.Base(wavPath))
	if err != nil {
		return "", 0, err
	}
	fd, err := os.Open(wavPath)
	if err != nil {
		return "", 0, err
	}
	defer fd.Close()
	if _, err = io.Copy(fw, fd); err != nil {
		return "", 0, err
	}
	if err = w.Close(); err != nil {
		return "", 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/transcribe", &b)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := h.c.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", resp.StatusCode, &statusError{code: resp.StatusCode, status: resp.Status, body: strings.TrimSpace(string(body))}
	}

	var out transcribeResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", resp.StatusCode, fmt.Errorf("transcriber decode: %w", err)
	}
	return out.Text, resp.StatusCode, nil
}

type statusError struct {
	code   int
	status string
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("transcriber %s: %s", e.status, e.body)
}
