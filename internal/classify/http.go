package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/andresmejia3/moodscan/internal/emotion"
	"github.com/andresmejia3/moodscan/internal/retry"
	"github.com/sirupsen/logrus"
)

type service struct {
	baseURL string
	name    string
	retry   retry.Config
	logger  logrus.FieldLogger
	c       *http.Client
}

func newService(name, baseURL string, timeout time.Duration, retries int, logger logrus.FieldLogger) service {
	cfg := retry.DefaultConfig()
	cfg.MaxRetries = retries
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return service{
		baseURL: strings.TrimRight(baseURL, "/"),
		name:    name,
		retry:   cfg,
		logger:  logger,
		c:       &http.Client{Timeout: timeout},
	}
}

// --- Emotion (/detect, /classify-audio) ---
type emoReq struct {
	Text string `json:"text"`
}

type emoResp struct {
	Emotions []emotion.Score `json:"emotions"`
}

// do sends the request built by newReq, retrying transient failures.
func (s service) do(ctx context.Context, newReq func() (*http.Request, error)) (emotion.Distribution, error) {
	return retry.Do(ctx, retry.Options{Config: s.retry, Retryable: retry.Transient, Logger: s.logger, Name: s.name},
		func(int) (emotion.Distribution, int, error) {
			req, err := newReq()
			if err != nil {
				return nil, 0, err
			}
			resp, err := s.c.Do(req)
			if err != nil {
				return nil, 0, err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
				return nil, resp.StatusCode, fmt.Errorf("%s %s: %s", s.name, resp.Status, strings.TrimSpace(string(body)))
			}

			var out emoResp
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return nil, resp.StatusCode, fmt.Errorf("%s decode: %w", s.name, err)
			}
			d, err := emotion.FromScores(out.Emotions)
			if err != nil {
				return nil, resp.StatusCode, fmt.Errorf("%s: %w", s.name, err)
			}
			return d, resp.StatusCode, nil
		})
}

// TextService calls POST /detect with {"text": ...}.
type TextService struct{ service }

func NewTextService(baseURL string, timeout time.Duration, retries int, logger logrus.FieldLogger) *TextService {
	return &TextService{newService("text emotion", baseURL, timeout, retries, logger)}
}

func (t *TextService) Classify(ctx context.Context, text string) (emotion.Distribution, error) {
	payload, err := json.Marshal(emoReq{Text: text})
	if err != nil {
		return nil, err
	}
	return t.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/detect", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
}

// AudioService uploads a WAV to POST /classify-audio as form field "file".
type AudioService struct{ service }

func NewAudioService(baseURL string, timeout time.Duration, retries int, logger logrus.FieldLogger) *AudioService {
	return &AudioService{newService("audio emotion", baseURL, timeout, retries, logger)}
}

func (a *AudioService) Classify(ctx context.Context, wavPath string) (emotion.Distribution, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	fw, err := w.CreateFormFile("file", filepath.Base(wavPath))
	if err != nil {
		return nil, err
	}
	fd, err := os.Open(wavPath)
	if err != nil {
		return nil, err
	}
	defer fd.Close()
	if _, err = io.Copy(fw, fd); err != nil {
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}
	body := b.Bytes()
	contentType := w.FormDataContentType()

	return a.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/classify-audio", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
}
