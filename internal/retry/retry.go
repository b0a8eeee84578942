// Package retry runs remote calls with exponential backoff.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds the backoff schedule.
type Config struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

// DefaultConfig returns the schedule used for the analysis services.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      2,
		BaseDelay:       250 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		BackoffMultiple: 2.0,
	}
}

// Retryable reports whether a failed attempt should be tried again. statusCode
// is 0 when the request never got a response.
type Retryable func(err error, statusCode int) bool

// Options configures a single Do call.
type Options struct {
	Config    Config
	Retryable Retryable
	Logger    logrus.FieldLogger
	Name      string
}

func (c Config) delay(attempt int) time.Duration {
	mult := c.BackoffMultiple
	if mult <= 0 {
		mult = 1
	}
	d := time.Duration(float64(c.BaseDelay) * math.Pow(mult, float64(attempt)))
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// Do calls fn until it succeeds, returns a non-retryable error, or the retry
// budget runs out. fn is always called at least once, even with a negative
// MaxRetries. The last error is returned unchanged.
func Do[T any](ctx context.Context, opts Options, fn func(attempt int) (T, int, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := max(opts.Config.MaxRetries, 0) + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			d := opts.Config.delay(attempt - 1)
			if opts.Logger != nil {
				opts.Logger.WithFields(logrus.Fields{
					"service": opts.Name,
					"attempt": attempt + 1,
					"of":      attempts,
					"delay":   d,
				}).Debug("Retrying request")
			}
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(d):
			}
		}

		result, status, err := fn(attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, err
		}
		if opts.Retryable == nil || !opts.Retryable(err, status) {
			return zero, err
		}
		if opts.Logger != nil {
			opts.Logger.WithFields(logrus.Fields{
				"service": opts.Name,
				"attempt": attempt + 1,
				"status":  status,
			}).WithError(err).Debug("Retryable error")
		}
	}
	return zero, lastErr
}

// Transient retries network failures (no status) and 5xx/429 responses.
func Transient(err error, statusCode int) bool {
	if statusCode == 0 {
		return err != nil
	}
	return statusCode >= 500 || statusCode == 429
}
