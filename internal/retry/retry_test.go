package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func fastConfig(retries int) Config {
	return Config{MaxRetries: retries, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffMultiple: 2}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	calls := 0
	got, err := Do(context.Background(), Options{Config: fastConfig(3), Retryable: Transient, Logger: logger, Name: "svc"},
		func(attempt int) (string, int, error) {
			calls++
			if attempt < 2 {
				return "", 503, errors.New("busy")
			}
			return "ok", 200, nil
		})
	if err != nil || got != "ok" {
		t.Fatalf("Do = %q, %v", got, err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
	if len(hook.AllEntries()) == 0 {
		t.Error("Expected retry attempts to be logged")
	}
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	perm := errors.New("bad request")
	_, err := Do(context.Background(), Options{Config: fastConfig(3), Retryable: Transient},
		func(int) (int, int, error) {
			calls++
			return 0, 400, perm
		})
	if !errors.Is(err, perm) {
		t.Errorf("Expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestDo_ExhaustsBudget(t *testing.T) {
	calls := 0
	netErr := errors.New("connection refused")
	_, err := Do(context.Background(), Options{Config: fastConfig(2), Retryable: Transient},
		func(int) (int, int, error) {
			calls++
			return 0, 0, netErr
		})
	if !errors.Is(err, netErr) {
		t.Errorf("Expected last error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestDo_NegativeRetriesStillCallsOnce(t *testing.T) {
	calls := 0
	unavailable := errors.New("unavailable")
	_, err := Do(context.Background(), Options{Config: fastConfig(-1), Retryable: Transient},
		func(int) (string, int, error) {
			calls++
			return "", 503, unavailable
		})
	if !errors.Is(err, unavailable) {
		t.Errorf("Expected the call's error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour, BackoffMultiple: 1}
	_, err := Do(ctx, Options{Config: cfg, Retryable: Transient},
		func(int) (int, int, error) {
			cancel()
			return 0, 500, errors.New("boom")
		})
	if !errors.Is(err, context.Canceled) && err.Error() != "boom" {
		t.Errorf("Expected cancellation, got %v", err)
	}
}

func TestTransient(t *testing.T) {
	cases := []struct {
		err    error
		status int
		want   bool
	}{
		{errors.New("dial"), 0, true},
		{nil, 0, false},
		{errors.New("x"), 500, true},
		{errors.New("x"), 429, true},
		{errors.New("x"), 422, false},
		{errors.New("x"), 404, false},
	}
	for _, c := range cases {
		if got := Transient(c.err, c.status); got != c.want {
			t.Errorf("Transient(%v, %d) = %v, want %v", c.err, c.status, got, c.want)
		}
	}
}

func TestConfigDelayCapped(t *testing.T) {
	c := Config{BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, BackoffMultiple: 2}
	if d := c.delay(0); d != 100*time.Millisecond {
		t.Errorf("delay(0) = %v", d)
	}
	if d := c.delay(5); d != 300*time.Millisecond {
		t.Errorf("delay(5) = %v, want cap", d)
	}
}
