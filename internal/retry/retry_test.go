package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/amishk599/jobradar/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockSource calls a function on each invocation, tracking call count.
type mockSource struct {
	calls int
	fn    func(attempt int) ([]model.RawJob, error)
}

func (m *mockSource) Name() string { return "mock" }

func (m *mockSource) FetchJobs(_ context.Context) ([]model.RawJob, error) {
	m.calls++
	return m.fn(m.calls)
}

func TestRetry_SucceedsOnFirstAttempt(t *testing.T) {
	jobs := []model.RawJob{{ExternalID: "1", Title: "Engineer"}}
	mock := &mockSource{fn: func(_ int) ([]model.RawJob, error) {
		return jobs, nil
	}}

	rs := NewRetrySource(mock, 2, 10*time.Millisecond, discardLogger())
	got, err := rs.FetchJobs(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ExternalID != "1" {
		t.Fatalf("unexpected jobs: %v", got)
	}
	if mock.calls != 1 {
		t.Fatalf("expected 1 call, got %d", mock.calls)
	}
}

func TestRetry_RetriesOn5xx_SucceedsOnSecondAttempt(t *testing.T) {
	mock := &mockSource{fn: func(attempt int) ([]model.RawJob, error) {
		if attempt == 1 {
			return nil, model.NewSourceUnavailable("mock", &model.HTTPError{StatusCode: 503})
		}
		return []model.RawJob{{ExternalID: "1"}}, nil
	}}

	rs := NewRetrySource(mock, 2, 10*time.Millisecond, discardLogger())
	got, err := rs.FetchJobs(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 job, got %d", len(got))
	}
	if mock.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", mock.calls)
	}
}

func TestRetry_DoesNotRetryOn4xx(t *testing.T) {
	mock := &mockSource{fn: func(_ int) ([]model.RawJob, error) {
		return nil, model.NewSourceUnavailable("mock", &model.HTTPError{StatusCode: 404})
	}}

	rs := NewRetrySource(mock, 2, 10*time.Millisecond, discardLogger())
	_, err := rs.FetchJobs(context.Background())
	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != 404 {
		t.Fatalf("expected HTTPError with status 404, got %v", err)
	}
	if mock.calls != 1 {
		t.Fatalf("expected 1 call (no retry), got %d", mock.calls)
	}
}

func TestRetry_DoesNotRetryFormatChange(t *testing.T) {
	mock := &mockSource{fn: func(_ int) ([]model.RawJob, error) {
		return nil, model.NewSourceFormatChanged("mock", errors.New("unexpected field type"))
	}}

	rs := NewRetrySource(mock, 2, 10*time.Millisecond, discardLogger())
	_, err := rs.FetchJobs(context.Background())
	if !errors.Is(err, model.ErrSourceFormatChanged) {
		t.Fatalf("expected ErrSourceFormatChanged, got %v", err)
	}
	if mock.calls != 1 {
		t.Fatalf("expected 1 call, got %d", mock.calls)
	}
}

func TestRetry_GivesUpAfterMaxRetries(t *testing.T) {
	mock := &mockSource{fn: func(_ int) ([]model.RawJob, error) {
		return nil, &model.HTTPError{StatusCode: 500}
	}}

	rs := NewRetrySource(mock, 2, 10*time.Millisecond, discardLogger())
	_, err := rs.FetchJobs(context.Background())
	if !errors.Is(err, model.ErrSourceUnavailable) {
		t.Fatalf("expected plain errors to be wrapped as ErrSourceUnavailable, got %v", err)
	}
	// 1 initial + 2 retries = 3
	if mock.calls != 3 {
		t.Fatalf("expected 3 calls (1 + 2 retries), got %d", mock.calls)
	}
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	mock := &mockSource{fn: func(_ int) ([]model.RawJob, error) {
		return nil, &model.HTTPError{StatusCode: 500}
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rs := NewRetrySource(mock, 2, time.Second, discardLogger())
	_, err := rs.FetchJobs(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if mock.calls != 1 {
		t.Fatalf("expected 1 call before cancellation, got %d", mock.calls)
	}
}

func TestDo_CustomRetryable(t *testing.T) {
	calls := 0
	policy := Policy{
		MaxAttempts: 4,
		BaseDelay:   time.Millisecond,
		Retryable:   func(err error) bool { return errors.Is(err, model.ErrRateLimitExceeded) },
	}

	_, err := Do(context.Background(), policy, discardLogger(), func(context.Context) (int, error) {
		calls++
		return 0, fmt.Errorf("provider: %w", model.ErrRateLimitExceeded)
	})
	if !errors.Is(err, model.ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 4 attempts, got %d", calls)
	}
}

func TestBackoff(t *testing.T) {
	t.Run("retry-after wins", func(t *testing.T) {
		err := fmt.Errorf("x: %w", &model.HTTPError{StatusCode: 429, RetryAfter: 7 * time.Second})
		if got := Backoff(3, time.Second, err); got != 7*time.Second {
			t.Errorf("Backoff = %v, want 7s", got)
		}
	})

	t.Run("exponential with jitter", func(t *testing.T) {
		for n, base := range map[int]time.Duration{1: time.Second, 2: 2 * time.Second, 3: 4 * time.Second} {
			got := Backoff(n, time.Second, errors.New("boom"))
			lo, hi := time.Duration(float64(base)*0.7), time.Duration(float64(base)*1.3)
			if got < lo || got > hi {
				t.Errorf("Backoff(%d) = %v, want within [%v, %v]", n, got, lo, hi)
			}
		}
	})
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"429", &model.HTTPError{StatusCode: 429}, true},
		{"502", &model.HTTPError{StatusCode: 502}, true},
		{"401", &model.HTTPError{StatusCode: 401}, false},
		{"network", errors.New("connection reset"), true},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), false},
		{"format changed", model.NewSourceFormatChanged("x", errors.New("bad json")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
