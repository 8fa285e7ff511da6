package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amishk599/jobradar/internal/model"
)

// Policy controls Do.
type Policy struct {
	MaxAttempts int           // total attempts including the first, minimum 1
	BaseDelay   time.Duration // delay before the first retry, doubled each time
	// Retryable decides whether an error is worth another attempt.
	// Defaults to IsRetryable.
	Retryable func(error) bool
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// attempts run out. The last error is returned unchanged.
func Do[T any](ctx context.Context, p Policy, logger *slog.Logger, fn func(ctx context.Context) (T, error)) (T, error) {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}
	attempts := max(p.MaxAttempts, 1)

	var zero T
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := Backoff(attempt-1, p.BaseDelay, lastErr)
			logger.Warn("retrying after transient error",
				"attempt", attempt,
				"max_attempts", attempts,
				"delay", delay,
				"error", lastErr,
			)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-timer.C:
			}
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if !retryable(err) {
			return zero, err
		}
		lastErr = err
	}
	return zero, lastErr
}

// Backoff computes the delay before retry number n (1-based) with ±30%
// jitter. A Retry-After carried by an HTTPError takes precedence.
func Backoff(n int, base time.Duration, err error) time.Duration {
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}

	// Exponential: base * 2^(n-1)
	delay := base
	for i := 1; i < n; i++ {
		delay *= 2
	}

	jitter := float64(delay) * 0.3
	return time.Duration(float64(delay) + (rand.Float64()*2-1)*jitter)
}

// ParseRetryAfter parses a Retry-After header value in seconds (e.g. "120").
// Returns zero if absent or unparseable.
func ParseRetryAfter(value string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// IsRetryable returns true if the error represents a transient failure worth
// retrying: network errors, 429 and 5xx. Cancellation and format changes are
// never retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, model.ErrSourceFormatChanged) {
		return false
	}

	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}

	// Non-HTTP errors (network, DNS, etc.)
	return true
}

// RetrySource is a decorator that retries transient failures of the
// wrapped source with exponential backoff and jitter.
type RetrySource struct {
	inner  model.Source
	policy Policy
	logger *slog.Logger
}

// NewRetrySource wraps a Source with retry logic. maxRetries is the number
// of additional attempts after the first failure; baseDelay is the delay
// before the first retry, doubled on each subsequent one.
func NewRetrySource(inner model.Source, maxRetries int, baseDelay time.Duration, logger *slog.Logger) *RetrySource {
	return &RetrySource{
		inner:  inner,
		policy: Policy{MaxAttempts: maxRetries + 1, BaseDelay: baseDelay},
		logger: logger.With("source", inner.Name()),
	}
}

// Name returns the wrapped source's name.
func (s *RetrySource) Name() string { return s.inner.Name() }

// FetchJobs fetches from the wrapped source, retrying transient errors.
func (s *RetrySource) FetchJobs(ctx context.Context) ([]model.RawJob, error) {
	jobs, err := Do(ctx, s.policy, s.logger, s.inner.FetchJobs)
	if err != nil {
		var se *model.SourceError
		if !errors.As(err, &se) {
			err = model.NewSourceUnavailable(s.inner.Name(), err)
		}
		return nil, err
	}
	return jobs, nil
}
