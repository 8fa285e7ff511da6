package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/amishk599/jobradar/internal/model"
)

// LLMProvider sends a prompt to an LLM and returns the raw text response.
// Used only by Scorer; not exported to the rest of the system.
type LLMProvider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ErrInvalidResponse marks a model reply that breaks the fit contract.
// Asking again is not expected to help, so it is never retried.
var ErrInvalidResponse = errors.New("invalid model response")

// statusError maps a provider HTTP status to the error taxonomy: 429
// becomes ErrRateLimitExceeded, everything else keeps its status so the
// retry policy can tell 5xx from 4xx.
func statusError(provider string, status int, retryAfter time.Duration, detail string) error {
	err := fmt.Errorf("%s returned HTTP %d: %s", provider, status, detail)
	if status == http.StatusTooManyRequests {
		err = fmt.Errorf("%w: %w", model.ErrRateLimitExceeded, err)
	}
	return &model.HTTPError{StatusCode: status, RetryAfter: retryAfter, Err: err}
}
