package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSourceUnavailable covers network, auth, timeout and non-2xx failures of a source.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrSourceFormatChanged means the source answered with a shape we cannot parse.
	ErrSourceFormatChanged = errors.New("source format changed")
	// ErrRateLimitExceeded is returned when the scoring provider rejects a call for quota reasons.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrDeliveryUnavailable means an alert could not be delivered; the job stays pending.
	ErrDeliveryUnavailable = errors.New("delivery unavailable")
	// ErrDuplicateKey means a write would violate dedup_key uniqueness.
	ErrDuplicateKey = errors.New("duplicate dedup key")
	// ErrStoreUnavailable is fatal for a run.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNotFound is returned by lookups that match no row.
	ErrNotFound = errors.New("not found")
	// ErrScoringDisabled is returned by the no-op scorer.
	ErrScoringDisabled = errors.New("scoring disabled")
)

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// SourceError is the failure type of every source adapter. Kind is
// ErrSourceUnavailable or ErrSourceFormatChanged.
type SourceError struct {
	Source string
	Kind   error
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Source, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *SourceError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// NewSourceUnavailable wraps err as an ErrSourceUnavailable failure of source.
func NewSourceUnavailable(source string, err error) error {
	return &SourceError{Source: source, Kind: ErrSourceUnavailable, Err: err}
}

// NewSourceFormatChanged wraps err as an ErrSourceFormatChanged failure of source.
func NewSourceFormatChanged(source string, err error) error {
	return &SourceError{Source: source, Kind: ErrSourceFormatChanged, Err: err}
}
