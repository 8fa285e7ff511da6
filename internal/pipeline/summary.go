package pipeline

import (
	"errors"
	"time"

	"github.com/amishk599/jobradar/internal/model"
)

// SourceResult is the outcome of one source in one run.
type SourceResult struct {
	Name     string
	Jobs     int
	Duration time.Duration
	Err      error
}

// Kind names the failure class of a failed source.
func (s SourceResult) Kind() string {
	switch {
	case s.Err == nil:
		return ""
	case errors.Is(s.Err, model.ErrSourceFormatChanged):
		return "format changed"
	default:
		return "unavailable"
	}
}

// Summary reports what one run did. Partial failures show up here rather
// than failing the run.
type Summary struct {
	RunID      string
	State      State
	StartedAt  time.Time
	FinishedAt time.Time

	Sources       []SourceResult
	SourcesOK     int
	SourcesFailed int

	Fetched   int // postings returned by healthy sources
	Filtered  int // dropped before dedup
	New       int // canonical jobs created
	Duplicate int // postings merged into an existing job

	Scored    int
	Unscored  int // scoring abandoned or disabled; retried next run
	Qualified int // scored at or above model.QualifyingScore

	Notified     int
	NotifyFailed int

	Errors []error // per-job failures such as model.ErrDuplicateKey
	Err    error   // set when State is FAILED
}

// Duration is the wall time of the run.
func (s Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Failed reports whether the run ended in StateFailed.
func (s Summary) Failed() bool {
	return s.State == StateFailed
}
