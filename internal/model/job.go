package model

import (
	"context"
	"slices"
	"time"
)

// Period is the pay period a compensation figure is quoted in.
type Period string

const (
	PeriodUnknown Period = ""
	PeriodHour    Period = "hour"
	PeriodMonth   Period = "month"
	PeriodYear    Period = "year"
)

// Compensation holds whatever pay information a source exposes. Structured
// fields and free text may both be set; the salary normalizer decides which
// one wins.
type Compensation struct {
	Text     string   // free-form text, e.g. "$120k - $150k a year"
	Min      *float64 // structured lower bound in Currency per Period
	Max      *float64 // structured upper bound in Currency per Period
	Currency string   // ISO code if known; also the default for text without a marker
	Period   Period
}

// RawJob is a posting exactly as one source adapter produced it.
type RawJob struct {
	Source       string // configured source name, e.g. "greenhouse-stripe"
	ExternalID   string // unique per source
	Title        string
	Company      string
	Location     string
	Remote       bool
	Compensation Compensation
	Description  string // plain text
	URL          string
	PostedAt     *time.Time // nullable (not all sources provide this)
}

// NormalizedJob is a RawJob with salary and text normalization applied.
// If either salary bound is set, both are, and min <= max.
type NormalizedJob struct {
	RawJob

	NormalizedTitle        string
	NormalizedCompany      string
	NormalizedLocation     string // "remote" for remote postings
	SalaryMinAnnualUSD     *int64
	SalaryMaxAnnualUSD     *int64
	SalaryCurrencyOriginal string
}

// CanonicalJob is the persisted, deduplicated record of one real-world role.
// The embedded NormalizedJob is the first sighting and never changes.
type CanonicalJob struct {
	NormalizedJob

	ID              string
	DedupKey        string
	FirstSeenSource string
	MergedSources   []string // sorted, includes FirstSeenSource
	FitScore        *int     // nil until scored
	WhyMe           string   // empty unless FitScore >= QualifyingScore
	Notified        bool
	FirstSeenAt     time.Time
	LastSeenAt      time.Time
}

// QualifyingScore is the minimum fit score that earns a why_me and an alert.
const QualifyingScore = 7

// Qualifies reports whether the job has been scored at or above QualifyingScore.
func (j CanonicalJob) Qualifies() bool {
	return j.FitScore != nil && *j.FitScore >= QualifyingScore
}

// AddSource merges source into MergedSources, keeping the slice sorted and
// free of duplicates. It reports whether the set changed.
func (j *CanonicalJob) AddSource(source string) bool {
	i, found := slices.BinarySearch(j.MergedSources, source)
	if found {
		return false
	}
	j.MergedSources = slices.Insert(j.MergedSources, i, source)
	return true
}

// FitResult is what the scorer returns for one job.
type FitResult struct {
	Score int
	WhyMe string // non-empty iff Score >= QualifyingScore
}

// Source fetches raw postings from one external source (API, feed, or page).
type Source interface {
	Name() string
	FetchJobs(ctx context.Context) ([]RawJob, error)
}

// JobStore owns all CanonicalJob state. Every method is atomic for the row it
// touches; infrastructure failures wrap ErrStoreUnavailable.
type JobStore interface {
	ListCanonical(ctx context.Context) ([]CanonicalJob, error)
	FindByDedupKey(ctx context.Context, key string) (CanonicalJob, error)
	FindCandidatesForFuzzyMatch(ctx context.Context, title, company string) ([]CanonicalJob, error)
	UpsertCanonical(ctx context.Context, job CanonicalJob) error
	MarkScored(ctx context.Context, id string, score int, whyMe string) error
	MarkNotified(ctx context.Context, id string) error
	ListUnscored(ctx context.Context, limit int) ([]CanonicalJob, error)
	ListPendingNotification(ctx context.Context) ([]CanonicalJob, error)
	Close() error
}

// FitScorer rates how well a posting fits the candidate profile.
type FitScorer interface {
	Score(ctx context.Context, job CanonicalJob) (FitResult, error)
}

// Notifier delivers one qualifying job to an alert channel.
type Notifier interface {
	Notify(ctx context.Context, job CanonicalJob) error
}

// JobFilter decides whether a normalized posting is worth keeping.
type JobFilter interface {
	Match(job NormalizedJob) bool
}
