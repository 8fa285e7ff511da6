// Package pipeline runs one pass of the aggregator:
// fetch → normalize → dedup → score → notify.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/amishk599/jobradar/internal/dedup"
	"github.com/amishk599/jobradar/internal/model"
	"github.com/amishk599/jobradar/internal/normalize"
	"github.com/amishk599/jobradar/internal/salary"
)

// State is the stage a run is in. DONE and FAILED are terminal.
type State string

const (
	StateFetching    State = "FETCHING"
	StateNormalizing State = "NORMALIZING"
	StateDeduping    State = "DEDUPING"
	StateScoring     State = "SCORING"
	StateNotifying   State = "NOTIFYING"
	StateDone        State = "DONE"
	StateFailed      State = "FAILED"
)

// Components are the collaborators a Pipeline drives. Filter may be nil.
type Components struct {
	Sources      []model.Source
	Normalizer   *salary.Normalizer
	Filter       model.JobFilter
	Deduplicator *dedup.Deduplicator
	Store        model.JobStore
	Scorer       model.FitScorer
	Notifier     model.Notifier
}

// Options bound the work of one run.
type Options struct {
	SourceTimeout    time.Duration // per source fetch, 0 for none
	NotifyTimeout    time.Duration // per delivery, 0 for none
	MaxScoresPerRun  int           // 0 scores the whole backlog
	WriteConcurrency int           // parallel store writes, default 8
	ScoreWorkers     int           // jobs waiting on the scorer gate, default 4
}

// Pipeline is safe to Run repeatedly but not concurrently; every run reads
// a fresh snapshot from the store.
type Pipeline struct {
	c      Components
	opts   Options
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// New wires a Pipeline.
func New(c Components, opts Options, logger *slog.Logger) *Pipeline {
	if opts.WriteConcurrency <= 0 {
		opts.WriteConcurrency = 8
	}
	if opts.ScoreWorkers <= 0 {
		opts.ScoreWorkers = 4
	}
	if c.Normalizer == nil {
		c.Normalizer = salary.New(nil)
	}
	if c.Deduplicator == nil {
		c.Deduplicator = dedup.New(dedup.DefaultThreshold, dedup.DefaultAmbiguityMargin)
	}
	return &Pipeline{
		c:      c,
		opts:   opts,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// run carries the mutable state of one pass.
type run struct {
	*Pipeline
	logger  *slog.Logger
	mu      sync.Mutex
	summary Summary
}

// Run executes one pass. Per-source, per-job and per-delivery failures are
// recorded in the summary; only an unavailable store (or ctx ending) fails
// the run, in which case the returned error is non-nil and the summary
// state is FAILED.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	r := &run{Pipeline: p}
	r.summary.RunID = uuid.NewString()
	r.summary.StartedAt = p.now()
	r.logger = p.logger.With("run_id", r.summary.RunID)

	err := r.execute(ctx)

	r.summary.FinishedAt = p.now()
	if err != nil {
		r.summary.State = StateFailed
		r.summary.Err = err
		r.logger.Error("run failed", "error", err, "duration", r.summary.Duration())
		return r.summary, err
	}
	r.summary.State = StateDone
	r.logger.Info("run complete",
		"sources_ok", r.summary.SourcesOK,
		"sources_failed", r.summary.SourcesFailed,
		"fetched", r.summary.Fetched,
		"new", r.summary.New,
		"duplicate", r.summary.Duplicate,
		"scored", r.summary.Scored,
		"notified", r.summary.Notified,
		"duration", r.summary.Duration(),
	)
	return r.summary, nil
}

func (r *run) execute(ctx context.Context) error {
	r.enter(StateFetching)
	raw := r.fetch(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}

	r.enter(StateNormalizing)
	jobs := r.normalizeAll(raw)

	r.enter(StateDeduping)
	if err := r.dedupAndPersist(ctx, jobs); err != nil {
		return err
	}

	r.enter(StateScoring)
	if err := r.score(ctx); err != nil {
		return err
	}

	r.enter(StateNotifying)
	return r.notify(ctx)
}

func (r *run) enter(s State) {
	r.summary.State = s
	r.logger.Debug("pipeline stage", "state", s)
}

// fetch runs every source concurrently. Results keep source order so a run
// is deterministic for a given set of responses.
func (r *run) fetch(ctx context.Context) []model.RawJob {
	results := make([][]model.RawJob, len(r.c.Sources))
	r.summary.Sources = make([]SourceResult, len(r.c.Sources))

	var g errgroup.Group
	for i, src := range r.c.Sources {
		g.Go(func() error {
			start := r.now()
			jobs, err := r.fetchOne(ctx, src)
			res := SourceResult{Name: src.Name(), Jobs: len(jobs), Duration: r.now().Sub(start), Err: err}
			if err != nil {
				r.logger.Warn("source failed", "source", src.Name(), "error", err)
			} else {
				r.logger.Debug("source fetched", "source", src.Name(), "jobs", len(jobs))
				results[i] = jobs
			}
			r.summary.Sources[i] = res
			return nil
		})
	}
	g.Wait()

	var all []model.RawJob
	for i, res := range r.summary.Sources {
		if res.Err != nil {
			r.summary.SourcesFailed++
			continue
		}
		r.summary.SourcesOK++
		all = append(all, results[i]...)
	}
	r.summary.Fetched = len(all)
	return all
}

// fetchOne applies the source timeout and makes sure every failure carries
// one of the two source error kinds.
func (r *run) fetchOne(ctx context.Context, src model.Source) ([]model.RawJob, error) {
	if r.opts.SourceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.SourceTimeout)
		defer cancel()
	}
	jobs, err := src.FetchJobs(ctx)
	if err == nil {
		return jobs, nil
	}
	if errors.Is(err, model.ErrSourceUnavailable) || errors.Is(err, model.ErrSourceFormatChanged) {
		return nil, err
	}
	return nil, model.NewSourceUnavailable(src.Name(), err)
}

func (r *run) normalizeAll(raw []model.RawJob) []model.NormalizedJob {
	out := make([]model.NormalizedJob, 0, len(raw))
	for _, rj := range raw {
		nj := r.normalizeOne(rj)
		if nj.NormalizedTitle == "" || nj.NormalizedCompany == "" {
			r.logger.Debug("dropping posting without title or company", "source", rj.Source, "external_id", rj.ExternalID)
			r.summary.Filtered++
			continue
		}
		if r.c.Filter != nil && !r.c.Filter.Match(nj) {
			r.summary.Filtered++
			continue
		}
		out = append(out, nj)
	}
	return out
}

func (r *run) normalizeOne(rj model.RawJob) model.NormalizedJob {
	nj := model.NormalizedJob{RawJob: rj}
	nj.NormalizedTitle = normalize.Title(rj.Title)
	nj.NormalizedCompany = normalize.Company(rj.Company)
	nj.NormalizedLocation = normalize.Location(rj.Location, rj.Remote)
	nj.Remote = rj.Remote || nj.NormalizedLocation == normalize.RemoteMarker

	sal := r.c.Normalizer.Normalize(rj.Compensation, rj.Description)
	nj.SalaryMinAnnualUSD = sal.MinAnnualUSD
	nj.SalaryMaxAnnualUSD = sal.MaxAnnualUSD
	nj.SalaryCurrencyOriginal = sal.CurrencyOriginal
	return nj
}

// dedupAndPersist decides every posting against one snapshot of the store
// plus what this run has already created, then writes each touched row
// exactly once.
func (r *run) dedupAndPersist(ctx context.Context, jobs []model.NormalizedJob) error {
	snapshot, err := r.c.Store.ListCanonical(ctx)
	if err != nil {
		return fmt.Errorf("loading canonical jobs: %w", err)
	}
	ix := dedup.NewIndex(snapshot)
	now := r.now()

	var touched []string
	dirty := make(map[string]bool)
	created := make(map[string]bool)

	for _, nj := range jobs {
		dec, err := r.c.Deduplicator.Decide(ctx, ix, nj)
		if err != nil {
			// The index never fails; a ctx error is the only way here.
			return err
		}

		var job model.CanonicalJob
		if dec.Match {
			job = dec.Target
			job.AddSource(nj.Source)
			if now.After(job.LastSeenAt) {
				job.LastSeenAt = now
			}
			r.summary.Duplicate++
			r.logger.Debug("duplicate posting", "source", nj.Source, "job_id", job.ID,
				"exact", dec.Exact, "similarity", dec.Similarity)
		} else {
			job = model.CanonicalJob{
				NormalizedJob:   nj,
				ID:              r.newID(),
				DedupKey:        dec.Key,
				FirstSeenSource: nj.Source,
				MergedSources:   []string{nj.Source},
				FirstSeenAt:     now,
				LastSeenAt:      now,
			}
			created[job.ID] = true
		}
		ix.Put(job)
		if !dirty[job.ID] {
			dirty[job.ID] = true
			touched = append(touched, job.ID)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.WriteConcurrency)
	for _, id := range touched {
		job, _ := ix.Get(id)
		g.Go(func() error {
			err := r.c.Store.UpsertCanonical(gctx, job)
			switch {
			case err == nil:
				if created[id] {
					r.mu.Lock()
					r.summary.New++
					r.mu.Unlock()
				}
				return nil
			case errors.Is(err, model.ErrStoreUnavailable):
				return fmt.Errorf("persisting job %s: %w", id, err)
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				// A duplicate key here means the dedup decision was wrong.
				r.logger.Error("persisting job", "job_id", id, "dedup_key", job.DedupKey, "error", err)
				r.recordError(fmt.Errorf("persisting job %s: %w", id, err))
				return nil
			}
		})
	}
	return g.Wait()
}

// score works through unscored jobs, oldest first, so a backlog left by
// earlier runs is drained before new postings. Failures leave the job
// unscored for the next run.
func (r *run) score(ctx context.Context) error {
	jobs, err := r.c.Store.ListUnscored(ctx, r.opts.MaxScoresPerRun)
	if err != nil {
		return fmt.Errorf("listing unscored jobs: %w", err)
	}
	if len(jobs) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.ScoreWorkers)
	for _, job := range jobs {
		g.Go(func() error {
			res, err := r.c.Scorer.Score(gctx, job)
			if errors.Is(err, model.ErrScoringDisabled) {
				r.mu.Lock()
				r.summary.Unscored++
				r.mu.Unlock()
				return nil
			}
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.logger.Warn("scoring abandoned", "job_id", job.ID, "title", job.Title, "error", err)
				r.mu.Lock()
				r.summary.Unscored++
				r.mu.Unlock()
				return nil
			}

			if err := r.c.Store.MarkScored(gctx, job.ID, res.Score, res.WhyMe); err != nil {
				if errors.Is(err, model.ErrStoreUnavailable) {
					return fmt.Errorf("saving score of %s: %w", job.ID, err)
				}
				r.recordError(fmt.Errorf("saving score of %s: %w", job.ID, err))
				return nil
			}
			r.logger.Info("job scored", "job_id", job.ID, "company", job.Company, "title", job.Title, "score", res.Score)
			r.mu.Lock()
			r.summary.Scored++
			if res.Score >= model.QualifyingScore {
				r.summary.Qualified++
			}
			r.mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// notify delivers every qualifying job not yet notified, including ones a
// previous run failed to deliver. A job is marked only after delivery.
func (r *run) notify(ctx context.Context) error {
	pending, err := r.c.Store.ListPendingNotification(ctx)
	if err != nil {
		return fmt.Errorf("listing pending notifications: %w", err)
	}

	for _, job := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.deliver(ctx, job); err != nil {
			r.logger.Warn("delivery failed, will retry next run", "job_id", job.ID, "error", err)
			r.summary.NotifyFailed++
			continue
		}
		if err := r.c.Store.MarkNotified(ctx, job.ID); err != nil {
			if errors.Is(err, model.ErrStoreUnavailable) {
				return fmt.Errorf("marking %s notified: %w", job.ID, err)
			}
			r.recordError(fmt.Errorf("marking %s notified: %w", job.ID, err))
			continue
		}
		r.summary.Notified++
	}
	return nil
}

func (r *run) deliver(ctx context.Context, job model.CanonicalJob) error {
	if r.opts.NotifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.NotifyTimeout)
		defer cancel()
	}
	return r.c.Notifier.Notify(ctx, job)
}

func (r *run) recordError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary.Errors = append(r.summary.Errors, err)
}
