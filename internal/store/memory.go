package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/amishk599/jobradar/internal/dedup"
	"github.com/amishk599/jobradar/internal/model"
)

// MemoryStore is an in-process JobStore used by dry runs and tests. Nothing
// survives the process, so every posting looks new on each run.
type MemoryStore struct {
	mu    sync.Mutex
	jobs  map[string]model.CanonicalJob
	byKey map[string]string // dedup_key -> id
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:  make(map[string]model.CanonicalJob),
		byKey: make(map[string]string),
	}
}

func (s *MemoryStore) ListCanonical(context.Context) ([]model.CanonicalJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(model.CanonicalJob) bool { return true }), nil
}

func (s *MemoryStore) FindByDedupKey(_ context.Context, key string) (model.CanonicalJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[key]
	if !ok {
		return model.CanonicalJob{}, model.ErrNotFound
	}
	return clone(s.jobs[id]), nil
}

func (s *MemoryStore) FindCandidatesForFuzzyMatch(_ context.Context, title, company string) ([]model.CanonicalJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(j model.CanonicalJob) bool {
		return j.NormalizedCompany == company && dedup.SharesToken(title, j.NormalizedTitle)
	}), nil
}

func (s *MemoryStore) UpsertCanonical(_ context.Context, job model.CanonicalJob) error {
	if err := validate(job); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[job.ID]; ok {
		existing.MergedSources = unionSources(existing.MergedSources, job.MergedSources)
		if job.LastSeenAt.After(existing.LastSeenAt) {
			existing.LastSeenAt = job.LastSeenAt
		}
		s.jobs[job.ID] = existing
		return nil
	}
	if _, taken := s.byKey[job.DedupKey]; taken {
		return fmt.Errorf("inserting job %s: %w", job.ID, model.ErrDuplicateKey)
	}

	job = clone(job)
	job.MergedSources = unionSources(job.MergedSources, []string{job.FirstSeenSource})
	s.jobs[job.ID] = job
	s.byKey[job.DedupKey] = job.ID
	return nil
}

func (s *MemoryStore) MarkScored(_ context.Context, id string, score int, whyMe string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, model.ErrNotFound)
	}
	job.FitScore = &score
	job.WhyMe = whyMe
	s.jobs[id] = job
	return nil
}

func (s *MemoryStore) MarkNotified(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, model.ErrNotFound)
	}
	job.Notified = true
	s.jobs[id] = job
	return nil
}

func (s *MemoryStore) ListUnscored(_ context.Context, limit int) ([]model.CanonicalJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := s.sorted(func(j model.CanonicalJob) bool { return j.FitScore == nil })
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (s *MemoryStore) ListPendingNotification(context.Context) ([]model.CanonicalJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(j model.CanonicalJob) bool { return j.Qualifies() && !j.Notified }), nil
}

func (s *MemoryStore) Close() error { return nil }

// sorted returns copies of the matching jobs in first-seen order, the
// same order the SQL stores use. Callers hold mu.
func (s *MemoryStore) sorted(keep func(model.CanonicalJob) bool) []model.CanonicalJob {
	var out []model.CanonicalJob
	for _, j := range s.jobs {
		if keep(j) {
			out = append(out, clone(j))
		}
	}
	slices.SortFunc(out, func(a, b model.CanonicalJob) int {
		if c := a.FirstSeenAt.Compare(b.FirstSeenAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// clone detaches the slice and pointer fields so callers cannot mutate
// stored state.
func clone(j model.CanonicalJob) model.CanonicalJob {
	j.MergedSources = slices.Clone(j.MergedSources)
	if j.FitScore != nil {
		score := *j.FitScore
		j.FitScore = &score
	}
	return j
}
