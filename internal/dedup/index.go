package dedup

import (
	"context"
	"strings"
	"sync"

	"github.com/amishk599/jobradar/internal/model"
	"github.com/amishk599/jobradar/internal/normalize"
)

// Index is an in-memory snapshot of the canonical jobs a run dedups
// against. It starts from the store's contents and grows as the run creates
// or merges jobs, so postings within the same run see each other.
type Index struct {
	mu        sync.RWMutex
	jobs      []model.CanonicalJob
	byKey     map[string]int
	byID      map[string]int
	byCompany map[string][]int
}

// NewIndex builds an Index from a store snapshot.
func NewIndex(jobs []model.CanonicalJob) *Index {
	ix := &Index{
		byKey:     make(map[string]int, len(jobs)),
		byID:      make(map[string]int, len(jobs)),
		byCompany: make(map[string][]int),
	}
	for _, j := range jobs {
		ix.put(j)
	}
	return ix
}

// Len returns the number of jobs in the index.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.jobs)
}

// Put adds a job or replaces the job with the same ID.
func (ix *Index) Put(job model.CanonicalJob) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.put(job)
}

func (ix *Index) put(job model.CanonicalJob) {
	if i, ok := ix.byID[job.ID]; ok {
		ix.jobs[i] = job
		return
	}
	i := len(ix.jobs)
	ix.jobs = append(ix.jobs, job)
	ix.byID[job.ID] = i
	ix.byKey[job.DedupKey] = i
	ix.byCompany[job.NormalizedCompany] = append(ix.byCompany[job.NormalizedCompany], i)
}

// Get returns the job with the given ID.
func (ix *Index) Get(id string) (model.CanonicalJob, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	i, ok := ix.byID[id]
	if !ok {
		return model.CanonicalJob{}, false
	}
	return ix.jobs[i], true
}

// FindByDedupKey implements Lookup.
func (ix *Index) FindByDedupKey(_ context.Context, key string) (model.CanonicalJob, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	i, ok := ix.byKey[key]
	if !ok {
		return model.CanonicalJob{}, model.ErrNotFound
	}
	return ix.jobs[i], nil
}

// FindCandidatesForFuzzyMatch implements Lookup: jobs at the same normalized
// company sharing at least one title word.
func (ix *Index) FindCandidatesForFuzzyMatch(_ context.Context, title, company string) ([]model.CanonicalJob, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var out []model.CanonicalJob
	for _, i := range ix.byCompany[company] {
		if SharesToken(title, ix.jobs[i].NormalizedTitle) {
			out = append(out, ix.jobs[i])
		}
	}
	return out, nil
}

// SharesToken reports whether two normalized titles have a word in common.
// Stores use it to narrow fuzzy-match candidates.
func SharesToken(a, b string) bool {
	words := normalize.Tokens(a)
	padded := " " + b + " "
	for _, w := range words {
		if strings.Contains(padded, " "+w+" ") {
			return true
		}
	}
	return false
}
