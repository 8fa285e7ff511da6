// Package dedup decides whether a normalized posting describes a role that
// is already known, first by exact fingerprint and then by fuzzy matching.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/amishk599/jobradar/internal/model"
	"github.com/amishk599/jobradar/internal/normalize"
)

const (
	// DefaultThreshold is the similarity a fuzzy match must exceed.
	DefaultThreshold = 0.90
	// DefaultAmbiguityMargin widens the threshold: scores in
	// (threshold, threshold+margin] are too close to call and stay distinct.
	DefaultAmbiguityMargin = 0.02
)

// Key returns the exact-match fingerprint of a posting from its normalized
// title, company and location (or normalize.RemoteMarker).
func Key(title, company, location string) string {
	sum := sha256.Sum256([]byte(title + "|" + company + "|" + location))
	return hex.EncodeToString(sum[:])
}

// KeyOf is Key applied to a normalized job.
func KeyOf(job model.NormalizedJob) string {
	return Key(job.NormalizedTitle, job.NormalizedCompany, job.NormalizedLocation)
}

// Lookup is the read side of the job store the deduplicator needs. Both the
// persistent stores and Index implement it.
type Lookup interface {
	FindByDedupKey(ctx context.Context, key string) (model.CanonicalJob, error)
	FindCandidatesForFuzzyMatch(ctx context.Context, title, company string) ([]model.CanonicalJob, error)
}

// Decision is the outcome for one posting.
type Decision struct {
	Key        string
	Match      bool
	Exact      bool
	Target     model.CanonicalJob // set when Match
	Similarity float64
}

// Deduplicator applies the matching policy. It holds no state between calls.
type Deduplicator struct {
	threshold float64
	margin    float64
}

// New creates a Deduplicator. Non-positive values fall back to the defaults.
func New(threshold, margin float64) *Deduplicator {
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultThreshold
	}
	if margin < 0 {
		margin = DefaultAmbiguityMargin
	}
	return &Deduplicator{threshold: threshold, margin: margin}
}

// Decide reports whether job matches an existing canonical job in lookup.
// Only lookup errors other than model.ErrNotFound are returned.
func (d *Deduplicator) Decide(ctx context.Context, lookup Lookup, job model.NormalizedJob) (Decision, error) {
	key := KeyOf(job)
	dec := Decision{Key: key}

	existing, err := lookup.FindByDedupKey(ctx, key)
	switch {
	case err == nil:
		dec.Match, dec.Exact, dec.Target, dec.Similarity = true, true, existing, 1
		return dec, nil
	case !errors.Is(err, model.ErrNotFound):
		return dec, fmt.Errorf("dedup: find by key: %w", err)
	}

	candidates, err := lookup.FindCandidatesForFuzzyMatch(ctx, job.NormalizedTitle, job.NormalizedCompany)
	if err != nil {
		return dec, fmt.Errorf("dedup: find candidates: %w", err)
	}

	var best *model.CanonicalJob
	var bestSim float64
	for i := range candidates {
		c := &candidates[i]
		// Title fuzziness never merges across companies.
		if c.NormalizedCompany != job.NormalizedCompany {
			continue
		}
		if !locationsCompatible(job.NormalizedLocation, c.NormalizedLocation) {
			continue
		}
		// Companies are equal here, so only titles are compared.
		if levelsDiffer(job.NormalizedTitle, c.NormalizedTitle) {
			continue
		}
		sim := Similarity(job.NormalizedTitle, c.NormalizedTitle)
		if sim <= d.threshold+d.margin {
			continue
		}
		if best == nil || better(sim, c, bestSim, best) {
			best, bestSim = c, sim
		}
	}
	if best != nil {
		dec.Match, dec.Target, dec.Similarity = true, *best, bestSim
	}
	return dec, nil
}

// better orders candidates: higher similarity, then earlier first sighting,
// then lower ID so the choice is deterministic.
func better(sim float64, c *model.CanonicalJob, bestSim float64, best *model.CanonicalJob) bool {
	if sim != bestSim {
		return sim > bestSim
	}
	if !c.FirstSeenAt.Equal(best.FirstSeenAt) {
		return c.FirstSeenAt.Before(best.FirstSeenAt)
	}
	return c.ID < best.ID
}

// Similarity is the larger of the token-set (Jaccard) ratio and the
// normalized Levenshtein similarity of two normalized strings, in [0, 1].
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	return max(tokenSetRatio(a, b), editRatio(a, b))
}

func tokenSetRatio(a, b string) float64 {
	ta, tb := normalize.Tokens(a), normalize.Tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	set := make(map[string]bool, len(ta))
	for _, t := range ta {
		set[t] = true
	}
	inter := 0
	for _, t := range tb {
		if set[t] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

func editRatio(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 0
	}
	return 1 - float64(fuzzy.LevenshteinDistance(a, b))/float64(longest)
}

// levelTokens mark seniority or level. Titles that differ in one of these
// are different roles however close the rest of the text is.
var levelTokens = map[string]bool{
	"senior": true, "sr": true, "junior": true, "jr": true, "mid": true,
	"staff": true, "principal": true, "lead": true, "intern": true,
	"head": true, "distinguished": true, "associate": true, "entry": true,
	"i": true, "ii": true, "iii": true, "iv": true, "v": true,
}

// levelsDiffer reports whether a token present in only one title is a
// level word or contains a digit.
func levelsDiffer(a, b string) bool {
	ta, tb := tokenSet(a), tokenSet(b)
	isLevel := func(t string) bool {
		return levelTokens[t] || strings.ContainsAny(t, "0123456789")
	}
	for t := range ta {
		if !tb[t] && isLevel(t) {
			return true
		}
	}
	for t := range tb {
		if !ta[t] && isLevel(t) {
			return true
		}
	}
	return false
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range normalize.Tokens(s) {
		set[t] = true
	}
	return set
}

// locationsCompatible keeps two postings in different specific places apart.
// Unknown locations are compatible with anything; otherwise one location's
// words must contain the other's ("new york" and "new york ny").
func locationsCompatible(a, b string) bool {
	if a == "" || b == "" || a == b {
		return true
	}
	if a == normalize.RemoteMarker || b == normalize.RemoteMarker {
		return false
	}
	return containsWords(a, b) || containsWords(b, a)
}

func containsWords(outer, inner string) bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(outer) {
		words[w] = true
	}
	for _, w := range strings.Fields(inner) {
		if !words[w] {
			return false
		}
	}
	return true
}
