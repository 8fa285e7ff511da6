// Package filter drops postings that are not worth scoring: wrong title,
// wrong place, or advertised pay below the floor.
package filter

import (
	"strings"

	"github.com/amishk599/jobradar/internal/config"
	"github.com/amishk599/jobradar/internal/model"
	"github.com/amishk599/jobradar/internal/normalize"
)

var _ model.JobFilter = (*Filter)(nil)

// Filter matches on normalized title and location keywords plus a minimum
// annual USD salary. Empty keyword lists match everything.
type Filter struct {
	titleKeywords []string
	titleExclude  []string
	locations     []string
	excludeLocs   []string
	minSalaryUSD  int64
}

// New builds a Filter from the filters config section.
func New(cfg config.FilterConfig) *Filter {
	return &Filter{
		titleKeywords: normalizeAll(cfg.TitleKeywords),
		titleExclude:  normalizeAll(cfg.TitleExcludeKeywords),
		locations:     normalizeAll(cfg.Locations),
		excludeLocs:   normalizeAll(cfg.ExcludeLocations),
		minSalaryUSD:  cfg.MinSalaryUSD,
	}
}

// Match reports whether job passes every configured rule. A job with no
// known annual USD salary is never dropped for pay.
func (f *Filter) Match(job model.NormalizedJob) bool {
	title := job.NormalizedTitle
	if title == "" {
		title = normalize.Title(job.Title)
	}
	if len(f.titleKeywords) > 0 && !containsAny(title, f.titleKeywords) {
		return false
	}
	if containsAny(title, f.titleExclude) {
		return false
	}

	// Match the raw location too so "Austin, TX (Remote)" hits both
	// "austin" and "remote".
	location := normalize.Text(job.Location) + " " + job.NormalizedLocation
	if len(f.locations) > 0 && !containsAny(location, f.locations) {
		return false
	}
	if containsAny(location, f.excludeLocs) {
		return false
	}

	if f.minSalaryUSD > 0 && job.SalaryMaxAnnualUSD != nil && *job.SalaryMaxAnnualUSD < f.minSalaryUSD {
		return false
	}
	return true
}

// containsAny matches whole words so "go" does not hit "google".
func containsAny(text string, keywords []string) bool {
	padded := " " + text + " "
	for _, kw := range keywords {
		if strings.Contains(padded, " "+kw+" ") {
			return true
		}
	}
	return false
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if n := normalize.Text(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}
