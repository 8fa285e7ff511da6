package report

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/amishk599/jobradar/internal/model"
)

// JobsOptions narrows what Jobs lists.
type JobsOptions struct {
	MinScore int // 0 lists unscored jobs too
	Limit    int // 0 for no cap
}

// Jobs writes a table of stored jobs, best fit first.
func Jobs(w io.Writer, jobs []model.CanonicalJob, opts JobsOptions) error {
	jobs = selectJobs(jobs, opts)
	if len(jobs) == 0 {
		_, err := fmt.Fprintln(w, mutedStyle.Render("No jobs stored yet."))
		return err
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("39"))).
		Headers("Score", "Company", "Title", "Location", "Sources", "First seen", "Alerted").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return titleStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	for _, j := range jobs {
		t.Row(
			scoreCell(j),
			j.Company,
			truncate(j.Title, 48),
			truncate(j.Location, 28),
			strconv.Itoa(len(j.MergedSources)),
			humanize.Time(j.FirstSeenAt),
			alertedCell(j),
		)
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// selectJobs filters by score and orders by score, then first sighting.
func selectJobs(jobs []model.CanonicalJob, opts JobsOptions) []model.CanonicalJob {
	var out []model.CanonicalJob
	for _, j := range jobs {
		if opts.MinScore > 0 && (j.FitScore == nil || *j.FitScore < opts.MinScore) {
			continue
		}
		out = append(out, j)
	}
	score := func(j model.CanonicalJob) int {
		if j.FitScore == nil {
			return -1
		}
		return *j.FitScore
	}
	slices.SortStableFunc(out, func(a, b model.CanonicalJob) int {
		return cmp.Compare(score(b), score(a))
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

func scoreCell(j model.CanonicalJob) string {
	switch {
	case j.FitScore == nil:
		return mutedStyle.Render("-")
	case j.Qualifies():
		return okStyle.Render(strconv.Itoa(*j.FitScore))
	default:
		return strconv.Itoa(*j.FitScore)
	}
}

func alertedCell(j model.CanonicalJob) string {
	if j.Notified {
		return okStyle.Render("yes")
	}
	if j.Qualifies() {
		return failStyle.Render("pending")
	}
	return mutedStyle.Render("no")
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
