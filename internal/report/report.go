// Package report renders a run summary for the terminal.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/amishk599/jobradar/internal/pipeline"
)

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")). // bright blue
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(14)

	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))  // green
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203")) // red
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	headerStyle = lipgloss.NewStyle().Bold(true).MarginTop(1)
)

// Render writes a boxed summary of s to w.
func Render(w io.Writer, s pipeline.Summary) error {
	_, err := fmt.Fprintln(w, boxStyle.Render(Text(s)))
	return err
}

// Text is the unboxed summary body.
func Text(s pipeline.Summary) string {
	var b strings.Builder

	state := okStyle.Render(string(s.State))
	if s.Failed() {
		state = failStyle.Render(string(s.State))
	}
	b.WriteString(titleStyle.Render("Run "+shortID(s.RunID)) + "  " + state + "  " +
		mutedStyle.Render(s.Duration().Round(time.Millisecond).String()) + "\n")

	row := func(label string, values ...string) {
		b.WriteString(labelStyle.Render(label) + strings.Join(values, mutedStyle.Render(" · ")) + "\n")
	}
	row("Sources", count(s.SourcesOK, "ok"), failCount(s.SourcesFailed, "failed"))
	row("Postings", count(s.Fetched, "fetched"), count(s.Filtered, "filtered"))
	row("Jobs", count(s.New, "new"), count(s.Duplicate, "duplicate"))
	row("Scoring", count(s.Scored, "scored"), count(s.Qualified, "qualified"), failCount(s.Unscored, "unscored"))
	row("Alerts", count(s.Notified, "sent"), failCount(s.NotifyFailed, "failed"))

	if s.SourcesFailed > 0 {
		b.WriteString(headerStyle.Render("Failed sources") + "\n")
		for _, src := range s.Sources {
			if src.Err == nil {
				continue
			}
			b.WriteString(failStyle.Render("✗ "+src.Name) + mutedStyle.Render(" ("+src.Kind()+") ") + src.Err.Error() + "\n")
		}
	}

	if len(s.Errors) > 0 {
		b.WriteString(headerStyle.Render("Errors") + "\n")
		for _, err := range s.Errors {
			b.WriteString(failStyle.Render("! ") + err.Error() + "\n")
		}
	}
	if s.Err != nil {
		b.WriteString(headerStyle.Render("Run failed") + "\n" + failStyle.Render(s.Err.Error()) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func count(n int, what string) string {
	return humanize.Comma(int64(n)) + " " + what
}

func failCount(n int, what string) string {
	if n == 0 {
		return mutedStyle.Render(count(n, what))
	}
	return failStyle.Render(count(n, what))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
