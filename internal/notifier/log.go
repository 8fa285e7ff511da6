package notifier

import (
	"context"
	"log/slog"

	"github.com/amishk599/jobradar/internal/model"
)

var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes qualifying jobs to the given logger as structured messages.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs each job via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the job. Logging does not fail.
func (n *LogNotifier) Notify(_ context.Context, j model.CanonicalJob) error {
	args := []any{
		"job_id", j.ID,
		"company", j.Company,
		"title", j.Title,
		"location", locationText(j),
		"salary", salaryText(j),
		"score", scoreText(j),
		"sources", j.MergedSources,
		"url", j.URL,
	}
	if j.WhyMe != "" {
		args = append(args, "why_me", j.WhyMe)
	}
	n.logger.Info("qualifying job", args...)
	return nil
}
