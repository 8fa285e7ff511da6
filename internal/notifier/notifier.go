// Package notifier delivers qualifying jobs to an alert channel, one job per
// call. A failed delivery leaves the job pending for the next run.
package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/amishk599/jobradar/internal/config"
	"github.com/amishk599/jobradar/internal/model"
)

// New returns the notifier selected by cfg.Type.
func New(cfg config.NotificationConfig, client *http.Client, logger *slog.Logger) (model.Notifier, error) {
	switch cfg.Type {
	case "", "log":
		return NewLogNotifier(logger), nil
	case "slack":
		if cfg.WebhookURL == "" {
			return nil, fmt.Errorf("slack notifier needs notification.webhook_url")
		}
		return NewSlackNotifier(cfg.WebhookURL, client, logger), nil
	case "discord":
		if cfg.WebhookURL == "" {
			return nil, fmt.Errorf("discord notifier needs notification.webhook_url")
		}
		return NewDiscordNotifier(cfg.WebhookURL, client, logger), nil
	default:
		return nil, fmt.Errorf("unknown notification type %q", cfg.Type)
	}
}

// SendTestMessage sends a dummy job notification to verify the integration works.
func SendTestMessage(ctx context.Context, n model.Notifier) error {
	now := time.Now()
	score := 9
	lo, hi := int64(150000), int64(180000)

	var job model.CanonicalJob
	job.ID = "test-001"
	job.Source = "test"
	job.Company = "JobRadar Test"
	job.Title = "Test Notification - Integration Verified"
	job.Location = "Everywhere"
	job.URL = "https://example.com/jobs"
	job.PostedAt = &now
	job.SalaryMinAnnualUSD, job.SalaryMaxAnnualUSD = &lo, &hi
	job.FirstSeenSource = "test"
	job.MergedSources = []string{"test"}
	job.FitScore = &score
	job.WhyMe = "• Webhook reachable\n• Payload accepted\n• Formatting looks right"
	job.FirstSeenAt, job.LastSeenAt = now, now
	return n.Notify(ctx, job)
}

func undelivered(channel string, err error) error {
	return fmt.Errorf("%s: %w: %w", channel, model.ErrDeliveryUnavailable, err)
}

// salaryText renders the annual USD range, falling back to the posting's
// own text and then to "Not listed".
func salaryText(j model.CanonicalJob) string {
	switch {
	case j.SalaryMinAnnualUSD != nil && j.SalaryMaxAnnualUSD != nil:
		lo, hi := *j.SalaryMinAnnualUSD, *j.SalaryMaxAnnualUSD
		if lo == hi {
			return "$" + humanize.Comma(lo) + "/yr"
		}
		return "$" + humanize.Comma(lo) + " - $" + humanize.Comma(hi) + "/yr"
	case j.Compensation.Text != "":
		return j.Compensation.Text
	}
	return "Not listed"
}

func scoreText(j model.CanonicalJob) string {
	if j.FitScore == nil {
		return "unscored"
	}
	return fmt.Sprintf("%d/10", *j.FitScore)
}

func postedText(j model.CanonicalJob) string {
	if j.PostedAt == nil {
		return "Just detected"
	}
	return humanize.Time(*j.PostedAt)
}

func locationText(j model.CanonicalJob) string {
	switch {
	case j.Location != "" && j.Remote && !strings.Contains(strings.ToLower(j.Location), "remote"):
		return j.Location + " (remote)"
	case j.Location != "":
		return j.Location
	case j.Remote:
		return "Remote"
	}
	return "Unspecified"
}

// waitRetryAfter sleeps for d (at least one second) unless ctx ends first.
func waitRetryAfter(ctx context.Context, d time.Duration) error {
	if d < time.Second {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
