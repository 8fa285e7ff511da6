package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/amishk599/jobradar/internal/model"
	"github.com/amishk599/jobradar/internal/retry"
)

var _ model.Notifier = (*DiscordNotifier)(nil)

// discordColor is the embed accent colour (#58B9FF).
const discordColor = 5814783

// DiscordNotifier posts job alerts to a Discord channel webhook as embeds.
type DiscordNotifier struct {
	webhookURL string
	client     *resty.Client
	logger     *slog.Logger
}

// NewDiscordNotifier returns a notifier that posts each job to a Discord webhook.
func NewDiscordNotifier(webhookURL string, httpClient *http.Client, logger *slog.Logger) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: webhookURL,
		client:     resty.NewWithClient(httpClient),
		logger:     logger,
	}
}

type discordPayload struct {
	Content string         `json:"content"`
	Embeds  []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	URL         string         `json:"url,omitempty"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Notify posts one embed. A 429 is retried once after the advertised
// delay; every other failure wraps model.ErrDeliveryUnavailable.
func (d *DiscordNotifier) Notify(ctx context.Context, j model.CanonicalJob) error {
	payload := buildDiscordPayload(j)

	resp, err := d.post(ctx, payload)
	if err != nil {
		return undelivered("discord", err)
	}
	retried := false
	if resp.StatusCode() == http.StatusTooManyRequests {
		wait := discordRetryAfter(resp)
		d.logger.Warn("discord rate limited, retrying", "job_id", j.ID, "retry_after", wait)
		if err := waitRetryAfter(ctx, wait); err != nil {
			return undelivered("discord", err)
		}
		if resp, err = d.post(ctx, payload); err != nil {
			return undelivered("discord", fmt.Errorf("retry: %w", err))
		}
		retried = true
	}
	if !resp.IsSuccess() {
		return undelivered("discord", &model.HTTPError{
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("discord returned %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String())),
		})
	}

	d.logger.Info("discord message sent", "job_id", j.ID, "company", j.Company, "title", j.Title, "retried", retried)
	return nil
}

func (d *DiscordNotifier) post(ctx context.Context, payload discordPayload) (*resty.Response, error) {
	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(d.webhookURL)
	if err != nil {
		return nil, fmt.Errorf("post to discord: %w", err)
	}
	return resp, nil
}

// discordRetryAfter prefers the Retry-After header and falls back to the
// retry_after seconds Discord puts in the 429 body.
func discordRetryAfter(resp *resty.Response) time.Duration {
	if d := retry.ParseRetryAfter(resp.Header().Get("Retry-After")); d > 0 {
		return d
	}
	secs := gjson.Get(resp.String(), "retry_after").Float()
	return time.Duration(secs * float64(time.Second))
}

func buildDiscordPayload(j model.CanonicalJob) discordPayload {
	desc := "📍 **Location:** " + locationText(j) + "\n🔗 [Apply Here](" + j.URL + ")"
	if j.WhyMe != "" {
		desc += "\n\n**Why you:**\n" + j.WhyMe
	}
	return discordPayload{
		Content: "🎯 **New " + j.Title + " Role Found!**",
		Embeds: []discordEmbed{{
			Title:       j.Company + " is hiring!",
			URL:         j.URL,
			Description: desc,
			Color:       discordColor,
			Fields: []discordField{
				{Name: "Salary", Value: salaryText(j), Inline: true},
				{Name: "Fit score", Value: scoreText(j), Inline: true},
				{Name: "Posted", Value: postedText(j), Inline: true},
				{Name: "Seen on", Value: strings.Join(j.MergedSources, ", ")},
			},
		}},
	}
}
