package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/amishk599/jobradar/internal/model"
	"github.com/amishk599/jobradar/internal/retry"
)

var _ model.Notifier = (*SlackNotifier)(nil)

// slackHeaderLimit is Slack's maximum for plain_text header blocks.
const slackHeaderLimit = 150

// SlackNotifier sends job alerts to a Slack channel via Incoming Webhooks.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSlackNotifier returns a notifier that posts each job to Slack via webhook.
func NewSlackNotifier(webhookURL string, httpClient *http.Client, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Notify posts one Block Kit message. A 429 is retried once after
// Retry-After; every other failure wraps model.ErrDeliveryUnavailable.
func (s *SlackNotifier) Notify(ctx context.Context, j model.CanonicalJob) error {
	body, err := json.Marshal(buildPayload(j))
	if err != nil {
		return undelivered("slack", fmt.Errorf("marshal slack payload: %w", err))
	}

	status, retryAfter, err := s.post(ctx, body)
	if err != nil {
		return undelivered("slack", err)
	}
	retried := false
	if status == http.StatusTooManyRequests {
		s.logger.Warn("slack rate limited, retrying", "job_id", j.ID, "retry_after", retryAfter)
		if err := waitRetryAfter(ctx, retryAfter); err != nil {
			return undelivered("slack", err)
		}
		if status, _, err = s.post(ctx, body); err != nil {
			return undelivered("slack", fmt.Errorf("retry: %w", err))
		}
		retried = true
	}
	if status != http.StatusOK {
		return undelivered("slack", &model.HTTPError{StatusCode: status, Err: fmt.Errorf("slack returned %d", status)})
	}

	s.logger.Info("slack message sent", "job_id", j.ID, "company", j.Company, "title", j.Title, "retried", retried)
	return nil
}

func (s *SlackNotifier) post(ctx context.Context, body []byte) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("post to slack: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, retry.ParseRetryAfter(resp.Header.Get("Retry-After")), nil
}

// Block Kit payload types.

type slackPayload struct {
	Text   string       `json:"text"` // notification fallback
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string         `json:"type"`
	Text     *slackText     `json:"text,omitempty"`
	Fields   []slackText    `json:"fields,omitempty"`
	Elements []slackElement `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackElement struct {
	Type  string    `json:"type"`
	Text  slackText `json:"text"`
	URL   string    `json:"url"`
	Style string    `json:"style"`
}

func buildPayload(j model.CanonicalJob) slackPayload {
	header := "🎯 " + j.Company + ": " + j.Title
	if r := []rune(header); len(r) > slackHeaderLimit {
		header = string(r[:slackHeaderLimit-1]) + "…"
	}

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: header},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*Company:*\n" + j.Company},
				{Type: "mrkdwn", Text: "*Location:*\n" + locationText(j)},
				{Type: "mrkdwn", Text: "*Salary:*\n" + salaryText(j)},
				{Type: "mrkdwn", Text: "*Fit score:*\n" + scoreText(j)},
			},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*Posted:*\n" + postedText(j)},
				{Type: "mrkdwn", Text: "*Seen on:*\n" + strings.Join(j.MergedSources, ", ")},
			},
		},
	}

	if j.WhyMe != "" {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: "*Why you:*\n" + j.WhyMe},
		})
	}

	blocks = append(blocks,
		slackBlock{
			Type: "actions",
			Elements: []slackElement{
				{
					Type:  "button",
					Text:  slackText{Type: "plain_text", Text: "Apply Now"},
					URL:   j.URL,
					Style: "primary",
				},
			},
		},
		slackBlock{Type: "divider"},
	)

	return slackPayload{Text: header, Blocks: blocks}
}
