package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/amishk599/jobradar/internal/model"
	"github.com/amishk599/jobradar/internal/normalize"
)

const gemBaseURL = "https://api.gem.com/job_board/v0"

type gemJob struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Location       gemLocation `json:"location"`
	AbsoluteURL    string      `json:"absolute_url"`
	FirstPublished string      `json:"first_published_at"`
	UpdatedAt      string      `json:"updated_at"`
	Content        string      `json:"content"`
	ContentPlain   string      `json:"content_plain"`
}

type gemLocation struct {
	Name string `json:"name"`
}

// GemAdapter fetches jobs from the Gem public job board API.
type GemAdapter struct {
	base
	opts       Options
	boardToken string
}

// NewGemAdapter creates a new adapter for a Gem job board.
func NewGemAdapter(opts Options, boardToken string, client *http.Client) *GemAdapter {
	return &GemAdapter{
		base:       base{name: opts.Name, client: client},
		opts:       opts,
		boardToken: boardToken,
	}
}

// FetchJobs retrieves all job posts from the Gem board.
func (a *GemAdapter) FetchJobs(ctx context.Context) ([]model.RawJob, error) {
	url := fmt.Sprintf("%s/%s/job_posts/", gemBaseURL, a.boardToken)

	var gemJobs []gemJob
	if err := a.getJSON(ctx, url, &gemJobs); err != nil {
		return nil, err
	}

	jobs := make([]model.RawJob, 0, len(gemJobs))
	for _, gj := range gemJobs {
		if gj.ID == "" || gj.Title == "" {
			return nil, a.formatChanged(errors.New("job post without id or title"))
		}

		desc := gj.ContentPlain
		if desc == "" && gj.Content != "" {
			desc = extractText(gj.Content)
		}

		job := model.RawJob{
			Source:       a.name,
			ExternalID:   gj.ID,
			Title:        gj.Title,
			Company:      a.opts.Company,
			Location:     gj.Location.Name,
			Remote:       normalize.IsRemote(gj.Location.Name),
			Description:  desc,
			URL:          gj.AbsoluteURL,
			Compensation: model.Compensation{Currency: a.opts.Currency},
		}
		job.PostedAt = parseTime(gj.FirstPublished, time.RFC3339)
		if job.PostedAt == nil {
			job.PostedAt = parseTime(gj.UpdatedAt, time.RFC3339)
		}

		jobs = append(jobs, job)
	}

	return truncate(jobs, a.opts.Limit), nil
}
