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

const ashbyBaseURL = "https://api.ashbyhq.com/posting-api/job-board"

// ashbyJob represents a single job in the Ashby API response.
type ashbyJob struct {
	ID               string             `json:"id"`
	Title            string             `json:"title"`
	Location         string             `json:"location"`
	IsRemote         bool               `json:"isRemote"`
	JobURL           string             `json:"jobUrl"`
	PublishedAt      string             `json:"publishedAt"`
	IsListed         bool               `json:"isListed"`
	DescriptionPlain string             `json:"descriptionPlain"`
	Compensation     *ashbyCompensation `json:"compensation"`
}

type ashbyCompensation struct {
	CompensationTierSummary string `json:"compensationTierSummary"`
	ScrapeableSummary       string `json:"scrapeableCompensationSalarySummary"`
}

// ashbyResponse is the top-level Ashby job board API response.
type ashbyResponse struct {
	Jobs []ashbyJob `json:"jobs"`
}

// AshbyAdapter fetches jobs from the Ashby public job board API.
type AshbyAdapter struct {
	base
	opts       Options
	boardToken string
}

// NewAshbyAdapter creates a new adapter for an Ashby job board.
func NewAshbyAdapter(opts Options, boardToken string, client *http.Client) *AshbyAdapter {
	return &AshbyAdapter{
		base:       base{name: opts.Name, client: client},
		opts:       opts,
		boardToken: boardToken,
	}
}

// FetchJobs retrieves the listed jobs of the board, with compensation.
func (a *AshbyAdapter) FetchJobs(ctx context.Context) ([]model.RawJob, error) {
	url := fmt.Sprintf("%s/%s?includeCompensation=true", ashbyBaseURL, a.boardToken)

	var ashbyResp ashbyResponse
	if err := a.getJSON(ctx, url, &ashbyResp); err != nil {
		return nil, err
	}

	jobs := make([]model.RawJob, 0, len(ashbyResp.Jobs))
	for _, aj := range ashbyResp.Jobs {
		if !aj.IsListed {
			continue
		}
		if aj.JobURL == "" || aj.Title == "" {
			return nil, a.formatChanged(errors.New("job without url or title"))
		}

		id := aj.ID
		if id == "" {
			id = aj.JobURL
		}
		job := model.RawJob{
			Source:       a.name,
			ExternalID:   id,
			Title:        aj.Title,
			Company:      a.opts.Company,
			Location:     aj.Location,
			Remote:       aj.IsRemote || normalize.IsRemote(aj.Location),
			Description:  aj.DescriptionPlain,
			URL:          aj.JobURL,
			PostedAt:     parseTime(aj.PublishedAt, time.RFC3339Nano, time.RFC3339),
			Compensation: model.Compensation{Currency: a.opts.Currency},
		}
		if c := aj.Compensation; c != nil {
			job.Compensation.Text = c.ScrapeableSummary
			if job.Compensation.Text == "" {
				job.Compensation.Text = c.CompensationTierSummary
			}
		}

		jobs = append(jobs, job)
	}

	return truncate(jobs, a.opts.Limit), nil
}
