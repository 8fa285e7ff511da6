package adapter

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/amishk599/jobradar/internal/model"
)

const remotiveURL = "https://remotive.com/api/remote-jobs"

type remotiveResponse struct {
	Jobs []remotiveJob `json:"jobs"`
}

type remotiveJob struct {
	ID                int64  `json:"id"`
	URL               string `json:"url"`
	Title             string `json:"title"`
	CompanyName       string `json:"company_name"`
	JobType           string `json:"job_type"`
	PublicationDate   string `json:"publication_date"`
	CandidateLocation string `json:"candidate_required_location"`
	Salary            string `json:"salary"`
	Description       string `json:"description"`
}

// RemotiveAdapter fetches remote jobs from the Remotive API.
type RemotiveAdapter struct {
	base
	opts    Options
	baseURL string
	search  string
}

// NewRemotiveAdapter creates a new adapter for Remotive with an optional
// search term.
func NewRemotiveAdapter(opts Options, search string, client *http.Client) *RemotiveAdapter {
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	return &RemotiveAdapter{
		base:    base{name: opts.Name, client: client},
		opts:    opts,
		baseURL: remotiveURL,
		search:  search,
	}
}

// FetchJobs retrieves the matching jobs. Salary is free text on Remotive.
func (a *RemotiveAdapter) FetchJobs(ctx context.Context) ([]model.RawJob, error) {
	params := url.Values{}
	if a.search != "" {
		params.Set("search", a.search)
	}
	if a.opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(a.opts.Limit))
	}
	endpoint := a.baseURL
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var resp remotiveResponse
	if err := a.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}

	jobs := make([]model.RawJob, 0, len(resp.Jobs))
	for _, rj := range resp.Jobs {
		if rj.ID == 0 || rj.Title == "" {
			return nil, a.formatChanged(errors.New("job without id or title"))
		}
		jobs = append(jobs, model.RawJob{
			Source:      a.name,
			ExternalID:  strconv.FormatInt(rj.ID, 10),
			Title:       rj.Title,
			Company:     rj.CompanyName,
			Location:    rj.CandidateLocation,
			Remote:      true,
			Description: extractText(rj.Description),
			URL:         rj.URL,
			PostedAt:    parseTime(rj.PublicationDate, "2006-01-02T15:04:05", time.RFC3339),
			Compensation: model.Compensation{
				Text:     rj.Salary,
				Currency: a.opts.Currency,
			},
		})
	}

	return truncate(jobs, a.opts.Limit), nil
}
