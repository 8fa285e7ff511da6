package adapter

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/amishk599/jobradar/internal/model"
	"github.com/amishk599/jobradar/internal/normalize"
)

const (
	arbeitnowURL             = "https://www.arbeitnow.com/api/job-board-api"
	arbeitnowDefaultMaxPages = 3
	arbeitnowDefaultCurrency = "EUR"
)

type arbeitnowResponse struct {
	Data  []arbeitnowJob `json:"data"`
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
}

type arbeitnowJob struct {
	Slug        string   `json:"slug"`
	CompanyName string   `json:"company_name"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Remote      bool     `json:"remote"`
	URL         string   `json:"url"`
	Tags        []string `json:"tags"`
	JobTypes    []string `json:"job_types"`
	Location    string   `json:"location"`
	CreatedAt   int64    `json:"created_at"`
}

// ArbeitnowAdapter fetches the public Arbeitnow job board, following its
// next-page links up to maxPages.
type ArbeitnowAdapter struct {
	base
	opts     Options
	startURL string
	maxPages int
}

// NewArbeitnowAdapter creates a new adapter for the Arbeitnow job board.
func NewArbeitnowAdapter(opts Options, maxPages int, client *http.Client) *ArbeitnowAdapter {
	if opts.Currency == "" {
		opts.Currency = arbeitnowDefaultCurrency
	}
	return &ArbeitnowAdapter{
		base:     base{name: opts.Name, client: client},
		opts:     opts,
		startURL: arbeitnowURL,
		maxPages: pages(maxPages, arbeitnowDefaultMaxPages),
	}
}

// FetchJobs retrieves the board's pages in order.
func (a *ArbeitnowAdapter) FetchJobs(ctx context.Context) ([]model.RawJob, error) {
	var jobs []model.RawJob
	next := a.startURL
	for page := 0; page < a.maxPages && next != ""; page++ {
		var resp arbeitnowResponse
		if err := a.getJSON(ctx, next, &resp); err != nil {
			return nil, err
		}

		for _, aj := range resp.Data {
			if aj.Slug == "" || aj.Title == "" {
				return nil, a.formatChanged(errors.New("job without slug or title"))
			}
			jobs = append(jobs, model.RawJob{
				Source:       a.name,
				ExternalID:   aj.Slug,
				Title:        aj.Title,
				Company:      aj.CompanyName,
				Location:     aj.Location,
				Remote:       aj.Remote || normalize.IsRemote(aj.Location),
				Description:  extractText(aj.Description),
				URL:          aj.URL,
				PostedAt:     unixTime(aj.CreatedAt),
				Compensation: model.Compensation{Currency: a.opts.Currency},
			})
		}

		if len(resp.Data) == 0 || a.opts.Limit > 0 && len(jobs) >= a.opts.Limit {
			break
		}
		next = strings.TrimSpace(resp.Links.Next)
	}

	return truncate(jobs, a.opts.Limit), nil
}
