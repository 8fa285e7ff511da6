package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/amishk599/jobradar/internal/model"
	"github.com/amishk599/jobradar/internal/normalize"
)

const leverBaseURL = "https://api.lever.co/v0/postings"

// leverCategories represents the categories object in a Lever job.
type leverCategories struct {
	Team         string   `json:"team"`
	Location     string   `json:"location"`
	Commitment   string   `json:"commitment"`
	AllLocations []string `json:"allLocations"`
}

type leverSalaryRange struct {
	Currency string  `json:"currency"`
	Interval string  `json:"interval"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
}

// leverJob represents a single job in the Lever API response.
type leverJob struct {
	ID                    string            `json:"id"`
	Text                  string            `json:"text"`
	DescriptionPlain      string            `json:"descriptionPlain"`
	AdditionalPlain       string            `json:"additionalPlain"`
	Categories            leverCategories   `json:"categories"`
	CreatedAt             int64             `json:"createdAt"`
	WorkplaceType         string            `json:"workplaceType"`
	HostedURL             string            `json:"hostedUrl"`
	SalaryRange           *leverSalaryRange `json:"salaryRange"`
	SalaryDescriptionText string            `json:"salaryDescriptionPlain"`
}

var leverIntervals = map[string]model.Period{
	"per-year-salary":  model.PeriodYear,
	"per-month-salary": model.PeriodMonth,
	"per-hour-wage":    model.PeriodHour,
}

// LeverAdapter fetches jobs from the Lever public postings API.
type LeverAdapter struct {
	base
	opts        Options
	companySlug string
}

// NewLeverAdapter creates a new adapter for a Lever board.
func NewLeverAdapter(opts Options, companySlug string, client *http.Client) *LeverAdapter {
	return &LeverAdapter{
		base:        base{name: opts.Name, client: client},
		opts:        opts,
		companySlug: companySlug,
	}
}

// FetchJobs retrieves all postings from the Lever board.
func (a *LeverAdapter) FetchJobs(ctx context.Context) ([]model.RawJob, error) {
	url := fmt.Sprintf("%s/%s?mode=json", leverBaseURL, a.companySlug)

	var leverJobs []leverJob
	if err := a.getJSON(ctx, url, &leverJobs); err != nil {
		return nil, err
	}

	jobs := make([]model.RawJob, 0, len(leverJobs))
	for _, lj := range leverJobs {
		if lj.ID == "" || lj.Text == "" {
			return nil, a.formatChanged(errors.New("posting without id or text"))
		}

		// Prefer allLocations if available, fallback to location
		location := lj.Categories.Location
		if len(lj.Categories.AllLocations) > 0 {
			location = strings.Join(lj.Categories.AllLocations, ", ")
		}

		job := model.RawJob{
			Source:      a.name,
			ExternalID:  lj.ID,
			Title:       lj.Text,
			Company:     a.opts.Company,
			Location:    location,
			Remote:      lj.WorkplaceType == "remote" || normalize.IsRemote(location),
			Description: strings.TrimSpace(lj.DescriptionPlain + "\n" + lj.AdditionalPlain),
			URL:         lj.HostedURL,
			PostedAt:    unixMilli(lj.CreatedAt),
			Compensation: model.Compensation{
				Text:     lj.SalaryDescriptionText,
				Currency: a.opts.Currency,
			},
		}
		if sr := lj.SalaryRange; sr != nil {
			if period, ok := leverIntervals[sr.Interval]; ok {
				job.Compensation.Min = floatPtr(sr.Min)
				job.Compensation.Max = floatPtr(sr.Max)
				job.Compensation.Period = period
				if sr.Currency != "" {
					job.Compensation.Currency = sr.Currency
				}
			}
		}

		jobs = append(jobs, job)
	}

	return truncate(jobs, a.opts.Limit), nil
}
