package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/amishk599/jobradar/internal/model"
	"github.com/amishk599/jobradar/internal/normalize"
)

const (
	adzunaBaseURL         = "https://api.adzuna.com/v1/api/jobs"
	adzunaPageSize        = 50
	adzunaDefaultMaxPages = 3
)

// adzunaCurrencies maps Adzuna country codes to the currency its salary
// figures are quoted in.
var adzunaCurrencies = map[string]string{
	"us": "USD", "gb": "GBP", "ca": "CAD", "au": "AUD", "nz": "NZD",
	"in": "INR", "sg": "SGD", "za": "ZAR", "br": "BRL", "mx": "MXN",
	"pl": "PLN", "ch": "CHF",
	"de": "EUR", "fr": "EUR", "nl": "EUR", "at": "EUR", "be": "EUR",
	"es": "EUR", "it": "EUR",
}

// AdzunaQuery holds the credentials and search terms of an Adzuna source.
type AdzunaQuery struct {
	AppID    string
	AppKey   string
	Country  string // "us", "gb", "de", ...
	What     string
	Where    string
	MaxPages int
}

type adzunaResponse struct {
	Results []adzunaResult `json:"results"`
	Count   int            `json:"count"`
}

type adzunaResult struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Company         adzunaCompany  `json:"company"`
	Location        adzunaLocation `json:"location"`
	SalaryMin       float64        `json:"salary_min"`
	SalaryMax       float64        `json:"salary_max"`
	SalaryPredicted string         `json:"salary_is_predicted"`
	RedirectURL     string         `json:"redirect_url"`
	Created         string         `json:"created"`
}

type adzunaCompany struct {
	DisplayName string `json:"display_name"`
}

type adzunaLocation struct {
	DisplayName string `json:"display_name"`
}

// AdzunaAdapter searches the Adzuna job aggregator API.
type AdzunaAdapter struct {
	base
	opts    Options
	baseURL string
	query   AdzunaQuery
}

// NewAdzunaAdapter creates a new adapter for one Adzuna search.
func NewAdzunaAdapter(opts Options, query AdzunaQuery, client *http.Client) *AdzunaAdapter {
	query.Country = strings.ToLower(query.Country)
	if query.Country == "" {
		query.Country = "us"
	}
	query.MaxPages = pages(query.MaxPages, adzunaDefaultMaxPages)
	if opts.Currency == "" {
		opts.Currency = adzunaCurrencies[query.Country]
	}
	return &AdzunaAdapter{
		base:    base{name: opts.Name, client: client},
		opts:    opts,
		baseURL: adzunaBaseURL,
		query:   query,
	}
}

// FetchJobs pages through the search results. Missing credentials make the
// source unavailable for this run without affecting other sources.
func (a *AdzunaAdapter) FetchJobs(ctx context.Context) ([]model.RawJob, error) {
	if a.query.AppID == "" || a.query.AppKey == "" {
		return nil, a.unavailable(errors.New("app_id and app_key are required"))
	}

	var jobs []model.RawJob
	for page := 1; page <= a.query.MaxPages; page++ {
		batch, err := a.fetchPage(ctx, page)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, batch...)
		if len(batch) < adzunaPageSize {
			break
		}
	}

	return truncate(jobs, a.opts.Limit), nil
}

func (a *AdzunaAdapter) fetchPage(ctx context.Context, page int) ([]model.RawJob, error) {
	params := url.Values{}
	params.Set("app_id", a.query.AppID)
	params.Set("app_key", a.query.AppKey)
	params.Set("results_per_page", strconv.Itoa(adzunaPageSize))
	if a.query.What != "" {
		params.Set("what", a.query.What)
	}
	if a.query.Where != "" {
		params.Set("where", a.query.Where)
	}
	params.Set("sort_by", "date")
	endpoint := fmt.Sprintf("%s/%s/search/%d?%s", a.baseURL, a.query.Country, page, params.Encode())

	var resp adzunaResponse
	if err := a.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}

	jobs := make([]model.RawJob, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.ID == "" || r.Title == "" {
			return nil, a.formatChanged(errors.New("result without id or title"))
		}
		job := model.RawJob{
			Source:       a.name,
			ExternalID:   r.ID,
			Title:        r.Title,
			Company:      r.Company.DisplayName,
			Location:     r.Location.DisplayName,
			Remote:       normalize.IsRemote(r.Location.DisplayName) || normalize.IsRemote(r.Title),
			Description:  r.Description,
			URL:          r.RedirectURL,
			PostedAt:     parseTime(r.Created, time.RFC3339),
			Compensation: model.Compensation{Currency: a.opts.Currency},
		}
		// Predicted salaries are Adzuna's estimate, not the employer's figure.
		if r.SalaryPredicted != "1" {
			job.Compensation.Min = floatPtr(r.SalaryMin)
			job.Compensation.Max = floatPtr(r.SalaryMax)
			if job.Compensation.Min != nil || job.Compensation.Max != nil {
				job.Compensation.Period = model.PeriodYear
			}
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
