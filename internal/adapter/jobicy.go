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

const (
	jobicyURL          = "https://jobicy.com/api/v2/remote-jobs"
	jobicyDefaultCount = 50
)

type jobicyResponse struct {
	Jobs []jobicyJob `json:"jobs"`
}

type jobicyJob struct {
	ID              int64     `json:"id"`
	URL             string    `json:"url"`
	JobTitle        string    `json:"jobTitle"`
	CompanyName     string    `json:"companyName"`
	JobGeo          string    `json:"jobGeo"`
	JobDescription  string    `json:"jobDescription"`
	PubDate         string    `json:"pubDate"`
	AnnualSalaryMin flexFloat `json:"annualSalaryMin"`
	AnnualSalaryMax flexFloat `json:"annualSalaryMax"`
	SalaryCurrency  string    `json:"salaryCurrency"`
}

// JobicyAdapter fetches remote jobs from the Jobicy API.
type JobicyAdapter struct {
	base
	opts    Options
	baseURL string
	tag     string
	geo     string
}

// NewJobicyAdapter creates a new adapter for Jobicy, optionally filtered by
// tag and geo (e.g. "usa").
func NewJobicyAdapter(opts Options, tag, geo string, client *http.Client) *JobicyAdapter {
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	return &JobicyAdapter{
		base:    base{name: opts.Name, client: client},
		opts:    opts,
		baseURL: jobicyURL,
		tag:     tag,
		geo:     geo,
	}
}

// FetchJobs retrieves the newest matching jobs.
func (a *JobicyAdapter) FetchJobs(ctx context.Context) ([]model.RawJob, error) {
	count := jobicyDefaultCount
	if a.opts.Limit > 0 && a.opts.Limit < count {
		count = a.opts.Limit
	}
	params := url.Values{}
	params.Set("count", strconv.Itoa(count))
	if a.tag != "" {
		params.Set("tag", a.tag)
	}
	if a.geo != "" {
		params.Set("geo", a.geo)
	}

	var resp jobicyResponse
	if err := a.getJSON(ctx, a.baseURL+"?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	jobs := make([]model.RawJob, 0, len(resp.Jobs))
	for _, jj := range resp.Jobs {
		if jj.ID == 0 || jj.JobTitle == "" {
			return nil, a.formatChanged(errors.New("job without id or title"))
		}
		job := model.RawJob{
			Source:       a.name,
			ExternalID:   strconv.FormatInt(jj.ID, 10),
			Title:        jj.JobTitle,
			Company:      jj.CompanyName,
			Location:     jj.JobGeo,
			Remote:       true,
			Description:  extractText(jj.JobDescription),
			URL:          jj.URL,
			PostedAt:     parseTime(jj.PubDate, "2006-01-02 15:04:05", time.RFC3339),
			Compensation: model.Compensation{Currency: a.opts.Currency},
		}
		job.Compensation.Min = floatPtr(float64(jj.AnnualSalaryMin))
		job.Compensation.Max = floatPtr(float64(jj.AnnualSalaryMax))
		if job.Compensation.Min != nil || job.Compensation.Max != nil {
			job.Compensation.Period = model.PeriodYear
			if jj.SalaryCurrency != "" {
				job.Compensation.Currency = jj.SalaryCurrency
			}
		}
		jobs = append(jobs, job)
	}

	return truncate(jobs, a.opts.Limit), nil
}
