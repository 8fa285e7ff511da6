package adapter

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/amishk599/jobradar/internal/model"
	"github.com/amishk599/jobradar/internal/normalize"
)

const (
	microsoftBaseURL         = "https://apply.careers.microsoft.com"
	microsoftPageSize        = 10
	microsoftDefaultMaxPages = 5
	microsoftDefaultQuery    = "software engineer"
	microsoftDefaultLocation = "United States"
	microsoftDefaultDetails  = 30
)

type microsoftPosition struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Locations   []string `json:"locations"`
	PostedTs    int64    `json:"postedTs"`
	PositionURL string   `json:"positionUrl"`
	WorkOption  string   `json:"work_location_option"`
}

type microsoftSearchResponse struct {
	Data struct {
		Positions []microsoftPosition `json:"positions"`
		Count     int                 `json:"count"`
	} `json:"data"`
}

type microsoftDetailResponse struct {
	Data struct {
		JobDescription string `json:"jobDescription"`
		PublicURL      string `json:"publicUrl"`
	} `json:"data"`
}

// MicrosoftAdapter fetches jobs from the Microsoft careers search API.
type MicrosoftAdapter struct {
	base
	opts     Options
	baseURL  string
	query    string
	location string
	maxPages int
}

// NewMicrosoftAdapter creates a new adapter for Microsoft careers.
func NewMicrosoftAdapter(opts Options, query, location string, maxPages int, client *http.Client) *MicrosoftAdapter {
	if query == "" {
		query = microsoftDefaultQuery
	}
	if location == "" {
		location = microsoftDefaultLocation
	}
	if opts.Company == "" {
		opts.Company = "Microsoft"
	}
	return &MicrosoftAdapter{
		base:     base{name: opts.Name, client: client},
		opts:     opts,
		baseURL:  microsoftBaseURL,
		query:    query,
		location: location,
		maxPages: pages(maxPages, microsoftDefaultMaxPages),
	}
}

// FetchJobs pages through search results, newest first, and fetches the
// description of the first positions. A failed detail fetch is not fatal.
func (a *MicrosoftAdapter) FetchJobs(ctx context.Context) ([]model.RawJob, error) {
	positions, err := a.fetchPositions(ctx)
	if err != nil {
		return nil, err
	}

	details := a.opts.Limit
	if details <= 0 {
		details = microsoftDefaultDetails
	}

	jobs := make([]model.RawJob, 0, len(positions))
	for i, p := range positions {
		if p.ID == 0 || p.Name == "" {
			return nil, a.formatChanged(errors.New("position without id or name"))
		}
		job := a.jobFromPosition(p)
		if i < details {
			if err := a.enrich(ctx, &job); err != nil && ctx.Err() != nil {
				return nil, a.unavailable(ctx.Err())
			}
		}
		jobs = append(jobs, job)
	}

	return truncate(jobs, a.opts.Limit), nil
}

func (a *MicrosoftAdapter) fetchPositions(ctx context.Context) ([]microsoftPosition, error) {
	var all []microsoftPosition
	for page := 0; page < a.maxPages; page++ {
		start := page * microsoftPageSize
		u, _ := url.Parse(a.baseURL + "/api/pcsx/search")
		q := u.Query()
		q.Set("domain", "microsoft.com")
		q.Set("query", a.query)
		q.Set("location", a.location)
		q.Set("start", strconv.Itoa(start))
		q.Set("sort_by", "timestamp")
		q.Set("filter_include_remote", "1")
		u.RawQuery = q.Encode()

		var resp microsoftSearchResponse
		if err := a.getJSON(ctx, u.String(), &resp); err != nil {
			return nil, err
		}

		all = append(all, resp.Data.Positions...)
		if len(resp.Data.Positions) == 0 || start+microsoftPageSize >= resp.Data.Count {
			break
		}
	}
	return all, nil
}

func (a *MicrosoftAdapter) jobFromPosition(p microsoftPosition) model.RawJob {
	location := ""
	if len(p.Locations) > 0 {
		location = p.Locations[0]
	}
	return model.RawJob{
		Source:       a.name,
		ExternalID:   strconv.FormatInt(p.ID, 10),
		Title:        p.Name,
		Company:      a.opts.Company,
		Location:     location,
		Remote:       p.WorkOption == "remote" || normalize.IsRemote(location),
		URL:          a.baseURL + p.PositionURL,
		PostedAt:     unixTime(p.PostedTs),
		Compensation: model.Compensation{Currency: a.opts.Currency},
	}
}

// enrich adds the description and canonical URL from the detail endpoint.
func (a *MicrosoftAdapter) enrich(ctx context.Context, job *model.RawJob) error {
	u, _ := url.Parse(a.baseURL + "/api/pcsx/position_details")
	q := u.Query()
	q.Set("position_id", job.ExternalID)
	q.Set("domain", "microsoft.com")
	q.Set("hl", "en")
	q.Set("queried_location", a.location)
	u.RawQuery = q.Encode()

	var detail microsoftDetailResponse
	if err := a.getJSON(ctx, u.String(), &detail); err != nil {
		return err
	}
	if detail.Data.JobDescription != "" {
		job.Description = extractText(detail.Data.JobDescription)
	}
	if detail.Data.PublicURL != "" {
		job.URL = detail.Data.PublicURL
	}
	return nil
}
