package adapter

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/amishk599/jobradar/internal/model"
	"github.com/amishk599/jobradar/internal/normalize"
)

const (
	workdayPageSize        = 20
	workdayDefaultMaxPages = 5
	workdayDefaultDetails  = 50
)

type workdayListingResponse struct {
	Total       int              `json:"total"`
	JobPostings []workdayListing `json:"jobPostings"`
}

type workdayListing struct {
	Title         string   `json:"title"`
	ExternalPath  string   `json:"externalPath"`
	LocationsText string   `json:"locationsText"`
	PostedOn      string   `json:"postedOn"`
	BulletFields  []string `json:"bulletFields"`
}

type workdayListingRequest struct {
	AppliedFacets map[string]any `json:"appliedFacets"`
	Limit         int            `json:"limit"`
	Offset        int            `json:"offset"`
	SearchText    string         `json:"searchText"`
}

type workdayDetailResponse struct {
	JobPostingInfo workdayJobDetail `json:"jobPostingInfo"`
}

type workdayJobDetail struct {
	JobReqID            string   `json:"jobReqId"`
	Title               string   `json:"title"`
	Location            string   `json:"location"`
	PostedOn            string   `json:"postedOn"`
	StartDate           string   `json:"startDate"`
	ExternalURL         string   `json:"externalUrl"`
	JobDescription      string   `json:"jobDescription"`
	RemoteType          string   `json:"remoteType"`
	AdditionalLocations []string `json:"additionalLocations"`
}

// WorkdayAdapter fetches jobs from a Workday career site's cxs API.
// Listings come from POST {url}/jobs; descriptions need one GET per job, so
// only the first Limit listings (50 when unset) get a detail fetch.
type WorkdayAdapter struct {
	base
	opts     Options
	baseURL  string
	query    string
	maxPages int
	now      func() time.Time
}

// NewWorkdayAdapter creates a new adapter for a Workday career site.
func NewWorkdayAdapter(opts Options, baseURL, query string, maxPages int, client *http.Client) *WorkdayAdapter {
	return &WorkdayAdapter{
		base:     base{name: opts.Name, client: client},
		opts:     opts,
		baseURL:  strings.TrimRight(baseURL, "/"),
		query:    query,
		maxPages: pages(maxPages, workdayDefaultMaxPages),
		now:      time.Now,
	}
}

// FetchJobs pages through the listings and enriches them with details.
// A failed detail fetch keeps the listing-level data.
func (a *WorkdayAdapter) FetchJobs(ctx context.Context) ([]model.RawJob, error) {
	listings, err := a.fetchListings(ctx)
	if err != nil {
		return nil, err
	}

	details := a.opts.Limit
	if details <= 0 {
		details = workdayDefaultDetails
	}

	jobs := make([]model.RawJob, 0, len(listings))
	for i, l := range listings {
		if l.ExternalPath == "" || l.Title == "" {
			return nil, a.formatChanged(errors.New("listing without externalPath or title"))
		}
		job := a.jobFromListing(l)
		if i < details {
			if info, err := a.fetchDetail(ctx, l.ExternalPath); err == nil {
				a.applyDetail(&job, info)
			} else if ctx.Err() != nil {
				return nil, a.unavailable(ctx.Err())
			}
		}
		jobs = append(jobs, job)
	}

	return truncate(jobs, a.opts.Limit), nil
}

func (a *WorkdayAdapter) fetchListings(ctx context.Context) ([]workdayListing, error) {
	var all []workdayListing
	for page := 0; page < a.maxPages; page++ {
		body := workdayListingRequest{
			AppliedFacets: map[string]any{},
			Limit:         workdayPageSize,
			Offset:        page * workdayPageSize,
			SearchText:    a.query,
		}

		var listResp workdayListingResponse
		if err := a.postJSON(ctx, a.baseURL+"/jobs", body, &listResp); err != nil {
			return nil, err
		}

		all = append(all, listResp.JobPostings...)
		if len(listResp.JobPostings) == 0 || (page+1)*workdayPageSize >= listResp.Total {
			break
		}
	}
	return all, nil
}

func (a *WorkdayAdapter) jobFromListing(l workdayListing) model.RawJob {
	return model.RawJob{
		Source:       a.name,
		ExternalID:   l.ExternalPath,
		Title:        l.Title,
		Company:      a.opts.Company,
		Location:     l.LocationsText,
		Remote:       normalize.IsRemote(l.LocationsText),
		PostedAt:     parsePostedOn(l.PostedOn, a.now()),
		Compensation: model.Compensation{Currency: a.opts.Currency},
	}
}

func (a *WorkdayAdapter) fetchDetail(ctx context.Context, externalPath string) (workdayJobDetail, error) {
	var detail workdayDetailResponse
	if err := a.getJSON(ctx, a.baseURL+externalPath, &detail); err != nil {
		return workdayJobDetail{}, err
	}
	return detail.JobPostingInfo, nil
}

func (a *WorkdayAdapter) applyDetail(job *model.RawJob, info workdayJobDetail) {
	if info.Location != "" {
		location := info.Location
		if len(info.AdditionalLocations) > 0 {
			location = location + "; " + strings.Join(info.AdditionalLocations, "; ")
		}
		job.Location = location
	}
	job.Remote = job.Remote || strings.EqualFold(info.RemoteType, "remote") || normalize.IsRemote(job.Location)
	job.Description = extractText(info.JobDescription)
	job.URL = info.ExternalURL

	// startDate is an absolute date, postedOn only a relative one.
	if t := parseTime(info.StartDate, "2006-01-02"); t != nil {
		job.PostedAt = t
	} else if t := parsePostedOn(info.PostedOn, a.now()); t != nil {
		job.PostedAt = t
	}
}

var daysAgoRegex = regexp.MustCompile(`^Posted (\d+) Days? Ago$`)

// parsePostedOn converts a Workday relative date string to an approximate
// timestamp. "Posted 30+ Days Ago" and unknown values give nil.
func parsePostedOn(postedOn string, now time.Time) *time.Time {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch postedOn {
	case "Posted Today":
		return &today
	case "Posted Yesterday":
		t := today.AddDate(0, 0, -1)
		return &t
	}

	if n, ok := parseDaysAgo(postedOn); ok {
		t := today.AddDate(0, 0, -n)
		return &t
	}
	return nil
}

func parseDaysAgo(s string) (int, bool) {
	matches := daysAgoRegex.FindStringSubmatch(s)
	if matches == nil {
		return 0, false
	}
	n, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
