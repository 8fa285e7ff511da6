package adapter

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"github.com/amishk599/jobradar/internal/model"
)

const remoteOKURL = "https://remoteok.com/api"

// RemoteOKAdapter fetches the RemoteOK feed. The feed is a JSON array whose
// first element is a legal notice rather than a job, so items are picked
// apart with gjson instead of decoded into one struct.
type RemoteOKAdapter struct {
	base
	opts    Options
	baseURL string
	tag     string
}

// NewRemoteOKAdapter creates a new adapter for RemoteOK, optionally
// restricted to one tag (e.g. "golang").
func NewRemoteOKAdapter(opts Options, tag string, client *http.Client) *RemoteOKAdapter {
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	return &RemoteOKAdapter{
		base:    base{name: opts.Name, client: client},
		opts:    opts,
		baseURL: remoteOKURL,
		tag:     tag,
	}
}

// FetchJobs retrieves the feed. Every RemoteOK job is remote.
func (a *RemoteOKAdapter) FetchJobs(ctx context.Context) ([]model.RawJob, error) {
	endpoint := a.baseURL
	if a.tag != "" {
		endpoint += "?tag=" + url.QueryEscape(a.tag)
	}

	body, err := a.get(ctx, endpoint, "application/json")
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, a.formatChanged(errors.New("body is not valid JSON"))
	}
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil, a.formatChanged(errors.New("body is not a JSON array"))
	}

	var jobs []model.RawJob
	var decodeErr error
	root.ForEach(func(_, item gjson.Result) bool {
		// The legal notice has no id/position pair.
		if !item.Get("position").Exists() {
			return true
		}
		id := item.Get("id").String()
		title := item.Get("position").String()
		if id == "" || title == "" {
			decodeErr = errors.New("job without id or position")
			return false
		}

		job := model.RawJob{
			Source:       a.name,
			ExternalID:   id,
			Title:        title,
			Company:      item.Get("company").String(),
			Location:     item.Get("location").String(),
			Remote:       true,
			Description:  extractText(item.Get("description").String()),
			URL:          item.Get("url").String(),
			Compensation: model.Compensation{Currency: a.opts.Currency},
		}
		if epoch := item.Get("epoch").Int(); epoch > 0 {
			job.PostedAt = unixTime(epoch)
		} else {
			job.PostedAt = parseTime(item.Get("date").String(), time.RFC3339)
		}
		job.Compensation.Min = floatPtr(item.Get("salary_min").Float())
		job.Compensation.Max = floatPtr(item.Get("salary_max").Float())
		if job.Compensation.Min != nil || job.Compensation.Max != nil {
			job.Compensation.Period = model.PeriodYear
		}

		jobs = append(jobs, job)
		return true
	})
	if decodeErr != nil {
		return nil, a.formatChanged(decodeErr)
	}

	return truncate(jobs, a.opts.Limit), nil
}
