package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/amishk599/jobradar/internal/model"
	"github.com/amishk599/jobradar/internal/normalize"
)

const greenhouseBaseURL = "https://boards-api.greenhouse.io/v1/boards"

// greenhouseJob represents a single job in the Greenhouse API response.
type greenhouseJob struct {
	ID             int64              `json:"id"`
	Title          string             `json:"title"`
	Location       greenhouseLocation `json:"location"`
	AbsoluteURL    string             `json:"absolute_url"`
	UpdatedAt      string             `json:"updated_at"`
	FirstPublished string             `json:"first_published"`
	Content        string             `json:"content"`
}

type greenhouseLocation struct {
	Name string `json:"name"`
}

// greenhouseResponse is the top-level Greenhouse jobs API response.
type greenhouseResponse struct {
	Jobs []greenhouseJob `json:"jobs"`
}

// GreenhouseAdapter fetches jobs from the Greenhouse public boards API.
type GreenhouseAdapter struct {
	base
	opts       Options
	boardToken string
}

// NewGreenhouseAdapter creates a new adapter for a Greenhouse board.
func NewGreenhouseAdapter(opts Options, boardToken string, client *http.Client) *GreenhouseAdapter {
	return &GreenhouseAdapter{
		base:       base{name: opts.Name, client: client},
		opts:       opts,
		boardToken: boardToken,
	}
}

// FetchJobs retrieves the board's jobs with their descriptions.
func (a *GreenhouseAdapter) FetchJobs(ctx context.Context) ([]model.RawJob, error) {
	url := fmt.Sprintf("%s/%s/jobs?content=true", greenhouseBaseURL, a.boardToken)

	var ghResp greenhouseResponse
	if err := a.getJSON(ctx, url, &ghResp); err != nil {
		return nil, err
	}

	jobs := make([]model.RawJob, 0, len(ghResp.Jobs))
	for _, gj := range ghResp.Jobs {
		if gj.ID == 0 || gj.Title == "" {
			return nil, a.formatChanged(errors.New("job without id or title"))
		}
		job := model.RawJob{
			Source:       a.name,
			ExternalID:   strconv.FormatInt(gj.ID, 10),
			Title:        gj.Title,
			Company:      a.opts.Company,
			Location:     gj.Location.Name,
			Remote:       normalize.IsRemote(gj.Location.Name),
			Description:  extractText(gj.Content),
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
