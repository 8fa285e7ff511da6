package adapter

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/amishk599/jobradar/internal/model"
	"github.com/amishk599/jobradar/internal/normalize"
)

type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	Region      string `xml:"region"`
	Company     string `xml:"company"`
}

// RSSAdapter reads job postings from a generic RSS 2.0 feed. Feeds rarely
// carry a company field, so it falls back to the configured company and then
// to "Company: Title" or "Title at Company" item titles.
type RSSAdapter struct {
	base
	opts     Options
	url      string
	location string
	remote   bool
}

// NewRSSAdapter creates a new adapter for an RSS feed. location and remote
// apply to every item that does not say otherwise.
func NewRSSAdapter(opts Options, url, location string, remote bool, client *http.Client) *RSSAdapter {
	return &RSSAdapter{
		base:     base{name: opts.Name, client: client},
		opts:     opts,
		url:      url,
		location: location,
		remote:   remote,
	}
}

// FetchJobs retrieves and parses the feed.
func (a *RSSAdapter) FetchJobs(ctx context.Context) ([]model.RawJob, error) {
	body, err := a.get(ctx, a.url, "application/rss+xml, application/xml;q=0.9, */*;q=0.8")
	if err != nil {
		return nil, err
	}

	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, a.formatChanged(fmt.Errorf("decode: %w", err))
	}

	jobs := make([]model.RawJob, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		id := strings.TrimSpace(item.GUID)
		if id == "" {
			id = strings.TrimSpace(item.Link)
		}
		rawTitle := strings.TrimSpace(item.Title)
		if id == "" || rawTitle == "" {
			return nil, a.formatChanged(errors.New("item without guid, link or title"))
		}

		title, company := splitFeedTitle(rawTitle)
		if c := strings.TrimSpace(item.Company); c != "" {
			company = c
		}
		if a.opts.Company != "" {
			company = a.opts.Company
		}

		location := a.location
		if r := strings.TrimSpace(item.Region); r != "" {
			location = r
		}

		jobs = append(jobs, model.RawJob{
			Source:       a.name,
			ExternalID:   id,
			Title:        title,
			Company:      company,
			Location:     location,
			Remote:       a.remote || normalize.IsRemote(location),
			Description:  extractText(item.Description),
			URL:          strings.TrimSpace(item.Link),
			PostedAt:     parseTime(item.PubDate, time.RFC1123Z, time.RFC1123, time.RFC3339),
			Compensation: model.Compensation{Currency: a.opts.Currency},
		})
	}

	return truncate(jobs, a.opts.Limit), nil
}

// splitFeedTitle pulls a company out of "Company: Title" or
// "Title at Company". Titles in neither shape are returned unchanged.
func splitFeedTitle(s string) (title, company string) {
	if i := strings.Index(s, ": "); i > 0 {
		return strings.TrimSpace(s[i+2:]), strings.TrimSpace(s[:i])
	}
	if i := strings.LastIndex(s, " at "); i > 0 {
		return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+4:])
	}
	return s, ""
}
