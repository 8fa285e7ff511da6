package adapter

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/amishk599/jobradar/internal/config"
	"github.com/amishk599/jobradar/internal/model"
	"github.com/amishk599/jobradar/internal/normalize"
)

// HTMLAdapter scrapes a careers page with CSS selectors from config. Each
// element matching Selectors.Item is one posting; the other selectors are
// evaluated inside it.
type HTMLAdapter struct {
	base
	opts      Options
	url       string
	location  string
	remote    bool
	selectors config.Selectors
}

// NewHTMLAdapter creates a new adapter for a scraped careers page.
func NewHTMLAdapter(opts Options, pageURL, location string, remote bool, selectors config.Selectors, client *http.Client) *HTMLAdapter {
	return &HTMLAdapter{
		base:      base{name: opts.Name, client: client},
		opts:      opts,
		url:       pageURL,
		location:  location,
		remote:    remote,
		selectors: selectors,
	}
}

// FetchJobs downloads the page and extracts one job per item. A page where
// the item selector matches nothing is reported as a format change, since
// that is what a redesigned page looks like.
func (a *HTMLAdapter) FetchJobs(ctx context.Context) ([]model.RawJob, error) {
	pageURL, err := url.Parse(a.url)
	if err != nil {
		return nil, a.unavailable(fmt.Errorf("parse url: %w", err))
	}

	body, err := a.get(ctx, a.url, "text/html,application/xhtml+xml")
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, a.formatChanged(fmt.Errorf("parse html: %w", err))
	}

	items := doc.Find(a.selectors.Item)
	if items.Length() == 0 {
		return nil, a.formatChanged(fmt.Errorf("selector %q matched nothing", a.selectors.Item))
	}

	var jobs []model.RawJob
	var itemErr error
	items.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		title := selectText(s, a.selectors.Title)
		if title == "" {
			itemErr = errors.New("item without title")
			return false
		}

		company := a.opts.Company
		if c := selectText(s, a.selectors.Company); c != "" {
			company = c
		}
		location := a.location
		if l := selectText(s, a.selectors.Location); l != "" {
			location = l
		}
		link := resolveLink(pageURL, selectHref(s, a.selectors.Link))

		id := link
		if id == "" {
			id = contentID(title, company, location)
		}

		jobs = append(jobs, model.RawJob{
			Source:      a.name,
			ExternalID:  id,
			Title:       title,
			Company:     company,
			Location:    location,
			Remote:      a.remote || normalize.IsRemote(location),
			Description: selectText(s, a.selectors.Description),
			URL:         link,
			Compensation: model.Compensation{
				Text:     selectText(s, a.selectors.Salary),
				Currency: a.opts.Currency,
			},
		})
		return a.opts.Limit <= 0 || len(jobs) < a.opts.Limit
	})
	if itemErr != nil {
		return nil, a.formatChanged(itemErr)
	}

	return truncate(jobs, a.opts.Limit), nil
}

func selectText(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.Join(strings.Fields(s.Find(selector).First().Text()), " ")
}

// selectHref returns the href of the selected element, of the first anchor
// inside it, or of the first anchor in the item when selector is empty.
func selectHref(s *goquery.Selection, selector string) string {
	sel := s
	if selector != "" {
		sel = s.Find(selector).First()
	}
	if href, ok := sel.Attr("href"); ok {
		return strings.TrimSpace(href)
	}
	if href, ok := sel.Find("a[href]").First().Attr("href"); ok {
		return strings.TrimSpace(href)
	}
	return ""
}

func resolveLink(page *url.URL, href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return page.ResolveReference(ref).String()
}

func contentID(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:8])
}
