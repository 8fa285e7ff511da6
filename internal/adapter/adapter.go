// Package adapter contains one Source implementation per external job
// source. Adapters map whatever the source returns into model.RawJob and
// report failures as *model.SourceError.
package adapter

import (
	"fmt"
	"net/http"

	"github.com/amishk599/jobradar/internal/config"
	"github.com/amishk599/jobradar/internal/model"
)

// Options are the settings shared by every source type.
type Options struct {
	Name     string // configured source name, becomes RawJob.Source
	Company  string // company name for single-company boards
	Limit    int    // max postings per fetch, 0 for no cap
	Currency string // default currency for salary figures without a marker
}

// New builds the adapter for one configured source.
func New(sc config.SourceConfig, client *http.Client) (model.Source, error) {
	opts := Options{Name: sc.Name, Company: sc.Company, Limit: sc.Limit, Currency: sc.Currency}

	switch sc.Type {
	case "greenhouse":
		return NewGreenhouseAdapter(opts, sc.BoardToken, client), nil
	case "lever":
		return NewLeverAdapter(opts, sc.BoardToken, client), nil
	case "ashby":
		return NewAshbyAdapter(opts, sc.BoardToken, client), nil
	case "gem":
		return NewGemAdapter(opts, sc.BoardToken, client), nil
	case "workday":
		return NewWorkdayAdapter(opts, sc.URL, sc.Query, sc.MaxPages, client), nil
	case "microsoft":
		return NewMicrosoftAdapter(opts, sc.Query, sc.Location, sc.MaxPages, client), nil
	case "adzuna":
		return NewAdzunaAdapter(opts, AdzunaQuery{
			AppID: sc.AppID, AppKey: sc.AppKey, Country: sc.Country,
			What: sc.Query, Where: sc.Location, MaxPages: sc.MaxPages,
		}, client), nil
	case "arbeitnow":
		return NewArbeitnowAdapter(opts, sc.MaxPages, client), nil
	case "remoteok":
		return NewRemoteOKAdapter(opts, sc.Query, client), nil
	case "remotive":
		return NewRemotiveAdapter(opts, sc.Query, client), nil
	case "jobicy":
		return NewJobicyAdapter(opts, sc.Query, sc.Location, client), nil
	case "rss":
		return NewRSSAdapter(opts, sc.URL, sc.Location, sc.Remote, client), nil
	case "html":
		return NewHTMLAdapter(opts, sc.URL, sc.Location, sc.Remote, sc.Selectors, client), nil
	default:
		return nil, fmt.Errorf("unsupported source type %q", sc.Type)
	}
}
