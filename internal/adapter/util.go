package adapter

import (
	"bytes"
	"encoding/json"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/amishk599/jobradar/internal/model"
)

var htmlTagRegex = regexp.MustCompile(`<[^>]*>`)

// extractText converts an HTML or HTML-encoded string to plain text.
// It first unescapes HTML entities (handles Greenhouse's double-encoding;
// no-op on already-real HTML), strips all tags, then collapses whitespace.
func extractText(content string) string {
	unescaped := html.UnescapeString(content)
	plain := htmlTagRegex.ReplaceAllString(unescaped, " ")
	return strings.Join(strings.Fields(html.UnescapeString(plain)), " ")
}

// parseTime tries each layout in turn and returns nil if none match.
func parseTime(value string, layouts ...string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

func unixMilli(ms int64) *time.Time {
	if ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

func floatPtr(v float64) *float64 {
	if v <= 0 {
		return nil
	}
	return &v
}

// flexFloat decodes a JSON number that some APIs send as a string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(string(data), ",", ""), 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

var _ json.Unmarshaler = (*flexFloat)(nil)

// truncate keeps the first n jobs when n is positive, so caps are
// deterministic in source order.
func truncate(jobs []model.RawJob, n int) []model.RawJob {
	if n > 0 && len(jobs) > n {
		return jobs[:n]
	}
	return jobs
}

// pages returns n, or def when n is not positive.
func pages(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
