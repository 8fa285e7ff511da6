package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/amishk599/jobradar/internal/model"
	"github.com/amishk599/jobradar/internal/retry"
)

const (
	userAgent    = "jobradar/1.0 (+https://github.com/amishk599/jobradar)"
	maxBodyBytes = 20 << 20
)

// base holds what every HTTP-backed source needs and turns transport
// problems into model.SourceError values.
type base struct {
	name   string
	client *http.Client
}

// Name returns the configured source name.
func (b base) Name() string { return b.name }

func (b base) unavailable(err error) error {
	return model.NewSourceUnavailable(b.name, err)
}

func (b base) formatChanged(err error) error {
	return model.NewSourceFormatChanged(b.name, err)
}

// do sends req and returns the body of a 200 response.
func (b base) do(req *http.Request) ([]byte, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, b.unavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, b.unavailable(&model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: retry.ParseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        errors.New(http.StatusText(resp.StatusCode)),
		})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, b.unavailable(fmt.Errorf("read body: %w", err))
	}
	return body, nil
}

// get fetches url with the given Accept header.
func (b base) get(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, b.unavailable(err)
	}
	req.Header.Set("Accept", accept)
	return b.do(req)
}

// getJSON fetches url and decodes the body into out. A body that does not
// decode means the source changed its format.
func (b base) getJSON(ctx context.Context, url string, out any) error {
	body, err := b.get(ctx, url, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return b.formatChanged(fmt.Errorf("decode: %w", err))
	}
	return nil
}

// postJSON sends in as a JSON body and decodes the response into out.
func (b base) postJSON(ctx context.Context, url string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return b.unavailable(fmt.Errorf("marshal: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return b.unavailable(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	body, err := b.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return b.formatChanged(fmt.Errorf("decode: %w", err))
	}
	return nil
}
