package report

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/amishk599/jobradar/internal/model"
	"github.com/amishk599/jobradar/internal/pipeline"
)

func TestText_Done(t *testing.T) {
	start := time.Date(2026, 4, 1, 7, 0, 0, 0, time.UTC)
	s := pipeline.Summary{
		RunID:         "6f1c2a9e-0000-4000-8000-000000000000",
		State:         pipeline.StateDone,
		StartedAt:     start,
		FinishedAt:    start.Add(2500 * time.Millisecond),
		SourcesOK:     12,
		SourcesFailed: 1,
		Sources: []pipeline.SourceResult{
			{Name: "greenhouse-acme", Jobs: 4},
			{Name: "workday-globex", Err: model.NewSourceUnavailable("workday-globex", errors.New("HTTP 503"))},
		},
		Fetched:   1234,
		New:       10,
		Duplicate: 3,
		Scored:    10,
		Qualified: 2,
		Notified:  2,
	}

	out := Text(s)
	for _, want := range []string{"6f1c2a9e", "DONE", "2.5s", "1,234 fetched", "12 ok", "1 failed", "workday-globex", "(unavailable)", "2 qualified"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "greenhouse-acme") {
		t.Errorf("healthy sources should not be listed:\n%s", out)
	}
}

func TestRender_Failed(t *testing.T) {
	var buf bytes.Buffer
	s := pipeline.Summary{
		State:  pipeline.StateFailed,
		Err:    fmt.Errorf("loading canonical jobs: %w", model.ErrStoreUnavailable),
		Errors: []error{fmt.Errorf("persisting job x: %w", model.ErrDuplicateKey)},
	}
	if err := Render(&buf, s); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"FAILED", "store unavailable", "duplicate dedup key"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
