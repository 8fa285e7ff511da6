package ai

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/amishk599/jobradar/internal/model"
	"github.com/amishk599/jobradar/internal/ratelimit"
)

// scriptedProvider returns the scripted replies in order, then the last one.
type scriptedProvider struct {
	mu      sync.Mutex
	replies []reply
	calls   int
	prompts []string
	starts  []time.Time
}

type reply struct {
	text  string
	err   error
	block bool // wait for ctx instead of answering
}

func (p *scriptedProvider) Complete(ctx context.Context, prompt string) (string, error) {
	p.mu.Lock()
	r := p.replies[min(p.calls, len(p.replies)-1)]
	p.calls++
	p.prompts = append(p.prompts, prompt)
	p.starts = append(p.starts, time.Now())
	p.mu.Unlock()

	if r.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return r.text, r.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openGate() *ratelimit.CallGate {
	return ratelimit.NewCallGate(ratelimit.GateConfig{MaxConcurrent: 1})
}

func testJob() model.CanonicalJob {
	lo, hi := int64(150000), int64(180000)
	var job model.CanonicalJob
	job.ID = "job-1"
	job.Title = "Senior Go Engineer"
	job.Company = "Acme"
	job.Location = "Austin, TX"
	job.Description = "Build distributed systems in Go."
	job.SalaryMinAnnualUSD = &lo
	job.SalaryMaxAnnualUSD = &hi
	return job
}

func newTestScorer(p LLMProvider, gate *ratelimit.CallGate, attempts int) *Scorer {
	return NewScorer(p, gate, "Go engineer, 8 years, distributed systems.", ScorerConfig{
		CallTimeout: time.Second,
		MaxAttempts: attempts,
		BaseBackoff: time.Millisecond,
	}, discardLogger())
}

func rateLimited() error {
	return statusError("openai", http.StatusTooManyRequests, 0, "slow down")
}

func TestScore_Qualifying(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{text: `{"score": 8, "why_me": ["Go depth", "- Distributed systems", "Austin based", "extra"]}`}}}
	got, err := newTestScorer(p, openGate(), 4).Score(context.Background(), testJob())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Score != 8 {
		t.Errorf("expected score 8, got %d", got.Score)
	}
	want := "• Go depth\n• Distributed systems\n• Austin based"
	if got.WhyMe != want {
		t.Errorf("why_me = %q, want %q", got.WhyMe, want)
	}

	prompt := p.prompts[0]
	for _, s := range []string{"Senior Go Engineer", "Acme", "$150,000 - $180,000 per year", "distributed systems"} {
		if !strings.Contains(prompt, s) {
			t.Errorf("prompt missing %q", s)
		}
	}
}

func TestScore_NonQualifyingDropsWhyMe(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{text: `{"score": 5, "why_me": ["ignored"]}`}}}
	got, err := newTestScorer(p, openGate(), 4).Score(context.Background(), testJob())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Score != 5 || got.WhyMe != "" {
		t.Errorf("unexpected result %+v", got)
	}
}

func TestScore_RateLimitedEveryAttemptIsAbandoned(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{err: rateLimited()}}}
	_, err := newTestScorer(p, openGate(), 4).Score(context.Background(), testJob())
	if !errors.Is(err, model.ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
	}
	if p.calls != 4 {
		t.Errorf("expected 4 attempts, got %d", p.calls)
	}
}

func TestScore_RetriesThenSucceeds(t *testing.T) {
	p := &scriptedProvider{replies: []reply{
		{err: rateLimited()},
		{err: statusError("openai", http.StatusBadGateway, 0, "bad gateway")},
		{text: `{"score": 3, "why_me": []}`},
	}}
	got, err := newTestScorer(p, openGate(), 4).Score(context.Background(), testJob())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Score != 3 || p.calls != 3 {
		t.Errorf("expected score 3 after 3 calls, got %+v after %d", got, p.calls)
	}
}

func TestScore_InvalidResponseNotRetried(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{text: `{"score": 11, "why_me": []}`}}}
	_, err := newTestScorer(p, openGate(), 4).Score(context.Background(), testJob())
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
	if p.calls != 1 {
		t.Errorf("expected 1 call, got %d", p.calls)
	}
}

func TestScore_ClientErrorNotRetried(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{err: statusError("openai", http.StatusUnauthorized, 0, "bad key")}}}
	_, err := newTestScorer(p, openGate(), 4).Score(context.Background(), testJob())
	if err == nil || p.calls != 1 {
		t.Fatalf("expected one failed call, got %v after %d", err, p.calls)
	}
}

func TestScore_PerCallTimeoutRetried(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{block: true}, {text: `{"score": 9, "why_me": ["a", "b", "c"]}`}}}
	s := newTestScorer(p, openGate(), 3)
	s.cfg.CallTimeout = 20 * time.Millisecond

	got, err := s.Score(context.Background(), testJob())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Score != 9 || p.calls != 2 {
		t.Errorf("expected success on second call, got %+v after %d", got, p.calls)
	}
}

func TestScore_CancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &scriptedProvider{replies: []reply{{block: true}}}
	s := newTestScorer(p, openGate(), 4)
	s.cfg.CallTimeout = time.Minute

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := s.Score(ctx, testJob())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if p.calls != 1 {
		t.Errorf("expected no retry after cancellation, got %d calls", p.calls)
	}
}

func TestScore_EveryAttemptPassesTheGate(t *testing.T) {
	gate := ratelimit.NewCallGate(ratelimit.GateConfig{MaxConcurrent: 1, MinInterval: 40 * time.Millisecond})
	p := &scriptedProvider{replies: []reply{{err: rateLimited()}, {err: rateLimited()}, {text: `{"score": 2, "why_me": []}`}}}

	if _, err := newTestScorer(p, gate, 4).Score(context.Background(), testJob()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 1; i < len(p.starts); i++ {
		if gap := p.starts[i].Sub(p.starts[i-1]); gap < 35*time.Millisecond {
			t.Errorf("attempt %d started %v after the previous one", i+1, gap)
		}
	}
}

func TestParseFit(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		score   int
		whyMe   string
		invalid bool
	}{
		{"low score", `{"score": 1, "why_me": []}`, 1, "", false},
		{"threshold", `{"score": 7, "why_me": ["one"]}`, 7, "• one", false},
		{"code fence", "```json\n{\"score\": 10, \"why_me\": [\"a\",\"\",\"• b\",\"c\"]}\n```", 10, "• a\n• b\n• c", false},
		{"zero", `{"score": 0, "why_me": []}`, 0, "", true},
		{"fractional", `{"score": 7.5, "why_me": ["a"]}`, 0, "", true},
		{"string score", `{"score": "8", "why_me": ["a"]}`, 0, "", true},
		{"qualifying without bullets", `{"score": 8, "why_me": []}`, 0, "", true},
		{"not json", `Score: 8`, 0, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFit(tt.raw)
			if tt.invalid {
				if !errors.Is(err, ErrInvalidResponse) {
					t.Fatalf("expected ErrInvalidResponse, got %v (%+v)", err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Score != tt.score || got.WhyMe != tt.whyMe {
				t.Errorf("got %+v, want score %d why_me %q", got, tt.score, tt.whyMe)
			}
		})
	}
}

func TestNopScorer(t *testing.T) {
	_, err := NewNopScorer().Score(context.Background(), testJob())
	if !errors.Is(err, model.ErrScoringDisabled) {
		t.Fatalf("expected ErrScoringDisabled, got %v", err)
	}
}
