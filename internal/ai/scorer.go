package ai

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tidwall/gjson"

	"github.com/amishk599/jobradar/internal/model"
	"github.com/amishk599/jobradar/internal/ratelimit"
	"github.com/amishk599/jobradar/internal/retry"
)

//go:embed prompts/fit_score.md
var fitScorePromptRaw string

// FitScoreTemplate is the parsed prompt template for fit scoring.
// Parsed once at package init; reused on every Score call.
var FitScoreTemplate = template.Must(template.New("fit_score").Parse(fitScorePromptRaw))

// maxDescriptionRunes bounds the posting text sent to the model.
const maxDescriptionRunes = 6000

// ScorerConfig holds the per-call timeout and retry policy of a Scorer.
type ScorerConfig struct {
	CallTimeout time.Duration // one model call, default 60s
	MaxAttempts int           // total attempts per job, default 4
	BaseBackoff time.Duration // delay before the first retry, doubled each time
}

// Scorer implements model.FitScorer on top of an LLMProvider. Every
// attempt, retries included, passes through the CallGate so the provider
// quota is never exceeded.
type Scorer struct {
	provider LLMProvider
	gate     *ratelimit.CallGate
	tmpl     *template.Template
	profile  string
	cfg      ScorerConfig
	logger   *slog.Logger
}

// NewScorer creates a scorer for the given candidate profile.
func NewScorer(provider LLMProvider, gate *ratelimit.CallGate, profile string, cfg ScorerConfig, logger *slog.Logger) *Scorer {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4
	}
	return &Scorer{
		provider: provider,
		gate:     gate,
		tmpl:     FitScoreTemplate,
		profile:  profile,
		cfg:      cfg,
		logger:   logger,
	}
}

type promptData struct {
	Profile     string
	Title       string
	Company     string
	Location    string
	Remote      bool
	Salary      string
	Description string
}

// Score rates job against the profile. Rate limiting, 5xx and per-call
// timeouts are retried with backoff; an invalid reply or a cancelled ctx
// abandons the job, which the caller leaves unscored.
func (s *Scorer) Score(ctx context.Context, job model.CanonicalJob) (model.FitResult, error) {
	prompt, err := s.render(job)
	if err != nil {
		return model.FitResult{}, err
	}

	logger := s.logger.With("job_id", job.ID)
	policy := retry.Policy{
		MaxAttempts: s.cfg.MaxAttempts,
		BaseDelay:   s.cfg.BaseBackoff,
		Retryable:   func(err error) bool { return retryable(ctx, err) },
	}

	return retry.Do(ctx, policy, logger, func(ctx context.Context) (model.FitResult, error) {
		return s.attempt(ctx, prompt)
	})
}

// attempt makes one gated model call.
func (s *Scorer) attempt(ctx context.Context, prompt string) (model.FitResult, error) {
	release, err := s.gate.Acquire(ctx)
	if err != nil {
		return model.FitResult{}, err
	}
	defer release()

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	raw, err := s.provider.Complete(callCtx, prompt)
	if err != nil {
		return model.FitResult{}, fmt.Errorf("llm complete: %w", err)
	}
	return ParseFit(raw)
}

func (s *Scorer) render(job model.CanonicalJob) (string, error) {
	data := promptData{
		Profile:     s.profile,
		Title:       job.Title,
		Company:     job.Company,
		Location:    job.Location,
		Remote:      job.Remote,
		Salary:      salaryLine(job.NormalizedJob),
		Description: truncateRunes(job.Description, maxDescriptionRunes),
	}
	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

// retryable reports whether a failed attempt is worth repeating. A deadline
// only counts as a per-call timeout while the caller's ctx is still alive.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, ErrInvalidResponse) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, model.ErrRateLimitExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500
	}
	// Transport failures (connection reset, DNS).
	return true
}

// ParseFit validates a model reply: score must be an integer in [1,10] and
// a qualifying score needs at least one why_me bullet. Only the first three
// non-empty bullets are kept.
func ParseFit(raw string) (model.FitResult, error) {
	raw = stripCodeFence(raw)
	if !gjson.Valid(raw) {
		return model.FitResult{}, fmt.Errorf("%w: not JSON: %q", ErrInvalidResponse, truncateRunes(raw, 120))
	}

	scoreField := gjson.Get(raw, "score")
	if scoreField.Type != gjson.Number {
		return model.FitResult{}, fmt.Errorf("%w: missing numeric score", ErrInvalidResponse)
	}
	score := int(scoreField.Int())
	if float64(score) != scoreField.Float() || score < 1 || score > 10 {
		return model.FitResult{}, fmt.Errorf("%w: score %v outside 1..10", ErrInvalidResponse, scoreField.Raw)
	}

	result := model.FitResult{Score: score}
	if score < model.QualifyingScore {
		return result, nil
	}

	var bullets []string
	for _, b := range gjson.Get(raw, "why_me").Array() {
		text := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(b.String()), "•-*"))
		if text == "" {
			continue
		}
		bullets = append(bullets, "• "+text)
		if len(bullets) == 3 {
			break
		}
	}
	if len(bullets) == 0 {
		return model.FitResult{}, fmt.Errorf("%w: score %d without why_me", ErrInvalidResponse, score)
	}
	result.WhyMe = strings.Join(bullets, "\n")
	return result, nil
}

// stripCodeFence removes a ```json ... ``` wrapper some models add despite
// being asked for bare JSON.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func salaryLine(j model.NormalizedJob) string {
	switch {
	case j.SalaryMinAnnualUSD != nil && j.SalaryMaxAnnualUSD != nil:
		if *j.SalaryMinAnnualUSD == *j.SalaryMaxAnnualUSD {
			return "$" + humanize.Comma(*j.SalaryMinAnnualUSD) + " per year"
		}
		return "$" + humanize.Comma(*j.SalaryMinAnnualUSD) + " - $" + humanize.Comma(*j.SalaryMaxAnnualUSD) + " per year"
	case j.Compensation.Text != "":
		return j.Compensation.Text
	}
	return ""
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
