package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalSources = `
sources:
  - type: remoteok
    enabled: true
`

func TestLoad_ValidConfig(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	path := writeConfig(t, `
database:
  driver: sqlite
  path: /tmp/radar.db
sources:
  - name: acme-gh
    type: Greenhouse
    board_token: acme
    company: Acme Corp
    enabled: true
  - type: lever
    board_token: globex
    company: Globex
    enabled: false
  - type: html
    url: https://jobs.example.com
    enabled: true
    remote: true
    selectors:
      item: li.job
      title: h3
      link: a
filters:
  title_keywords: [engineer]
  locations: [Remote]
  min_salary_usd: 120000
salary:
  exchange_rates:
    EUR: 1.08
scoring:
  enabled: true
  provider: openai
  model: gpt-4o-mini
  api_key: ${TEST_OPENAI_KEY}
  max_per_run: 30
notification:
  type: slack
  webhook_url: https://hooks.slack.com/services/T000/B000/XXX
rate_limit:
  min_delay: 3s
  overrides:
    greenhouse: 10s
timeouts:
  source: 90s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Database.Path != "/tmp/radar.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if len(cfg.Sources) != 3 {
		t.Fatalf("Sources = %d, want 3", len(cfg.Sources))
	}
	if cfg.Sources[0].Type != "greenhouse" {
		t.Errorf("source type not lower-cased: %q", cfg.Sources[0].Type)
	}
	if cfg.Sources[1].Name != "lever-globex" {
		t.Errorf("default source name = %q, want lever-globex", cfg.Sources[1].Name)
	}
	if got := cfg.EnabledSources(); len(got) != 2 {
		t.Errorf("EnabledSources = %d, want 2", len(got))
	}
	if cfg.Sources[2].Selectors.Item != "li.job" || !cfg.Sources[2].Remote {
		t.Errorf("html source = %+v", cfg.Sources[2])
	}
	if cfg.Filters.MinSalaryUSD != 120000 {
		t.Errorf("MinSalaryUSD = %d", cfg.Filters.MinSalaryUSD)
	}
	if cfg.Salary.ExchangeRates["EUR"] != 1.08 {
		t.Errorf("ExchangeRates = %v", cfg.Salary.ExchangeRates)
	}
	if cfg.Scoring.APIKey != "sk-test" {
		t.Errorf("APIKey = %q, want expanded env var", cfg.Scoring.APIKey)
	}
	if cfg.Scoring.BaseURL != defaultOpenAIBaseURL {
		t.Errorf("BaseURL = %q", cfg.Scoring.BaseURL)
	}
	if cfg.Scoring.MaxPerRun != 30 {
		t.Errorf("MaxPerRun = %d", cfg.Scoring.MaxPerRun)
	}
	if cfg.RateLimit.MinDelayFor("greenhouse") != 10*time.Second {
		t.Errorf("greenhouse delay = %v", cfg.RateLimit.MinDelayFor("greenhouse"))
	}
	if cfg.RateLimit.MinDelayFor("lever") != 3*time.Second {
		t.Errorf("lever delay = %v", cfg.RateLimit.MinDelayFor("lever"))
	}
	if cfg.Timeouts.Source != 90*time.Second {
		t.Errorf("Timeouts.Source = %v", cfg.Timeouts.Source)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalSources))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Database.Driver != "sqlite" || cfg.Database.Path != "jobs.db" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Notification.Type != "log" {
		t.Errorf("Notification.Type = %q", cfg.Notification.Type)
	}
	if cfg.Dedup.Threshold != 0.90 || cfg.Dedup.AmbiguityMargin != 0.02 {
		t.Errorf("Dedup = %+v", cfg.Dedup)
	}
	s := cfg.Scoring
	if s.MaxConcurrent != 1 || s.RequestsPerMinute != 3 || s.MinInterval != 20*time.Second {
		t.Errorf("scoring gate defaults = %+v", s)
	}
	if s.MaxAttempts != 4 || s.BaseBackoff != 20*time.Second {
		t.Errorf("scoring retry defaults = %+v", s)
	}
	if cfg.Schedule.Cron != "0 7,19 * * *" {
		t.Errorf("Schedule.Cron = %q", cfg.Schedule.Cron)
	}
	if cfg.RateLimit.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d", cfg.RateLimit.MaxRetries)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err == nil {
		t.Fatal("Load: expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "sources: [broken"))
	if err == nil {
		t.Fatal("Load: expected error for invalid YAML")
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "no enabled sources",
			content: "sources:\n  - type: remoteok\n    enabled: false\n",
			wantErr: "at least one source",
		},
		{
			name:    "unknown source type",
			content: "sources:\n  - type: monster\n    enabled: true\n",
			wantErr: "unsupported type",
		},
		{
			name:    "greenhouse without token",
			content: "sources:\n  - type: greenhouse\n    company: Acme\n    enabled: true\n",
			wantErr: "board_token",
		},
		{
			name:    "html without selectors",
			content: "sources:\n  - type: html\n    url: https://x\n    enabled: true\n",
			wantErr: "selectors.item",
		},
		{
			name:    "duplicate names",
			content: "sources:\n  - type: remoteok\n    enabled: true\n  - type: remoteok\n    enabled: true\n",
			wantErr: "duplicate source name",
		},
		{
			name:    "bad duration",
			content: minimalSources + "timeouts:\n  source: soon\n",
			wantErr: "timeouts.source",
		},
		{
			name:    "slack webhook",
			content: minimalSources + "notification:\n  type: slack\n  webhook_url: https://example.com\n",
			wantErr: "hooks.slack.com",
		},
		{
			name:    "discord webhook",
			content: minimalSources + "notification:\n  type: discord\n  webhook_url: https://example.com\n",
			wantErr: "discord",
		},
		{
			name:    "postgres without dsn",
			content: minimalSources + "database:\n  driver: postgres\n",
			wantErr: "database.dsn",
		},
		{
			name:    "scoring without key",
			content: minimalSources + "scoring:\n  enabled: true\n  model: gpt-4o-mini\n",
			wantErr: "scoring.api_key",
		},
		{
			name:    "scoring spacing exceeds quota",
			content: minimalSources + "scoring:\n  enabled: true\n  model: m\n  api_key: k\n  min_interval: 5s\n",
			wantErr: "min_interval",
		},
		{
			name:    "scoring above provider ceiling",
			content: minimalSources + "scoring:\n  enabled: true\n  model: m\n  api_key: k\n  requests_per_minute: 30\n  min_interval: 2s\n",
			wantErr: "requests_per_minute",
		},
		{
			name:    "scoring concurrency too high",
			content: minimalSources + "scoring:\n  enabled: true\n  model: m\n  api_key: k\n  max_concurrent: 10\n",
			wantErr: "max_concurrent",
		},
		{
			name:    "bad exchange rate",
			content: minimalSources + "salary:\n  exchange_rates:\n    EUR: 0\n",
			wantErr: "exchange_rates",
		},
		{
			name:    "threshold out of range",
			content: minimalSources + "dedup:\n  threshold: 1.5\n",
			wantErr: "dedup.threshold",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_ScoringBelowCeiling(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalSources+`
scoring:
  enabled: true
  model: m
  api_key: k
  requests_per_minute: 2
  min_interval: 30s
  max_concurrent: 3
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scoring.RequestsPerMinute != 2 || cfg.Scoring.MaxConcurrent != 3 {
		t.Errorf("scoring = %+v", cfg.Scoring)
	}
}

func TestLoad_AdzunaCredentialsOptional(t *testing.T) {
	cfg, err := Load(writeConfig(t, "sources:\n  - type: adzuna\n    country: gb\n    app_id: ${UNSET_ADZUNA_ID}\n    enabled: true\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sources[0].AppID != "" {
		t.Errorf("AppID = %q, want empty", cfg.Sources[0].AppID)
	}
}
