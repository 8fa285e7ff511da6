package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for jobradar.
type Config struct {
	Database     DatabaseConfig
	Sources      []SourceConfig
	Filters      FilterConfig
	Salary       SalaryConfig
	Dedup        DedupConfig
	Scoring      ScoringConfig
	Notification NotificationConfig
	RateLimit    RateLimitConfig
	Schedule     ScheduleConfig
	Timeouts     TimeoutConfig
}

// DatabaseConfig selects the persistence backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" (default), "postgres" or "memory"
	Path   string `yaml:"path"`   // sqlite file, default "jobs.db"
	DSN    string `yaml:"dsn"`    // postgres connection string
}

// SourceConfig describes one source adapter instance. Which fields matter
// depends on Type.
type SourceConfig struct {
	Name       string    `yaml:"name"`
	Type       string    `yaml:"type"`
	Enabled    bool      `yaml:"enabled"`
	Company    string    `yaml:"company"`
	BoardToken string    `yaml:"board_token"` // greenhouse, lever, ashby, gem
	URL        string    `yaml:"url"`         // workday, rss, html
	AppID      string    `yaml:"app_id"`      // adzuna
	AppKey     string    `yaml:"app_key"`     // adzuna
	Country    string    `yaml:"country"`     // adzuna
	Query      string    `yaml:"query"`
	Location   string    `yaml:"location"`
	Remote     bool      `yaml:"remote"`   // rss, html: every posting is remote
	Currency   string    `yaml:"currency"` // default currency for bare salary figures
	MaxPages   int       `yaml:"max_pages"`
	Limit      int       `yaml:"limit"`
	Selectors  Selectors `yaml:"selectors"` // html
}

// Selectors are the CSS selectors of the html source type. Item is required;
// the rest are relative to each item.
type Selectors struct {
	Item        string `yaml:"item"`
	Title       string `yaml:"title"`
	Company     string `yaml:"company"`
	Location    string `yaml:"location"`
	Link        string `yaml:"link"`
	Salary      string `yaml:"salary"`
	Description string `yaml:"description"`
}

// FilterConfig holds keyword, location and salary filter settings.
type FilterConfig struct {
	TitleKeywords        []string
	TitleExcludeKeywords []string
	Locations            []string
	ExcludeLocations     []string
	MinSalaryUSD         int64
}

// SalaryConfig holds the optional static exchange rates (USD per unit).
type SalaryConfig struct {
	ExchangeRates map[string]float64
}

// DedupConfig tunes fuzzy matching.
type DedupConfig struct {
	Threshold       float64
	AmbiguityMargin float64
}

// ScoringConfig controls the language-model fit scorer.
type ScoringConfig struct {
	Enabled           bool
	Provider          string // "openai" or "gemini"
	BaseURL           string // openai-compatible endpoint
	Model             string
	APIKey            string // expanded from env var by Load
	ProfilePath       string
	Timeout           time.Duration // per call
	MaxConcurrent     int
	MinInterval       time.Duration
	RequestsPerMinute int
	MaxAttempts       int
	BaseBackoff       time.Duration
	MaxPerRun         int
}

// NotificationConfig controls which notifier is used and its settings.
type NotificationConfig struct {
	Type       string // "log", "slack" or "discord"
	WebhookURL string
}

// RateLimitConfig controls per-backend source politeness.
type RateLimitConfig struct {
	MinDelay   time.Duration            // minimum gap between requests to the same backend
	Overrides  map[string]time.Duration // per-backend overrides, keyed by source type
	MaxRetries int
	RetryDelay time.Duration
}

// MinDelayFor returns the configured delay for the given source type,
// falling back to MinDelay.
func (r RateLimitConfig) MinDelayFor(sourceType string) time.Duration {
	if d, ok := r.Overrides[sourceType]; ok {
		return d
	}
	return r.MinDelay
}

// ScheduleConfig controls the start daemon.
type ScheduleConfig struct {
	Cron       string
	RunOnStart bool
}

// TimeoutConfig holds per-operation timeouts.
type TimeoutConfig struct {
	Source time.Duration // one source fetch, retries included
	HTTP   time.Duration // one HTTP request
	Notify time.Duration // one alert delivery
}

// Scoring quota ceilings. The model provider allows three calls a minute;
// configuration may lower these but never raise them.
const (
	MaxScoringRequestsPerMinute = 3
	MaxScoringConcurrent        = 3
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultCron          = "0 7,19 * * *"
)

// rawConfig is used for YAML unmarshaling (snake_case fields and durations as strings).
type rawConfig struct {
	Database     DatabaseConfig        `yaml:"database"`
	Sources      []SourceConfig        `yaml:"sources"`
	Filters      rawFilterConfig       `yaml:"filters"`
	Salary       rawSalaryConfig       `yaml:"salary"`
	Dedup        rawDedupConfig        `yaml:"dedup"`
	Scoring      rawScoringConfig      `yaml:"scoring"`
	Notification rawNotificationConfig `yaml:"notification"`
	RateLimit    rawRateLimitConfig    `yaml:"rate_limit"`
	Schedule     rawScheduleConfig     `yaml:"schedule"`
	Timeouts     rawTimeoutConfig      `yaml:"timeouts"`
}

type rawFilterConfig struct {
	TitleKeywords        []string `yaml:"title_keywords"`
	TitleExcludeKeywords []string `yaml:"title_exclude_keywords"`
	Locations            []string `yaml:"locations"`
	ExcludeLocations     []string `yaml:"exclude_locations"`
	MinSalaryUSD         int64    `yaml:"min_salary_usd"`
}

type rawSalaryConfig struct {
	ExchangeRates map[string]float64 `yaml:"exchange_rates"`
}

type rawDedupConfig struct {
	Threshold       *float64 `yaml:"threshold"`
	AmbiguityMargin *float64 `yaml:"ambiguity_margin"`
}

type rawScoringConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Provider          string `yaml:"provider"`
	BaseURL           string `yaml:"base_url"`
	Model             string `yaml:"model"`
	APIKey            string `yaml:"api_key"`
	ProfilePath       string `yaml:"profile_path"`
	Timeout           string `yaml:"timeout"`
	MaxConcurrent     int    `yaml:"max_concurrent"`
	MinInterval       string `yaml:"min_interval"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	MaxAttempts       int    `yaml:"max_attempts"`
	BaseBackoff       string `yaml:"base_backoff"`
	MaxPerRun         int    `yaml:"max_per_run"`
}

type rawNotificationConfig struct {
	Type       string `yaml:"type"`
	WebhookURL string `yaml:"webhook_url"`
}

type rawRateLimitConfig struct {
	MinDelay   string            `yaml:"min_delay"`
	Overrides  map[string]string `yaml:"overrides"`
	MaxRetries *int              `yaml:"max_retries"`
	RetryDelay string            `yaml:"retry_delay"`
}

type rawScheduleConfig struct {
	Cron       string `yaml:"cron"`
	RunOnStart bool   `yaml:"run_on_start"`
}

type rawTimeoutConfig struct {
	Source string `yaml:"source"`
	HTTP   string `yaml:"http"`
	Notify string `yaml:"notify"`
}

// Load reads and parses the YAML config file at path, validates it, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse expands environment variables in data, then parses and validates it.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	p := durationParser{}
	cfg := &Config{
		Database: raw.Database,
		Sources:  raw.Sources,
		Filters: FilterConfig{
			TitleKeywords:        raw.Filters.TitleKeywords,
			TitleExcludeKeywords: raw.Filters.TitleExcludeKeywords,
			Locations:            raw.Filters.Locations,
			ExcludeLocations:     raw.Filters.ExcludeLocations,
			MinSalaryUSD:         raw.Filters.MinSalaryUSD,
		},
		Salary: SalaryConfig{ExchangeRates: raw.Salary.ExchangeRates},
		Dedup: DedupConfig{
			Threshold:       floatOr(raw.Dedup.Threshold, 0.90),
			AmbiguityMargin: floatOr(raw.Dedup.AmbiguityMargin, 0.02),
		},
		Scoring: ScoringConfig{
			Enabled:           raw.Scoring.Enabled,
			Provider:          strings.ToLower(stringOr(raw.Scoring.Provider, "openai")),
			BaseURL:           raw.Scoring.BaseURL,
			Model:             raw.Scoring.Model,
			APIKey:            raw.Scoring.APIKey,
			ProfilePath:       stringOr(raw.Scoring.ProfilePath, "profile.md"),
			Timeout:           p.parse("scoring.timeout", raw.Scoring.Timeout, 60*time.Second),
			MaxConcurrent:     intOr(raw.Scoring.MaxConcurrent, 1),
			MinInterval:       p.parse("scoring.min_interval", raw.Scoring.MinInterval, 20*time.Second),
			RequestsPerMinute: intOr(raw.Scoring.RequestsPerMinute, 3),
			MaxAttempts:       intOr(raw.Scoring.MaxAttempts, 4),
			BaseBackoff:       p.parse("scoring.base_backoff", raw.Scoring.BaseBackoff, 20*time.Second),
			MaxPerRun:         raw.Scoring.MaxPerRun,
		},
		Notification: NotificationConfig{
			Type:       strings.ToLower(stringOr(raw.Notification.Type, "log")),
			WebhookURL: raw.Notification.WebhookURL,
		},
		RateLimit: RateLimitConfig{
			MinDelay:   p.parse("rate_limit.min_delay", raw.RateLimit.MinDelay, 2*time.Second),
			Overrides:  make(map[string]time.Duration),
			MaxRetries: 2,
			RetryDelay: p.parse("rate_limit.retry_delay", raw.RateLimit.RetryDelay, 5*time.Second),
		},
		Schedule: ScheduleConfig{
			Cron:       stringOr(raw.Schedule.Cron, defaultCron),
			RunOnStart: raw.Schedule.RunOnStart,
		},
		Timeouts: TimeoutConfig{
			Source: p.parse("timeouts.source", raw.Timeouts.Source, 2*time.Minute),
			HTTP:   p.parse("timeouts.http", raw.Timeouts.HTTP, 30*time.Second),
			Notify: p.parse("timeouts.notify", raw.Timeouts.Notify, 15*time.Second),
		},
	}
	if raw.RateLimit.MaxRetries != nil {
		cfg.RateLimit.MaxRetries = *raw.RateLimit.MaxRetries
	}
	for typ, s := range raw.RateLimit.Overrides {
		cfg.RateLimit.Overrides[typ] = p.parse(fmt.Sprintf("rate_limit.overrides[%q]", typ), s, 0)
	}
	if cfg.Scoring.BaseURL == "" && cfg.Scoring.Provider == "openai" {
		cfg.Scoring.BaseURL = defaultOpenAIBaseURL
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.Driver == "sqlite" && cfg.Database.Path == "" {
		cfg.Database.Path = "jobs.db"
	}
	for i := range cfg.Sources {
		s := &cfg.Sources[i]
		s.Type = strings.ToLower(s.Type)
		if s.Name == "" {
			s.Name = defaultSourceName(*s)
		}
	}

	if p.err != nil {
		return nil, p.err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EnabledSources returns the sources with enabled set.
func (c *Config) EnabledSources() []SourceConfig {
	var out []SourceConfig
	for _, s := range c.Sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// durationParser keeps the first parse error so Parse can build the whole
// config in one expression.
type durationParser struct {
	err error
}

func (p *durationParser) parse(field, value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		if p.err == nil {
			p.err = fmt.Errorf("parse %s %q: %w", field, value, err)
		}
		return def
	}
	return d
}

func stringOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func intOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func defaultSourceName(s SourceConfig) string {
	switch {
	case s.BoardToken != "":
		return s.Type + "-" + s.BoardToken
	case s.Company != "":
		return s.Type + "-" + strings.ToLower(strings.ReplaceAll(s.Company, " ", "-"))
	default:
		return s.Type
	}
}

// SourceTypes lists the supported values of sources[].type.
var SourceTypes = []string{
	"greenhouse", "lever", "ashby", "gem", "workday", "microsoft",
	"adzuna", "arbeitnow", "remoteok", "remotive", "jobicy", "rss", "html",
}

func validate(cfg *Config) error {
	names := make(map[string]bool)
	enabled := 0
	for _, s := range cfg.Sources {
		if names[s.Name] {
			return fmt.Errorf("duplicate source name %q", s.Name)
		}
		names[s.Name] = true
		if !s.Enabled {
			continue
		}
		enabled++
		if err := validateSource(s); err != nil {
			return err
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one source must be enabled")
	}

	switch cfg.Database.Driver {
	case "sqlite", "memory":
	case "postgres":
		if cfg.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required when driver is \"postgres\"")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", cfg.Database.Driver)
	}

	if cfg.Dedup.Threshold <= 0 || cfg.Dedup.Threshold >= 1 {
		return fmt.Errorf("dedup.threshold must be in (0, 1), got %v", cfg.Dedup.Threshold)
	}
	if cfg.Dedup.AmbiguityMargin < 0 || cfg.Dedup.Threshold+cfg.Dedup.AmbiguityMargin >= 1 {
		return fmt.Errorf("dedup.ambiguity_margin %v out of range", cfg.Dedup.AmbiguityMargin)
	}

	for code, rate := range cfg.Salary.ExchangeRates {
		if rate <= 0 {
			return fmt.Errorf("salary.exchange_rates[%q] must be positive", code)
		}
	}

	switch cfg.Notification.Type {
	case "log":
	case "slack":
		if !strings.HasPrefix(cfg.Notification.WebhookURL, "https://hooks.slack.com/") {
			return fmt.Errorf("notification.webhook_url must start with https://hooks.slack.com/")
		}
	case "discord":
		if !strings.HasPrefix(cfg.Notification.WebhookURL, "https://discord.com/api/webhooks/") &&
			!strings.HasPrefix(cfg.Notification.WebhookURL, "https://discordapp.com/api/webhooks/") {
			return fmt.Errorf("notification.webhook_url must be a discord webhook URL")
		}
	default:
		return fmt.Errorf("unsupported notification.type %q", cfg.Notification.Type)
	}

	if cfg.Scoring.Enabled {
		if cfg.Scoring.APIKey == "" {
			return fmt.Errorf("scoring.api_key is required when scoring.enabled is true")
		}
		if cfg.Scoring.Model == "" {
			return fmt.Errorf("scoring.model is required when scoring.enabled is true")
		}
		switch cfg.Scoring.Provider {
		case "openai", "gemini":
		default:
			return fmt.Errorf("unsupported scoring.provider %q", cfg.Scoring.Provider)
		}
		if cfg.Scoring.RequestsPerMinute > MaxScoringRequestsPerMinute {
			return fmt.Errorf("scoring.requests_per_minute %d exceeds the provider ceiling of %d",
				cfg.Scoring.RequestsPerMinute, MaxScoringRequestsPerMinute)
		}
		if cfg.Scoring.MaxConcurrent > MaxScoringConcurrent {
			return fmt.Errorf("scoring.max_concurrent %d exceeds %d", cfg.Scoring.MaxConcurrent, MaxScoringConcurrent)
		}
		// Spacing alone must keep calls under the per-minute quota.
		if cfg.Scoring.RequestsPerMinute > 0 && cfg.Scoring.MinInterval < time.Minute/time.Duration(cfg.Scoring.RequestsPerMinute) {
			return fmt.Errorf("scoring.min_interval %v is shorter than one minute / requests_per_minute", cfg.Scoring.MinInterval)
		}
	}

	return nil
}

func validateSource(s SourceConfig) error {
	need := func(field, value string) error {
		if value == "" {
			return fmt.Errorf("source %q: %s is required for type %q", s.Name, field, s.Type)
		}
		return nil
	}

	switch s.Type {
	case "greenhouse", "lever", "ashby", "gem":
		if err := need("board_token", s.BoardToken); err != nil {
			return err
		}
		return need("company", s.Company)
	case "workday":
		if err := need("url", s.URL); err != nil {
			return err
		}
		return need("company", s.Company)
	case "rss":
		return need("url", s.URL)
	case "html":
		if err := need("url", s.URL); err != nil {
			return err
		}
		if err := need("selectors.item", s.Selectors.Item); err != nil {
			return err
		}
		return need("selectors.title", s.Selectors.Title)
	case "microsoft", "adzuna", "arbeitnow", "remoteok", "remotive", "jobicy":
		// adzuna credentials are checked at fetch time so a missing key
		// fails that source only.
		return nil
	default:
		return fmt.Errorf("source %q: unsupported type %q", s.Name, s.Type)
	}
}
