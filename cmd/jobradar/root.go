package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/amishk599/jobradar/internal/adapter"
	"github.com/amishk599/jobradar/internal/ai"
	"github.com/amishk599/jobradar/internal/config"
	"github.com/amishk599/jobradar/internal/dedup"
	"github.com/amishk599/jobradar/internal/filter"
	"github.com/amishk599/jobradar/internal/model"
	"github.com/amishk599/jobradar/internal/notifier"
	"github.com/amishk599/jobradar/internal/pipeline"
	"github.com/amishk599/jobradar/internal/ratelimit"
	"github.com/amishk599/jobradar/internal/retry"
	"github.com/amishk599/jobradar/internal/salary"
	"github.com/amishk599/jobradar/internal/store"
)

var (
	cfgPath string
	debug   bool
	jsonLog bool
)

var rootCmd = &cobra.Command{
	Use:   "jobradar",
	Short: "Job radar: aggregate, dedupe, score and alert",
	Long: "jobradar pulls postings from job boards and aggregators, merges duplicates " +
		"into canonical jobs, scores them against your profile and alerts you to the good ones.",
	SilenceUsage: true,
	// Without a subcommand, do a single run.
	RunE: runOnce,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: JOBRADAR_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLog, "json", false, "log as JSON instead of text")
}

// loadConfig resolves the config path and parses it. A .env file next to
// the binary is loaded first so secrets can be referenced as ${VAR}.
// Priority: explicit path arg > JOBRADAR_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if path == "" {
		if env := os.Getenv("JOBRADAR_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func setupLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		opts.Level = slog.LevelDebug
	}
	if jsonLog {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// buildSources creates every enabled source, rate limited per backend type
// and retried on transient failures.
func buildSources(cfg *config.Config, client *http.Client, logger *slog.Logger) ([]model.Source, error) {
	limiters := make(map[string]*ratelimit.KeyedLimiter)
	var sources []model.Source
	for _, sc := range cfg.EnabledSources() {
		src, err := adapter.New(sc, client)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", sc.Name, err)
		}
		lim, ok := limiters[sc.Type]
		if !ok {
			lim = ratelimit.NewKeyedLimiter(cfg.RateLimit.MinDelayFor(sc.Type))
			limiters[sc.Type] = lim
		}
		src = ratelimit.NewRateLimitedSource(src, lim, sc.Type)
		src = retry.NewRetrySource(src, cfg.RateLimit.MaxRetries, cfg.RateLimit.RetryDelay, logger)
		sources = append(sources, src)
		logger.Debug("registered source", "name", sc.Name, "type", sc.Type)
	}
	return sources, nil
}

// setupScorer returns the configured language-model scorer, or a scorer
// that leaves every job unscored when scoring is off.
func setupScorer(ctx context.Context, cfg config.ScoringConfig, client *http.Client, logger *slog.Logger) (model.FitScorer, error) {
	if !cfg.Enabled {
		logger.Info("fit scoring disabled")
		return ai.NewNopScorer(), nil
	}
	profile, err := os.ReadFile(cfg.ProfilePath)
	if err != nil {
		return nil, fmt.Errorf("read candidate profile: %w", err)
	}
	if strings.TrimSpace(string(profile)) == "" {
		return nil, fmt.Errorf("candidate profile %s is empty", cfg.ProfilePath)
	}

	var provider ai.LLMProvider
	switch cfg.Provider {
	case "gemini":
		p, err := ai.NewGeminiProvider(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		provider = p
	case "openai":
		provider = ai.NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.Model, client)
	default:
		return nil, fmt.Errorf("unsupported scoring provider %q", cfg.Provider)
	}

	gate := ratelimit.NewCallGate(ratelimit.GateConfig{
		MaxConcurrent: cfg.MaxConcurrent,
		MinInterval:   cfg.MinInterval,
		PerWindow:     cfg.RequestsPerMinute,
	})
	logger.Info("fit scoring enabled",
		"provider", cfg.Provider,
		"model", cfg.Model,
		"requests_per_minute", cfg.RequestsPerMinute,
		"min_interval", cfg.MinInterval.String(),
	)
	return ai.NewScorer(provider, gate, string(profile), ai.ScorerConfig{
		CallTimeout: cfg.Timeout,
		MaxAttempts: cfg.MaxAttempts,
		BaseBackoff: cfg.BaseBackoff,
	}, logger), nil
}

// app is everything a run needs, built from config.
type app struct {
	pipeline *pipeline.Pipeline
	store    model.JobStore
}

func (a *app) Close() error { return a.store.Close() }

type buildOptions struct {
	dryRun bool // in-memory store, no scoring, log notifier
}

func buildApp(ctx context.Context, cfg *config.Config, opts buildOptions, logger *slog.Logger) (*app, error) {
	client := &http.Client{Timeout: cfg.Timeouts.HTTP}

	sources, err := buildSources(cfg, client, logger)
	if err != nil {
		return nil, err
	}

	dbCfg := cfg.Database
	scoring := cfg.Scoring
	notifyCfg := cfg.Notification
	if opts.dryRun {
		dbCfg = config.DatabaseConfig{Driver: "memory"}
		scoring.Enabled = false
		notifyCfg = config.NotificationConfig{Type: "log"}
	}

	scorer, err := setupScorer(ctx, scoring, client, logger)
	if err != nil {
		return nil, err
	}
	n, err := notifier.New(notifyCfg, client, logger)
	if err != nil {
		return nil, err
	}

	jobStore, err := store.Open(ctx, dbCfg, logger)
	if err != nil {
		return nil, err
	}

	p := pipeline.New(pipeline.Components{
		Sources:      sources,
		Normalizer:   salary.New(cfg.Salary.ExchangeRates),
		Filter:       filter.New(cfg.Filters),
		Deduplicator: dedup.New(cfg.Dedup.Threshold, cfg.Dedup.AmbiguityMargin),
		Store:        jobStore,
		Scorer:       scorer,
		Notifier:     n,
	}, pipeline.Options{
		SourceTimeout:   cfg.Timeouts.Source,
		NotifyTimeout:   cfg.Timeouts.Notify,
		MaxScoresPerRun: cfg.Scoring.MaxPerRun,
	}, logger)

	logger.Info("config loaded",
		"sources", len(sources),
		"database", dbCfg.Driver,
		"notifier", notifyCfg.Type,
		"title_keywords", len(cfg.Filters.TitleKeywords),
		"locations", len(cfg.Filters.Locations),
	)
	return &app{pipeline: p, store: jobStore}, nil
}
