// Package store persists canonical jobs. SQLite is the default backend;
// PostgreSQL and an in-memory store implement the same model.JobStore.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/amishk599/jobradar/internal/config"
	"github.com/amishk599/jobradar/internal/model"
)

// Open returns the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (model.JobStore, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLiteStore(cfg.Path, logger)
	case "postgres":
		return NewPostgresStore(ctx, cfg.DSN, logger)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// column is an additive migration. Columns are only ever appended to this
// list; existing rows get NULL or the default.
type column struct {
	name         string
	sqliteType   string
	postgresType string
}

var migrations = []column{
	{"why_me", "TEXT", "TEXT"},
	{"salary_currency_original", "TEXT", "TEXT"},
	{"notified", "INTEGER NOT NULL DEFAULT 0", "BOOLEAN NOT NULL DEFAULT FALSE"},
}

// selectColumns is the column order every scan function expects.
const selectColumns = `id, dedup_key, source, external_id, title, company, location, remote,
	compensation, description, url, posted_at, normalized_title, normalized_company,
	normalized_location, salary_min_annual_usd, salary_max_annual_usd, salary_currency_original,
	first_seen_source, merged_sources, fit_score, why_me, notified, first_seen_at, last_seen_at`

// ErrCorruptRow marks a stored row that was read but could not be decoded.
// Listings skip such rows; the store itself is still usable.
var ErrCorruptRow = errors.New("corrupt row")

func corrupt(id string, err error) error {
	return fmt.Errorf("job %s: %w: %w", id, ErrCorruptRow, err)
}

// readErr wraps a row read failure: decode problems keep ErrCorruptRow,
// everything else means the store is unavailable.
func readErr(op string, err error) error {
	if errors.Is(err, ErrCorruptRow) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return unavailable(op, err)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, model.ErrStoreUnavailable, err)
}

// unionSources merges two source lists into a sorted set.
func unionSources(a, b []string) []string {
	out := slices.Concat(a, b)
	slices.Sort(out)
	return slices.Compact(out)
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// validate rejects jobs that would break the table's invariants.
func validate(job model.CanonicalJob) error {
	if job.ID == "" || job.DedupKey == "" {
		return fmt.Errorf("canonical job needs an id and a dedup key (id=%q)", job.ID)
	}
	return nil
}
