package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amishk599/jobradar/internal/dedup"
	"github.com/amishk599/jobradar/internal/model"
)

const createPostgresTable = `CREATE TABLE IF NOT EXISTS canonical_jobs (
	id                    TEXT PRIMARY KEY,
	dedup_key             TEXT NOT NULL UNIQUE,
	source                TEXT NOT NULL,
	external_id           TEXT NOT NULL,
	title                 TEXT NOT NULL,
	company               TEXT NOT NULL,
	location              TEXT NOT NULL DEFAULT '',
	remote                BOOLEAN NOT NULL DEFAULT FALSE,
	compensation          JSONB NOT NULL DEFAULT '{}',
	description           TEXT NOT NULL DEFAULT '',
	url                   TEXT NOT NULL DEFAULT '',
	posted_at             TIMESTAMPTZ,
	normalized_title      TEXT NOT NULL,
	normalized_company    TEXT NOT NULL,
	normalized_location   TEXT NOT NULL DEFAULT '',
	salary_min_annual_usd BIGINT,
	salary_max_annual_usd BIGINT,
	first_seen_source     TEXT NOT NULL,
	merged_sources        JSONB NOT NULL DEFAULT '[]',
	fit_score             INTEGER,
	first_seen_at         TIMESTAMPTZ NOT NULL,
	last_seen_at          TIMESTAMPTZ NOT NULL
)`

// upsertPostgres merges an existing row in the same statement: the
// greater last_seen_at wins and merged_sources becomes the sorted union.
// A conflict on dedup_key is not handled and surfaces as 23505.
const upsertPostgres = `INSERT INTO canonical_jobs (
	id, dedup_key, source, external_id, title, company, location, remote,
	compensation, description, url, posted_at, normalized_title, normalized_company,
	normalized_location, salary_min_annual_usd, salary_max_annual_usd, salary_currency_original,
	first_seen_source, merged_sources, fit_score, why_me, notified, first_seen_at, last_seen_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)
ON CONFLICT (id) DO UPDATE SET
	last_seen_at = GREATEST(canonical_jobs.last_seen_at, EXCLUDED.last_seen_at),
	merged_sources = (
		SELECT jsonb_agg(DISTINCT s ORDER BY s)
		FROM jsonb_array_elements_text(canonical_jobs.merged_sources || EXCLUDED.merged_sources) AS t(s)
	)`

// PostgresStore keeps canonical jobs in PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore connects to dsn, verifies the connection and migrates
// the schema.
func NewPostgresStore(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, unavailable("pgxpool.New", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, unavailable("postgres ping failed", err)
	}

	s := &PostgresStore{pool: pool, logger: logger}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createPostgresTable); err != nil {
		return unavailable("creating canonical_jobs table", err)
	}
	for _, c := range migrations {
		stmt := fmt.Sprintf("ALTER TABLE canonical_jobs ADD COLUMN IF NOT EXISTS %s %s", c.name, c.postgresType)
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return unavailable("adding column "+c.name, err)
		}
	}
	for _, stmt := range []string{
		"CREATE INDEX IF NOT EXISTS idx_canonical_company ON canonical_jobs (normalized_company)",
		"CREATE INDEX IF NOT EXISTS idx_canonical_fit_score ON canonical_jobs (fit_score)",
	} {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return unavailable("creating index", err)
		}
	}
	return nil
}

// ListCanonical returns every canonical job ordered by first sighting.
func (s *PostgresStore) ListCanonical(ctx context.Context) ([]model.CanonicalJob, error) {
	return s.query(ctx, "listing canonical jobs",
		"SELECT "+selectColumns+" FROM canonical_jobs ORDER BY first_seen_at, id")
}

// FindByDedupKey returns model.ErrNotFound when no job has the key.
func (s *PostgresStore) FindByDedupKey(ctx context.Context, key string) (model.CanonicalJob, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+selectColumns+" FROM canonical_jobs WHERE dedup_key = $1", key)
	job, err := scanPostgres(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CanonicalJob{}, model.ErrNotFound
	}
	if err != nil {
		return model.CanonicalJob{}, readErr("finding job by dedup key", err)
	}
	return job, nil
}

// FindCandidatesForFuzzyMatch returns jobs at the same normalized company
// whose title shares a word with title.
func (s *PostgresStore) FindCandidatesForFuzzyMatch(ctx context.Context, title, company string) ([]model.CanonicalJob, error) {
	jobs, err := s.query(ctx, "finding fuzzy candidates",
		"SELECT "+selectColumns+" FROM canonical_jobs WHERE normalized_company = $1 ORDER BY first_seen_at, id", company)
	if err != nil {
		return nil, err
	}
	out := jobs[:0]
	for _, j := range jobs {
		if dedup.SharesToken(title, j.NormalizedTitle) {
			out = append(out, j)
		}
	}
	return out, nil
}

// UpsertCanonical inserts job, or for an existing ID only extends
// last_seen_at and merged_sources. A new ID whose dedup key is taken fails
// with model.ErrDuplicateKey.
func (s *PostgresStore) UpsertCanonical(ctx context.Context, job model.CanonicalJob) error {
	if err := validate(job); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, upsertPostgres,
		job.ID, job.DedupKey, job.Source, job.ExternalID, job.Title, job.Company, job.Location, job.Remote,
		job.Compensation, job.Description, job.URL, job.PostedAt, job.NormalizedTitle, job.NormalizedCompany,
		job.NormalizedLocation, job.SalaryMinAnnualUSD, job.SalaryMaxAnnualUSD, nullString(job.SalaryCurrencyOriginal),
		job.FirstSeenSource, unionSources(job.MergedSources, []string{job.FirstSeenSource}), job.FitScore,
		nullString(job.WhyMe), job.Notified, job.FirstSeenAt, job.LastSeenAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("upserting job %s (%s): %w", job.ID, pgErr.ConstraintName, model.ErrDuplicateKey)
	}
	if err != nil {
		return unavailable("upserting job "+job.ID, err)
	}
	return nil
}

// MarkScored records the fit score and why_me of a job.
func (s *PostgresStore) MarkScored(ctx context.Context, id string, score int, whyMe string) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE canonical_jobs SET fit_score = $1, why_me = $2 WHERE id = $3", score, nullString(whyMe), id)
	if err != nil {
		return unavailable("marking job "+id+" scored", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// MarkNotified flags a job as alerted. It only touches rows not yet
// notified, so repeating the call is a no-op.
func (s *PostgresStore) MarkNotified(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE canonical_jobs SET notified = TRUE WHERE id = $1 AND NOT notified", id)
	if err != nil {
		return unavailable("marking job "+id+" notified", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists int
	err = s.pool.QueryRow(ctx, "SELECT 1 FROM canonical_jobs WHERE id = $1", id).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("job %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return unavailable("checking job "+id, err)
	}
	return nil
}

// ListUnscored returns the oldest unscored jobs first. limit <= 0 means all.
func (s *PostgresStore) ListUnscored(ctx context.Context, limit int) ([]model.CanonicalJob, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	return s.query(ctx, "listing unscored jobs",
		"SELECT "+selectColumns+" FROM canonical_jobs WHERE fit_score IS NULL ORDER BY first_seen_at, id LIMIT $1", lim)
}

// ListPendingNotification returns qualifying jobs that were never alerted.
func (s *PostgresStore) ListPendingNotification(ctx context.Context) ([]model.CanonicalJob, error) {
	return s.query(ctx, "listing pending notifications",
		"SELECT "+selectColumns+" FROM canonical_jobs WHERE fit_score >= $1 AND NOT notified ORDER BY first_seen_at, id",
		model.QualifyingScore)
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) query(ctx context.Context, op, query string, args ...any) ([]model.CanonicalJob, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()

	var jobs []model.CanonicalJob
	for rows.Next() {
		job, err := scanPostgres(rows)
		if errors.Is(err, ErrCorruptRow) {
			s.logger.Warn("skipping unreadable job row", "op", op, "error", err)
			continue
		}
		if err != nil {
			return nil, unavailable(op, err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return jobs, nil
}

func scanPostgres(row pgx.Row) (model.CanonicalJob, error) {
	var (
		job             model.CanonicalJob
		currency, whyMe *string
		salaryMin       *int64
		salaryMax       *int64
	)
	err := row.Scan(
		&job.ID, &job.DedupKey, &job.Source, &job.ExternalID, &job.Title, &job.Company, &job.Location, &job.Remote,
		&job.Compensation, &job.Description, &job.URL, &job.PostedAt, &job.NormalizedTitle, &job.NormalizedCompany,
		&job.NormalizedLocation, &salaryMin, &salaryMax, &currency,
		&job.FirstSeenSource, &job.MergedSources, &job.FitScore, &whyMe, &job.Notified, &job.FirstSeenAt, &job.LastSeenAt,
	)
	var argErr pgx.ScanArgError
	if errors.As(err, &argErr) {
		return model.CanonicalJob{}, corrupt(job.ID, err)
	}
	if err != nil {
		return model.CanonicalJob{}, err
	}
	if salaryMin != nil && salaryMax != nil {
		job.SalaryMinAnnualUSD, job.SalaryMaxAnnualUSD = salaryMin, salaryMax
	}
	if currency != nil {
		job.SalaryCurrencyOriginal = *currency
	}
	if whyMe != nil {
		job.WhyMe = *whyMe
	}
	return job, nil
}
