package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/amishk599/jobradar/internal/dedup"
	"github.com/amishk599/jobradar/internal/model"
)

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const createSQLiteTable = `CREATE TABLE IF NOT EXISTS canonical_jobs (
	id                    TEXT PRIMARY KEY,
	dedup_key             TEXT NOT NULL UNIQUE,
	source                TEXT NOT NULL,
	external_id           TEXT NOT NULL,
	title                 TEXT NOT NULL,
	company               TEXT NOT NULL,
	location              TEXT NOT NULL DEFAULT '',
	remote                INTEGER NOT NULL DEFAULT 0,
	compensation          TEXT NOT NULL DEFAULT '{}',
	description           TEXT NOT NULL DEFAULT '',
	url                   TEXT NOT NULL DEFAULT '',
	posted_at             TEXT,
	normalized_title      TEXT NOT NULL,
	normalized_company    TEXT NOT NULL,
	normalized_location   TEXT NOT NULL DEFAULT '',
	salary_min_annual_usd INTEGER,
	salary_max_annual_usd INTEGER,
	first_seen_source     TEXT NOT NULL,
	merged_sources        TEXT NOT NULL DEFAULT '[]',
	fit_score             INTEGER,
	first_seen_at         TEXT NOT NULL,
	last_seen_at          TEXT NOT NULL
)`

// SQLiteStore keeps canonical jobs in a local SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and brings
// the canonical_jobs table up to the current schema.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "jobs.db"
	}
	dsn := dbPath
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, unavailable("opening sqlite db", err)
	}
	// One writer at a time; upsert transactions read before they write.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, unavailable("pinging sqlite db", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createSQLiteTable); err != nil {
		return unavailable("creating canonical_jobs table", err)
	}

	existing := map[string]bool{}
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM pragma_table_info('canonical_jobs')")
	if err != nil {
		return unavailable("reading table info", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return unavailable("reading table info", err)
		}
		existing[name] = true
	}
	rows.Close()

	for _, c := range migrations {
		if existing[c.name] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE canonical_jobs ADD COLUMN %s %s", c.name, c.sqliteType)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return unavailable("adding column "+c.name, err)
		}
		s.logger.Info("migrated store schema", "column", c.name)
	}

	for _, stmt := range []string{
		"CREATE INDEX IF NOT EXISTS idx_canonical_company ON canonical_jobs (normalized_company)",
		"CREATE INDEX IF NOT EXISTS idx_canonical_fit_score ON canonical_jobs (fit_score)",
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return unavailable("creating index", err)
		}
	}
	return nil
}

// ListCanonical returns every canonical job ordered by first sighting.
func (s *SQLiteStore) ListCanonical(ctx context.Context) ([]model.CanonicalJob, error) {
	return s.query(ctx, "listing canonical jobs",
		"SELECT "+selectColumns+" FROM canonical_jobs ORDER BY first_seen_at, id")
}

// FindByDedupKey returns model.ErrNotFound when no job has the key.
func (s *SQLiteStore) FindByDedupKey(ctx context.Context, key string) (model.CanonicalJob, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM canonical_jobs WHERE dedup_key = ?", key)
	job, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CanonicalJob{}, model.ErrNotFound
	}
	if err != nil {
		return model.CanonicalJob{}, readErr("finding job by dedup key", err)
	}
	return job, nil
}

// FindCandidatesForFuzzyMatch returns jobs at the same normalized company
// whose title shares a word with title.
func (s *SQLiteStore) FindCandidatesForFuzzyMatch(ctx context.Context, title, company string) ([]model.CanonicalJob, error) {
	jobs, err := s.query(ctx, "finding fuzzy candidates",
		"SELECT "+selectColumns+" FROM canonical_jobs WHERE normalized_company = ? ORDER BY first_seen_at, id", company)
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
func (s *SQLiteStore) UpsertCanonical(ctx context.Context, job model.CanonicalJob) error {
	if err := validate(job); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("beginning upsert", err)
	}
	defer tx.Rollback()

	var sourcesJSON, lastSeen string
	err = tx.QueryRowContext(ctx,
		"SELECT merged_sources, last_seen_at FROM canonical_jobs WHERE id = ?", job.ID).
		Scan(&sourcesJSON, &lastSeen)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := insertSQLite(ctx, tx, job); err != nil {
			return err
		}
	case err != nil:
		return unavailable("reading job "+job.ID, err)
	default:
		var existing []string
		if err := json.Unmarshal([]byte(sourcesJSON), &existing); err != nil {
			// Rewriting the column from this sighting repairs the row.
			s.logger.Warn("replacing unreadable merged_sources", "job_id", job.ID, "error", err)
			existing = nil
		}
		merged, err := encodeJSON(unionSources(existing, job.MergedSources))
		if err != nil {
			return fmt.Errorf("encoding merged_sources: %w", err)
		}
		seen := job.LastSeenAt.UTC().Format(timeLayout)
		if seen < lastSeen {
			seen = lastSeen
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE canonical_jobs SET merged_sources = ?, last_seen_at = ? WHERE id = ?",
			merged, seen, job.ID); err != nil {
			return unavailable("updating job "+job.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("committing upsert", err)
	}
	return nil
}

func insertSQLite(ctx context.Context, tx *sql.Tx, job model.CanonicalJob) error {
	comp, err := encodeJSON(job.Compensation)
	if err != nil {
		return fmt.Errorf("encoding compensation: %w", err)
	}
	sources, err := encodeJSON(unionSources(job.MergedSources, []string{job.FirstSeenSource}))
	if err != nil {
		return fmt.Errorf("encoding merged_sources: %w", err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO canonical_jobs (
		id, dedup_key, source, external_id, title, company, location, remote,
		compensation, description, url, posted_at, normalized_title, normalized_company,
		normalized_location, salary_min_annual_usd, salary_max_annual_usd, salary_currency_original,
		first_seen_source, merged_sources, fit_score, why_me, notified, first_seen_at, last_seen_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.DedupKey, job.Source, job.ExternalID, job.Title, job.Company, job.Location, job.Remote,
		comp, job.Description, job.URL, nullTime(job.PostedAt), job.NormalizedTitle, job.NormalizedCompany,
		job.NormalizedLocation, job.SalaryMinAnnualUSD, job.SalaryMaxAnnualUSD, nullString(job.SalaryCurrencyOriginal),
		job.FirstSeenSource, sources, job.FitScore, nullString(job.WhyMe), job.Notified,
		job.FirstSeenAt.UTC().Format(timeLayout), job.LastSeenAt.UTC().Format(timeLayout),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("inserting job %s: %w", job.ID, model.ErrDuplicateKey)
	}
	if err != nil {
		return unavailable("inserting job "+job.ID, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// MarkScored records the fit score and why_me of a job.
func (s *SQLiteStore) MarkScored(ctx context.Context, id string, score int, whyMe string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE canonical_jobs SET fit_score = ?, why_me = ? WHERE id = ?", score, nullString(whyMe), id)
	if err != nil {
		return unavailable("marking job "+id+" scored", err)
	}
	return requireRow(res, id)
}

// MarkNotified flags a job as alerted. It only touches rows not yet
// notified, so repeating the call is a no-op.
func (s *SQLiteStore) MarkNotified(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE canonical_jobs SET notified = 1 WHERE id = ? AND notified = 0", id)
	if err != nil {
		return unavailable("marking job "+id+" notified", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var exists int
	err = s.db.QueryRowContext(ctx, "SELECT 1 FROM canonical_jobs WHERE id = ?", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("job %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return unavailable("checking job "+id, err)
	}
	return nil
}

// ListUnscored returns the oldest unscored jobs first. limit <= 0 means all.
func (s *SQLiteStore) ListUnscored(ctx context.Context, limit int) ([]model.CanonicalJob, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.query(ctx, "listing unscored jobs",
		"SELECT "+selectColumns+" FROM canonical_jobs WHERE fit_score IS NULL ORDER BY first_seen_at, id LIMIT ?", limit)
}

// ListPendingNotification returns qualifying jobs that were never alerted.
func (s *SQLiteStore) ListPendingNotification(ctx context.Context) ([]model.CanonicalJob, error) {
	return s.query(ctx, "listing pending notifications",
		"SELECT "+selectColumns+" FROM canonical_jobs WHERE fit_score >= ? AND notified = 0 ORDER BY first_seen_at, id",
		model.QualifyingScore)
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) query(ctx context.Context, op, query string, args ...any) ([]model.CanonicalJob, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()

	var jobs []model.CanonicalJob
	for rows.Next() {
		job, err := scanSQLite(rows)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLite(row scanner) (model.CanonicalJob, error) {
	var (
		job                       model.CanonicalJob
		comp, sources             string
		postedAt, currency, whyMe sql.NullString
		salaryMin, salaryMax      sql.NullInt64
		fitScore                  sql.NullInt64
		firstSeen, lastSeen       string
	)
	err := row.Scan(
		&job.ID, &job.DedupKey, &job.Source, &job.ExternalID, &job.Title, &job.Company, &job.Location, &job.Remote,
		&comp, &job.Description, &job.URL, &postedAt, &job.NormalizedTitle, &job.NormalizedCompany,
		&job.NormalizedLocation, &salaryMin, &salaryMax, &currency,
		&job.FirstSeenSource, &sources, &fitScore, &whyMe, &job.Notified, &firstSeen, &lastSeen,
	)
	if err != nil {
		return model.CanonicalJob{}, err
	}

	if err := json.Unmarshal([]byte(comp), &job.Compensation); err != nil {
		return model.CanonicalJob{}, corrupt(job.ID, fmt.Errorf("decoding compensation: %w", err))
	}
	if err := json.Unmarshal([]byte(sources), &job.MergedSources); err != nil {
		return model.CanonicalJob{}, corrupt(job.ID, fmt.Errorf("decoding merged_sources: %w", err))
	}
	if postedAt.Valid {
		t, err := time.Parse(timeLayout, postedAt.String)
		if err != nil {
			return model.CanonicalJob{}, corrupt(job.ID, fmt.Errorf("parsing posted_at: %w", err))
		}
		job.PostedAt = &t
	}
	if job.FirstSeenAt, err = time.Parse(timeLayout, firstSeen); err != nil {
		return model.CanonicalJob{}, corrupt(job.ID, fmt.Errorf("parsing first_seen_at: %w", err))
	}
	if job.LastSeenAt, err = time.Parse(timeLayout, lastSeen); err != nil {
		return model.CanonicalJob{}, corrupt(job.ID, fmt.Errorf("parsing last_seen_at: %w", err))
	}
	if salaryMin.Valid && salaryMax.Valid {
		job.SalaryMinAnnualUSD, job.SalaryMaxAnnualUSD = &salaryMin.Int64, &salaryMax.Int64
	}
	if fitScore.Valid {
		score := int(fitScore.Int64)
		job.FitScore = &score
	}
	job.SalaryCurrencyOriginal = currency.String
	job.WhyMe = whyMe.String
	return job, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("reading rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", id, model.ErrNotFound)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}
