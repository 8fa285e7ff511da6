package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/amishk599/jobradar/internal/config"
	"github.com/amishk599/jobradar/internal/model"
)

func configFor(driver string) config.DatabaseConfig {
	return config.DatabaseConfig{Driver: driver}
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath, discardLogger())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) model.JobStore { return newTestStore(t) })
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "jobs.db")

	s, err := NewSQLiteStore(dbPath, discardLogger())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	job := testCanonical("a1", "src", "sre", "acme", t0)
	if err := s.UpsertCanonical(ctx, job); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.MarkScored(ctx, "a1", 8, "• fit"); err != nil {
		t.Fatalf("MarkScored: %v", err)
	}
	s.Close()

	s, err = NewSQLiteStore(dbPath, discardLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.FindByDedupKey(ctx, job.DedupKey)
	if err != nil {
		t.Fatalf("FindByDedupKey: %v", err)
	}
	if got.FitScore == nil || *got.FitScore != 8 || got.WhyMe != "• fit" {
		t.Errorf("score lost across reopen: %+v", got)
	}
}

// A database created before why_me, salary_currency_original and notified
// existed must be upgraded in place without losing rows.
func TestSQLiteStore_MigratesOldSchema(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "old.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := db.Exec(createSQLiteTable); err != nil {
		t.Fatalf("create old table: %v", err)
	}
	_, err = db.Exec(`INSERT INTO canonical_jobs (id, dedup_key, source, external_id, title, company,
		normalized_title, normalized_company, normalized_location, first_seen_source, merged_sources,
		fit_score, first_seen_at, last_seen_at)
		VALUES ('old-1', 'key-1', 'lever-acme', 'x1', 'SRE', 'Acme', 'sre', 'acme', 'remote', 'lever-acme',
		'["lever-acme"]', 8, '2025-01-01T00:00:00.000000000Z', '2025-01-01T00:00:00.000000000Z')`)
	if err != nil {
		t.Fatalf("insert old row: %v", err)
	}
	db.Close()

	s, err := NewSQLiteStore(dbPath, discardLogger())
	if err != nil {
		t.Fatalf("NewSQLiteStore on old schema: %v", err)
	}
	defer s.Close()

	got, err := s.FindByDedupKey(ctx, "key-1")
	if err != nil {
		t.Fatalf("old row lost: %v", err)
	}
	if got.ID != "old-1" || got.WhyMe != "" || got.Notified {
		t.Errorf("unexpected migrated row %+v", got)
	}
	// Scored before the notified column existed: now pending.
	pending, err := s.ListPendingNotification(ctx)
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected migrated row pending, got %v %+v", err, pending)
	}
	if err := s.MarkScored(ctx, "old-1", 9, "• new column works"); err != nil {
		t.Fatalf("MarkScored after migration: %v", err)
	}
}

func TestSQLiteStore_UnreadableRowIsSkipped(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	good := testCanonical("job-1", "lever-acme", "sre", "acme", t0)
	bad := testCanonical("job-2", "lever-globex", "data engineer", "globex", t0.Add(time.Minute))
	stale := testCanonical("job-3", "ashby-initech", "designer", "initech", t0.Add(2*time.Minute))
	for _, j := range []model.CanonicalJob{good, bad, stale} {
		if err := s.UpsertCanonical(ctx, j); err != nil {
			t.Fatalf("UpsertCanonical(%s): %v", j.ID, err)
		}
	}
	if _, err := s.db.Exec(`UPDATE canonical_jobs SET merged_sources = 'not json' WHERE id = 'job-2'`); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec(`UPDATE canonical_jobs SET first_seen_at = 'yesterday' WHERE id = 'job-3'`); err != nil {
		t.Fatal(err)
	}

	jobs, err := s.ListCanonical(ctx)
	if err != nil {
		t.Fatalf("ListCanonical should skip unreadable rows, got %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "job-1" {
		t.Fatalf("expected only job-1, got %+v", jobs)
	}

	_, err = s.FindByDedupKey(ctx, bad.DedupKey)
	if !errors.Is(err, ErrCorruptRow) {
		t.Errorf("expected ErrCorruptRow, got %v", err)
	}
	if errors.Is(err, model.ErrStoreUnavailable) {
		t.Errorf("an unreadable row must not report the store unavailable: %v", err)
	}

	// A new sighting rewrites the broken merged_sources.
	bad.MergedSources = []string{"lever-globex", "remotive"}
	if err := s.UpsertCanonical(ctx, bad); err != nil {
		t.Fatalf("UpsertCanonical over corrupt row: %v", err)
	}
	got, err := s.FindByDedupKey(ctx, bad.DedupKey)
	if err != nil {
		t.Fatalf("row not repaired: %v", err)
	}
	if len(got.MergedSources) != 2 {
		t.Errorf("MergedSources = %v", got.MergedSources)
	}
}

func TestSQLiteStore_ClosedIsUnavailable(t *testing.T) {
	s := newTestStore(t)
	s.Close()
	_, err := s.ListCanonical(context.Background())
	if !errors.Is(err, model.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestOpen_SQLiteDefault(t *testing.T) {
	cfg := config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "default.db")}
	s, err := Open(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("expected *SQLiteStore, got %T", s)
	}
}
