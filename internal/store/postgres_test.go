package store

import (
	"context"
	"os"
	"testing"

	"github.com/amishk599/jobradar/internal/model"
)

// Set JOBRADAR_TEST_POSTGRES_DSN to a throwaway database to run these.
func newTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("JOBRADAR_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("JOBRADAR_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, dsn, discardLogger())
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	if _, err := s.pool.Exec(ctx, "TRUNCATE canonical_jobs"); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgresStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) model.JobStore { return newTestPostgres(t) })
}

func TestPostgresStore_MigrateIsIdempotent(t *testing.T) {
	s := newTestPostgres(t)
	if err := s.migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}
