package sqldb

import (
	"context"
	"os"
	"testing"

	"github.com/sitekit/sitekit/pkg/observability"
)

// SkipIfNoDatabase skips the test if TEST_POSTGRES_PRIMARY environment variable is not set.
// This allows tests to run in CI where the database is available, but skip locally if not configured.
func SkipIfNoDatabase(t *testing.T) string {
	t.Helper()

	dbURL := os.Getenv("TEST_POSTGRES_PRIMARY")
	if dbURL == "" {
		t.Skip("Skipping test: TEST_POSTGRES_PRIMARY environment variable not set (database not available)")
	}

	return dbURL
}

// RequirePostgres gets a migrated postgres-backed Store or skips the test if
// the database is not available.
func RequirePostgres(t *testing.T) *Store {
	t.Helper()

	dbURL := SkipIfNoDatabase(t)
	db, err := OpenPostgres(dbURL, 5, 2)
	if err != nil {
		t.Skipf("Failed to connect to database: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("Database not reachable: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store, err := New(db, DialectPostgres, observability.NewNopLogger())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

// NewTestStore returns a migrated Store over a private in-memory SQLite
// database, torn down with the test.
func NewTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store, err := New(db, DialectSQLite, observability.NewNopLogger())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}
