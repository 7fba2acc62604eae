package sqlite

import (
	"context"
	"net/url"
	"testing"
)

// setupTestDB creates a migrated, named shared in-memory database. Writer and
// reader pools see the same data via cache=shared; the name derived from
// t.Name() isolates tests from each other.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	uri := "file:" + url.PathEscape(t.Name()) + "?mode=memory&cache=shared"
	db, err := connect(context.Background(), dsn(uri), uri)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := RunMigrations(db.Writer); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return db
}
