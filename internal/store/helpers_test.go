package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"chronicle/docsync/internal/tree"
)

// createTestDB opens a migrated SQLite database in a temporary directory.
func createTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "docsync.db")
	if err := ApplyMigrations(DriverSQLite, path); err != nil {
		t.Fatalf("ApplyMigrations() error = %v", err)
	}

	db, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func mustCreate(t *testing.T, s tree.Store, path, id string) {
	t.Helper()
	if _, err := s.CreateAt(context.Background(), path, id); err != nil {
		t.Fatalf("CreateAt(%s, %s) error = %v", path, id, err)
	}
}

func nodeHandle(id, path string) tree.NodeHandle {
	return tree.NodeHandle{Identifier: id, Path: path}
}
