package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"

	"gamehub/pkg/database"
)

// NewTestDB opens a migrated SQLite catalog in a temp dir. A file is used
// instead of :memory: so every pooled connection sees the same database.
// The database is closed when the test completes.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "gamehub.db")})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		t.Fatalf("failed to migrate database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// NewTestBadger opens an in-memory BadgerDB closed at test end.
func NewTestBadger(t *testing.T) *badger.DB {
	t.Helper()

	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("failed to open badger: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}
