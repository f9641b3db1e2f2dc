package sqlitemigrate

import (
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "migrate.db") + "?_journal_mode=WAL&_foreign_keys=ON"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestApplyRunsMigrationsInOrder(t *testing.T) {
	db := openTestDB(t)

	fsys := fstest.MapFS{
		"001_init.sql": {Data: []byte(`-- +migrate Up
CREATE TABLE items (id TEXT PRIMARY KEY);
-- +migrate Down
DROP TABLE items;
`)},
		"002_add_name.sql": {Data: []byte(`-- +migrate Up
ALTER TABLE items ADD COLUMN name TEXT;
`)},
	}

	if err := Apply(db, fsys, "."); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if _, err := db.Exec("INSERT INTO items (id, name) VALUES ('a', 'first')"); err != nil {
		t.Fatalf("insert after migrate: %v", err)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	db := openTestDB(t)

	fsys := fstest.MapFS{
		"001_init.sql": {Data: []byte(`-- +migrate Up
CREATE TABLE items (id TEXT PRIMARY KEY);
`)},
	}

	if err := Apply(db, fsys, "."); err != nil {
		t.Fatalf("first Apply() error = %v", err)
	}
	if err := Apply(db, fsys, "."); err != nil {
		t.Fatalf("second Apply() error = %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(1) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != 1 {
		t.Fatalf("applied migrations = %d, want 1", count)
	}
}

func TestApplyStopsOnBrokenMigration(t *testing.T) {
	db := openTestDB(t)

	fsys := fstest.MapFS{
		"001_bad.sql": {Data: []byte(`-- +migrate Up
CREATE TABLE (syntax error;
`)},
	}

	if err := Apply(db, fsys, "."); err == nil {
		t.Fatal("Apply() error = nil, want syntax failure")
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(1) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != 0 {
		t.Fatalf("applied migrations = %d, want 0", count)
	}
}
