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
	path := filepath.Join(t.TempDir(), "migrate-test.db")
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return sqlDB
}

func TestApplyMigrationsRunsInOrderOnce(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"0001_records.sql": &fstest.MapFile{Data: []byte(`-- +migrate Up
CREATE TABLE records (id TEXT PRIMARY KEY);
-- +migrate Down
DROP TABLE records;
`)},
		"0002_audit.sql": &fstest.MapFile{Data: []byte(`-- +migrate Up
CREATE TABLE audit_entries (id INTEGER PRIMARY KEY);
`)},
	}

	sqlDB := openTestDB(t)
	if err := ApplyMigrations(sqlDB, fsys); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	// Second run must be a no-op.
	if err := ApplyMigrations(sqlDB, fsys); err != nil {
		t.Fatalf("re-apply migrations: %v", err)
	}

	var count int
	if err := sqlDB.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("count applied migrations: %v", err)
	}
	if count != 2 {
		t.Fatalf("applied migrations = %d, want 2", count)
	}
	if _, err := sqlDB.Exec("INSERT INTO records (id) VALUES ('rec-1')"); err != nil {
		t.Fatalf("insert into migrated table: %v", err)
	}
	if _, err := sqlDB.Exec("INSERT INTO audit_entries (id) VALUES (1)"); err != nil {
		t.Fatalf("insert into second migrated table: %v", err)
	}
}

func TestApplyMigrationsSkipsDownSection(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"0001_only_up.sql": &fstest.MapFile{Data: []byte(`-- +migrate Up
CREATE TABLE chains (id TEXT PRIMARY KEY);
-- +migrate Down
DROP TABLE chains;
`)},
	}
	sqlDB := openTestDB(t)
	if err := ApplyMigrations(sqlDB, fsys); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if _, err := sqlDB.Exec("INSERT INTO chains (id) VALUES ('c-1')"); err != nil {
		t.Fatalf("table from up section missing: %v", err)
	}
}

func TestApplyMigrationsRequiresDB(t *testing.T) {
	t.Parallel()

	if err := ApplyMigrations(nil, fstest.MapFS{}); err == nil {
		t.Fatal("expected error for nil db")
	}
}
