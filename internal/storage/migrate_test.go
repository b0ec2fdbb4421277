package storage

import (
	"database/sql"
	"path/filepath"
	"testing"
)

func TestRunMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	for i := 0; i < 2; i++ {
		if err := RunMigrations(path); err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var version int
	if err := db.QueryRow(`SELECT version FROM page_view_migrations`).Scan(&version); err != nil {
		t.Fatalf("read migration version: %v", err)
	}
	if version != 1 {
		t.Errorf("version = %d, want 1", version)
	}
	if _, err := db.Exec(`SELECT COUNT(*) FROM page_views`); err != nil {
		t.Errorf("page_views table missing: %v", err)
	}
}
