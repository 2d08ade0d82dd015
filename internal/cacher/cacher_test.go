package cacher

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/aocrec/mgxhub/internal/database"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.Connect(filepath.Join(t.TempDir(), "test.sqlite3"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(`CREATE TABLE cache (key VARCHAR(255) PRIMARY KEY, value TEXT)`); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestSetGetPurge(t *testing.T) {
	db := openTestDB(t)

	if _, ok := Get(db, "missing"); ok {
		t.Error("missing key reported present")
	}

	if err := Set(db, "k", "v1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok := Get(db, "k"); !ok || v != "v1" {
		t.Errorf("Get = %q %v", v, ok)
	}

	// Overwrite replaces in place.
	if err := Set(db, "k", "v2"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	if v, _ := Get(db, "k"); v != "v2" {
		t.Errorf("Get after overwrite = %q", v)
	}

	Set(db, "other", "x")
	if err := Purge(db); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if _, ok := Get(db, "k"); ok {
		t.Error("key survived purge")
	}
	if _, ok := Get(db, "other"); ok {
		t.Error("key survived purge")
	}
}
