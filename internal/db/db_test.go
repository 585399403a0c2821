package db

import (
	"path/filepath"
	"testing"
)

func TestInit_CreatesDatabase(t *testing.T) {
	tmpDir := t.TempDir()

	database, err := Init(tmpDir)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer database.Close()

	version, err := GetUserVersion(database)
	if err != nil {
		t.Fatalf("GetUserVersion() error = %v", err)
	}
	if version != CurrentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, CurrentSchemaVersion)
	}
}

func TestInit_WALMode(t *testing.T) {
	tmpDir := t.TempDir()

	database, err := Init(tmpDir)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer database.Close()

	var mode string
	if err := database.QueryRow("PRAGMA journal_mode;").Scan(&mode); err != nil {
		t.Fatalf("PRAGMA journal_mode error = %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want %q", mode, "wal")
	}
}

func TestInit_Idempotent(t *testing.T) {
	tmpDir := t.TempDir()

	first, err := Init(tmpDir)
	if err != nil {
		t.Fatalf("first Init() error = %v", err)
	}
	first.Close()

	second, err := Init(tmpDir)
	if err != nil {
		t.Fatalf("second Init() error = %v", err)
	}
	defer second.Close()

	version, err := GetUserVersion(second)
	if err != nil {
		t.Fatalf("GetUserVersion() error = %v", err)
	}
	if version != CurrentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, CurrentSchemaVersion)
	}
}

func TestInit_TablesExist(t *testing.T) {
	tmpDir := t.TempDir()

	database, err := Init(tmpDir)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer database.Close()

	for _, table := range []string{"profiles", "measurements", "memories"} {
		var name string
		err := database.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q missing: %v", table, err)
		}
	}
}

func TestInit_DatabaseFileCreated(t *testing.T) {
	tmpDir := t.TempDir()

	database, err := Init(tmpDir)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer database.Close()

	dbPath := filepath.Join(tmpDir, "loam.db")
	if _, err := database.Exec("SELECT 1"); err != nil {
		t.Fatalf("query error = %v", err)
	}
	if _, err := filepath.Glob(dbPath); err != nil {
		t.Fatalf("glob error = %v", err)
	}
}
