package database

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMigrationFilesOrderAndFiltering(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"002_add_indexes.sql",
		"001_initial_schema.sql",
		"010_notifications.sql",
		"notes.txt",
		"_backup.sql",
		"README.md",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := migrationFiles(dir)
	if err != nil {
		t.Fatalf("migrationFiles failed: %v", err)
	}

	want := []string{"001_initial_schema.sql", "002_add_indexes.sql", "010_notifications.sql"}
	if len(files) != len(want) {
		t.Fatalf("got %d migration files, want %d", len(files), len(want))
	}
	for i, f := range files {
		if f.name != want[i] {
			t.Errorf("files[%d] = %s, want %s", i, f.name, want[i])
		}
	}
	if files[2].version != 10 {
		t.Errorf("last version = %d, want 10", files[2].version)
	}
}
