package database

import (
	"testing"
	"testing/fstest"
)

func TestPendingMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"002_goals.up.sql":     {Data: []byte("SELECT 1")},
		"001_initial.up.sql":   {Data: []byte("SELECT 1")},
		"001_initial.down.sql": {Data: []byte("SELECT 1")},
		"README.md":            {Data: []byte("notes")},
	}

	got, err := PendingMigrations(fsys, map[string]bool{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "001_initial.up.sql" || got[1] != "002_goals.up.sql" {
		t.Errorf("PendingMigrations = %v, want sorted up files", got)
	}

	got, err = PendingMigrations(fsys, map[string]bool{"001_initial.up.sql": true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != "002_goals.up.sql" {
		t.Errorf("PendingMigrations = %v, want only 002", got)
	}
}
