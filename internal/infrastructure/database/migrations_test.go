package database

import (
	"context"
	"testing"
	"testing/fstest"
)

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		wantVersion string
		wantDesc    string
		wantOK      bool
	}{
		{
			name:        "valid migration",
			filename:    "20260801_000000_initial_schema.sql",
			wantVersion: "20260801_000000",
			wantDesc:    "initial_schema",
			wantOK:      true,
		},
		{
			name:        "multi word description",
			filename:    "20260802_120000_add_history_index.sql",
			wantVersion: "20260802_120000",
			wantDesc:    "add_history_index",
			wantOK:      true,
		},
		{
			name:     "not sql",
			filename: "20260801_000000_initial_schema.txt",
			wantOK:   false,
		},
		{
			name:     "missing description",
			filename: "20260801_000000.sql",
			wantOK:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, desc, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion || desc != tt.wantDesc {
				t.Errorf("parsed (%q, %q), want (%q, %q)", version, desc, tt.wantVersion, tt.wantDesc)
			}
		})
	}
}

func TestMigrateAppliesInOrder(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fsys := fstest.MapFS{
		"20260802_000000_add_column.sql": &fstest.MapFile{
			Data: []byte("ALTER TABLE things ADD COLUMN label TEXT"),
		},
		"20260801_000000_create_table.sql": &fstest.MapFile{
			Data: []byte("CREATE TABLE things (id INTEGER PRIMARY KEY)"),
		},
	}

	// The ALTER only succeeds if the CREATE ran first, despite map order.
	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("counting applied migrations: %v", err)
	}
	if count != 2 {
		t.Errorf("applied migrations = %d, want 2", count)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fsys := fstest.MapFS{
		"20260801_000000_create_table.sql": &fstest.MapFile{
			Data: []byte("CREATE TABLE things (id INTEGER PRIMARY KEY)"),
		},
	}

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("first Migrate() error = %v", err)
	}
	// Second run must skip the already-applied migration; a re-run of the
	// CREATE would fail.
	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrateRollsBackFailure(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fsys := fstest.MapFS{
		"20260801_000000_good.sql": &fstest.MapFile{
			Data: []byte("CREATE TABLE good (id INTEGER PRIMARY KEY)"),
		},
		"20260802_000000_bad.sql": &fstest.MapFile{
			Data: []byte("THIS IS NOT SQL"),
		},
	}

	if err := db.Migrate(ctx, fsys); err == nil {
		t.Fatal("Migrate() succeeded with invalid SQL")
	}

	// The good migration stays committed; the bad one is not recorded.
	var count int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("counting applied migrations: %v", err)
	}
	if count != 1 {
		t.Errorf("applied migrations = %d, want 1", count)
	}
}

func TestMigrateIgnoresUnrelatedFiles(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fsys := fstest.MapFS{
		"README.md": &fstest.MapFile{Data: []byte("docs")},
		"20260801_000000_create_table.sql": &fstest.MapFile{
			Data: []byte("CREATE TABLE things (id INTEGER PRIMARY KEY)"),
		},
	}

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
}
