package migrations

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRun(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	if err := Run(ctx, db); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	applied, err := GetApplied(ctx, db)
	if err != nil {
		t.Fatalf("GetApplied() error = %v", err)
	}
	if len(applied) == 0 {
		t.Fatal("expected at least one applied migration")
	}
}

func TestRun_CreatesTables(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	if err := Run(ctx, db); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// The migration files open with comment headers; both tables must
	// still exist and accept writes afterwards.
	_, err := db.ExecContext(ctx, `
		INSERT INTO rules (id, owner, topics, time_of_day, weekdays, timezone, scheduled_at, status, created_at, updated_at)
		VALUES ('r1', 'alice', '["espresso"]', '09:00', 'mon', 'UTC', '2024-06-03T09:00:00Z', 'pending', '2024-06-01T00:00:00Z', '2024-06-01T00:00:00Z')
	`)
	if err != nil {
		t.Fatalf("inserting into rules: %v", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO publications (rule_id, topic, topic_idx, fire_token, post_id, published_at)
		VALUES ('r1', 'espresso', 0, '2024-06-03T09:00:00Z', '42', '2024-06-03T09:00:05Z')
	`)
	if err != nil {
		t.Fatalf("inserting into publications: %v", err)
	}
}

func TestRun_Idempotent(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	if err := Run(ctx, db); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	applied, err := GetApplied(ctx, db)
	if err != nil {
		t.Fatalf("GetApplied() error = %v", err)
	}

	if err := Run(ctx, db); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	appliedAgain, err := GetApplied(ctx, db)
	if err != nil {
		t.Fatalf("GetApplied() error = %v", err)
	}
	if len(applied) != len(appliedAgain) {
		t.Errorf("migration count changed on re-run: %d -> %d", len(applied), len(appliedAgain))
	}
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{name: "two statements", content: "CREATE TABLE a (x); CREATE TABLE b (y);", want: 2},
		{name: "semicolon in string", content: "INSERT INTO t VALUES ('a;b'); SELECT 1;", want: 2},
		{name: "trailing content without semicolon", content: "SELECT 1", want: 1},
		{name: "empty", content: "", want: 0},
		{name: "comment-only content", content: "-- nothing here\n", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := splitStatements(tt.content); len(got) != tt.want {
				t.Errorf("splitStatements() = %d statements, want %d", len(got), tt.want)
			}
		})
	}
}

func TestSplitStatements_StripsCommentHeader(t *testing.T) {
	content := "-- Table header.\n-- Second comment line.\nCREATE TABLE a (x);\n\n-- Index header.\nCREATE INDEX idx_a ON a (x);\n"

	got := splitStatements(content)
	if len(got) != 2 {
		t.Fatalf("splitStatements() = %d statements, want 2", len(got))
	}
	for i, stmt := range got {
		if !strings.HasPrefix(stmt, "CREATE ") {
			t.Errorf("statement %d starts with %q, want a CREATE statement", i, stmt[:20])
		}
	}
}
