// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers database creation, the sessions schema, and the turn ledger

package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	// Verify the database file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestSQLiteStore_SessionsSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "schema.db")
	store, err := NewSQLiteStore(dbPath, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	store.Close()

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("opening raw database: %v", err)
	}
	defer db.Close()

	var exists int
	err = db.QueryRow(`SELECT 1 FROM pragma_table_info('sessions') WHERE name = 'request_kind'`).Scan(&exists)
	if err != nil {
		t.Fatalf("request_kind column missing from sessions: %v", err)
	}

	// Reopening an existing database leaves its data alone
	store, err = NewSQLiteStore(dbPath, nil)
	if err != nil {
		t.Fatalf("reopening store failed: %v", err)
	}
	defer store.Close()
	ctx := context.Background()
	if err := store.SetRequestKind(ctx, "user-1", "SEARCH"); err != nil {
		t.Fatalf("SetRequestKind failed: %v", err)
	}
	kind, err := store.GetRequestKind(ctx, "user-1")
	if err != nil || kind != "SEARCH" {
		t.Fatalf("GetRequestKind = %q, %v; want SEARCH", kind, err)
	}
}

func TestSQLiteStore_RecordAndListTurns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	records := []*TurnRecord{
		{UserID: "user-1", ThreadID: "thread_a", RequestKind: "REGULAR", Outcome: OutcomeText, CreatedAt: base},
		{UserID: "user-1", ThreadID: "thread_a", RequestKind: "SEARCH", Outcome: OutcomeFiles, Detail: "report.pdf", CreatedAt: base.Add(100 * time.Millisecond)},
		{UserID: "user-1", ThreadID: "thread_a", RequestKind: "SEARCH", Outcome: OutcomeTimeout, CreatedAt: base.Add(time.Second)},
		{UserID: "user-2", ThreadID: "thread_b", RequestKind: "REGULAR", Outcome: OutcomeText, CreatedAt: base},
	}
	for _, rec := range records {
		if err := store.RecordTurn(ctx, rec); err != nil {
			t.Fatalf("RecordTurn failed: %v", err)
		}
		if rec.ID == "" {
			t.Error("RecordTurn did not assign an ID")
		}
	}

	turns, err := store.ListTurns(ctx, "user-1", 10)
	if err != nil {
		t.Fatalf("ListTurns failed: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	if turns[0].Outcome != OutcomeTimeout || turns[2].Outcome != OutcomeText {
		t.Errorf("turns not ordered newest first: %s, %s, %s", turns[0].Outcome, turns[1].Outcome, turns[2].Outcome)
	}
	if turns[1].Detail != "report.pdf" {
		t.Errorf("expected detail report.pdf, got %q", turns[1].Detail)
	}
	if !turns[1].CreatedAt.Equal(base.Add(100 * time.Millisecond)) {
		t.Errorf("created_at round trip lost precision: %v", turns[1].CreatedAt)
	}

	limited, err := store.ListTurns(ctx, "user-1", 1)
	if err != nil {
		t.Fatalf("ListTurns with limit failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected 1 turn with limit, got %d", len(limited))
	}
}

func TestMemoryStore_RecordAndListTurns(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.RecordTurn(ctx, &TurnRecord{UserID: "user-1", Outcome: OutcomeText}); err != nil {
		t.Fatalf("RecordTurn failed: %v", err)
	}
	if err := store.RecordTurn(ctx, &TurnRecord{UserID: "user-2", Outcome: OutcomeFailed}); err != nil {
		t.Fatalf("RecordTurn failed: %v", err)
	}

	turns, err := store.ListTurns(ctx, "user-1", 0)
	if err != nil {
		t.Fatalf("ListTurns failed: %v", err)
	}
	if len(turns) != 1 || turns[0].Outcome != OutcomeText {
		t.Errorf("unexpected turns: %+v", turns)
	}
}

func TestMemoryStore_LedgerCappedPerUser(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	total := memoryTurnsPerUser + 25
	for i := 0; i < total; i++ {
		rec := &TurnRecord{
			UserID:    "user-1",
			Detail:    fmt.Sprintf("q%d", i),
			Outcome:   OutcomeText,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.RecordTurn(ctx, rec); err != nil {
			t.Fatalf("RecordTurn failed: %v", err)
		}
	}
	if err := store.RecordTurn(ctx, &TurnRecord{UserID: "user-2", Outcome: OutcomeText}); err != nil {
		t.Fatalf("RecordTurn failed: %v", err)
	}

	turns, err := store.ListTurns(ctx, "user-1", total)
	if err != nil {
		t.Fatalf("ListTurns failed: %v", err)
	}
	if len(turns) != memoryTurnsPerUser {
		t.Fatalf("expected %d turns, got %d", memoryTurnsPerUser, len(turns))
	}
	if want := fmt.Sprintf("q%d", total-1); turns[0].Detail != want {
		t.Errorf("newest turn = %q, want %q", turns[0].Detail, want)
	}
	if want := fmt.Sprintf("q%d", total-memoryTurnsPerUser); turns[len(turns)-1].Detail != want {
		t.Errorf("oldest kept turn = %q, want %q", turns[len(turns)-1].Detail, want)
	}

	other, err := store.ListTurns(ctx, "user-2", 0)
	if err != nil {
		t.Fatalf("ListTurns failed: %v", err)
	}
	if len(other) != 1 {
		t.Errorf("expected 1 turn for user-2, got %d", len(other))
	}
}
