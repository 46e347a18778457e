// ABOUTME: SQLite implementation of SessionStore and TurnRecorder using modernc.org/sqlite
// ABOUTME: Single-node session persistence with automatic schema creation and a turn ledger

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements SessionStore and TurnRecorder using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store", "backend", "sqlite")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Concurrent turns for different users write to the same file
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			user_id TEXT PRIMARY KEY,
			thread_id TEXT,
			message_count INTEGER NOT NULL DEFAULT 0,
			request_kind TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS turns (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			thread_id TEXT NOT NULL DEFAULT '',
			request_kind TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_turns_user_created ON turns(user_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ledgerTimeLayout has fixed width so created_at sorts lexically.
const ledgerTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// GetThread retrieves the user's thread id.
// Returns ErrNotFound if the user has no thread.
func (s *SQLiteStore) GetThread(ctx context.Context, userID string) (string, error) {
	var threadID sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT thread_id FROM sessions WHERE user_id = ?`, userID).Scan(&threadID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying thread: %w", err)
	}
	if !threadID.Valid || threadID.String == "" {
		return "", ErrNotFound
	}
	return threadID.String, nil
}

// SetThread stores the user's thread id, creating the session row if needed.
func (s *SQLiteStore) SetThread(ctx context.Context, userID, threadID string) error {
	query := `
		INSERT INTO sessions (user_id, thread_id, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET thread_id = excluded.thread_id, updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, userID, threadID, now()); err != nil {
		return fmt.Errorf("setting thread: %w", err)
	}
	return nil
}

// DeleteThread clears the user's thread id. The counter and request kind are kept.
func (s *SQLiteStore) DeleteThread(ctx context.Context, userID string) error {
	query := `UPDATE sessions SET thread_id = NULL, updated_at = ? WHERE user_id = ?`
	if _, err := s.db.ExecContext(ctx, query, now(), userID); err != nil {
		return fmt.Errorf("deleting thread: %w", err)
	}
	return nil
}

// GetMessageCount returns the user's counter, 0 when the user is unknown.
func (s *SQLiteStore) GetMessageCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT message_count FROM sessions WHERE user_id = ?`, userID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying message count: %w", err)
	}
	return n, nil
}

// IncrementMessageCount increments and returns the user's counter.
func (s *SQLiteStore) IncrementMessageCount(ctx context.Context, userID string) (int, error) {
	query := `
		INSERT INTO sessions (user_id, message_count, updated_at) VALUES (?, 1, ?)
		ON CONFLICT(user_id) DO UPDATE SET message_count = message_count + 1, updated_at = excluded.updated_at
		RETURNING message_count
	`
	var n int
	if err := s.db.QueryRowContext(ctx, query, userID, now()).Scan(&n); err != nil {
		return 0, fmt.Errorf("incrementing message count: %w", err)
	}
	return n, nil
}

// ResetMessageCount sets the user's counter to 0.
func (s *SQLiteStore) ResetMessageCount(ctx context.Context, userID string) error {
	query := `
		INSERT INTO sessions (user_id, message_count, updated_at) VALUES (?, 0, ?)
		ON CONFLICT(user_id) DO UPDATE SET message_count = 0, updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, userID, now()); err != nil {
		return fmt.Errorf("resetting message count: %w", err)
	}
	return nil
}

// GetRequestKind returns the stored request kind, "" when unset.
func (s *SQLiteStore) GetRequestKind(ctx context.Context, userID string) (string, error) {
	var kind string
	err := s.db.QueryRowContext(ctx, `SELECT request_kind FROM sessions WHERE user_id = ?`, userID).Scan(&kind)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying request kind: %w", err)
	}
	return kind, nil
}

// SetRequestKind stores the user's request kind.
func (s *SQLiteStore) SetRequestKind(ctx context.Context, userID, kind string) error {
	query := `
		INSERT INTO sessions (user_id, request_kind, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET request_kind = excluded.request_kind, updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, userID, kind, now()); err != nil {
		return fmt.Errorf("setting request kind: %w", err)
	}
	return nil
}

// RecordTurn appends a turn outcome to the ledger.
// ID and CreatedAt are filled in when empty.
func (s *SQLiteStore) RecordTurn(ctx context.Context, rec *TurnRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO turns (id, user_id, thread_id, request_kind, outcome, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.UserID,
		rec.ThreadID,
		rec.RequestKind,
		rec.Outcome,
		rec.Detail,
		rec.CreatedAt.UTC().Format(ledgerTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("recording turn: %w", err)
	}
	return nil
}

// ListTurns returns the user's most recent turns, newest first.
func (s *SQLiteStore) ListTurns(ctx context.Context, userID string, limit int) ([]*TurnRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, user_id, thread_id, request_kind, outcome, detail, created_at
		FROM turns
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	var turns []*TurnRecord
	for rows.Next() {
		var rec TurnRecord
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.ThreadID, &rec.RequestKind, &rec.Outcome, &rec.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		rec.CreatedAt, err = time.Parse(ledgerTimeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		turns = append(turns, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turns: %w", err)
	}
	return turns, nil
}
