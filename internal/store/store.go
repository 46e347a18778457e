// ABOUTME: SessionStore interface and shared types for per-user conversation state
// ABOUTME: Defines thread id, message counter, request kind, distributed lock and turn ledger contracts

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrLockTimeout is returned when a user lock could not be acquired before the context ended
var ErrLockTimeout = errors.New("lock not acquired")

// SessionStore is the durable source of truth for a user's session.
// Every read goes to the backend; implementations keep no cross-call cache.
type SessionStore interface {
	// GetThread returns the user's current thread id, or ErrNotFound.
	GetThread(ctx context.Context, userID string) (string, error)
	SetThread(ctx context.Context, userID, threadID string) error
	DeleteThread(ctx context.Context, userID string) error

	// GetMessageCount returns 0 for users without a counter.
	GetMessageCount(ctx context.Context, userID string) (int, error)
	IncrementMessageCount(ctx context.Context, userID string) (int, error)
	ResetMessageCount(ctx context.Context, userID string) error

	// GetRequestKind returns "" when the user never chose a kind.
	GetRequestKind(ctx context.Context, userID string) (string, error)
	SetRequestKind(ctx context.Context, userID, kind string) error

	Ping(ctx context.Context) error
	Close() error
}

// Locker serializes session mutation for a user across processes.
type Locker interface {
	// Lock blocks until the user's lock is held or ctx ends. The returned
	// function releases it; releasing an expired lock is a no-op.
	Lock(ctx context.Context, userID string) (func(context.Context) error, error)
}

// Turn outcomes recorded in the ledger
const (
	OutcomeText      = "text"
	OutcomeFiles     = "files"
	OutcomeNoFiles   = "no_files"
	OutcomeTimeout   = "timeout"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// TurnRecord is one row of the turn ledger.
type TurnRecord struct {
	ID          string
	UserID      string
	ThreadID    string
	RequestKind string
	Outcome     string
	Detail      string
	CreatedAt   time.Time
}

// TurnRecorder is implemented by stores that keep a turn ledger.
type TurnRecorder interface {
	RecordTurn(ctx context.Context, rec *TurnRecord) error
	ListTurns(ctx context.Context, userID string, limit int) ([]*TurnRecord, error)
}
