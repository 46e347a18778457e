// ABOUTME: In-memory SessionStore and TurnRecorder for tests and single-process runs
// ABOUTME: Allows the service and its tests to run without Redis or SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryTurnsPerUser caps the in-memory ledger; older turns are dropped.
const memoryTurnsPerUser = 200

// memorySession is one user's state.
type memorySession struct {
	threadID     string
	messageCount int
	requestKind  string
}

// MemoryStore is an in-memory SessionStore.
// Its state does not survive a restart and is not shared between processes.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession // keyed by user ID
	turns    map[string][]*TurnRecord // keyed by user ID, oldest first
}

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memorySession),
		turns:    make(map[string][]*TurnRecord),
	}
}

// session returns the user's session, creating it. Callers hold mu.
func (m *MemoryStore) session(userID string) *memorySession {
	s, ok := m.sessions[userID]
	if !ok {
		s = &memorySession{}
		m.sessions[userID] = s
	}
	return s
}

// GetThread returns the user's thread id or ErrNotFound.
func (m *MemoryStore) GetThread(ctx context.Context, userID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[userID]
	if !ok || s.threadID == "" {
		return "", ErrNotFound
	}
	return s.threadID, nil
}

// SetThread stores the user's thread id.
func (m *MemoryStore) SetThread(ctx context.Context, userID, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session(userID).threadID = threadID
	return nil
}

// DeleteThread clears the user's thread id.
func (m *MemoryStore) DeleteThread(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[userID]; ok {
		s.threadID = ""
	}
	return nil
}

// GetMessageCount returns the user's counter.
func (m *MemoryStore) GetMessageCount(ctx context.Context, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if s, ok := m.sessions[userID]; ok {
		return s.messageCount, nil
	}
	return 0, nil
}

// IncrementMessageCount increments and returns the user's counter.
func (m *MemoryStore) IncrementMessageCount(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session(userID)
	s.messageCount++
	return s.messageCount, nil
}

// ResetMessageCount sets the user's counter to 0.
func (m *MemoryStore) ResetMessageCount(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session(userID).messageCount = 0
	return nil
}

// GetRequestKind returns the stored request kind or "".
func (m *MemoryStore) GetRequestKind(ctx context.Context, userID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if s, ok := m.sessions[userID]; ok {
		return s.requestKind, nil
	}
	return "", nil
}

// SetRequestKind stores the user's request kind.
func (m *MemoryStore) SetRequestKind(ctx context.Context, userID, kind string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session(userID).requestKind = kind
	return nil
}

// RecordTurn appends a turn to the in-memory ledger, keeping only the
// user's most recent memoryTurnsPerUser turns.
func (m *MemoryStore) RecordTurn(ctx context.Context, rec *TurnRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	// Make a copy to avoid external modification
	r := *rec
	turns := append(m.turns[rec.UserID], &r)
	if over := len(turns) - memoryTurnsPerUser; over > 0 {
		turns = append(turns[:0:0], turns[over:]...)
	}
	m.turns[rec.UserID] = turns
	return nil
}

// ListTurns returns the user's most recent turns, newest first.
func (m *MemoryStore) ListTurns(ctx context.Context, userID string, limit int) ([]*TurnRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	var result []*TurnRecord
	for _, rec := range m.turns[userID] {
		r := *rec
		result = append(result, &r)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
