// Package store holds per-user session state for filedesk.
//
// # Architecture
//
// SessionStore is the single source of truth for a user's session: the
// current assistant thread id, the number of messages appended to it since
// the last rollover, and the request kind the user last selected. No layer
// above it caches these values, so several service instances can share one
// backend.
//
// Three implementations exist:
//
//   - RedisStore: the production backend. Keys are "<prefix>:thread:<user>",
//     "<prefix>:count:<user>" and "<prefix>:kind:<user>". It also implements
//     Locker with SET NX PX so turns for the same user are serialized across
//     processes.
//   - SQLiteStore: single-node backend built on modernc.org/sqlite. It also
//     implements TurnRecorder, appending every turn outcome to a turns table.
//   - MemoryStore: process-local backend for tests and local runs. It keeps an
//     in-memory turn ledger.
//
// Open picks one from configuration.
//
// # Errors
//
// GetThread returns ErrNotFound when the user has no thread. Lock returns an
// error wrapping ErrLockTimeout and the context error when the context ends
// before the lock is acquired.
package store
