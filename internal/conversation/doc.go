// Package conversation runs user turns against the remote assistant.
//
// # Overview
//
// Orchestrator.HandleTurn is the only entry point. For one question it:
//
//  1. Serializes on the user id (in process, and across processes when the
//     session store implements store.Locker)
//  2. Looks up the user's thread, creating and persisting one if absent
//  3. Applies the history policy: below the rollover threshold the message
//     counter is incremented; at the threshold the thread is summarized,
//     deleted and replaced by a thread seeded with the summary, and the
//     counter is reset to 0
//  4. Appends the question (prefixed with the search instruction for SEARCH
//     turns) and starts a run
//  5. Polls the run until it reports "completed" or the poll budget runs out
//  6. Reads the newest message and its file citations, resolves the answer
//     and delivers text or documents
//
// # Polling
//
// The wait between polls is a timer select, so a cancelled context ends the
// turn immediately with ErrInterrupted. Exceeding the budget yields
// ErrTimeout. Neither is retried.
//
// # Rollover
//
// Summary failures never fail the turn: the new thread is created without a
// seed. If the seeded creation fails a plain thread is created instead. Once
// the old thread is deleted the rollover finishes on a non-cancellable
// context so the store never keeps a deleted thread id.
//
// # Errors
//
//   - ErrSequence: the call sequence could not continue (no thread, run start failed)
//   - ErrTimeout: the run did not complete in time
//   - ErrInterrupted: the context ended while waiting for a lock or a run
//   - ErrEmptyAnswer: a text answer was blank
//
// Per-file problems (missing file, failed compression, failed upload) land in
// TurnResult.Failures and do not fail the turn.
//
// # Events
//
// When an EventBroadcaster is configured, each turn publishes TurnEvents keyed
// by chat id. Frontends use them to show typing indicators while a run is
// pending.
package conversation
