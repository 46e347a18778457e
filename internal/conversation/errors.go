// ABOUTME: Turn failure kinds returned by the orchestrator
// ABOUTME: Callers compare with errors.Is; underlying causes stay wrapped

package conversation

import "errors"

var (
	// ErrSequence means the remote call sequence could not proceed, e.g. a run
	// could not be started or a thread id was missing before a message append.
	ErrSequence = errors.New("assistant call sequence failed")

	// ErrTimeout means the run did not complete within the poll budget.
	ErrTimeout = errors.New("run did not complete in time")

	// ErrInterrupted means the turn's context ended while waiting.
	ErrInterrupted = errors.New("turn interrupted")

	// ErrEmptyAnswer means a completed run left no text to deliver.
	ErrEmptyAnswer = errors.New("assistant returned an empty answer")
)
