// ABOUTME: History rollover: summarize the old thread, replace it with a summary-seeded one
// ABOUTME: Falls back to a plain thread when the seeded creation fails

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/filedesk/internal/assistant"
)

// summaryPrompt asks the assistant to condense the transcript that follows it.
const summaryPrompt = "Summarize the conversation below in a few sentences. Keep names, numbers, " +
	"file names and open questions so the conversation can continue from the summary alone.\n\n"

// summarySeedPrefix starts the assistant message that seeds the new thread.
const summarySeedPrefix = "Here is what we discussed so far: "

// rollover replaces the user's thread. Once the old thread is deleted the
// remaining steps run on a context that ignores cancellation, so the store
// never ends up pointing at a deleted thread.
func (o *Orchestrator) rollover(ctx context.Context, log *slog.Logger, userID, oldThreadID string) (string, error) {
	log.Info("rolling over thread", "thread_id", oldThreadID)

	summary, err := o.summarize(ctx, log, oldThreadID)
	if err != nil {
		return "", err
	}

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()

	if _, err := o.api.DeleteThread(commitCtx, oldThreadID); err != nil {
		log.Warn("deleting old thread remotely failed", "thread_id", oldThreadID, "error", err)
	}
	if err := o.sessions.DeleteThread(commitCtx, userID); err != nil {
		return "", fmt.Errorf("deleting old thread from store: %w", err)
	}

	newThreadID, err := o.createSeededThread(commitCtx, log, summary)
	if err != nil {
		return "", err
	}

	if err := o.sessions.SetThread(commitCtx, userID, newThreadID); err != nil {
		return "", fmt.Errorf("persisting rolled over thread: %w", err)
	}
	if err := o.sessions.ResetMessageCount(commitCtx, userID); err != nil {
		return "", fmt.Errorf("resetting message count: %w", err)
	}

	log.Info("thread rolled over",
		"old_thread_id", oldThreadID,
		"new_thread_id", newThreadID,
		"summary_length", len(summary),
	)
	return newThreadID, nil
}

// createSeededThread creates a thread holding the summary, or a plain thread
// when there is no summary or the seeded creation fails.
func (o *Orchestrator) createSeededThread(ctx context.Context, log *slog.Logger, summary string) (string, error) {
	if summary != "" {
		raw, err := o.api.CreateThreadWithMessages(ctx, []assistant.Message{
			{Role: "assistant", Content: summarySeedPrefix + summary},
		})
		if err == nil {
			if id := o.parser.ID(raw); id != "" {
				return id, nil
			}
			err = errors.New("seeded thread has no id")
		}
		log.Warn("creating summary thread failed, falling back to plain thread", "error", err)
	}
	return o.createThread(ctx)
}

// summarize asks the assistant for a summary of the thread. Failures yield an
// empty summary; only cancellation is returned as an error.
func (o *Orchestrator) summarize(ctx context.Context, log *slog.Logger, threadID string) (string, error) {
	fail := func(step string, err error) (string, error) {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: summarizing thread: %w", ErrInterrupted, ctx.Err())
		}
		log.Warn("summary generation failed, continuing without summary", "step", step, "error", err)
		return "", nil
	}

	list, err := o.api.ListMessages(ctx, threadID)
	if err != nil {
		return fail("list messages", err)
	}
	transcript := RenderTranscript(o.parser.Transcript(list))
	if transcript == "" {
		return "", nil
	}

	if _, err := o.api.CreateMessage(ctx, threadID, assistant.Message{Role: "user", Content: summaryPrompt + transcript}); err != nil {
		return fail("append summary request", err)
	}
	runID, err := o.startRun(ctx, threadID)
	if err != nil {
		return fail("start run", err)
	}
	if err := o.waitForRun(ctx, log.With("run_id", runID, "purpose", "summary"), threadID, runID, nil); err != nil {
		return fail("wait for run", err)
	}

	list, err = o.api.ListMessages(ctx, threadID)
	if err != nil {
		return fail("list summary", err)
	}
	latestID := o.parser.LatestMessageID(list)
	if latestID == "" {
		return fail("find summary", errors.New("no message after summary run"))
	}
	msg, err := o.api.GetMessage(ctx, threadID, latestID)
	if err != nil {
		return fail("fetch summary", err)
	}
	return strings.TrimSpace(o.parser.MessageText(msg)), nil
}

// RenderTranscript formats entries as "role: text" lines in the given order.
func RenderTranscript(entries []assistant.TranscriptEntry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.Role)
		b.WriteString(": ")
		b.WriteString(e.Text)
		b.WriteString("\n")
	}
	return b.String()
}
