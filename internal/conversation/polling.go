// ABOUTME: Run completion polling until the run reports completed or the budget runs out
// ABOUTME: Waits between ticks are cancellable and never shorter than the poll interval

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/filedesk/internal/assistant"
)

// waitForRun polls the run until its status is "completed". Any other status,
// including a failed poll request, keeps it waiting. onTick is called before
// each pause. The poll timeout bounds the whole wait, in-flight requests
// included.
func (o *Orchestrator) waitForRun(ctx context.Context, log *slog.Logger, threadID, runID string, onTick func()) error {
	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, o.pollTimeout)
	defer cancel()

	timer := time.NewTimer(o.pollInterval)
	defer timer.Stop()

	for tick := 1; ; tick++ {
		raw, err := o.api.GetRun(waitCtx, threadID, runID)
		switch {
		case err != nil && waitCtx.Err() != nil:
			return waitEnded(ctx, runID, start)
		case err != nil:
			log.Warn("polling run failed", "tick", tick, "error", err)
		default:
			status := o.parser.Status(raw)
			if status == assistant.StatusCompleted {
				log.Debug("run completed", "ticks", tick, "elapsed", time.Since(start))
				return nil
			}
			log.Debug("run not completed", "tick", tick, "status", status)
		}

		if onTick != nil {
			onTick()
		}

		timer.Reset(o.pollInterval)
		select {
		case <-waitCtx.Done():
			return waitEnded(ctx, runID, start)
		case <-timer.C:
		}
	}
}

// waitEnded tells a cancelled turn apart from one that ran out of poll budget.
func waitEnded(ctx context.Context, runID string, start time.Time) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: waiting for run: %w", ErrInterrupted, err)
	}
	return fmt.Errorf("%w: run %s still pending after %s", ErrTimeout, runID, time.Since(start).Round(time.Millisecond))
}
