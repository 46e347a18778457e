// ABOUTME: Orchestrator runs one user turn against the remote assistant end to end
// ABOUTME: Thread lifecycle, history rollover, run polling, answer resolution and delivery

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/filedesk/internal/answer"
	"github.com/2389/filedesk/internal/assistant"
	"github.com/2389/filedesk/internal/files"
	"github.com/2389/filedesk/internal/store"
)

// searchRequestLabel separates the search instruction from the user's question.
const searchRequestLabel = "User request: "

// commitTimeout bounds store writes that must finish even if the turn is cancelled.
const commitTimeout = 30 * time.Second

// AssistantAPI is the remote call surface the orchestrator drives.
type AssistantAPI interface {
	CreateThread(ctx context.Context) ([]byte, error)
	CreateThreadWithMessages(ctx context.Context, messages []assistant.Message) ([]byte, error)
	DeleteThread(ctx context.Context, threadID string) ([]byte, error)
	CreateMessage(ctx context.Context, threadID string, msg assistant.Message) ([]byte, error)
	ListMessages(ctx context.Context, threadID string) ([]byte, error)
	GetMessage(ctx context.Context, threadID, messageID string) ([]byte, error)
	CreateRun(ctx context.Context, threadID string) ([]byte, error)
	GetRun(ctx context.Context, threadID, runID string) ([]byte, error)
}

// AnswerResolver turns a completed run into an envelope.
type AnswerResolver interface {
	Resolve(ctx context.Context, in answer.Input) answer.Envelope
}

// FileResolver finds a requested file locally.
type FileResolver interface {
	Resolve(ctx context.Context, name string) (*files.LocalFile, error)
}

// Delivery sends replies back to the originating chat.
type Delivery interface {
	SendText(ctx context.Context, chatID, text, replyTo string) error
	SendDocument(ctx context.Context, chatID string, file *files.LocalFile, replyTo string) error
}

// Options configures an Orchestrator.
type Options struct {
	RolloverThreshold int
	PollInterval      time.Duration
	PollTimeout       time.Duration
	SearchInstruction string

	Events *EventBroadcaster // optional
	Logger *slog.Logger
}

// Turn is one inbound question.
type Turn struct {
	ChatID   string
	UserID   string
	Question string
	ReplyTo  string
	Kind     answer.RequestKind
}

// TurnResult describes what a turn did. It is returned alongside errors when
// the turn got far enough to have a thread or run.
type TurnResult struct {
	TurnID     string
	ThreadID   string
	RunID      string
	RolledOver bool
	Envelope   answer.Envelope
	Delivered  []*files.LocalFile
	Failures   []error
}

// Orchestrator owns per-user thread lifecycle and the run polling loop.
type Orchestrator struct {
	api      AssistantAPI
	parser   *assistant.Parser
	sessions store.SessionStore
	locker   store.Locker       // nil when the store cannot lock across processes
	recorder store.TurnRecorder // nil when the store keeps no ledger
	answers  AnswerResolver
	files    FileResolver
	out      Delivery
	events   *EventBroadcaster
	locks    *userLocks

	threshold         int
	pollInterval      time.Duration
	pollTimeout       time.Duration
	searchInstruction string

	logger *slog.Logger
}

// New creates an Orchestrator. Distributed locking and the turn ledger are
// enabled when sessions also implements store.Locker or store.TurnRecorder.
func New(api AssistantAPI, sessions store.SessionStore, answers AnswerResolver, fileResolver FileResolver, out Delivery, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		api:               api,
		parser:            assistant.NewParser(logger),
		sessions:          sessions,
		answers:           answers,
		files:             fileResolver,
		out:               out,
		events:            opts.Events,
		locks:             newUserLocks(),
		threshold:         opts.RolloverThreshold,
		pollInterval:      opts.PollInterval,
		pollTimeout:       opts.PollTimeout,
		searchInstruction: opts.SearchInstruction,
		logger:            logger.With("component", "conversation"),
	}
	if locker, ok := sessions.(store.Locker); ok {
		o.locker = locker
	}
	if recorder, ok := sessions.(store.TurnRecorder); ok {
		o.recorder = recorder
	}
	return o
}

// HandleTurn runs a full turn: ensure thread, roll history over if due,
// append the question, run, poll, resolve and deliver. Turns for the same
// user are serialized; other users proceed concurrently.
func (o *Orchestrator) HandleTurn(ctx context.Context, turn Turn) (*TurnResult, error) {
	result := &TurnResult{TurnID: uuid.New().String()}
	log := o.logger.With("turn_id", result.TurnID, "user_id", turn.UserID, "chat_id", turn.ChatID)

	if turn.UserID == "" || turn.ChatID == "" {
		return result, fmt.Errorf("%w: user id and chat id are required", ErrSequence)
	}
	if turn.Kind == "" {
		turn.Kind = answer.KindRegular
	}

	o.publish(result, turn, StageStarted, string(turn.Kind))
	err := o.handleTurn(ctx, log, turn, result)
	o.record(ctx, log, turn, result, err)

	if err != nil {
		o.publish(result, turn, StageFailed, err.Error())
		log.Warn("turn failed", "thread_id", result.ThreadID, "run_id", result.RunID, "error", err)
		return result, err
	}
	o.publish(result, turn, StageDelivered, "")
	return result, nil
}

func (o *Orchestrator) handleTurn(ctx context.Context, log *slog.Logger, turn Turn, result *TurnResult) error {
	unlock, err := o.lock(ctx, turn.UserID)
	if err != nil {
		return err
	}
	defer unlock()

	threadID, fresh, err := o.ensureThread(ctx, log, turn.UserID)
	if err != nil {
		return err
	}
	result.ThreadID = threadID

	threadID, rolled, err := o.advanceHistory(ctx, log, turn, result, threadID, fresh)
	if err != nil {
		return err
	}
	result.ThreadID = threadID
	result.RolledOver = rolled
	log = log.With("thread_id", threadID)

	if err := o.appendQuestion(ctx, threadID, turn); err != nil {
		return err
	}

	runID, err := o.startRun(ctx, threadID)
	if err != nil {
		return err
	}
	result.RunID = runID
	log = log.With("run_id", runID)
	o.publish(result, turn, StageRunStarted, runID)

	if err := o.waitForRun(ctx, log, threadID, runID, func() { o.publish(result, turn, StageWaiting, runID) }); err != nil {
		return err
	}
	o.publish(result, turn, StageCompleted, runID)

	in, err := o.collectAnswer(ctx, threadID, turn.Kind)
	if err != nil {
		return err
	}
	result.Envelope = o.answers.Resolve(ctx, in)

	return o.dispatch(ctx, log, turn, result)
}

// lock takes the in-process user lock and, when available, the store's
// distributed lock. The returned function releases both.
func (o *Orchestrator) lock(ctx context.Context, userID string) (func(), error) {
	unlockLocal, err := o.locks.Lock(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: waiting for user lock: %w", ErrInterrupted, err)
	}
	if o.locker == nil {
		return unlockLocal, nil
	}

	unlockRemote, err := o.locker.Lock(ctx, userID)
	if err != nil {
		unlockLocal()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrInterrupted, err)
		}
		return nil, fmt.Errorf("acquiring session lock: %w", err)
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := unlockRemote(releaseCtx); err != nil {
			o.logger.Warn("releasing session lock failed", "user_id", userID, "error", err)
		}
		unlockLocal()
	}, nil
}

// ensureThread returns the user's thread id, creating and persisting one if absent.
func (o *Orchestrator) ensureThread(ctx context.Context, log *slog.Logger, userID string) (string, bool, error) {
	threadID, err := o.sessions.GetThread(ctx, userID)
	if err == nil {
		return threadID, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", false, fmt.Errorf("looking up thread: %w", err)
	}

	threadID, err = o.createThread(ctx)
	if err != nil {
		return "", false, err
	}
	if err := o.sessions.SetThread(ctx, userID, threadID); err != nil {
		return "", false, fmt.Errorf("persisting new thread: %w", err)
	}

	log.Info("created thread", "thread_id", threadID)
	return threadID, true, nil
}

func (o *Orchestrator) createThread(ctx context.Context) (string, error) {
	raw, err := o.api.CreateThread(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: creating thread: %w", ErrSequence, err)
	}
	threadID := o.parser.ID(raw)
	if threadID == "" {
		return "", fmt.Errorf("%w: created thread has no id", ErrSequence)
	}
	return threadID, nil
}

// advanceHistory applies the counter policy. At the threshold the thread is
// rolled over and the counter reset; below it the counter is incremented.
// A freshly created thread starts counting from zero.
func (o *Orchestrator) advanceHistory(ctx context.Context, log *slog.Logger, turn Turn, result *TurnResult, threadID string, fresh bool) (string, bool, error) {
	count, err := o.sessions.GetMessageCount(ctx, turn.UserID)
	if err != nil {
		return "", false, fmt.Errorf("reading message count: %w", err)
	}

	if fresh {
		if count != 0 {
			log.Debug("resetting stale message count for new thread", "count", count)
			if err := o.sessions.ResetMessageCount(ctx, turn.UserID); err != nil {
				return "", false, fmt.Errorf("resetting message count: %w", err)
			}
		}
	} else if count >= o.threshold {
		o.publish(result, turn, StageRollover, threadID)
		newThreadID, err := o.rollover(ctx, log, turn.UserID, threadID)
		if err != nil {
			return "", false, err
		}
		return newThreadID, true, nil
	}

	if _, err := o.sessions.IncrementMessageCount(ctx, turn.UserID); err != nil {
		return "", false, fmt.Errorf("incrementing message count: %w", err)
	}
	return threadID, false, nil
}

// appendQuestion adds the user's message to the thread.
func (o *Orchestrator) appendQuestion(ctx context.Context, threadID string, turn Turn) error {
	if threadID == "" {
		return fmt.Errorf("%w: no thread id before appending message", ErrSequence)
	}

	content := turn.Question
	if turn.Kind == answer.KindSearch {
		content = o.searchInstruction + searchRequestLabel + turn.Question
	}

	if _, err := o.api.CreateMessage(ctx, threadID, assistant.Message{Role: "user", Content: content}); err != nil {
		return fmt.Errorf("%w: appending message: %w", ErrSequence, err)
	}
	return nil
}

func (o *Orchestrator) startRun(ctx context.Context, threadID string) (string, error) {
	raw, err := o.api.CreateRun(ctx, threadID)
	if err != nil {
		return "", fmt.Errorf("%w: starting run: %w", ErrSequence, err)
	}
	runID := o.parser.ID(raw)
	if runID == "" {
		return "", fmt.Errorf("%w: started run has no id", ErrSequence)
	}
	return runID, nil
}

// collectAnswer reads the newest message of a completed run with its citations.
func (o *Orchestrator) collectAnswer(ctx context.Context, threadID string, kind answer.RequestKind) (answer.Input, error) {
	list, err := o.api.ListMessages(ctx, threadID)
	if err != nil {
		return answer.Input{}, fmt.Errorf("listing messages: %w", err)
	}

	latestID := o.parser.LatestMessageID(list)
	if latestID == "" {
		return answer.Input{}, fmt.Errorf("%w: completed run left no message", ErrSequence)
	}

	msg, err := o.api.GetMessage(ctx, threadID, latestID)
	if err != nil {
		return answer.Input{}, fmt.Errorf("fetching message %s: %w", latestID, err)
	}

	return answer.Input{
		Kind:            kind,
		ReferenceNames:  o.parser.CitationNames(list, latestID),
		ReferenceIDs:    o.parser.CitationFileIDs(list, latestID),
		Text:            o.parser.MessageText(msg),
		LatestMessageID: latestID,
	}, nil
}

// dispatch delivers the envelope. File failures are isolated per file and
// collected in result.Failures.
func (o *Orchestrator) dispatch(ctx context.Context, log *slog.Logger, turn Turn, result *TurnResult) error {
	env := result.Envelope

	if env.Kind == answer.EnvelopeText {
		if strings.TrimSpace(env.Text) == "" {
			return ErrEmptyAnswer
		}
		if err := o.out.SendText(ctx, turn.ChatID, env.Text, turn.ReplyTo); err != nil {
			return fmt.Errorf("delivering text: %w", err)
		}
		log.Info("delivered text answer", "length", len(env.Text))
		return nil
	}

	for _, ref := range env.Files {
		file, err := o.files.Resolve(ctx, ref.Name)
		if err != nil {
			result.Failures = append(result.Failures, err)
			continue
		}
		err = o.out.SendDocument(ctx, turn.ChatID, file, turn.ReplyTo)
		if relErr := file.Release(); relErr != nil {
			log.Warn("releasing delivered file failed", "file", file.Name, "error", relErr)
		}
		if err != nil {
			log.Warn("delivering document failed", "file", file.Name, "error", err)
			result.Failures = append(result.Failures, &files.ResolutionError{Name: ref.Name, Err: err})
			continue
		}
		result.Delivered = append(result.Delivered, file)
	}

	log.Info("delivered file answer",
		"strategy", env.Strategy.String(),
		"requested", len(env.Files),
		"delivered", len(result.Delivered),
		"failed", len(result.Failures),
	)
	return nil
}

func (o *Orchestrator) publish(result *TurnResult, turn Turn, stage Stage, detail string) {
	if o.events == nil {
		return
	}
	o.events.Publish(&TurnEvent{
		TurnID: result.TurnID,
		ChatID: turn.ChatID,
		UserID: turn.UserID,
		Stage:  stage,
		Detail: detail,
		Time:   time.Now(),
	})
}

// record appends the turn outcome to the ledger when the store keeps one.
func (o *Orchestrator) record(ctx context.Context, log *slog.Logger, turn Turn, result *TurnResult, turnErr error) {
	if o.recorder == nil {
		return
	}

	rec := &store.TurnRecord{
		ID:          result.TurnID,
		UserID:      turn.UserID,
		ThreadID:    result.ThreadID,
		RequestKind: string(turn.Kind),
		Outcome:     outcome(result, turnErr),
	}
	switch {
	case turnErr != nil:
		rec.Detail = turnErr.Error()
	case len(result.Delivered) > 0:
		names := make([]string, 0, len(result.Delivered))
		for _, f := range result.Delivered {
			names = append(names, f.Name)
		}
		rec.Detail = strings.Join(names, ", ")
	}

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	if err := o.recorder.RecordTurn(recordCtx, rec); err != nil {
		log.Warn("recording turn failed", "error", err)
	}
}

func outcome(result *TurnResult, err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return store.OutcomeTimeout
	case errors.Is(err, ErrInterrupted):
		return store.OutcomeCancelled
	case err != nil:
		return store.OutcomeFailed
	case result.Envelope.Kind == answer.EnvelopeText:
		return store.OutcomeText
	case len(result.Delivered) > 0:
		return store.OutcomeFiles
	default:
		return store.OutcomeNoFiles
	}
}
