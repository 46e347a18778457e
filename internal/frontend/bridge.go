// ABOUTME: Shared inbound message handling for every chat frontend
// ABOUTME: Deduplicates platform messages, handles mode commands and runs turns with user-facing fallbacks

package frontend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/filedesk/internal/answer"
	"github.com/2389/filedesk/internal/conversation"
	"github.com/2389/filedesk/internal/dedupe"
	"github.com/2389/filedesk/internal/delivery"
)

// User-facing replies.
const (
	helpText = "Ask me anything about the document library.\n" +
		"/search switches to file search: I reply with matching documents.\n" +
		"/regular switches back to normal answers."
	searchModeText  = "Search mode is on. Send a description of the documents you need."
	regularModeText = "Regular mode is on."
	apologyText     = "Sorry, I could not answer that right now. Please try again in a moment."
	noFilesText     = "No matching files were found."
)

// typingRefresh re-sends the typing indicator before platforms expire it.
const typingRefresh = 4 * time.Second

// Message represents a message received from a chat frontend.
// Each frontend provides a unique platform-specific message ID:
//   - Matrix: event_id (e.g., "$abc123")
//   - Telegram: message_id (integer, stored as string)
type Message struct {
	// Frontend identifies the source platform (e.g., "matrix", "telegram")
	Frontend string

	// PlatformMessageID is the unique message identifier from the frontend platform
	PlatformMessageID string

	// ChatID is the chat/room identifier on the frontend platform
	ChatID string

	// Sender is the user identifier on the frontend platform
	Sender string

	// Content is the message text
	Content string
}

// TurnHandler runs a conversation turn.
type TurnHandler interface {
	HandleTurn(ctx context.Context, turn conversation.Turn) (*conversation.TurnResult, error)
}

// KindStore persists each user's request kind.
type KindStore interface {
	GetRequestKind(ctx context.Context, userID string) (string, error)
	SetRequestKind(ctx context.Context, userID, kind string) error
}

// Replier sends short replies and typing state outside of a turn.
type Replier interface {
	SendText(ctx context.Context, chatID, text, replyTo string) error
	SetTyping(ctx context.Context, chatID string, typing bool) error
}

// Options configures a Bridge.
type Options struct {
	Turns  TurnHandler
	Kinds  KindStore
	Out    Replier
	Events *conversation.EventBroadcaster // optional, drives typing indicators
	Dedupe *dedupe.Window                 // optional
	Logger *slog.Logger
}

// Bridge turns inbound chat messages into conversation turns.
type Bridge struct {
	turns  TurnHandler
	kinds  KindStore
	out    Replier
	events *conversation.EventBroadcaster
	dedupe *dedupe.Window
	logger *slog.Logger
}

// NewBridge creates a Bridge.
func NewBridge(opts Options) *Bridge {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		turns:  opts.Turns,
		kinds:  opts.Kinds,
		out:    opts.Out,
		events: opts.Events,
		dedupe: opts.Dedupe,
		logger: logger.With("component", "frontend"),
	}
}

// UserID namespaces a platform user id by frontend.
func UserID(frontend, sender string) string {
	return frontend + ":" + sender
}

// HandleMessage processes one inbound message. Duplicate platform messages
// return nil without doing anything. Turn failures are answered with an
// apology and returned.
func (b *Bridge) HandleMessage(ctx context.Context, msg *Message) error {
	key := dedupe.Key{Frontend: msg.Frontend, ChatID: msg.ChatID, MessageID: msg.PlatformMessageID}
	if b.dedupe != nil && msg.PlatformMessageID != "" && b.dedupe.Seen(key) {
		b.logger.Debug("duplicate message ignored",
			"frontend", msg.Frontend,
			"platform_id", msg.PlatformMessageID,
		)
		return nil
	}

	chatID := delivery.ChatID(msg.Frontend, msg.ChatID)
	userID := UserID(msg.Frontend, msg.Sender)
	log := b.logger.With("chat_id", chatID, "user_id", userID)

	cmd, question := ParseCommand(msg.Content)
	var kind answer.RequestKind

	switch cmd {
	case CommandHelp:
		return b.reply(ctx, chatID, helpText, msg.PlatformMessageID)

	case CommandSearch, CommandRegular:
		kind = answer.KindRegular
		confirmation := regularModeText
		if cmd == CommandSearch {
			kind = answer.KindSearch
			confirmation = searchModeText
		}
		if err := b.kinds.SetRequestKind(ctx, userID, string(kind)); err != nil {
			log.Error("storing request kind failed", "error", err)
			_ = b.reply(ctx, chatID, apologyText, msg.PlatformMessageID)
			return fmt.Errorf("storing request kind: %w", err)
		}
		log.Info("request kind changed", "kind", kind)
		if question == "" {
			return b.reply(ctx, chatID, confirmation, msg.PlatformMessageID)
		}

	default:
		if question == "" {
			return nil
		}
		stored, err := b.kinds.GetRequestKind(ctx, userID)
		if err != nil {
			log.Warn("reading request kind failed, using regular", "error", err)
		}
		kind = answer.ParseRequestKind(stored)
	}

	return b.runTurn(ctx, log, key, conversation.Turn{
		ChatID:   chatID,
		UserID:   userID,
		Question: question,
		ReplyTo:  msg.PlatformMessageID,
		Kind:     kind,
	})
}

func (b *Bridge) runTurn(ctx context.Context, log *slog.Logger, key dedupe.Key, turn conversation.Turn) error {
	stopTyping := b.watchTyping(ctx, turn.ChatID)
	result, err := b.turns.HandleTurn(ctx, turn)
	stopTyping()

	if err != nil {
		if errors.Is(err, conversation.ErrInterrupted) && ctx.Err() != nil {
			// Shutting down; let a redelivery after restart try again.
			if b.dedupe != nil {
				b.dedupe.Forget(key)
			}
			return err
		}
		log.Error("turn failed", "kind", turn.Kind, "error", err)
		_ = b.reply(ctx, turn.ChatID, apologyText, turn.ReplyTo)
		return err
	}

	if result.Envelope.Kind == answer.EnvelopeFiles && len(result.Delivered) == 0 {
		return b.reply(ctx, turn.ChatID, noFilesText, turn.ReplyTo)
	}
	return nil
}

func (b *Bridge) reply(ctx context.Context, chatID, text, replyTo string) error {
	if err := b.out.SendText(ctx, chatID, text, replyTo); err != nil {
		b.logger.Warn("failed to send reply", "chat_id", chatID, "error", err)
		return fmt.Errorf("sending reply: %w", err)
	}
	return nil
}

// watchTyping shows the typing indicator while the chat has a turn in
// flight. The returned func stops watching and waits for the watcher to exit.
func (b *Bridge) watchTyping(ctx context.Context, chatID string) func() {
	if b.events == nil {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	events, _ := b.events.Subscribe(ctx, chatID)
	done := make(chan struct{})

	go func() {
		defer close(done)

		typing := false
		set := func(on bool) {
			setCtx, setCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer setCancel()
			if err := b.out.SetTyping(setCtx, chatID, on); err != nil {
				b.logger.Debug("failed to set typing indicator", "chat_id", chatID, "error", err)
			}
			typing = on
		}

		refresh := time.NewTicker(typingRefresh)
		defer refresh.Stop()

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					if typing {
						set(false)
					}
					return
				}
				switch ev.Stage {
				case conversation.StageStarted, conversation.StageRollover,
					conversation.StageRunStarted, conversation.StageWaiting, conversation.StageCompleted:
					if !typing {
						set(true)
					}
				case conversation.StageDelivered, conversation.StageFailed:
					if typing {
						set(false)
					}
				}
			case <-refresh.C:
				if typing {
					set(true)
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
