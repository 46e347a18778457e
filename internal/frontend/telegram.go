// ABOUTME: Telegram frontend using telego long polling
// ABOUTME: Each allowed text message is handed to the Bridge in its own tracked goroutine

package frontend

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"github.com/2389/filedesk/internal/delivery"
)

// Telegram receives messages from a Telegram bot.
type Telegram struct {
	bot     *telego.Bot
	bridge  *Bridge
	allowed map[int64]bool
	logger  *slog.Logger

	inflight sync.WaitGroup
}

// NewTelegram creates the frontend. An empty allow-list admits everyone.
func NewTelegram(bot *telego.Bot, bridge *Bridge, allowedUsers []int64, logger *slog.Logger) *Telegram {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[int64]bool, len(allowedUsers))
	for _, id := range allowedUsers {
		allowed[id] = true
	}
	return &Telegram{
		bot:     bot,
		bridge:  bridge,
		allowed: allowed,
		logger:  logger.With("component", "frontend", "frontend", delivery.FrontendTelegram),
	}
}

// Run polls for updates until ctx is cancelled, then waits for in-flight
// messages to finish.
func (t *Telegram) Run(ctx context.Context) error {
	t.logger.Info("starting telegram long polling")

	updates, err := t.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout: 30,
	})
	if err != nil {
		return fmt.Errorf("starting long polling: %w", err)
	}

	bh, err := th.NewBotHandler(t.bot, updates)
	if err != nil {
		return fmt.Errorf("creating bot handler: %w", err)
	}

	bh.HandleMessage(func(_ *th.Context, message telego.Message) error {
		t.dispatch(ctx, message)
		return nil
	}, th.AnyMessage())

	go bh.Start()
	t.logger.Info("telegram frontend running", "username", t.bot.Username())

	<-ctx.Done()
	t.logger.Info("shutting down telegram frontend")
	bh.Stop()
	t.inflight.Wait()
	return nil
}

// dispatch hands the message to the bridge without blocking the update loop.
func (t *Telegram) dispatch(ctx context.Context, message telego.Message) {
	msg, ok := t.toMessage(message)
	if !ok {
		return
	}
	t.inflight.Add(1)
	go func() {
		defer t.inflight.Done()
		if err := t.bridge.HandleMessage(ctx, msg); err != nil {
			t.logger.Debug("message handling ended with error", "chat_id", msg.ChatID, "error", err)
		}
	}()
}

// toMessage converts an update into a bridge message, dropping anything
// without text or from a user outside the allow-list.
func (t *Telegram) toMessage(message telego.Message) (*Message, bool) {
	if message.From == nil || message.Text == "" {
		return nil, false
	}
	if len(t.allowed) > 0 && !t.allowed[message.From.ID] {
		t.logger.Debug("message rejected by allowlist", "user_id", message.From.ID)
		return nil, false
	}
	return &Message{
		Frontend:          delivery.FrontendTelegram,
		PlatformMessageID: strconv.Itoa(message.MessageID),
		ChatID:            strconv.FormatInt(message.Chat.ID, 10),
		Sender:            strconv.FormatInt(message.From.ID, 10),
		Content:           message.Text,
	}, true
}
