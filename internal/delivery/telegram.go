// ABOUTME: Telegram Sender built on telego
// ABOUTME: Long answers are chunked, the first chunk replies to the question, documents are streamed from disk

package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/2389/filedesk/internal/files"
)

// telegramMaxMessageChars stays under Telegram's 4096 character limit.
const telegramMaxMessageChars = 3900

// TelegramAPI is the subset of *telego.Bot used for delivery.
type TelegramAPI interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	SendDocument(ctx context.Context, params *telego.SendDocumentParams) (*telego.Message, error)
	SendChatAction(ctx context.Context, params *telego.SendChatActionParams) error
}

// Telegram delivers to Telegram chats. Chat ids are numeric.
type Telegram struct {
	bot    TelegramAPI
	logger *slog.Logger
}

// NewTelegram wraps a bot.
func NewTelegram(bot TelegramAPI, logger *slog.Logger) *Telegram {
	if logger == nil {
		logger = slog.Default()
	}
	return &Telegram{
		bot:    bot,
		logger: logger.With("component", "delivery", "frontend", FrontendTelegram),
	}
}

// SendText sends text, split into chunks when it exceeds the message limit.
func (t *Telegram) SendText(ctx context.Context, chatID, text, replyTo string) error {
	id, err := parseTelegramChat(chatID)
	if err != nil {
		return err
	}

	for i, chunk := range splitMessage(text, telegramMaxMessageChars) {
		msg := tu.Message(tu.ID(id), chunk)
		if i == 0 {
			msg.ReplyParameters = replyParameters(replyTo)
		}
		if _, err := t.bot.SendMessage(ctx, msg); err != nil {
			return fmt.Errorf("sending telegram message: %w", err)
		}
	}
	return nil
}

// SendDocument uploads file under its display name.
func (t *Telegram) SendDocument(ctx context.Context, chatID string, file *files.LocalFile, replyTo string) error {
	id, err := parseTelegramChat(chatID)
	if err != nil {
		return err
	}

	f, err := os.Open(file.Path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", file.Path, err)
	}
	defer f.Close()

	doc := tu.Document(tu.ID(id), tu.File(tu.NameReader(f, file.Name)))
	doc.ReplyParameters = replyParameters(replyTo)

	if _, err := t.bot.SendDocument(ctx, doc); err != nil {
		return fmt.Errorf("sending telegram document: %w", err)
	}
	t.logger.Debug("document sent", "chat_id", chatID, "name", file.Name, "size", file.Size)
	return nil
}

// SetTyping sends the typing action. Telegram clears it on its own, so
// typing=false is a no-op.
func (t *Telegram) SetTyping(ctx context.Context, chatID string, typing bool) error {
	if !typing {
		return nil
	}
	id, err := parseTelegramChat(chatID)
	if err != nil {
		return err
	}
	if err := t.bot.SendChatAction(ctx, tu.ChatAction(tu.ID(id), telego.ChatActionTyping)); err != nil {
		return fmt.Errorf("sending telegram chat action: %w", err)
	}
	return nil
}

func parseTelegramChat(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: telegram chat %q", ErrInvalidChatID, chatID)
	}
	return id, nil
}

// replyParameters returns nil when replyTo is not a message id.
func replyParameters(replyTo string) *telego.ReplyParameters {
	if replyTo == "" {
		return nil
	}
	msgID, err := strconv.Atoi(replyTo)
	if err != nil {
		return nil
	}
	return &telego.ReplyParameters{MessageID: msgID, AllowSendingWithoutReply: true}
}
