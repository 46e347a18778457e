// ABOUTME: Tests for the Telegram sender against a recording bot
// ABOUTME: Covers chunking, reply parameters, document upload and typing

package delivery

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/filedesk/internal/files"
)

type fakeBot struct {
	messages []*telego.SendMessageParams
	docs     []*telego.SendDocumentParams
	docBody  []string
	actions  []*telego.SendChatActionParams
}

func (b *fakeBot) SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	b.messages = append(b.messages, params)
	return &telego.Message{MessageID: len(b.messages)}, nil
}

func (b *fakeBot) SendDocument(ctx context.Context, params *telego.SendDocumentParams) (*telego.Message, error) {
	b.docs = append(b.docs, params)
	body, err := io.ReadAll(params.Document.File)
	if err != nil {
		return nil, err
	}
	b.docBody = append(b.docBody, string(body))
	return &telego.Message{MessageID: 1}, nil
}

func (b *fakeBot) SendChatAction(ctx context.Context, params *telego.SendChatActionParams) error {
	b.actions = append(b.actions, params)
	return nil
}

func TestTelegram_SendTextReplies(t *testing.T) {
	bot := &fakeBot{}
	tg := NewTelegram(bot, nil)

	require.NoError(t, tg.SendText(context.Background(), "42", "hello", "17"))

	require.Len(t, bot.messages, 1)
	msg := bot.messages[0]
	assert.Equal(t, int64(42), msg.ChatID.ID)
	assert.Equal(t, "hello", msg.Text)
	require.NotNil(t, msg.ReplyParameters)
	assert.Equal(t, 17, msg.ReplyParameters.MessageID)
}

func TestTelegram_SendTextChunksLongAnswers(t *testing.T) {
	bot := &fakeBot{}
	tg := NewTelegram(bot, nil)

	long := strings.Repeat("word ", telegramMaxMessageChars/2)
	require.NoError(t, tg.SendText(context.Background(), "42", long, "17"))

	require.Len(t, bot.messages, 2)
	assert.NotNil(t, bot.messages[0].ReplyParameters)
	assert.Nil(t, bot.messages[1].ReplyParameters, "only the first chunk replies")
}

func TestTelegram_InvalidChatID(t *testing.T) {
	tg := NewTelegram(&fakeBot{}, nil)

	err := tg.SendText(context.Background(), "!room:example.org", "hi", "")
	assert.ErrorIs(t, err, ErrInvalidChatID)
}

func TestTelegram_NonNumericReplyIsIgnored(t *testing.T) {
	assert.Nil(t, replyParameters(""))
	assert.Nil(t, replyParameters("$event"))
	assert.Equal(t, 5, replyParameters("5").MessageID)
}

func TestTelegram_SendDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "compressed_report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0644))

	bot := &fakeBot{}
	tg := NewTelegram(bot, nil)

	file := &files.LocalFile{Path: path, Name: "report.pdf", Size: 8}
	require.NoError(t, tg.SendDocument(context.Background(), "42", file, "3"))

	require.Len(t, bot.docs, 1)
	doc := bot.docs[0]
	assert.Equal(t, int64(42), doc.ChatID.ID)
	assert.Equal(t, "report.pdf", doc.Document.File.Name())
	assert.Equal(t, "%PDF-1.4", bot.docBody[0])
	assert.Equal(t, 3, doc.ReplyParameters.MessageID)
}

func TestTelegram_SendDocumentMissingFile(t *testing.T) {
	tg := NewTelegram(&fakeBot{}, nil)

	err := tg.SendDocument(context.Background(), "42", &files.LocalFile{Path: "/nonexistent/x.pdf", Name: "x.pdf"}, "")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestTelegram_Typing(t *testing.T) {
	bot := &fakeBot{}
	tg := NewTelegram(bot, nil)

	require.NoError(t, tg.SetTyping(context.Background(), "42", true))
	require.NoError(t, tg.SetTyping(context.Background(), "42", false))

	require.Len(t, bot.actions, 1)
	assert.Equal(t, telego.ChatActionTyping, bot.actions[0].Action)
}
