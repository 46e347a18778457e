// ABOUTME: Matrix Sender built on mautrix
// ABOUTME: Text is sent with a goldmark-rendered HTML body; documents are uploaded then posted as m.file

package delivery

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/yuin/goldmark"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/filedesk/internal/files"
)

// typingTimeout is how long Matrix shows the typing indicator unless refreshed.
const typingTimeout = 30 * time.Second

// MatrixAPI is the subset of *mautrix.Client used for delivery.
type MatrixAPI interface {
	SendMessageEvent(ctx context.Context, roomID id.RoomID, eventType event.Type, contentJSON interface{}, extra ...mautrix.ReqSendEvent) (*mautrix.RespSendEvent, error)
	UploadBytesWithName(ctx context.Context, data []byte, contentType, fileName string) (*mautrix.RespMediaUpload, error)
	UserTyping(ctx context.Context, roomID id.RoomID, typing bool, timeout time.Duration) (*mautrix.RespTyping, error)
}

// Matrix delivers to Matrix rooms. Chat ids are room ids.
type Matrix struct {
	client MatrixAPI
	md     goldmark.Markdown
	logger *slog.Logger
}

// NewMatrix wraps a client.
func NewMatrix(client MatrixAPI, logger *slog.Logger) *Matrix {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matrix{
		client: client,
		md:     goldmark.New(),
		logger: logger.With("component", "delivery", "frontend", FrontendMatrix),
	}
}

// SendText posts text with an HTML rendering of its markdown.
func (m *Matrix) SendText(ctx context.Context, chatID, text, replyTo string) error {
	content := &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    text,
	}

	var html bytes.Buffer
	if err := m.md.Convert([]byte(text), &html); err != nil {
		m.logger.Warn("failed to render markdown, sending plain text", "error", err)
	} else {
		content.Format = event.FormatHTML
		content.FormattedBody = html.String()
	}
	setReply(content, replyTo)

	if _, err := m.client.SendMessageEvent(ctx, id.RoomID(chatID), event.EventMessage, content); err != nil {
		return fmt.Errorf("sending matrix message: %w", err)
	}
	return nil
}

// SendDocument uploads the file to the media repository and posts it.
func (m *Matrix) SendDocument(ctx context.Context, chatID string, file *files.LocalFile, replyTo string) error {
	data, err := os.ReadFile(file.Path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", file.Path, err)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(file.Name))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	upload, err := m.client.UploadBytesWithName(ctx, data, mimeType, file.Name)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", file.Name, err)
	}

	content := &event.MessageEventContent{
		MsgType:  event.MsgFile,
		Body:     file.Name,
		FileName: file.Name,
		URL:      upload.ContentURI.CUString(),
		Info: &event.FileInfo{
			MimeType: mimeType,
			Size:     len(data),
		},
	}
	setReply(content, replyTo)

	if _, err := m.client.SendMessageEvent(ctx, id.RoomID(chatID), event.EventMessage, content); err != nil {
		return fmt.Errorf("sending matrix file event: %w", err)
	}
	m.logger.Debug("document sent", "room", chatID, "name", file.Name, "size", len(data))
	return nil
}

// SetTyping toggles the room typing indicator.
func (m *Matrix) SetTyping(ctx context.Context, chatID string, typing bool) error {
	var timeout time.Duration
	if typing {
		timeout = typingTimeout
	}
	if _, err := m.client.UserTyping(ctx, id.RoomID(chatID), typing, timeout); err != nil {
		return fmt.Errorf("setting matrix typing: %w", err)
	}
	return nil
}

func setReply(content *event.MessageEventContent, replyTo string) {
	if replyTo == "" {
		return
	}
	content.RelatesTo = (&event.RelatesTo{}).SetReplyTo(id.EventID(replyTo))
}
