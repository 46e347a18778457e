// ABOUTME: Routes outbound text, documents and typing state to the frontend named in the chat id
// ABOUTME: Chat ids are "<frontend>:<platform chat id>", e.g. "telegram:123" or "matrix:!room:server"

package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/2389/filedesk/internal/files"
)

// Frontend names used as chat id prefixes.
const (
	FrontendTelegram = "telegram"
	FrontendMatrix   = "matrix"
)

var (
	// ErrUnknownFrontend is returned when no sender is registered for a chat id prefix.
	ErrUnknownFrontend = errors.New("unknown frontend")

	// ErrInvalidChatID is returned for chat ids without a frontend prefix.
	ErrInvalidChatID = errors.New("invalid chat id")
)

// Sender delivers to one chat platform. Chat ids passed to a Sender have the
// frontend prefix stripped.
type Sender interface {
	SendText(ctx context.Context, chatID, text, replyTo string) error
	SendDocument(ctx context.Context, chatID string, file *files.LocalFile, replyTo string) error
	SetTyping(ctx context.Context, chatID string, typing bool) error
}

// ChatID joins a frontend name and a platform chat id.
func ChatID(frontend, platformID string) string {
	return frontend + ":" + platformID
}

// SplitChatID separates the frontend prefix from the platform chat id.
func SplitChatID(chatID string) (frontend, platformID string, err error) {
	frontend, platformID, ok := strings.Cut(chatID, ":")
	if !ok || frontend == "" || platformID == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidChatID, chatID)
	}
	return frontend, platformID, nil
}

// Router dispatches to the Sender registered for each chat id prefix.
type Router struct {
	mu      sync.RWMutex
	senders map[string]Sender
	logger  *slog.Logger
}

// NewRouter creates an empty router.
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		senders: make(map[string]Sender),
		logger:  logger.With("component", "delivery"),
	}
}

// Register installs the sender for a frontend, replacing any previous one.
func (r *Router) Register(frontend string, s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[frontend] = s
	r.logger.Info("registered frontend", "frontend", frontend)
}

// Has reports whether a sender is registered for the frontend.
func (r *Router) Has(frontend string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.senders[frontend]
	return ok
}

func (r *Router) route(chatID string) (Sender, string, error) {
	frontend, platformID, err := SplitChatID(chatID)
	if err != nil {
		return nil, "", err
	}

	r.mu.RLock()
	s, ok := r.senders[frontend]
	r.mu.RUnlock()
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownFrontend, frontend)
	}
	return s, platformID, nil
}

// SendText delivers a text message.
func (r *Router) SendText(ctx context.Context, chatID, text, replyTo string) error {
	s, platformID, err := r.route(chatID)
	if err != nil {
		return err
	}
	if err := s.SendText(ctx, platformID, text, replyTo); err != nil {
		return fmt.Errorf("sending text to %s: %w", chatID, err)
	}
	return nil
}

// SendDocument uploads a local file as a document.
func (r *Router) SendDocument(ctx context.Context, chatID string, file *files.LocalFile, replyTo string) error {
	s, platformID, err := r.route(chatID)
	if err != nil {
		return err
	}
	if err := s.SendDocument(ctx, platformID, file, replyTo); err != nil {
		return fmt.Errorf("sending %s to %s: %w", file.Name, chatID, err)
	}
	return nil
}

// SetTyping toggles the typing indicator.
func (r *Router) SetTyping(ctx context.Context, chatID string, typing bool) error {
	s, platformID, err := r.route(chatID)
	if err != nil {
		return err
	}
	return s.SetTyping(ctx, platformID, typing)
}
