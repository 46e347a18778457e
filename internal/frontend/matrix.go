// ABOUTME: Matrix frontend using the mautrix sync loop
// ABOUTME: Filters by room and command prefix, skips history replayed on startup

package frontend

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/filedesk/internal/delivery"
)

// MatrixOptions configures the Matrix frontend.
type MatrixOptions struct {
	UserID        string
	AllowedRooms  []string // empty allows every joined room
	CommandPrefix string   // when set, questions must start with it
}

// Matrix receives messages from Matrix rooms.
type Matrix struct {
	client    *mautrix.Client
	bridge    *Bridge
	opts      MatrixOptions
	startedAt time.Time
	logger    *slog.Logger

	// ctx is the parent context for message processing goroutines
	ctx      context.Context
	inflight sync.WaitGroup
}

// NewMatrix creates the frontend.
func NewMatrix(client *mautrix.Client, bridge *Bridge, opts MatrixOptions, logger *slog.Logger) *Matrix {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matrix{
		client: client,
		bridge: bridge,
		opts:   opts,
		logger: logger.With("component", "frontend", "frontend", delivery.FrontendMatrix),
	}
}

// Run syncs with the homeserver until ctx is cancelled. In-flight messages
// are cancelled and waited for before it returns.
func (m *Matrix) Run(ctx context.Context) error {
	m.logger.Info("starting matrix sync", "user_id", m.opts.UserID)

	defer m.inflight.Wait()
	var cancel context.CancelFunc
	m.ctx, cancel = context.WithCancel(ctx)
	defer cancel()
	m.startedAt = time.Now()

	syncer, ok := m.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", m.client.Syncer)
	}
	syncer.OnEventType(event.EventMessage, m.handleEvent)

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- m.client.SyncWithContext(m.ctx)
	}()

	select {
	case <-ctx.Done():
		m.logger.Info("shutting down matrix frontend")
		cancel()
		return nil
	case err := <-syncErr:
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("matrix sync failed: %w", err)
	}
}

func (m *Matrix) handleEvent(_ context.Context, evt *event.Event) {
	msg, ok := m.toMessage(evt)
	if !ok {
		return
	}

	m.logger.Info("received message", "room", msg.ChatID, "sender", msg.Sender)

	// Process in a goroutine so the sync loop is never blocked
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		if err := m.bridge.HandleMessage(m.ctx, msg); err != nil {
			m.logger.Debug("message handling ended with error", "room", msg.ChatID, "error", err)
		}
	}()
}

// toMessage converts a room event into a bridge message, dropping our own
// messages, non-text content, replayed history and filtered rooms.
func (m *Matrix) toMessage(evt *event.Event) (*Message, bool) {
	if evt.Sender == id.UserID(m.opts.UserID) {
		return nil, false
	}
	if !m.startedAt.IsZero() && evt.Timestamp < m.startedAt.UnixMilli() {
		return nil, false
	}

	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || content.MsgType != event.MsgText {
		return nil, false
	}

	roomID := evt.RoomID.String()
	if len(m.opts.AllowedRooms) > 0 && !slices.Contains(m.opts.AllowedRooms, roomID) {
		m.logger.Debug("ignoring message from non-allowed room", "room", roomID)
		return nil, false
	}

	body := strings.TrimSpace(content.Body)
	if cmd, _ := ParseCommand(body); cmd == CommandNone && m.opts.CommandPrefix != "" {
		if !strings.HasPrefix(body, m.opts.CommandPrefix) {
			return nil, false
		}
		body = strings.TrimSpace(strings.TrimPrefix(body, m.opts.CommandPrefix))
	}
	if body == "" {
		return nil, false
	}

	return &Message{
		Frontend:          delivery.FrontendMatrix,
		PlatformMessageID: evt.ID.String(),
		ChatID:            roomID,
		Sender:            evt.Sender.String(),
		Content:           body,
	}, true
}
