// ABOUTME: In-memory fan-out of turn progress events keyed by chat id
// ABOUTME: Frontends subscribe to show typing indicators while a run is pending

package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// Stage is a point in a turn's lifecycle.
type Stage string

const (
	StageStarted    Stage = "started"
	StageRollover   Stage = "rollover"
	StageRunStarted Stage = "run_started"
	StageWaiting    Stage = "waiting"
	StageCompleted  Stage = "completed"
	StageDelivered  Stage = "delivered"
	StageFailed     Stage = "failed"
)

// TurnEvent reports progress of one turn.
type TurnEvent struct {
	TurnID string
	ChatID string
	UserID string
	Stage  Stage
	Detail string
	Time   time.Time
}

// EventBroadcaster provides in-memory pub/sub for turn events.
// Subscribers register for a chat id and receive events for turns answering
// into that chat.
type EventBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *TurnEvent // chatID -> subID -> ch
	logger      *slog.Logger
}

// NewEventBroadcaster creates a broadcaster. Pass nil logger for default.
func NewEventBroadcaster(logger *slog.Logger) *EventBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBroadcaster{
		subscribers: make(map[string]map[string]chan *TurnEvent),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for events on the given chat.
// Returns a channel that receives events and a subscription ID for later
// unsubscription. The subscription is automatically cleaned up when ctx is
// cancelled.
func (b *EventBroadcaster) Subscribe(ctx context.Context, chatID string) (<-chan *TurnEvent, string) {
	subID := uuid.New().String()
	ch := make(chan *TurnEvent, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[chatID]; !ok {
		b.subscribers[chatID] = make(map[string]chan *TurnEvent)
	}
	b.subscribers[chatID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "chat_id", chatID, "sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		b.Unsubscribe(chatID, subID)
	}()

	return ch, subID
}

// Publish sends an event to all subscribers of the event's chat.
// Non-blocking: events are dropped for subscribers whose channels are full.
func (b *EventBroadcaster) Publish(event *TurnEvent) {
	b.mu.RLock()
	subs, ok := b.subscribers[event.ChatID]
	if !ok || len(subs) == 0 {
		b.mu.RUnlock()
		return
	}

	// Copy subscriber channels under read lock to avoid holding lock during sends
	targets := make([]chan *TurnEvent, 0, len(subs))
	for _, ch := range subs {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- event:
		default:
			b.logger.Debug("dropped event for slow subscriber",
				"chat_id", event.ChatID,
				"stage", event.Stage)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *EventBroadcaster) Unsubscribe(chatID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[chatID]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, chatID)
	}

	b.logger.Debug("subscriber removed", "chat_id", chatID, "sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *EventBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for chatID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, chatID)
	}

	b.logger.Debug("broadcaster closed")
}
