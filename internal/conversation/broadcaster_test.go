// ABOUTME: Tests for EventBroadcaster fan-out of turn events
// ABOUTME: Covers subscribe, publish, isolation, slow consumers, cancellation and close

package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeEvent(turnID, chatID string, stage Stage) *TurnEvent {
	return &TurnEvent{
		TurnID: turnID,
		ChatID: chatID,
		UserID: "user-1",
		Stage:  stage,
		Time:   time.Now(),
	}
}

func TestBroadcaster_SubscribersReceiveEvent(t *testing.T) {
	b := NewEventBroadcaster(nil)
	defer b.Close()

	ch1, _ := b.Subscribe(t.Context(), "chat-1")
	ch2, _ := b.Subscribe(t.Context(), "chat-1")

	b.Publish(makeEvent("turn-1", "chat-1", StageRunStarted))

	for _, ch := range []<-chan *TurnEvent{ch1, ch2} {
		select {
		case received := <-ch:
			assert.Equal(t, "turn-1", received.TurnID)
			assert.Equal(t, StageRunStarted, received.Stage)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestBroadcaster_ChatsAreIsolated(t *testing.T) {
	b := NewEventBroadcaster(nil)
	defer b.Close()

	ch1, _ := b.Subscribe(t.Context(), "chat-1")
	ch2, _ := b.Subscribe(t.Context(), "chat-2")

	b.Publish(makeEvent("turn-1", "chat-1", StageStarted))

	select {
	case ev := <-ch1:
		assert.Equal(t, "turn-1", ev.TurnID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case ev := <-ch2:
		t.Fatalf("chat-2 should not receive chat-1 events, got %s", ev.TurnID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcaster_SlowConsumerDoesNotBlockPublisher(t *testing.T) {
	b := NewEventBroadcaster(nil)
	defer b.Close()

	_, _ = b.Subscribe(t.Context(), "chat-1")

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBufferSize*2; i++ {
			b.Publish(makeEvent("turn", "chat-1", StageWaiting))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a full subscriber")
	}
}

func TestBroadcaster_ContextCancellationCleansUp(t *testing.T) {
	b := NewEventBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx, "chat-1")
	cancel()

	require.Eventually(t, func() bool {
		b.mu.RLock()
		defer b.mu.RUnlock()
		_, ok := b.subscribers["chat-1"]
		return !ok
	}, time.Second, 10*time.Millisecond)

	_, open := <-ch
	assert.False(t, open, "channel should be closed after cancellation")
}

func TestBroadcaster_ManualUnsubscribe(t *testing.T) {
	b := NewEventBroadcaster(nil)
	defer b.Close()

	ch, subID := b.Subscribe(t.Context(), "chat-1")
	b.Unsubscribe("chat-1", subID)

	_, open := <-ch
	assert.False(t, open)

	// Unsubscribing twice is harmless
	b.Unsubscribe("chat-1", subID)
	b.Publish(makeEvent("turn-1", "chat-1", StageStarted))
}

func TestBroadcaster_CloseClosesAllSubscriptions(t *testing.T) {
	b := NewEventBroadcaster(nil)

	ch1, _ := b.Subscribe(t.Context(), "chat-1")
	ch2, _ := b.Subscribe(t.Context(), "chat-2")
	b.Close()

	_, open1 := <-ch1
	_, open2 := <-ch2
	assert.False(t, open1)
	assert.False(t, open2)
}

func TestBroadcaster_ConcurrentPublishSubscribe(t *testing.T) {
	b := NewEventBroadcaster(nil)
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithCancel(context.Background())
			_, _ = b.Subscribe(ctx, "chat-1")
			cancel()
		}()
		go func() {
			defer wg.Done()
			b.Publish(makeEvent("turn", "chat-1", StageWaiting))
		}()
	}
	wg.Wait()
}
