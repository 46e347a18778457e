// ABOUTME: Tests for converting Matrix events into bridge messages
// ABOUTME: Covers own messages, room filters, command prefixes, replayed history and shutdown

package frontend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

func textEvent(room, sender, body string) *event.Event {
	return &event.Event{
		ID:        id.EventID("$evt1"),
		RoomID:    id.RoomID(room),
		Sender:    id.UserID(sender),
		Timestamp: time.Now().UnixMilli(),
		Content: event.Content{Parsed: &event.MessageEventContent{
			MsgType: event.MsgText,
			Body:    body,
		}},
	}
}

func TestMatrix_ToMessage(t *testing.T) {
	mx := NewMatrix(nil, nil, MatrixOptions{UserID: "@bot:example.org"}, nil)

	msg, ok := mx.toMessage(textEvent("!room:example.org", "@alice:example.org", "hello"))

	require.True(t, ok)
	assert.Equal(t, "matrix", msg.Frontend)
	assert.Equal(t, "$evt1", msg.PlatformMessageID)
	assert.Equal(t, "!room:example.org", msg.ChatID)
	assert.Equal(t, "@alice:example.org", msg.Sender)
	assert.Equal(t, "hello", msg.Content)
}

func TestMatrix_IgnoresOwnAndNonText(t *testing.T) {
	mx := NewMatrix(nil, nil, MatrixOptions{UserID: "@bot:example.org"}, nil)

	_, ok := mx.toMessage(textEvent("!room:example.org", "@bot:example.org", "echo"))
	assert.False(t, ok)

	evt := textEvent("!room:example.org", "@alice:example.org", "pic")
	evt.Content.Parsed.(*event.MessageEventContent).MsgType = event.MsgImage
	_, ok = mx.toMessage(evt)
	assert.False(t, ok)
}

func TestMatrix_AllowedRooms(t *testing.T) {
	mx := NewMatrix(nil, nil, MatrixOptions{AllowedRooms: []string{"!ok:example.org"}}, nil)

	_, ok := mx.toMessage(textEvent("!other:example.org", "@alice:example.org", "hi"))
	assert.False(t, ok)

	_, ok = mx.toMessage(textEvent("!ok:example.org", "@alice:example.org", "hi"))
	assert.True(t, ok)
}

func TestMatrix_CommandPrefix(t *testing.T) {
	mx := NewMatrix(nil, nil, MatrixOptions{CommandPrefix: "!ask"}, nil)

	_, ok := mx.toMessage(textEvent("!r:x", "@alice:x", "chatter"))
	assert.False(t, ok, "text without the prefix is ignored")

	msg, ok := mx.toMessage(textEvent("!r:x", "@alice:x", "!ask where is the handbook"))
	require.True(t, ok)
	assert.Equal(t, "where is the handbook", msg.Content)

	msg, ok = mx.toMessage(textEvent("!r:x", "@alice:x", "!search"))
	require.True(t, ok, "mode commands bypass the prefix")
	assert.Equal(t, "!search", msg.Content)

	_, ok = mx.toMessage(textEvent("!r:x", "@alice:x", "!ask"))
	assert.False(t, ok, "prefix alone is empty")
}

func TestMatrix_SkipsReplayedHistory(t *testing.T) {
	mx := NewMatrix(nil, nil, MatrixOptions{}, nil)
	mx.startedAt = time.Now()

	evt := textEvent("!r:x", "@alice:x", "old")
	evt.Timestamp = mx.startedAt.Add(-time.Minute).UnixMilli()
	_, ok := mx.toMessage(evt)
	assert.False(t, ok)
}

func TestMatrix_ShutdownWaitsForInflightMessages(t *testing.T) {
	h := newBridgeHarness(t)
	h.turns.release = make(chan struct{})
	mx := NewMatrix(nil, h.bridge, MatrixOptions{UserID: "@bot:example.org"}, nil)
	mx.ctx = context.Background()

	mx.handleEvent(context.Background(), textEvent("!room:example.org", "@alice:example.org", "where is the handbook"))

	requireWaitsForTurn(t, h.turns, mx.inflight.Wait)
}
