package websocket

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/tictactoe/internal/gameserver"
)

func TestOutbox_PushAndClose(t *testing.T) {
	o := newOutbox(2)
	require.NoError(t, o.Push([]byte("a")))
	require.NoError(t, o.Push([]byte("b")))
	assert.ErrorIs(t, o.Push([]byte("c")), ErrOutboxFull)

	o.Close()
	o.Close()
	assert.ErrorIs(t, o.Push([]byte("d")), ErrOutboxClosed)

	var got []string
	for f := range o.Frames() {
		got = append(got, string(f))
	}
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestOutbox_DefaultSize(t *testing.T) {
	assert.Equal(t, 64, cap(newOutbox(0).frames))
}

// detachedClient has no socket; its frames are read straight from the outbox.
func detachedClient(t *testing.T, id string, buffer int) *client {
	t.Helper()
	return newClient(id, nil, buffer, zaptest.NewLogger(t))
}

func pending(c *client) []string {
	var out []string
	for {
		select {
		case f, ok := <-c.out.Frames():
			if !ok {
				return out
			}
			var env gameserver.Envelope
			if err := json.Unmarshal(f, &env); err == nil {
				out = append(out, env.Event)
			}
		default:
			return out
		}
	}
}

func TestHub_BroadcastRespectsRoomsAndExclusion(t *testing.T) {
	h := NewHub(zaptest.NewLogger(t))
	a, b, c := detachedClient(t, "a", 8), detachedClient(t, "b", 8), detachedClient(t, "c", 8)
	for _, cl := range []*client{a, b, c} {
		h.register(cl)
	}
	h.Subscribe("R1", "a")
	h.Subscribe("R1", "b")
	h.Subscribe("R2", "c")

	h.Broadcast("R1", gameserver.Event{Name: gameserver.EventMoveMade}, "")
	h.Broadcast("R1", gameserver.Event{Name: gameserver.EventPlayerTyping}, "a")
	h.Send("c", gameserver.Event{Name: gameserver.EventPong})

	assert.Equal(t, []string{"move_made"}, pending(a))
	assert.Equal(t, []string{"move_made", "player_typing"}, pending(b))
	assert.Equal(t, []string{"pong"}, pending(c))
	assert.Equal(t, 3, h.Count())
}

func TestHub_UnsubscribeAndCloseRoom(t *testing.T) {
	h := NewHub(zaptest.NewLogger(t))
	a, b := detachedClient(t, "a", 8), detachedClient(t, "b", 8)
	h.register(a)
	h.register(b)
	h.Subscribe("R1", "a")
	h.Subscribe("R1", "b")

	h.Unsubscribe("R1", "a")
	h.Broadcast("R1", gameserver.Event{Name: gameserver.EventChatMessage}, "")
	assert.Empty(t, pending(a))
	assert.Equal(t, []string{"chat_message"}, pending(b))

	h.CloseRoom("R1")
	h.Broadcast("R1", gameserver.Event{Name: gameserver.EventChatMessage}, "")
	assert.Empty(t, pending(b))
}

func TestHub_UnregisterDropsSubscriptions(t *testing.T) {
	h := NewHub(zaptest.NewLogger(t))
	a := detachedClient(t, "a", 8)
	h.register(a)
	h.Subscribe("R1", "a")

	h.unregister("a")
	assert.Equal(t, 0, h.Count())
	h.mu.RLock()
	_, ok := h.rooms["R1"]
	h.mu.RUnlock()
	assert.False(t, ok)

	assert.NotPanics(t, func() { h.Send("a", gameserver.Event{Name: gameserver.EventPong}) })
}

func TestHub_SlowConsumerIsClosed(t *testing.T) {
	h := NewHub(zaptest.NewLogger(t))
	slow := detachedClient(t, "slow", 1)
	h.register(slow)

	h.Send("slow", gameserver.Event{Name: gameserver.EventPong})
	h.Send("slow", gameserver.Event{Name: gameserver.EventPong})

	select {
	case <-slow.done:
	default:
		t.Fatal("slow consumer was not closed")
	}
	assert.ErrorIs(t, slow.out.Push([]byte("x")), ErrOutboxClosed)
}
