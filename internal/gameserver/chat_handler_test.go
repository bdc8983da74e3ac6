package gameserver

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/tictactoe/internal/game/session"
)

func newChatFixture(t *testing.T) *ChatHandler {
	t.Helper()
	reg := session.NewRegistry()
	_, err := reg.CreateRoom("ROOM1", "u1", "Alice", 3)
	require.NoError(t, err)
	_, err = reg.JoinRoom("ROOM1", "u2", "Bob")
	require.NoError(t, err)

	h := NewChatHandler(reg)
	h.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	h.newID = func() string { return "msg-1" }
	return h
}

func TestChatHandler_Say(t *testing.T) {
	h := newChatFixture(t)

	msg, err := h.Say("u1", ChatRequest{RoomID: "ROOM1", Message: "  good luck  "})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", msg.MessageID)
	assert.Equal(t, "u1", msg.PlayerID)
	assert.Equal(t, "Alice", msg.PlayerName)
	assert.Equal(t, "good luck", msg.Message)
	assert.Equal(t, "text", msg.Type)
	assert.Nil(t, msg.ReplyTo)
}

func TestChatHandler_Say_KeepsTypeAndReply(t *testing.T) {
	h := newChatFixture(t)

	reply := json.RawMessage(`{"message_id":"m0","player_name":"Bob"}`)
	msg, err := h.Say("u2", ChatRequest{RoomID: "ROOM1", Message: "gg", Type: "emoji", ReplyTo: reply})
	require.NoError(t, err)
	assert.Equal(t, "emoji", msg.Type)
	assert.JSONEq(t, string(reply), string(msg.ReplyTo))
}

func TestChatHandler_Say_Rejects(t *testing.T) {
	h := newChatFixture(t)

	_, err := h.Say("u1", ChatRequest{RoomID: "ROOM1", Message: "   "})
	assert.ErrorIs(t, err, errInvalidChat)

	_, err = h.Say("u1", ChatRequest{Message: "hi"})
	assert.ErrorIs(t, err, errInvalidChat)

	_, err = h.Say("stranger", ChatRequest{RoomID: "ROOM1", Message: "hi"})
	assert.ErrorIs(t, err, errNotInRoom)
	assert.Equal(t, "Not in this room", err.Error())
}

func TestChatHandler_Typing(t *testing.T) {
	h := newChatFixture(t)

	p, ok := h.Typing("u2", "ROOM1")
	require.True(t, ok)
	assert.Equal(t, PlayerTypingPayload{PlayerID: "u2", PlayerName: "Bob"}, p)

	p, ok = h.StopTyping("u2", "ROOM1")
	require.True(t, ok)
	assert.Equal(t, PlayerTypingPayload{PlayerID: "u2"}, p)

	_, ok = h.Typing("stranger", "ROOM1")
	assert.False(t, ok)
	_, ok = h.StopTyping("u1", "NOPE")
	assert.False(t, ok)
}
