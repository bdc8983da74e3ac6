package gameserver

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cory-johannsen/tictactoe/internal/game/session"
)

const defaultChatType = "text"

var (
	errInvalidChat = session.NewError(session.KindInvalidRequest, "Invalid chat message")
	errNotInRoom   = session.NewError(session.KindNotParticipant, "Not in this room")
)

// ChatHandler builds room chat and typing notifications.
type ChatHandler struct {
	rooms *session.Registry
	now   func() time.Time
	newID func() string
}

// NewChatHandler creates a ChatHandler with the given dependencies.
//
// Precondition: rooms must be non-nil.
func NewChatHandler(rooms *session.Registry) *ChatHandler {
	return &ChatHandler{
		rooms: rooms,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Say builds a chat message from uid to the room named in req.
//
// Precondition: uid must be a connected client.
// Postcondition: Returns the message to deliver to every room member, or
// errInvalidChat when the room id or trimmed text is empty, or errNotInRoom
// when uid is not seated in the room.
func (h *ChatHandler) Say(uid string, req ChatRequest) (ChatMessage, error) {
	text := strings.TrimSpace(req.Message)
	if req.RoomID == "" || text == "" {
		return ChatMessage{}, errInvalidChat
	}

	p, err := h.rooms.Participant(req.RoomID, uid)
	if err != nil {
		return ChatMessage{}, errNotInRoom
	}

	kind := req.Type
	if kind == "" {
		kind = defaultChatType
	}
	msg := ChatMessage{
		MessageID:  h.newID(),
		PlayerID:   uid,
		PlayerName: p.Name,
		Message:    text,
		Timestamp:  h.now(),
		Type:       kind,
	}
	if len(req.ReplyTo) > 0 && string(req.ReplyTo) != "null" {
		msg.ReplyTo = req.ReplyTo
	}
	return msg, nil
}

// Typing reports that uid started typing in roomID.
//
// Postcondition: ok is false when uid is not seated in roomID; the caller
// drops the notification silently.
func (h *ChatHandler) Typing(uid, roomID string) (PlayerTypingPayload, bool) {
	p, err := h.rooms.Participant(roomID, uid)
	if err != nil {
		return PlayerTypingPayload{}, false
	}
	return PlayerTypingPayload{PlayerID: uid, PlayerName: p.Name}, true
}

// StopTyping reports that uid stopped typing in roomID.
func (h *ChatHandler) StopTyping(uid, roomID string) (PlayerTypingPayload, bool) {
	if _, err := h.rooms.Participant(roomID, uid); err != nil {
		return PlayerTypingPayload{}, false
	}
	return PlayerTypingPayload{PlayerID: uid}, true
}
