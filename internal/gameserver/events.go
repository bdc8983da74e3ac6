package gameserver

import (
	"encoding/json"
	"time"

	"github.com/cory-johannsen/tictactoe/internal/game/match"
	"github.com/cory-johannsen/tictactoe/internal/game/session"
)

// Inbound event names.
const (
	EventCreateRoom    = "create_room"
	EventJoinRoom      = "join_room"
	EventMakeMove      = "make_move"
	EventRestartGame   = "restart_game"
	EventChatMessage   = "chat_message"
	EventTyping        = "typing"
	EventStopTyping    = "stop_typing"
	EventGetRooms      = "get_rooms"
	EventGetPlayerInfo = "get_player_info"
	EventLeaveRoom     = "leave_room"
	EventPing          = "ping"
)

// Outbound event names.
const (
	EventConnected           = "connected"
	EventRoomCreated         = "room_created"
	EventRoomJoined          = "room_joined"
	EventPlayerJoined        = "player_joined"
	EventGameStart           = "game_start"
	EventMoveMade            = "move_made"
	EventGameOver            = "game_over"
	EventGameRestarted       = "game_restarted"
	EventSessionTerminated   = "session_terminated"
	EventLeftRoom            = "left_room"
	EventPlayerTyping        = "player_typing"
	EventPlayerStoppedTyping = "player_stopped_typing"
	EventRoomsList           = "rooms_list"
	EventPlayerInfoUpdate    = "player_info_update"
	EventError               = "error"
	EventPong                = "pong"
)

// Termination reasons carried by session_terminated.
const (
	ReasonPlayerDisconnect = "player_disconnect"
	ReasonPlayerLeave      = "player_leave"
)

// Envelope is the wire frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is an outbound message before encoding.
type Event struct {
	Name    string
	Payload any
}

// MarshalJSON encodes the event as an Envelope.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Event string `json:"event"`
		Data  any    `json:"data,omitempty"`
	}{Event: e.Name, Data: e.Payload})
}

// CreateRoomRequest is the create_room payload.
type CreateRoomRequest struct {
	PlayerName string `json:"player_name"`
	GridSize   *int   `json:"grid_size"`
}

// JoinRoomRequest is the join_room payload.
type JoinRoomRequest struct {
	RoomID     string `json:"room_id"`
	PlayerName string `json:"player_name"`
}

// MakeMoveRequest is the make_move payload.
type MakeMoveRequest struct {
	RoomID   string `json:"room_id"`
	Position *int   `json:"position"`
}

// RoomRequest carries only a room id: restart_game, typing, stop_typing,
// get_player_info and leave_room.
type RoomRequest struct {
	RoomID string `json:"room_id"`
}

// ChatRequest is the chat_message payload.
type ChatRequest struct {
	RoomID  string          `json:"room_id"`
	Message string          `json:"message"`
	ReplyTo json.RawMessage `json:"reply_to,omitempty"`
	Type    string          `json:"type,omitempty"`
}

type ConnectedPayload struct {
	ClientID string `json:"client_id"`
}

type RoomCreatedPayload struct {
	RoomID     string         `json:"room_id"`
	PlayerID   string         `json:"player_id"`
	PlayerName string         `json:"player_name"`
	Symbol     match.Symbol   `json:"symbol"`
	GameState  match.Snapshot `json:"game_state"`
}

type RoomJoinedPayload struct {
	RoomID     string           `json:"room_id"`
	PlayerID   string           `json:"player_id"`
	PlayerName string           `json:"player_name"`
	Symbol     match.Symbol     `json:"symbol"`
	Opponent   match.PlayerView `json:"opponent"`
	GameState  match.Snapshot   `json:"game_state"`
}

type PlayerJoinedPayload struct {
	PlayerName string         `json:"player_name"`
	Symbol     match.Symbol   `json:"symbol"`
	GameReady  bool           `json:"game_ready"`
	GameState  match.Snapshot `json:"game_state"`
}

type MoveMadePayload struct {
	Position    int            `json:"position"`
	Symbol      match.Symbol   `json:"symbol"`
	PlayerName  string         `json:"player_name"`
	Board       []match.Symbol `json:"board"`
	CurrentTurn match.Symbol   `json:"current_turn"`
	GameState   match.Snapshot `json:"game_state"`
}

type GameOverPayload struct {
	Winner      match.Symbol   `json:"winner,omitempty"`
	WinnerName  string         `json:"winner_name,omitempty"`
	WinningLine []int          `json:"winning_line,omitempty"`
	IsDraw      bool           `json:"is_draw"`
	FinalBoard  []match.Symbol `json:"final_board"`
}

type GameRestartedPayload struct {
	GameState     match.Snapshot                  `json:"game_state"`
	SymbolChanges map[string]session.SymbolChange `json:"symbol_changes"`
}

type SessionTerminatedPayload struct {
	Message string `json:"message"`
	Reason  string `json:"reason"`
}

type LeftRoomPayload struct {
	RoomID string `json:"room_id"`
}

// ChatMessage is a chat line as delivered to room members.
type ChatMessage struct {
	MessageID  string          `json:"message_id"`
	PlayerID   string          `json:"player_id"`
	PlayerName string          `json:"player_name"`
	Message    string          `json:"message"`
	Timestamp  time.Time       `json:"timestamp"`
	Type       string          `json:"type"`
	ReplyTo    json.RawMessage `json:"reply_to,omitempty"`
}

type PlayerTypingPayload struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name,omitempty"`
}

type RoomsListPayload struct {
	Rooms []session.OpenRoom `json:"rooms"`
}

type PlayerInfoPayload struct {
	Players          []session.PlayerInfo `json:"players"`
	RequestingPlayer string               `json:"requesting_player"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type PongPayload struct {
	Timestamp time.Time `json:"timestamp"`
}
