// Package gameserver turns inbound client events into registry operations
// and fans the results out to the affected connections.
package gameserver

import (
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tictactoe/internal/archive"
	"github.com/cory-johannsen/tictactoe/internal/game/match"
	"github.com/cory-johannsen/tictactoe/internal/game/session"
	"github.com/cory-johannsen/tictactoe/internal/observability"
)

const terminatedMessage = "Game session terminated - opponent left the game"

var (
	errRoomIDRequired = session.NewError(session.KindInvalidRequest, "Room ID required")
	errInvalidMove    = session.NewError(session.KindInvalidRequest, "Invalid move data")
	errCreateFailed   = session.NewError(session.KindInvalidRequest, "Failed to create room")
	errMalformed      = session.NewError(session.KindInvalidRequest, "Malformed message")
)

// Broadcaster delivers events to single connections and to room channels.
// Delivery never blocks the caller.
type Broadcaster interface {
	// Send delivers evt to one connection.
	Send(connID string, evt Event)
	// Broadcast delivers evt to every subscriber of roomID except excludeConnID.
	Broadcast(roomID string, evt Event, excludeConnID string)
	// Subscribe adds connID to roomID's channel.
	Subscribe(roomID, connID string)
	// Unsubscribe removes connID from roomID's channel.
	Unsubscribe(roomID, connID string)
	// CloseRoom drops roomID's channel and all its subscriptions.
	CloseRoom(roomID string)
}

// Service dispatches client events for every connection.
type Service struct {
	rooms     *session.Registry
	chatH     *ChatHandler
	out       Broadcaster
	recorder  archive.Recorder
	logger    *zap.Logger
	newRoomID func() string
	now       func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithRoomIDs replaces the room id generator.
func WithRoomIDs(fn func() string) Option {
	return func(s *Service) { s.newRoomID = fn }
}

// WithClock replaces the timestamp source for pongs and chat messages.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
		s.chatH.now = now
	}
}

// NewService creates a Service.
//
// Precondition: rooms, out and logger must be non-nil. recorder may be nil,
// in which case finished matches are not archived.
// Postcondition: Returns a Service ready to accept connections.
func NewService(rooms *session.Registry, out Broadcaster, recorder archive.Recorder, logger *zap.Logger, opts ...Option) *Service {
	if recorder == nil {
		recorder = archive.Nop{}
	}
	s := &Service{
		rooms:     rooms,
		chatH:     NewChatHandler(rooms),
		out:       out,
		recorder:  recorder,
		logger:    logger,
		newRoomID: session.NewRoomID,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect greets a newly accepted connection with its id.
func (s *Service) Connect(connID string) {
	s.logger.Debug("client connected", observability.Conn(connID))
	s.out.Send(connID, Event{Name: EventConnected, Payload: ConnectedPayload{ClientID: connID}})
}

// Disconnect tears down the room connID occupied, if any, and tells the
// remaining occupant the session is over.
//
// Postcondition: connID holds no registry state.
func (s *Service) Disconnect(connID string) {
	roomID, ok := s.teardown(connID, ReasonPlayerDisconnect)
	s.logger.Debug("client disconnected",
		observability.Conn(connID),
		observability.Room(roomID),
		zap.Bool("room_terminated", ok),
	)
}

// Handle decodes one inbound frame from connID and dispatches it. Failures
// are reported to connID alone as an error event.
func (s *Service) Handle(connID string, frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil || env.Event == "" {
		s.replyError(connID, "", errMalformed)
		return
	}
	if err := s.dispatch(connID, env); err != nil {
		s.replyError(connID, env.Event, err)
	}
}

// dispatch routes an envelope to the appropriate handler.
func (s *Service) dispatch(connID string, env Envelope) error {
	switch env.Event {
	case EventCreateRoom:
		return s.handleCreateRoom(connID, env.Data)
	case EventJoinRoom:
		return s.handleJoinRoom(connID, env.Data)
	case EventMakeMove:
		return s.handleMakeMove(connID, env.Data)
	case EventRestartGame:
		return s.handleRestartGame(connID, env.Data)
	case EventChatMessage:
		return s.handleChat(connID, env.Data)
	case EventTyping:
		return s.handleTyping(connID, env.Data, true)
	case EventStopTyping:
		return s.handleTyping(connID, env.Data, false)
	case EventGetRooms:
		return s.handleGetRooms(connID)
	case EventGetPlayerInfo:
		return s.handleGetPlayerInfo(connID, env.Data)
	case EventLeaveRoom:
		return s.handleLeaveRoom(connID, env.Data)
	case EventPing:
		s.out.Send(connID, Event{Name: EventPong, Payload: PongPayload{Timestamp: s.now()}})
		return nil
	default:
		return session.NewError(session.KindInvalidRequest, "Unknown event: "+env.Event)
	}
}

func (s *Service) handleCreateRoom(connID string, data json.RawMessage) error {
	var req CreateRoomRequest
	if err := decode(data, &req); err != nil {
		return errCreateFailed
	}
	name := playerName(req.PlayerName, connID)
	gridSize := match.DefaultGridSize
	if req.GridSize != nil {
		gridSize = *req.GridSize
	}

	// A connection holds at most one seat; creating abandons the old room.
	roomID := s.newRoomID()
	res, err := s.rooms.MoveToNewRoom(roomID, connID, name, gridSize)
	if err != nil {
		s.logger.Warn("creating room",
			observability.Conn(connID),
			observability.Room(roomID),
			zap.Error(err),
		)
		return errCreateFailed
	}
	if res.Vacated != "" {
		s.terminate(connID, res.Vacated, ReasonPlayerLeave)
	}
	snap := res.State
	s.out.Subscribe(roomID, connID)

	s.logger.Info("room created",
		observability.Room(roomID),
		observability.Conn(connID),
		zap.Int("grid_size", snap.GridSize),
	)
	s.out.Send(connID, Event{Name: EventRoomCreated, Payload: RoomCreatedPayload{
		RoomID:     roomID,
		PlayerID:   connID,
		PlayerName: name,
		Symbol:     match.SymbolX,
		GameState:  snap,
	}})
	return nil
}

func (s *Service) handleJoinRoom(connID string, data json.RawMessage) error {
	var req JoinRoomRequest
	if err := decode(data, &req); err != nil {
		return errRoomIDRequired
	}
	roomID := normalizeRoomID(req.RoomID)
	if roomID == "" {
		return errRoomIDRequired
	}
	name := playerName(req.PlayerName, connID)

	res, err := s.rooms.MoveToRoom(roomID, connID, name)
	if err != nil {
		return err
	}
	if res.Vacated != "" {
		s.terminate(connID, res.Vacated, ReasonPlayerLeave)
	}
	s.out.Subscribe(roomID, connID)

	s.logger.Info("player joined room",
		observability.Room(roomID),
		observability.Conn(connID),
	)
	s.out.Send(connID, Event{Name: EventRoomJoined, Payload: RoomJoinedPayload{
		RoomID:     roomID,
		PlayerID:   connID,
		PlayerName: name,
		Symbol:     res.Symbol,
		Opponent:   res.Opponent,
		GameState:  res.State,
	}})
	s.out.Broadcast(roomID, Event{Name: EventPlayerJoined, Payload: PlayerJoinedPayload{
		PlayerName: name,
		Symbol:     res.Symbol,
		GameReady:  true,
		GameState:  res.State,
	}}, connID)
	s.out.Broadcast(roomID, Event{Name: EventGameStart, Payload: res.State}, "")
	return nil
}

func (s *Service) handleMakeMove(connID string, data json.RawMessage) error {
	var req MakeMoveRequest
	if err := decode(data, &req); err != nil {
		return errInvalidMove
	}
	roomID := normalizeRoomID(req.RoomID)
	if roomID == "" || req.Position == nil {
		return errInvalidMove
	}

	res, err := s.rooms.MakeMove(roomID, connID, *req.Position)
	if err != nil {
		return err
	}

	s.out.Broadcast(roomID, Event{Name: EventMoveMade, Payload: MoveMadePayload{
		Position:    res.Position,
		Symbol:      res.Symbol,
		PlayerName:  res.PlayerName,
		Board:       res.Board,
		CurrentTurn: res.CurrentTurn,
		GameState:   res.State,
	}}, "")
	if !res.GameOver {
		return nil
	}

	s.out.Broadcast(roomID, Event{Name: EventGameOver, Payload: GameOverPayload{
		Winner:      res.Winner,
		WinnerName:  res.WinnerName,
		WinningLine: res.WinningLine,
		IsDraw:      res.IsDraw,
		FinalBoard:  res.Board,
	}}, "")
	s.logger.Info("match finished",
		observability.Room(roomID),
		zap.String("winner", string(res.Winner)),
		zap.Bool("draw", res.IsDraw),
	)
	if res.Result != nil {
		s.recorder.Record(resultFor(roomID, res))
	}
	return nil
}

func (s *Service) handleRestartGame(connID string, data json.RawMessage) error {
	var req RoomRequest
	if err := decode(data, &req); err != nil {
		return errRoomIDRequired
	}
	roomID := normalizeRoomID(req.RoomID)
	if roomID == "" {
		return errRoomIDRequired
	}

	res, err := s.rooms.RestartGame(roomID, connID)
	if err != nil {
		return err
	}
	s.out.Broadcast(roomID, Event{Name: EventGameRestarted, Payload: GameRestartedPayload{
		GameState:     res.State,
		SymbolChanges: res.SymbolChanges,
	}}, "")
	return nil
}

func (s *Service) handleChat(connID string, data json.RawMessage) error {
	var req ChatRequest
	if err := decode(data, &req); err != nil {
		return errInvalidChat
	}
	req.RoomID = normalizeRoomID(req.RoomID)

	msg, err := s.chatH.Say(connID, req)
	if err != nil {
		return err
	}
	s.out.Broadcast(req.RoomID, Event{Name: EventChatMessage, Payload: msg}, "")
	return nil
}

// handleTyping never reports an error; indicators from clients outside the
// room are dropped.
func (s *Service) handleTyping(connID string, data json.RawMessage, started bool) error {
	var req RoomRequest
	if err := decode(data, &req); err != nil {
		return nil
	}
	roomID := normalizeRoomID(req.RoomID)
	if roomID == "" {
		return nil
	}

	var (
		name    string
		payload PlayerTypingPayload
		ok      bool
	)
	if started {
		name = EventPlayerTyping
		payload, ok = s.chatH.Typing(connID, roomID)
	} else {
		name = EventPlayerStoppedTyping
		payload, ok = s.chatH.StopTyping(connID, roomID)
	}
	if ok {
		s.out.Broadcast(roomID, Event{Name: name, Payload: payload}, connID)
	}
	return nil
}

func (s *Service) handleGetRooms(connID string) error {
	s.out.Send(connID, Event{Name: EventRoomsList, Payload: RoomsListPayload{Rooms: s.rooms.ListOpenRooms()}})
	return nil
}

func (s *Service) handleGetPlayerInfo(connID string, data json.RawMessage) error {
	var req RoomRequest
	if err := decode(data, &req); err != nil {
		return errRoomIDRequired
	}
	roomID := normalizeRoomID(req.RoomID)
	if roomID == "" {
		return errRoomIDRequired
	}

	players, err := s.rooms.Players(roomID)
	if err != nil {
		return err
	}
	s.out.Send(connID, Event{Name: EventPlayerInfoUpdate, Payload: PlayerInfoPayload{
		Players:          players,
		RequestingPlayer: connID,
	}})
	return nil
}

func (s *Service) handleLeaveRoom(connID string, data json.RawMessage) error {
	var req RoomRequest
	if err := decode(data, &req); err != nil {
		return errRoomIDRequired
	}
	roomID := normalizeRoomID(req.RoomID)

	current, ok := s.teardown(connID, ReasonPlayerLeave)
	if roomID == "" {
		if !ok {
			return errRoomIDRequired
		}
		roomID = current
	}
	s.out.Send(connID, Event{Name: EventLeftRoom, Payload: LeftRoomPayload{RoomID: roomID}})
	return nil
}

// teardown destroys connID's room and notifies whoever is left in it.
//
// Postcondition: Returns the destroyed room id and true, or "" and false when
// connID held no seat.
func (s *Service) teardown(connID, reason string) (string, bool) {
	roomID, ok := s.rooms.Disconnect(connID)
	if !ok {
		return "", false
	}
	s.terminate(connID, roomID, reason)
	return roomID, true
}

// terminate tells the occupants of an already destroyed room, other than
// connID, that the session is over and drops the room's channel.
func (s *Service) terminate(connID, roomID, reason string) {
	s.out.Unsubscribe(roomID, connID)
	s.out.Broadcast(roomID, Event{Name: EventSessionTerminated, Payload: SessionTerminatedPayload{
		Message: terminatedMessage,
		Reason:  reason,
	}}, connID)
	s.out.CloseRoom(roomID)

	s.logger.Info("room terminated",
		observability.Room(roomID),
		observability.Conn(connID),
		zap.String("reason", reason),
	)
}

// replyError sends err to connID as an error event. Errors that are not
// client-facing are logged and replaced with a generic message.
func (s *Service) replyError(connID, event string, err error) {
	msg := err.Error()
	if session.KindOf(err) == 0 {
		s.logger.Error("handling event",
			observability.Conn(connID),
			zap.String("event", event),
			zap.Error(err),
		)
		msg = "Internal error"
	} else {
		s.logger.Debug("rejected event",
			observability.Conn(connID),
			zap.String("event", event),
			zap.String("kind", session.KindOf(err).String()),
			zap.String("message", msg),
		)
	}
	s.out.Send(connID, Event{Name: EventError, Payload: ErrorPayload{Message: msg}})
}

// decode unmarshals an optional payload. An absent or null payload leaves v
// at its zero value.
func decode(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}

func normalizeRoomID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// playerName returns name, or a default derived from the connection id.
func playerName(name, connID string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	prefix := connID
	if len(prefix) > 6 {
		prefix = prefix[:6]
	}
	return "Player_" + prefix
}

func resultFor(roomID string, res session.MoveResult) archive.Result {
	r := archive.Result{
		RoomID:       roomID,
		MatchNumber:  res.Result.MatchNumber,
		GridSize:     res.State.GridSize,
		WinCondition: res.State.Settings.WinCondition,
		WinnerSymbol: string(res.Winner),
		WinnerName:   res.WinnerName,
		IsDraw:       res.IsDraw,
		FinishedAt:   res.Result.Timestamp,
	}
	for _, p := range res.State.Players {
		switch p.Symbol {
		case match.SymbolX:
			r.PlayerX = p.Name
		case match.SymbolO:
			r.PlayerO = p.Name
		}
	}
	for _, c := range res.Board {
		if c != match.Empty {
			r.Moves++
		}
	}
	return r
}
