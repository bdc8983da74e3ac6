// Package session owns every live room: it maps room ids to matches and
// connections to their room, enforces room capacity, and tears a room down
// as soon as either occupant goes away.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cory-johannsen/tictactoe/internal/game/match"
)

// RoomCapacity is the number of players a room seats.
const RoomCapacity = 2

// JoinResult describes a successful join.
type JoinResult struct {
	Symbol   match.Symbol     `json:"symbol"`
	Opponent match.PlayerView `json:"opponent"`
	State    match.Snapshot   `json:"game_state"`
	// Vacated names the room the joiner gave up, set only by MoveToRoom.
	Vacated string `json:"-"`
}

// CreateResult describes a room opened by MoveToNewRoom.
type CreateResult struct {
	State match.Snapshot
	// Vacated names the room the creator gave up, if any.
	Vacated string
}

// MoveResult describes an accepted move and, when it ended the match, the
// outcome.
type MoveResult struct {
	Position    int            `json:"position"`
	Symbol      match.Symbol   `json:"symbol"`
	PlayerName  string         `json:"player_name"`
	Board       []match.Symbol `json:"board"`
	CurrentTurn match.Symbol   `json:"current_turn"`
	GameOver    bool           `json:"game_over"`
	Winner      match.Symbol   `json:"winner,omitempty"`
	WinnerName  string         `json:"winner_name,omitempty"`
	WinningLine []int          `json:"winning_line,omitempty"`
	IsDraw      bool           `json:"is_draw"`
	State       match.Snapshot `json:"game_state"`
	// Result is set only when this move completed the match.
	Result *match.HistoryEntry `json:"-"`
}

// SymbolChange reports a player's symbol before and after a rematch.
type SymbolChange struct {
	Old match.Symbol `json:"old"`
	New match.Symbol `json:"new"`
}

// RestartResult describes a successful rematch.
type RestartResult struct {
	State         match.Snapshot          `json:"game_state"`
	SymbolChanges map[string]SymbolChange `json:"symbol_changes"`
}

// OpenRoom is a lobby entry for a room waiting for its second player.
type OpenRoom struct {
	RoomID    string    `json:"room_id"`
	HostName  string    `json:"host_name"`
	GridSize  int       `json:"grid_size"`
	CreatedAt time.Time `json:"created_at"`
}

// PlayerInfo is a room member as listed to clients.
type PlayerInfo struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Symbol match.Symbol `json:"symbol"`
	Online bool         `json:"online"`
}

type room struct {
	mu    sync.Mutex
	match *match.Match
}

// Registry tracks all live rooms and which room each connection occupies.
// All methods are safe for concurrent use. Lock order is registry, then room.
type Registry struct {
	mu             sync.RWMutex
	rooms          map[string]*room
	order          []string          // room ids in creation order
	connectionRoom map[string]string // connection id → room id
	now            func() time.Time
}

// RegistryOption customises a Registry.
type RegistryOption func(*Registry)

// WithClock sets the timestamp source handed to every new match.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		rooms:          make(map[string]*room),
		connectionRoom: make(map[string]string),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRoomID returns a short, human-shareable room identifier.
//
// Postcondition: Returns 8 upper-case hexadecimal characters.
func NewRoomID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// CreateRoom opens a room with the creator seated as X.
//
// Precondition: roomID and playerID must be non-empty.
// Postcondition: Returns the new room's snapshot, ErrRoomExists when roomID
// is taken, or ErrAlreadySeated when playerID already occupies a room.
// An out-of-range gridSize is replaced by match.DefaultGridSize.
func (r *Registry) CreateRoom(roomID, playerID, name string, gridSize int) (match.Snapshot, error) {
	res, err := r.create(roomID, playerID, name, gridSize, false)
	return res.State, err
}

// MoveToNewRoom is CreateRoom for a caller that may already be seated: the
// old room is destroyed only once the new one is known to be creatable.
//
// Postcondition: On error nothing changed, the old room included.
func (r *Registry) MoveToNewRoom(roomID, playerID, name string, gridSize int) (CreateResult, error) {
	return r.create(roomID, playerID, name, gridSize, true)
}

func (r *Registry) create(roomID, playerID, name string, gridSize int, move bool) (CreateResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rooms[roomID]; exists {
		return CreateResult{}, ErrRoomExists
	}
	current, seated := r.connectionRoom[playerID]
	if seated && !move {
		return CreateResult{}, ErrAlreadySeated
	}

	var res CreateResult
	if seated {
		r.dropRoomLocked(current)
		res.Vacated = current
	}

	m := match.New(gridSize, match.WithClock(r.now))
	m.AddPlayer(playerID, name, match.SymbolX)

	r.rooms[roomID] = &room{match: m}
	r.order = append(r.order, roomID)
	r.connectionRoom[playerID] = roomID
	res.State = m.Snapshot()
	return res, nil
}

// JoinRoom seats playerID as O in an existing room.
//
// Postcondition: Returns the joiner's symbol, the opponent and the room
// snapshot; or ErrRoomNotFound, ErrRoomFull or ErrAlreadySeated with no
// state changed.
func (r *Registry) JoinRoom(roomID, playerID, name string) (JoinResult, error) {
	return r.join(roomID, playerID, name, false)
}

// MoveToRoom is JoinRoom for a caller that may already be seated elsewhere.
// The old room is destroyed only when the join succeeds, and its id is
// reported in JoinResult.Vacated.
//
// Postcondition: On error nothing changed, the old room included. Asking
// for the room the caller already occupies yields ErrAlreadySeated.
func (r *Registry) MoveToRoom(roomID, playerID, name string) (JoinResult, error) {
	return r.join(roomID, playerID, name, true)
}

func (r *Registry) join(roomID, playerID, name string, move bool) (JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return JoinResult{}, ErrRoomNotFound
	}
	current, seated := r.connectionRoom[playerID]
	if seated && (!move || current == roomID) {
		return JoinResult{}, ErrAlreadySeated
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.match.PlayerCount() >= RoomCapacity {
		return JoinResult{}, ErrRoomFull
	}

	var vacated string
	if seated {
		r.dropRoomLocked(current)
		vacated = current
	}

	rm.match.AddPlayer(playerID, name, match.SymbolO)
	r.connectionRoom[playerID] = roomID

	var opponent match.PlayerView
	for _, id := range rm.match.PlayerIDs() {
		if id != playerID {
			opponent, _ = rm.match.Player(id)
			break
		}
	}
	return JoinResult{
		Symbol:   match.SymbolO,
		Opponent: opponent,
		State:    rm.match.Snapshot(),
		Vacated:  vacated,
	}, nil
}

// MakeMove applies playerID's move in roomID.
//
// Postcondition: Returns the move outcome, or ErrRoomNotFound /
// ErrInvalidMove with the match unchanged.
func (r *Registry) MakeMove(roomID, playerID string, position int) (MoveResult, error) {
	rm, ok := r.lookup(roomID)
	if !ok {
		return MoveResult{}, ErrRoomNotFound
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	m := rm.match
	if !m.ApplyMove(position, playerID) {
		return MoveResult{}, ErrInvalidMove
	}

	mover, _ := m.Player(playerID)
	res := MoveResult{
		Position:    position,
		Symbol:      mover.Symbol,
		PlayerName:  mover.Name,
		Board:       m.Board(),
		CurrentTurn: m.CurrentTurn(),
		GameOver:    m.GameOver(),
		State:       m.Snapshot(),
	}
	if !m.GameOver() {
		return res, nil
	}

	if m.Winner() != match.Empty {
		res.Winner = m.Winner()
		res.WinningLine = m.WinningLine()
		if w, ok := m.PlayerBySymbol(m.Winner()); ok {
			res.WinnerName = w.Name
		}
	} else {
		res.IsDraw = true
	}
	if last, ok := m.LastResult(); ok {
		res.Result = &last
	}
	return res, nil
}

// RestartGame starts a rematch in roomID, rotating symbols.
//
// Postcondition: Returns the fresh snapshot and each player's symbol before
// and after, or ErrRoomNotFound / ErrNotParticipant.
func (r *Registry) RestartGame(roomID, playerID string) (RestartResult, error) {
	rm, ok := r.lookup(roomID)
	if !ok {
		return RestartResult{}, ErrRoomNotFound
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	m := rm.match
	if _, ok := m.Player(playerID); !ok {
		return RestartResult{}, ErrNotParticipant
	}

	ids := m.PlayerIDs()
	before := make(map[string]match.Symbol, len(ids))
	for _, id := range ids {
		p, _ := m.Player(id)
		before[id] = p.Symbol
	}

	m.Reset()

	changes := make(map[string]SymbolChange, len(ids))
	for _, id := range ids {
		p, _ := m.Player(id)
		changes[id] = SymbolChange{Old: before[id], New: p.Symbol}
	}
	return RestartResult{State: m.Snapshot(), SymbolChanges: changes}, nil
}

// Disconnect removes playerID's room entirely, along with every connection
// mapped to it. The surviving occupant's session is discarded.
//
// Postcondition: Returns the destroyed room id and true, or "" and false
// when playerID was not in a room.
func (r *Registry) Disconnect(playerID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.connectionRoom[playerID]
	if !ok {
		return "", false
	}
	r.dropRoomLocked(roomID)
	return roomID, true
}

// dropRoomLocked deletes roomID and every connection mapped to it.
// r.mu must be held for writing.
func (r *Registry) dropRoomLocked(roomID string) {
	if _, exists := r.rooms[roomID]; exists {
		delete(r.rooms, roomID)
		for i, id := range r.order {
			if id == roomID {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	for conn, rid := range r.connectionRoom {
		if rid == roomID {
			delete(r.connectionRoom, conn)
		}
	}
}

// ListOpenRooms returns rooms waiting for a second player, in creation order.
func (r *Registry) ListOpenRooms() []OpenRoom {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]OpenRoom, 0)
	for _, id := range r.order {
		rm := r.rooms[id]
		rm.mu.Lock()
		if rm.match.PlayerCount() == 1 {
			host, _ := rm.match.Player(rm.match.PlayerIDs()[0])
			out = append(out, OpenRoom{
				RoomID:    id,
				HostName:  host.Name,
				GridSize:  rm.match.GridSize(),
				CreatedAt: rm.match.CreatedAt(),
			})
		}
		rm.mu.Unlock()
	}
	return out
}

// State returns the snapshot of roomID.
func (r *Registry) State(roomID string) (match.Snapshot, error) {
	rm, ok := r.lookup(roomID)
	if !ok {
		return match.Snapshot{}, ErrRoomNotFound
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.match.Snapshot(), nil
}

// Players lists the members of roomID in join order. Every listed member
// holds a live connection, since a disconnect destroys the room.
func (r *Registry) Players(roomID string) ([]PlayerInfo, error) {
	rm, ok := r.lookup(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()

	ids := rm.match.PlayerIDs()
	out := make([]PlayerInfo, 0, len(ids))
	for _, id := range ids {
		p, _ := rm.match.Player(id)
		out = append(out, PlayerInfo{ID: p.ID, Name: p.Name, Symbol: p.Symbol, Online: true})
	}
	return out, nil
}

// Participant returns playerID's view in roomID.
//
// Postcondition: Returns ErrNotParticipant when the room is missing or
// playerID is not seated in it.
func (r *Registry) Participant(roomID, playerID string) (match.PlayerView, error) {
	rm, ok := r.lookup(roomID)
	if !ok {
		return match.PlayerView{}, ErrNotParticipant
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	p, ok := rm.match.Player(playerID)
	if !ok {
		return match.PlayerView{}, ErrNotParticipant
	}
	return p, nil
}

// RoomOf returns the room playerID occupies.
func (r *Registry) RoomOf(playerID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.connectionRoom[playerID]
	return id, ok
}

// RoomCount returns the number of live rooms.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// ConnectionCount returns the number of seated connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connectionRoom)
}

func (r *Registry) lookup(roomID string) (*room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[roomID]
	return rm, ok
}
