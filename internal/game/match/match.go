// Package match implements a single room's game of n-in-a-row on a square
// grid: board, turn order, win and draw detection, per-player session scores
// and the bounded match history kept across rematches.
package match

import (
	"time"
)

// Symbol is a board marker. The zero value is an empty cell.
type Symbol string

const (
	Empty   Symbol = ""
	SymbolX Symbol = "X"
	SymbolO Symbol = "O"
)

// Other returns the opposing symbol. Empty maps to Empty.
func (s Symbol) Other() Symbol {
	switch s {
	case SymbolX:
		return SymbolO
	case SymbolO:
		return SymbolX
	}
	return Empty
}

const (
	// MinGridSize and MaxGridSize bound the accepted board edge length.
	MinGridSize = 3
	MaxGridSize = 10
	// DefaultGridSize replaces any out-of-range size.
	DefaultGridSize = 3
	// maxWinCondition caps the run length required on large boards.
	maxWinCondition = 5
	// HistoryLimit is the number of completed matches retained per room.
	HistoryLimit = 10
)

// NormalizeGridSize returns size when it lies in [MinGridSize, MaxGridSize]
// and DefaultGridSize otherwise.
func NormalizeGridSize(size int) int {
	if size < MinGridSize || size > MaxGridSize {
		return DefaultGridSize
	}
	return size
}

// WinConditionFor returns the run length needed to win on a board of the
// given edge length.
//
// Postcondition: 3 <= result <= max(size, 3) and result <= 5.
func WinConditionFor(size int) int {
	if size > MinGridSize {
		return min(size, maxWinCondition)
	}
	return MinGridSize
}

type player struct {
	name   string
	symbol Symbol
}

// Match holds the state of one room's game lineage. It is not safe for
// concurrent use; callers serialise access per room.
type Match struct {
	gridSize     int
	winCondition int
	board        []Symbol
	currentTurn  Symbol

	players     map[string]*player
	joinOrder   []string
	hostID      string
	originalIDs []string

	gameOver    bool
	winner      Symbol
	winningLine []int
	isDraw      bool

	matchCount int
	scores     map[string]*Score
	history    []HistoryEntry

	createdAt  time.Time
	lastMoveAt time.Time
	now        func() time.Time
}

// Option customises a Match at construction.
type Option func(*Match)

// WithClock replaces time.Now as the source of timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Match) {
		if now != nil {
			m.now = now
		}
	}
}

// New creates an empty match on a gridSize×gridSize board.
//
// Postcondition: GridSize() is in [MinGridSize, MaxGridSize]; CurrentTurn() is X.
func New(gridSize int, opts ...Option) *Match {
	m := &Match{
		players: make(map[string]*player),
		scores:  make(map[string]*Score),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.gridSize = NormalizeGridSize(gridSize)
	m.winCondition = WinConditionFor(m.gridSize)
	m.board = make([]Symbol, m.gridSize*m.gridSize)
	m.currentTurn = SymbolX
	m.createdAt = m.now()
	m.lastMoveAt = m.createdAt
	return m
}

// AddPlayer registers a participant with the given symbol and an empty
// score record. Capacity is the caller's concern.
//
// Precondition: id must be non-empty; symbol must be X or O.
// Postcondition: the first id ever added becomes the host; the first two
// distinct ids are fixed as the original player order.
func (m *Match) AddPlayer(id, name string, symbol Symbol) {
	if _, ok := m.players[id]; !ok {
		m.joinOrder = append(m.joinOrder, id)
	}
	m.players[id] = &player{name: name, symbol: symbol}
	m.scores[id] = &Score{}

	if m.hostID == "" {
		m.hostID = id
	}
	if len(m.originalIDs) < 2 && !contains(m.originalIDs, id) {
		m.originalIDs = append(m.originalIDs, id)
	}
}

// IsValidMove reports whether playerID may mark position now.
func (m *Match) IsValidMove(position int, playerID string) bool {
	if m.gameOver {
		return false
	}
	if position < 0 || position >= len(m.board) {
		return false
	}
	if m.board[position] != Empty {
		return false
	}
	p, ok := m.players[playerID]
	if !ok {
		return false
	}
	return p.symbol == m.currentTurn
}

// ApplyMove marks position with the player's symbol and advances the game.
// A win takes priority over a full board; only a non-terminal move flips
// the turn.
//
// Postcondition: returns false and leaves the match untouched when
// IsValidMove is false.
func (m *Match) ApplyMove(position int, playerID string) bool {
	if !m.IsValidMove(position, playerID) {
		return false
	}

	m.board[position] = m.players[playerID].symbol
	m.lastMoveAt = m.now()

	if line, ok := FindWinner(m.board, m.gridSize, m.winCondition); ok {
		m.gameOver = true
		m.winner = line.Symbol
		m.winningLine = line.Cells
		m.UpdateScores(m.winner, false)
		return true
	}
	if m.isBoardFull() {
		m.gameOver = true
		m.isDraw = true
		m.UpdateScores(Empty, true)
		return true
	}
	m.currentTurn = m.currentTurn.Other()
	return true
}

func (m *Match) isBoardFull() bool {
	for _, c := range m.board {
		if c == Empty {
			return false
		}
	}
	return true
}

// Reset clears the board for a rematch. With two original players on
// record their symbols are exchanged; X always moves first.
//
// Postcondition: MatchCount() is incremented by one; CurrentTurn() is X.
func (m *Match) Reset() {
	for i := range m.board {
		m.board[i] = Empty
	}
	m.gameOver = false
	m.winner = Empty
	m.winningLine = nil
	m.isDraw = false
	m.lastMoveAt = m.now()
	m.matchCount++

	if len(m.originalIDs) == 2 {
		m.swapSymbols()
	}
	m.currentTurn = SymbolX
}

func (m *Match) swapSymbols() {
	a, okA := m.players[m.originalIDs[0]]
	b, okB := m.players[m.originalIDs[1]]
	if !okA || !okB {
		return
	}
	a.symbol, b.symbol = b.symbol, a.symbol
}

// GridSize returns the board edge length.
func (m *Match) GridSize() int { return m.gridSize }

// WinCondition returns the run length required to win.
func (m *Match) WinCondition() int { return m.winCondition }

// CurrentTurn returns the symbol expected to move next.
func (m *Match) CurrentTurn() Symbol { return m.currentTurn }

// GameOver reports whether the current match has ended.
func (m *Match) GameOver() bool { return m.gameOver }

// Winner returns the winning symbol, or Empty.
func (m *Match) Winner() Symbol { return m.winner }

// IsDraw reports whether the current match ended without a winner.
func (m *Match) IsDraw() bool { return m.isDraw }

// WinningLine returns a copy of the winning cell indices, or nil.
func (m *Match) WinningLine() []int { return cloneInts(m.winningLine) }

// MatchCount returns the number of resets performed so far.
func (m *Match) MatchCount() int { return m.matchCount }

// HostID returns the id of the first player added.
func (m *Match) HostID() string { return m.hostID }

// CreatedAt returns the construction time.
func (m *Match) CreatedAt() time.Time { return m.createdAt }

// LastMoveAt returns the time of the last move or reset.
func (m *Match) LastMoveAt() time.Time { return m.lastMoveAt }

// Board returns a copy of the cells in row-major order.
func (m *Match) Board() []Symbol {
	out := make([]Symbol, len(m.board))
	copy(out, m.board)
	return out
}

// PlayerCount returns the number of registered players.
func (m *Match) PlayerCount() int { return len(m.players) }

// PlayerIDs returns player ids in the order they were added.
func (m *Match) PlayerIDs() []string {
	out := make([]string, 0, len(m.joinOrder))
	for _, id := range m.joinOrder {
		if _, ok := m.players[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Player returns the public view of playerID.
func (m *Match) Player(playerID string) (PlayerView, bool) {
	p, ok := m.players[playerID]
	if !ok {
		return PlayerView{}, false
	}
	return PlayerView{ID: playerID, Name: p.name, Symbol: p.symbol}, true
}

// PlayerBySymbol returns the first player, in join order, holding symbol.
func (m *Match) PlayerBySymbol(symbol Symbol) (PlayerView, bool) {
	if symbol == Empty {
		return PlayerView{}, false
	}
	for _, id := range m.joinOrder {
		if p, ok := m.players[id]; ok && p.symbol == symbol {
			return PlayerView{ID: id, Name: p.name, Symbol: p.symbol}, true
		}
	}
	return PlayerView{}, false
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func cloneInts(in []int) []int {
	if in == nil {
		return nil
	}
	out := make([]int, len(in))
	copy(out, in)
	return out
}
