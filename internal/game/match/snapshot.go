package match

import "time"

// PlayerView is the public description of a participant.
type PlayerView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Symbol Symbol `json:"symbol"`
}

// Settings are the room rules derived at creation.
type Settings struct {
	GridSize     int `json:"grid_size"`
	WinCondition int `json:"win_condition"`
}

// Snapshot is a self-contained copy of a match's public state, safe to
// marshal and hand to other goroutines.
type Snapshot struct {
	Board         []Symbol              `json:"board"`
	CurrentTurn   Symbol                `json:"current_turn"`
	Players       map[string]PlayerView `json:"players"`
	GameOver      bool                  `json:"game_over"`
	Winner        Symbol                `json:"winner,omitempty"`
	WinningLine   []int                 `json:"winning_line,omitempty"`
	IsDraw        bool                  `json:"is_draw"`
	GridSize      int                   `json:"grid_size"`
	MatchCount    int                   `json:"match_count"`
	Settings      Settings              `json:"room_settings"`
	SessionScores map[string]Score      `json:"session_scores"`
	MatchHistory  []HistoryEntry        `json:"match_history"`
	SessionLeader *Leader               `json:"session_leader"`
	CreatedAt     time.Time             `json:"created_at"`
}

// Snapshot copies the public state of the match.
//
// Postcondition: mutating the returned value never affects m.
func (m *Match) Snapshot() Snapshot {
	players := make(map[string]PlayerView, len(m.players))
	for id, p := range m.players {
		players[id] = PlayerView{ID: id, Name: p.name, Symbol: p.symbol}
	}
	scores := make(map[string]Score, len(m.scores))
	for id, s := range m.scores {
		scores[id] = *s
	}

	snap := Snapshot{
		Board:         m.Board(),
		CurrentTurn:   m.currentTurn,
		Players:       players,
		GameOver:      m.gameOver,
		Winner:        m.winner,
		WinningLine:   cloneInts(m.winningLine),
		IsDraw:        m.isDraw,
		GridSize:      m.gridSize,
		MatchCount:    m.matchCount,
		Settings:      Settings{GridSize: m.gridSize, WinCondition: m.winCondition},
		SessionScores: scores,
		MatchHistory:  m.History(),
		CreatedAt:     m.createdAt,
	}
	if leader, ok := m.SessionLeader(); ok {
		snap.SessionLeader = &leader
	}
	return snap
}
