package match

import "time"

// Score is one player's record across every match played in a room.
type Score struct {
	Wins         int `json:"wins"`
	Losses       int `json:"losses"`
	Draws        int `json:"draws"`
	TotalMatches int `json:"total_matches"`
}

// HistoryEntry summarises a completed match.
type HistoryEntry struct {
	MatchNumber  int       `json:"match_number"`
	WinnerSymbol Symbol    `json:"winner_symbol,omitempty"`
	WinnerName   string    `json:"winner_name,omitempty"`
	IsDraw       bool      `json:"is_draw"`
	Timestamp    time.Time `json:"timestamp"`
}

// Leader identifies the player with strictly the most wins.
type Leader struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
	Wins       int    `json:"wins"`
}

// UpdateScores credits the outcome of the match that just finished to every
// current player and appends a history entry.
//
// Precondition: winner is Empty when isDraw is true.
// Postcondition: len(History()) <= HistoryLimit, newest last.
func (m *Match) UpdateScores(winner Symbol, isDraw bool) {
	for id, p := range m.players {
		s, ok := m.scores[id]
		if !ok {
			s = &Score{}
			m.scores[id] = s
		}
		s.TotalMatches++
		switch {
		case isDraw:
			s.Draws++
		case p.symbol == winner:
			s.Wins++
		default:
			s.Losses++
		}
	}

	entry := HistoryEntry{
		MatchNumber: m.matchCount + 1,
		IsDraw:      isDraw,
		Timestamp:   m.now(),
	}
	if !isDraw {
		entry.WinnerSymbol = winner
		if p, ok := m.PlayerBySymbol(winner); ok {
			entry.WinnerName = p.Name
		}
	}
	m.history = append(m.history, entry)
	if over := len(m.history) - HistoryLimit; over > 0 {
		m.history = append([]HistoryEntry(nil), m.history[over:]...)
	}
}

// SessionLeader returns the player with strictly the most wins. A tie for
// the maximum, or an empty score table, yields no leader.
func (m *Match) SessionLeader() (Leader, bool) {
	var (
		best  Leader
		found bool
		tied  bool
	)
	for _, id := range m.joinOrder {
		s, ok := m.scores[id]
		if !ok {
			continue
		}
		switch {
		case !found || s.Wins > best.Wins:
			best = Leader{PlayerID: id, Wins: s.Wins}
			found, tied = true, false
		case s.Wins == best.Wins:
			tied = true
		}
	}
	if !found || tied {
		return Leader{}, false
	}
	if p, ok := m.players[best.PlayerID]; ok {
		best.PlayerName = p.name
	}
	return best, true
}

// Score returns a copy of playerID's session record.
func (m *Match) Score(playerID string) (Score, bool) {
	s, ok := m.scores[playerID]
	if !ok {
		return Score{}, false
	}
	return *s, true
}

// History returns the retained match summaries, oldest first.
func (m *Match) History() []HistoryEntry {
	out := make([]HistoryEntry, len(m.history))
	copy(out, m.history)
	return out
}

// LastResult returns the most recent history entry.
func (m *Match) LastResult() (HistoryEntry, bool) {
	if len(m.history) == 0 {
		return HistoryEntry{}, false
	}
	return m.history[len(m.history)-1], true
}
