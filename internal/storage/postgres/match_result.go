package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/tictactoe/internal/archive"
)

// MatchResultRepository stores finished matches in match_results.
type MatchResultRepository struct {
	db *pgxpool.Pool
}

var _ archive.Store = (*MatchResultRepository)(nil)

// NewMatchResultRepository creates a MatchResultRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewMatchResultRepository(db *pgxpool.Pool) *MatchResultRepository {
	return &MatchResultRepository{db: db}
}

// SaveResult inserts one finished match.
//
// Precondition: r.IsDraw is true exactly when r.WinnerSymbol is empty.
// Postcondition: Returns nil once the row is committed.
func (r *MatchResultRepository) SaveResult(ctx context.Context, res archive.Result) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO match_results
		   (room_id, match_number, grid_size, win_condition, player_x, player_o,
		    winner_symbol, winner_name, is_draw, moves, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		res.RoomID, res.MatchNumber, res.GridSize, res.WinCondition, res.PlayerX, res.PlayerO,
		nullable(res.WinnerSymbol), nullable(res.WinnerName), res.IsDraw, res.Moves, res.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting match result for room %s: %w", res.RoomID, err)
	}
	return nil
}

// ListByRoom returns the archived matches of roomID, oldest first. The
// server never reads the archive back; this exists for operators and for
// verifying what SaveResult wrote.
func (r *MatchResultRepository) ListByRoom(ctx context.Context, roomID string) ([]archive.Result, error) {
	rows, err := r.db.Query(ctx,
		`SELECT room_id, match_number, grid_size, win_condition, player_x, player_o,
		        COALESCE(winner_symbol, ''), COALESCE(winner_name, ''), is_draw, moves, finished_at
		 FROM match_results
		 WHERE room_id = $1
		 ORDER BY finished_at, match_number`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying match results: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (archive.Result, error) {
		var res archive.Result
		err := row.Scan(&res.RoomID, &res.MatchNumber, &res.GridSize, &res.WinCondition,
			&res.PlayerX, &res.PlayerO, &res.WinnerSymbol, &res.WinnerName,
			&res.IsDraw, &res.Moves, &res.FinishedAt)
		return res, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning match results: %w", err)
	}
	return out, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
