package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/tictactoe/internal/archive"
	"github.com/cory-johannsen/tictactoe/internal/storage/postgres"
	"github.com/cory-johannsen/tictactoe/internal/testutil"
)

func TestMatchResultRepository(t *testing.T) {
	pc := testutil.NewPostgresContainer(t)
	pc.ApplyMigrations(t)
	repo := postgres.NewMatchResultRepository(pc.RawPool)
	ctx := context.Background()
	finished := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("win and draw round trip", func(t *testing.T) {
		win := archive.Result{
			RoomID: "ROOMWIN1", MatchNumber: 1, GridSize: 3, WinCondition: 3,
			PlayerX: "Alice", PlayerO: "Bob",
			WinnerSymbol: "X", WinnerName: "Alice", Moves: 5, FinishedAt: finished,
		}
		draw := archive.Result{
			RoomID: "ROOMWIN1", MatchNumber: 2, GridSize: 3, WinCondition: 3,
			PlayerX: "Bob", PlayerO: "Alice",
			IsDraw: true, Moves: 9, FinishedAt: finished.Add(time.Minute),
		}
		require.NoError(t, repo.SaveResult(ctx, win))
		require.NoError(t, repo.SaveResult(ctx, draw))

		got, err := repo.ListByRoom(ctx, "ROOMWIN1")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "X", got[0].WinnerSymbol)
		assert.Equal(t, "Alice", got[0].WinnerName)
		assert.True(t, got[0].FinishedAt.Equal(finished))
		assert.True(t, got[1].IsDraw)
		assert.Empty(t, got[1].WinnerSymbol)
		assert.Empty(t, got[1].WinnerName)
	})

	t.Run("draw with a winner is rejected", func(t *testing.T) {
		err := repo.SaveResult(ctx, archive.Result{
			RoomID: "ROOMBAD1", MatchNumber: 1, GridSize: 3, WinCondition: 3,
			PlayerX: "Alice", PlayerO: "Bob",
			WinnerSymbol: "O", WinnerName: "Bob", IsDraw: true, Moves: 9, FinishedAt: finished,
		})
		require.Error(t, err)

		got, err := repo.ListByRoom(ctx, "ROOMBAD1")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("unknown room is empty", func(t *testing.T) {
		got, err := repo.ListByRoom(ctx, "NOSUCH00")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("pool health", func(t *testing.T) {
		assert.NoError(t, pc.Pool.Health(ctx, time.Second))
		assert.NoError(t, pc.Pool.Checker(time.Second)(ctx))
	})

	t.Run("sessions run in UTC", func(t *testing.T) {
		var tz string
		require.NoError(t, pc.RawPool.QueryRow(ctx, "SHOW TIME ZONE").Scan(&tz))
		assert.Equal(t, "UTC", tz)
	})
}

func TestMigrate_DownAndUpAgain(t *testing.T) {
	pc := testutil.NewPostgresContainer(t)

	res, err := postgres.Migrate(pc.DSN(), "up", 0)
	require.NoError(t, err)
	assert.Equal(t, uint(1), res.Version)
	assert.False(t, res.Dirty)

	res, err = postgres.Migrate(pc.DSN(), "up", 0)
	require.NoError(t, err)
	assert.True(t, res.NoChange)

	_, err = postgres.Migrate(pc.DSN(), "down", 1)
	require.NoError(t, err)
	var exists bool
	require.NoError(t, pc.RawPool.QueryRow(context.Background(),
		`SELECT to_regclass('public.match_results') IS NOT NULL`).Scan(&exists))
	assert.False(t, exists)
}

func TestMigrate_RejectsBadArguments(t *testing.T) {
	_, err := postgres.Migrate("postgres://unused", "sideways", 0)
	assert.ErrorContains(t, err, "invalid direction")

	_, err = postgres.Migrate("postgres://unused", "up", -1)
	assert.ErrorContains(t, err, "steps must be")
}
