package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/piloto-life/Gomoku/internal/game"
)

// GameRepository stores session snapshots in the games table.
type GameRepository struct {
	store *Store
}

func NewGameRepository(s *Store) *GameRepository {
	return &GameRepository{store: s}
}

type gameRow struct {
	board, players, moves, outcome []byte
	blackID, whiteID               *uuid.UUID
	currentTurn                    *string
}

func encodeGame(snap game.Snapshot) (gameRow, error) {
	var row gameRow
	var err error
	if row.board, err = json.Marshal(snap.Board); err != nil {
		return row, fmt.Errorf("marshal board: %w", err)
	}
	if row.players, err = json.Marshal(snap.Players); err != nil {
		return row, fmt.Errorf("marshal players: %w", err)
	}
	moves := snap.Moves
	if moves == nil {
		moves = []game.Move{}
	}
	if row.moves, err = json.Marshal(moves); err != nil {
		return row, fmt.Errorf("marshal moves: %w", err)
	}
	if snap.Outcome != nil {
		if row.outcome, err = json.Marshal(snap.Outcome); err != nil {
			return row, fmt.Errorf("marshal outcome: %w", err)
		}
	}
	if p := snap.Players.Black; p != nil {
		id := p.ID
		row.blackID = &id
	}
	if p := snap.Players.White; p != nil {
		id := p.ID
		row.whiteID = &id
	}
	if snap.CurrentTurn != game.Empty {
		turn := snap.CurrentTurn.String()
		row.currentTurn = &turn
	}
	return row, nil
}

func (r *GameRepository) Create(ctx context.Context, snap game.Snapshot) (uuid.UUID, error) {
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	row, err := encodeGame(snap)
	if err != nil {
		return uuid.Nil, err
	}
	q := `
		INSERT INTO games (
			id, mode, status, board_size, board, current_turn, players,
			black_id, white_id, moves, move_count, outcome, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	err = pgx.BeginTxFunc(ctx, r.store.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, e := tx.Exec(ctx, q,
			snap.ID, string(snap.Mode), string(snap.Status), snap.Board.Size(), row.board, row.currentTurn, row.players,
			row.blackID, row.whiteID, row.moves, len(snap.Moves), row.outcome, snap.CreatedAt, snap.UpdatedAt,
		)
		return e
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert game: %w", err)
	}
	return snap.ID, nil
}

func (r *GameRepository) Load(ctx context.Context, id uuid.UUID) (game.Snapshot, error) {
	q := `
		SELECT mode, status, board, current_turn, players, moves, outcome, created_at, updated_at
		FROM games WHERE id = $1
	`
	var (
		snap        = game.Snapshot{ID: id}
		row         gameRow
		mode        string
		status      string
		currentTurn *string
	)
	err := r.store.pool.QueryRow(ctx, q, id).Scan(
		&mode, &status, &row.board, &currentTurn, &row.players, &row.moves, &row.outcome,
		&snap.CreatedAt, &snap.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return game.Snapshot{}, game.ErrNotFound
		}
		return game.Snapshot{}, fmt.Errorf("select game: %w", err)
	}
	snap.Mode = game.Mode(mode)
	snap.Status = game.Status(status)

	snap.Board = &game.Board{}
	if err := json.Unmarshal(row.board, snap.Board); err != nil {
		return game.Snapshot{}, fmt.Errorf("decode board: %w", err)
	}
	if err := json.Unmarshal(row.players, &snap.Players); err != nil {
		return game.Snapshot{}, fmt.Errorf("decode players: %w", err)
	}
	if err := json.Unmarshal(row.moves, &snap.Moves); err != nil {
		return game.Snapshot{}, fmt.Errorf("decode moves: %w", err)
	}
	if len(row.outcome) > 0 {
		snap.Outcome = &game.Outcome{}
		if err := json.Unmarshal(row.outcome, snap.Outcome); err != nil {
			return game.Snapshot{}, fmt.Errorf("decode outcome: %w", err)
		}
	}
	if currentTurn != nil {
		if snap.CurrentTurn, err = game.ParseColor(*currentTurn); err != nil {
			return game.Snapshot{}, fmt.Errorf("decode current turn: %w", err)
		}
	}
	return snap, nil
}

// Save overwrites the stored row unless it already holds more moves, or is
// finished while snap is not. Concurrent saves of one session therefore never
// move the row backwards.
func (r *GameRepository) Save(ctx context.Context, snap game.Snapshot) error {
	row, err := encodeGame(snap)
	if err != nil {
		return err
	}
	q := `
		UPDATE games SET
			status = $2, board = $3, current_turn = $4, players = $5,
			black_id = $6, white_id = $7, moves = $8, move_count = $9, outcome = $10,
			updated_at = $11,
			finished_at = CASE WHEN $2 = 'finished' THEN COALESCE(finished_at, NOW()) ELSE finished_at END
		WHERE id = $1
		  AND move_count <= $9
		  AND (status <> 'finished' OR $2 = 'finished')
	`
	var affected int64
	err = pgx.BeginTxFunc(ctx, r.store.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, e := tx.Exec(ctx, q,
			snap.ID, string(snap.Status), row.board, row.currentTurn, row.players,
			row.blackID, row.whiteID, row.moves, len(snap.Moves), row.outcome, snap.UpdatedAt,
		)
		affected = tag.RowsAffected()
		return e
	})
	if err != nil {
		return fmt.Errorf("update game: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := r.store.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM games WHERE id = $1)`, snap.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check game: %w", err)
	}
	if !exists {
		return game.ErrNotFound
	}
	// stale snapshot, the stored row is newer
	return nil
}
