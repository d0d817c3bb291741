package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/piloto-life/Gomoku/internal/models"
)

// InsertActions writes a batch of action records in one transaction. Records
// already present are skipped, so a batch retried after a partial failure is
// safe to insert again.
func (s *Store) InsertActions(ctx context.Context, recs []models.GameActionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	q := `
		INSERT INTO game_actions (
			game_id, action_index, action_type, actor_user_id, action_payload, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (game_id, action_index, action_type) DO NOTHING
	`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, rec := range recs {
			payload, err := json.Marshal(rec.ActionPayload)
			if err != nil {
				return fmt.Errorf("marshal payload: %w", err)
			}
			if rec.ActionPayload == nil {
				payload = []byte("{}")
			}
			var actor *uuid.UUID
			if rec.ActorUserID != uuid.Nil {
				id := rec.ActorUserID
				actor = &id
			}
			ts := time.Now().UTC()
			if rec.Timestamp > 0 {
				ts = time.UnixMilli(rec.Timestamp).UTC()
			}
			batch.Queue(q, rec.GameID, rec.ActionIndex, rec.ActionType, actor, payload, ts)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert game actions: %w", err)
		}
		return nil
	})
}

// MarkAbandoned flags a game that is still active as abandoned.
func (s *Store) MarkAbandoned(ctx context.Context, gameID uuid.UUID) (bool, error) {
	var affected int64
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE games
			SET status = 'abandoned', finished_at = NOW(), updated_at = NOW()
			WHERE id = $1 AND status = 'active'
		`, gameID)
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("mark game %s abandoned: %w", gameID, err)
	}
	return affected > 0, nil
}

// ActionsFor returns the stored action log of one game in order.
func (s *Store) ActionsFor(ctx context.Context, gameID uuid.UUID) ([]models.GameActionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT game_id, action_index, action_type, COALESCE(actor_user_id, '00000000-0000-0000-0000-000000000000'),
		       action_payload, created_at
		FROM game_actions WHERE game_id = $1
		ORDER BY action_index, created_at
	`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.GameActionRecord
	for rows.Next() {
		var (
			rec     models.GameActionRecord
			payload []byte
			created time.Time
		)
		if err := rows.Scan(&rec.GameID, &rec.ActionIndex, &rec.ActionType, &rec.ActorUserID, &payload, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &rec.ActionPayload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		rec.Timestamp = created.UnixMilli()
		out = append(out, rec)
	}
	return out, rows.Err()
}
