package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/piloto-life/Gomoku/internal/game"
	"github.com/piloto-life/Gomoku/internal/models"
	"github.com/piloto-life/Gomoku/internal/rating"
	"github.com/sirupsen/logrus"
)

// RecordResult stores the result row of a finished game and applies the 1v1
// rating update to both players in the same transaction. A game is only
// recorded once. Players without a users row (guests) are not rated.
func (s *Store) RecordResult(ctx context.Context, snap game.Snapshot) error {
	if snap.Outcome == nil {
		return errors.New("game has no outcome")
	}
	black, white := snap.Players.Black, snap.Players.White
	if black == nil || white == nil {
		return errors.New("game is missing a player")
	}

	var winnerID *uuid.UUID
	if p := snap.Players.Get(snap.Outcome.Winner); p != nil && !snap.Outcome.Draw {
		id := p.ID
		winnerID = &id
	}

	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO game_results (game_id, black_id, white_id, winner_id, draw, reason, moves)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (game_id) DO NOTHING
		`, snap.ID, black.ID, white.ID, winnerID, snap.Outcome.Draw, snap.Outcome.Reason, len(snap.Moves))
		if err != nil {
			return fmt.Errorf("insert game result: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		b, err := lockUser(ctx, tx, black.ID)
		if err != nil {
			return err
		}
		w, err := lockUser(ctx, tx, white.ID)
		if err != nil {
			return err
		}
		if b == nil || w == nil || b.IsGuest || w.IsGuest {
			s.logger.WithField("game_id", snap.ID).Debug("skipping rating update for unrated player")
			return nil
		}

		score := rating.Draw
		if !snap.Outcome.Draw {
			score = rating.Loss
			if snap.Outcome.Winner == game.Black {
				score = rating.Win
			}
		}
		nb, nw := rating.Update1v1(*b, *w, score)

		for _, pair := range [][2]models.User{{*b, nb}, {*w, nw}} {
			if err := saveRating(ctx, tx, snap.ID, pair[0], pair[1]); err != nil {
				return err
			}
		}

		s.logger.WithFields(logrus.Fields{
			"game_id":    snap.ID,
			"black":      fmt.Sprintf("%d->%d", b.Rating, nb.Rating),
			"white":      fmt.Sprintf("%d->%d", w.Rating, nw.Rating),
			"black_user": b.ID,
			"white_user": w.ID,
		}).Info("ratings updated")
		return nil
	})
}

func lockUser(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := tx.QueryRow(ctx, `
		SELECT id, username, is_guest, rating, rating_deviation, volatility
		FROM users WHERE id = $1 FOR UPDATE
	`, id).Scan(&u.ID, &u.Username, &u.IsGuest, &u.Rating, &u.RatingDeviation, &u.Volatility)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock user %s: %w", id, err)
	}
	return &u, nil
}

func saveRating(ctx context.Context, tx pgx.Tx, gameID uuid.UUID, before, after models.User) error {
	if _, err := tx.Exec(ctx, `
		UPDATE users SET rating = $1, rating_deviation = $2, volatility = $3 WHERE id = $4
	`, after.Rating, after.RatingDeviation, after.Volatility, after.ID); err != nil {
		return fmt.Errorf("update rating: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO ratings (user_id, game_id, old_rating, new_rating, rating_deviation, volatility)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, after.ID, gameID, before.Rating, after.Rating, after.RatingDeviation, after.Volatility); err != nil {
		return fmt.Errorf("insert rating record: %w", err)
	}
	return nil
}
