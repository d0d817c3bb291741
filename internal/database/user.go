package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/piloto-life/Gomoku/internal/auth"
	"github.com/piloto-life/Gomoku/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email is already registered")
)

const userColumns = `id, COALESCE(email, ''), password, username, is_guest,
	rating, rating_deviation, volatility, created_at, last_login`

// CreateUser inserts u. A registered user's plain Password is replaced by its
// argon2id hash; guests are stored without email or password.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Rating == 0 {
		u.Rating = models.DefaultRating
	}
	if !u.IsGuest {
		hash, err := auth.CreateHash(u.Password, auth.DefaultParams)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		u.Password = hash
	}

	var email any
	if u.Email != "" {
		email = strings.ToLower(u.Email)
	}

	q := `INSERT INTO users (id, email, password, username, is_guest, rating)
	      VALUES ($1, $2, $3, $4, $5, $6)
	      RETURNING rating_deviation, volatility, created_at`
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, q,
			u.ID, email, u.Password, u.Username, u.IsGuest, u.Rating,
		).Scan(&u.RatingDeviation, &u.Volatility, &u.CreatedAt)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, strings.ToLower(email))
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
}

func (s *Store) getUser(ctx context.Context, q string, arg any) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx, q, arg).Scan(
		&u.ID, &u.Email, &u.Password, &u.Username, &u.IsGuest,
		&u.Rating, &u.RatingDeviation, &u.Volatility,
		&u.CreatedAt, &u.LastLogin,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// AuthenticateUser checks the password and stamps last_login.
func (s *Store) AuthenticateUser(ctx context.Context, email, password string) (*models.User, error) {
	u, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if u.IsGuest {
		return nil, ErrInvalidCredentials
	}

	match, err := auth.ComparePasswordAndHash(password, u.Password)
	if err != nil || !match {
		return nil, ErrInvalidCredentials
	}

	if _, err := s.pool.Exec(ctx, `UPDATE users SET last_login = NOW() WHERE id = $1`, u.ID); err != nil {
		s.logger.WithField("user_id", u.ID).Warnf("failed to stamp last login: %v", err)
	}
	return u, nil
}
