package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultRating is the starting 1v1 rating for new and guest accounts.
const DefaultRating = 1000

// ErrUserNotFound is returned by user lookups that match no row.
var ErrUserNotFound = errors.New("user not found")

type User struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Password string    `json:"-"`
	Username string    `json:"username"`

	IsGuest bool `json:"is_guest"`

	// Glicko-2 state for 1v1 games
	Rating          int     `json:"rating"`
	RatingDeviation float64 `json:"rating_deviation"`
	Volatility      float64 `json:"volatility"`

	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// Ref returns the public snapshot of the user.
func (u *User) Ref() UserRef {
	return UserRef{
		ID:       u.ID,
		Username: u.Username,
		Rating:   u.Rating,
		Guest:    u.IsGuest,
	}
}

// UserRef is the public identity shown to other players. It is passed by value so
// every holder owns its own copy.
type UserRef struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Rating   int       `json:"rating"`
	Guest    bool      `json:"guest,omitempty"`
}
