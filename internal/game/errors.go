package game

import (
	"errors"
	"fmt"
)

// Move validation failures. The session is unchanged when any of these is returned.
var (
	ErrInvalidState = errors.New("game is not active")
	ErrOutOfBounds  = errors.New("position is outside the board")
	ErrCellOccupied = errors.New("position is already occupied")
	ErrNotYourTurn  = errors.New("not your turn")
)

var (
	ErrNotFound      = errors.New("game not found")
	ErrNotAPlayer    = errors.New("user is not a player in this game")
	ErrSeatTaken     = errors.New("game is already full")
	ErrAlreadySeated = errors.New("user is already seated in this game")
)

// IsInvalidMove reports whether err belongs to the move validation family.
func IsInvalidMove(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrOutOfBounds) ||
		errors.Is(err, ErrCellOccupied) ||
		errors.Is(err, ErrNotYourTurn) ||
		errors.Is(err, ErrNotAPlayer)
}

// ErrorCode maps a game error to the short code sent in error frames.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrOutOfBounds):
		return "out_of_bounds"
	case errors.Is(err, ErrCellOccupied):
		return "cell_occupied"
	case errors.Is(err, ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, ErrNotAPlayer):
		return "not_a_player"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrSeatTaken), errors.Is(err, ErrAlreadySeated):
		return "seat_unavailable"
	}
	var se *StorageError
	if errors.As(err, &se) {
		return "storage_error"
	}
	return "internal"
}

// StorageError wraps a failed repository call.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
