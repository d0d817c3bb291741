// internal/handlers/game.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/piloto-life/Gomoku/internal/game"
	"github.com/piloto-life/Gomoku/internal/lobby"
)

// CreateGame opens a waiting online game with the caller seated black.
func (s *Server) CreateGame(w http.ResponseWriter, r *http.Request) {
	profile, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	sess, err := s.hub.CreateWaitingGame(r.Context(), profile)
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

// JoinGame seats the caller in the free seat of a waiting game.
func (s *Server) JoinGame(w http.ResponseWriter, r *http.Request) {
	gameID, err := uuid.Parse(chi.URLParam(r, "game_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid game id")
		return
	}
	profile, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	sess, color, err := s.hub.JoinWaitingGame(r.Context(), gameID, profile)
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"game":  sess.Snapshot(),
		"color": color,
	})
}

// GetGame returns the full state of a game, loading it from storage if needed.
func (s *Server) GetGame(w http.ResponseWriter, r *http.Request) {
	gameID, err := uuid.Parse(chi.URLParam(r, "game_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid game id")
		return
	}
	sess, err := s.hub.Games.Get(r.Context(), gameID)
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) writeGameError(w http.ResponseWriter, err error) {
	var se *game.StorageError
	switch {
	case errors.Is(err, game.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, lobby.ErrAlreadyPlaying),
		errors.Is(err, game.ErrSeatTaken),
		errors.Is(err, game.ErrAlreadySeated),
		errors.Is(err, game.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &se):
		s.logger.Errorf("game storage: %v", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		s.logger.Errorf("game request: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
