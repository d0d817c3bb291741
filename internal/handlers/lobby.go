// internal/handlers/lobby.go
package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/piloto-life/Gomoku/internal/game"
	"github.com/piloto-life/Gomoku/internal/lobby"
)

// GameSummary is a live game as listed in the lobby, without its move log.
type GameSummary struct {
	ID          uuid.UUID   `json:"id"`
	Status      game.Status `json:"status"`
	BoardSize   int         `json:"board_size"`
	CurrentTurn game.Color  `json:"current_turn"`
	Players     game.Seats  `json:"players"`
	MoveCount   int         `json:"move_count"`
	CreatedAt   time.Time   `json:"created_at"`
}

func summarize(snap game.Snapshot) GameSummary {
	size := 0
	if snap.Board != nil {
		size = snap.Board.Size()
	}
	return GameSummary{
		ID:          snap.ID,
		Status:      snap.Status,
		BoardSize:   size,
		CurrentTurn: snap.CurrentTurn,
		Players:     snap.Players,
		MoveCount:   len(snap.Moves),
		CreatedAt:   snap.CreatedAt,
	}
}

// LobbyPlayers lists everyone connected to the lobby.
func (s *Server) LobbyPlayers(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(w, r); !ok {
		return
	}
	players := s.hub.Lobby.Players()
	writeJSON(w, http.StatusOK, map[string]any{
		"players": players,
		"count":   len(players),
	})
}

// LobbyQueue lists the matchmaking queue, oldest first.
func (s *Server) LobbyQueue(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(w, r); !ok {
		return
	}
	queue := s.hub.Lobby.Queue()
	writeJSON(w, http.StatusOK, map[string]any{
		"queue":               queue,
		"size":                len(queue),
		"estimated_wait_time": int(lobby.EstimatedWait(len(queue)).Seconds()),
	})
}

func (s *Server) LobbyStats(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.hub.Stats())
}

// LobbyGames lists online games that are waiting for a player or in progress.
func (s *Server) LobbyGames(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(w, r); !ok {
		return
	}
	games := []GameSummary{}
	for _, snap := range s.hub.Games.List(game.StatusWaiting, game.StatusActive) {
		if snap.Mode != game.ModeOnline {
			continue
		}
		games = append(games, summarize(snap))
	}
	writeJSON(w, http.StatusOK, map[string]any{"games": games})
}
