// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/piloto-life/Gomoku/internal/game"
	"github.com/piloto-life/Gomoku/internal/middleware"
	"github.com/piloto-life/Gomoku/internal/models"
	"github.com/piloto-life/Gomoku/internal/protocol"
	"github.com/piloto-life/Gomoku/internal/ws"
	"github.com/sirupsen/logrus"
)

// GameWS upgrades to the game channel for /game/{game_id}. Only seated players
// are admitted. They receive the current state and then play through move frames.
func (s *Server) GameWS(w http.ResponseWriter, r *http.Request) {
	c, ok := s.accept(w, r, GameSubprotocol)
	if !ok {
		return
	}
	profile, ok := s.authenticateSocket(r, c)
	if !ok {
		return
	}

	gameID, err := uuid.Parse(chi.URLParam(r, "game_id"))
	if err != nil {
		c.Close(InvalidGameIDError, "invalid game id")
		return
	}
	sess, err := s.hub.AuthorizeGame(r.Context(), gameID, profile.ID)
	if err != nil {
		switch {
		case errors.Is(err, game.ErrNotFound):
			c.Close(InvalidGameIDError, "game does not exist")
		case errors.Is(err, game.ErrNotAPlayer):
			c.Close(NotAPlayerError, "not a player in this game")
		default:
			s.logger.WithField("game_id", gameID).Errorf("load game: %v", err)
			c.Close(websocket.StatusInternalError, "failed to load game")
		}
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn := ws.NewConnection(c, profile.ID, gameID, s.opts.Conn, s.logger)
	go conn.WritePump(ctx)

	middleware.LogWebSocketConnect(s.logger, r.RemoteAddr, r.URL.Path)
	s.hub.JoinGameRoom(sess, profile, conn)

	err = s.gameReadLoop(ctx, conn, profile)

	s.hub.HandleDeadConnection(conn)
	middleware.LogWebSocketDisconnect(s.logger, r.RemoteAddr, r.URL.Path, err)
}

func (s *Server) gameReadLoop(ctx context.Context, conn *ws.Connection, profile models.UserRef) error {
	log := s.logger.WithFields(logrus.Fields{"game_id": conn.GameID(), "user_id": conn.UserID()})
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			return readErr(err)
		}
		in, err := protocol.DecodeGame(data)
		if err != nil {
			if sendErr := conn.Send(protocol.NewError(err.Error(), "bad_message")); sendErr != nil {
				return sendErr
			}
			continue
		}

		switch in.Type {
		case protocol.TypeMove:
			row, col, err := in.Position()
			if err != nil {
				if sendErr := conn.Send(protocol.NewError(err.Error(), "bad_message")); sendErr != nil {
					return sendErr
				}
				continue
			}
			// rejected moves were already reported to the sender
			if err := s.hub.HandleMove(ctx, conn, row, col); err != nil {
				log.Debugf("move (%d,%d) rejected: %v", row, col, err)
			}
		case protocol.TypeChat:
			s.hub.GameChat(conn, profile, in.Message)
		case protocol.TypePing:
			if err := conn.Send(protocol.NewPong()); err != nil {
				return err
			}
		}
	}
}
