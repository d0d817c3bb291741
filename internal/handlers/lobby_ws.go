// internal/handlers/lobby_ws.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/piloto-life/Gomoku/internal/auth"
	"github.com/piloto-life/Gomoku/internal/middleware"
	"github.com/piloto-life/Gomoku/internal/models"
	"github.com/piloto-life/Gomoku/internal/protocol"
	"github.com/piloto-life/Gomoku/internal/ws"
)

// LobbyWS upgrades to the lobby channel. The user is announced to the lobby, and
// the connection then serves queue, heartbeat and chat frames until it drops.
func (s *Server) LobbyWS(w http.ResponseWriter, r *http.Request) {
	c, ok := s.accept(w, r, LobbySubprotocol)
	if !ok {
		return
	}
	profile, ok := s.authenticateSocket(r, c)
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn := ws.NewConnection(c, profile.ID, uuid.Nil, s.opts.Conn, s.logger)
	go conn.WritePump(ctx)

	middleware.LogWebSocketConnect(s.logger, r.RemoteAddr, r.URL.Path)
	s.hub.ConnectLobby(profile, conn)

	err := s.lobbyReadLoop(ctx, conn)

	s.hub.HandleDeadConnection(conn)
	middleware.LogWebSocketDisconnect(s.logger, r.RemoteAddr, r.URL.Path, err)
}

func (s *Server) lobbyReadLoop(ctx context.Context, conn *ws.Connection) error {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			return readErr(err)
		}
		in, err := protocol.DecodeLobby(data)
		if err != nil {
			if sendErr := conn.Send(protocol.NewError(err.Error(), "bad_message")); sendErr != nil {
				return sendErr
			}
			continue
		}

		switch in.Type {
		case protocol.TypeJoinQueue:
			s.hub.JoinQueue(ctx, conn)
		case protocol.TypeLeaveQueue:
			s.hub.Lobby.LeaveQueue(conn.UserID())
		case protocol.TypeHeartbeat:
			if err := conn.Send(protocol.NewHeartbeatResponse()); err != nil {
				return err
			}
		case protocol.TypeChatMessage:
			s.hub.LobbyChat(conn, in.Message)
		}
	}
}

// accept upgrades the request. A client that offered subprotocols but none
// matching proto is closed with BadSubprotocolError.
func (s *Server) accept(w http.ResponseWriter, r *http.Request, proto string) (*websocket.Conn, bool) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{proto},
		OriginPatterns: s.originPatterns(),
	})
	if err != nil {
		s.logger.Warnf("websocket accept error: %v", err)
		return nil, false
	}
	if len(r.Header.Values("Sec-WebSocket-Protocol")) > 0 && c.Subprotocol() != proto {
		c.Close(BadSubprotocolError, "client must speak the "+proto+" subprotocol")
		return nil, false
	}
	return c, true
}

// authenticateSocket resolves the token for an upgraded request. On failure the
// socket is closed with the matching code and nothing has been registered.
func (s *Server) authenticateSocket(r *http.Request, c *websocket.Conn) (models.UserRef, bool) {
	profile, err := s.resolver.Resolve(r.Context(), extractToken(r))
	if err == nil {
		return profile, true
	}

	var authErr *auth.AuthError
	switch {
	case errors.Is(err, auth.ErrInvalidSubject):
		c.Close(InvalidUserIDError, "invalid user id in token")
	case errors.As(err, &authErr):
		c.Close(InvalidAuthTokenError, "invalid auth token")
	default:
		s.logger.Errorf("resolve token: %v", err)
		c.Close(websocket.StatusInternalError, "failed to load profile")
	}
	s.logger.WithField("remote", r.RemoteAddr).Infof("websocket rejected: %v", err)
	return models.UserRef{}, false
}

// readErr hides the errors of an ordinary close so they are not logged as failures.
func readErr(err error) error {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// hostOf strips the scheme from an origin so it can be used as a websocket
// origin pattern.
func hostOf(origin string) string {
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		return u.Host
	}
	return origin
}
