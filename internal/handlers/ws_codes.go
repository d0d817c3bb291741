// internal/handlers/ws_codes.go
package handlers

import (
	"github.com/coder/websocket"
	"github.com/piloto-life/Gomoku/internal/session"
)

// Custom WebSocket close codes used within the lobby and game handlers.
// These provide more specific reasons for closure than standard codes.
const (
	BadSubprotocolError   websocket.StatusCode = 3000 // Client offered subprotocols but none we speak.
	InvalidAuthTokenError websocket.StatusCode = 3001 // Token missing, malformed, expired or for an unknown user.
	InvalidUserIDError    websocket.StatusCode = 3002 // Token subject is not a valid user id.
	InvalidGameIDError    websocket.StatusCode = 3004 // Game id in the URL is malformed or does not exist.
	NotAPlayerError       websocket.StatusCode = 3005 // Authenticated user holds no seat in the game.

	// SessionReplacedCode closes a connection evicted by a newer one for the same user.
	SessionReplacedCode = session.ReplacedCode
)

// Subprotocols offered by the two channels.
const (
	LobbySubprotocol = "gomoku.lobby"
	GameSubprotocol  = "gomoku.game"
)
