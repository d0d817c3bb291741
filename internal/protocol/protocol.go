// Package protocol defines the JSON frames exchanged on the lobby and game channels.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Client to server, lobby channel.
const (
	TypeJoinQueue   = "join_queue"
	TypeLeaveQueue  = "leave_queue"
	TypeHeartbeat   = "heartbeat"
	TypeChatMessage = "chat_message"
)

// Client to server, game channel.
const (
	TypeMove = "move"
	TypeChat = "chat"
	TypePing = "ping"
)

// Server to client.
const (
	TypeConnectionEstablished = "connection_established"
	TypePlayerJoined          = "player_joined"
	TypePlayerLeft            = "player_left"
	TypeOnlinePlayers         = "online_players"
	TypeQueueUpdate           = "queue_update"
	TypeGameStart             = "game_start"
	TypeSessionReplaced       = "session_replaced"
	TypeHeartbeatResponse     = "heartbeat_response"
	TypeError                 = "error"

	TypeConnected          = "connected"
	TypeGameState          = "game_state"
	TypePlayerMove         = "player_move"
	TypeGameEnd            = "game_end"
	TypePong               = "pong"
	TypePlayerDisconnected = "player_disconnected"
)

var (
	ErrMalformed       = errors.New("malformed message")
	ErrUnknownType     = errors.New("unknown message type")
	ErrMissingPosition = errors.New("move requires integer row and col")
)

var (
	lobbyTypes = map[string]bool{TypeJoinQueue: true, TypeLeaveQueue: true, TypeHeartbeat: true, TypeChatMessage: true}
	gameTypes  = map[string]bool{TypeMove: true, TypeChat: true, TypePing: true}
)

// Inbound is any client frame. Fields not used by Type are ignored.
type Inbound struct {
	Type    string `json:"type"`
	Row     *int   `json:"row,omitempty"`
	Col     *int   `json:"col,omitempty"`
	Message string `json:"message,omitempty"`
}

// Position returns the move coordinates.
func (in Inbound) Position() (int, int, error) {
	if in.Row == nil || in.Col == nil {
		return 0, 0, ErrMissingPosition
	}
	return *in.Row, *in.Col, nil
}

// DecodeLobby parses a lobby channel frame.
func DecodeLobby(data []byte) (Inbound, error) {
	return decode(data, lobbyTypes)
}

// DecodeGame parses a game channel frame.
func DecodeGame(data []byte) (Inbound, error) {
	return decode(data, gameTypes)
}

func decode(data []byte, allowed map[string]bool) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if in.Type == "" {
		return Inbound{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	if !allowed[in.Type] {
		return in, fmt.Errorf("%w: %q", ErrUnknownType, in.Type)
	}
	return in, nil
}

// FormatTime renders timestamps on the wire.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Now is FormatTime(time.Now()).
func Now() string {
	return FormatTime(time.Now())
}
