package protocol

import (
	"github.com/google/uuid"
	"github.com/piloto-life/Gomoku/internal/game"
	"github.com/piloto-life/Gomoku/internal/models"
)

// PlayerInfo is one row of the online_players list.
type PlayerInfo struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Rating   int       `json:"rating"`
	Guest    bool      `json:"guest,omitempty"`
	JoinedAt string    `json:"joined_at"`
	InQueue  bool      `json:"in_queue"`
}

// QueueEntry is one row of the queue_update list, oldest first.
type QueueEntry struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Rating   int       `json:"rating"`
}

// SeatInfo is a player of a new game with the color assigned to them.
type SeatInfo struct {
	models.UserRef
	Color game.Color `json:"color"`
}

type ConnectionEstablished struct {
	Type    string         `json:"type"`
	UserID  uuid.UUID      `json:"user_id"`
	User    models.UserRef `json:"user"`
	Message string         `json:"message"`
}

func NewConnectionEstablished(u models.UserRef) ConnectionEstablished {
	return ConnectionEstablished{
		Type:    TypeConnectionEstablished,
		UserID:  u.ID,
		User:    u,
		Message: "connected to lobby",
	}
}

type PlayerJoined struct {
	Type   string         `json:"type"`
	UserID uuid.UUID      `json:"user_id"`
	User   models.UserRef `json:"user"`
}

func NewPlayerJoined(u models.UserRef) PlayerJoined {
	return PlayerJoined{Type: TypePlayerJoined, UserID: u.ID, User: u}
}

type PlayerLeft struct {
	Type   string    `json:"type"`
	UserID uuid.UUID `json:"user_id"`
}

func NewPlayerLeft(userID uuid.UUID) PlayerLeft {
	return PlayerLeft{Type: TypePlayerLeft, UserID: userID}
}

type OnlinePlayers struct {
	Type    string       `json:"type"`
	Players []PlayerInfo `json:"players"`
}

func NewOnlinePlayers(players []PlayerInfo) OnlinePlayers {
	if players == nil {
		players = []PlayerInfo{}
	}
	return OnlinePlayers{Type: TypeOnlinePlayers, Players: players}
}

type QueueUpdate struct {
	Type  string       `json:"type"`
	Queue []QueueEntry `json:"queue"`
	Size  int          `json:"size"`
}

func NewQueueUpdate(queue []QueueEntry) QueueUpdate {
	if queue == nil {
		queue = []QueueEntry{}
	}
	return QueueUpdate{Type: TypeQueueUpdate, Queue: queue, Size: len(queue)}
}

type GameStart struct {
	Type      string         `json:"type"`
	GameID    uuid.UUID      `json:"game_id"`
	Players   []SeatInfo     `json:"players"`
	YourID    uuid.UUID      `json:"your_id"`
	YourColor game.Color     `json:"your_color"`
	Opponent  models.UserRef `json:"opponent"`
}

// NewGameStart builds the game_start frame addressed to the player seated as you.
func NewGameStart(gameID uuid.UUID, black, white models.UserRef, you game.Color) GameStart {
	me, opp := black, white
	if you == game.White {
		me, opp = white, black
	}
	return GameStart{
		Type:   TypeGameStart,
		GameID: gameID,
		Players: []SeatInfo{
			{UserRef: black, Color: game.Black},
			{UserRef: white, Color: game.White},
		},
		YourID:    me.ID,
		YourColor: you,
		Opponent:  opp,
	}
}

type SessionReplaced struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewSessionReplaced() SessionReplaced {
	return SessionReplaced{Type: TypeSessionReplaced, Message: "a newer connection for this account replaced this one"}
}

type HeartbeatResponse struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

func NewHeartbeatResponse() HeartbeatResponse {
	return HeartbeatResponse{Type: TypeHeartbeatResponse, Timestamp: Now()}
}

// ChatMessage is relayed on both channels; it is never stored.
type ChatMessage struct {
	Type      string    `json:"type"`
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp string    `json:"timestamp"`
}

func NewChatMessage(from models.UserRef, text string) ChatMessage {
	return ChatMessage{
		Type:      TypeChatMessage,
		UserID:    from.ID,
		Username:  from.Username,
		Message:   text,
		Timestamp: Now(),
	}
}

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func NewError(message, code string) Error {
	return Error{Type: TypeError, Message: message, Code: code}
}
