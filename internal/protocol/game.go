package protocol

import (
	"github.com/google/uuid"
	"github.com/piloto-life/Gomoku/internal/game"
	"github.com/piloto-life/Gomoku/internal/models"
)

type Connected struct {
	Type    string         `json:"type"`
	GameID  uuid.UUID      `json:"game_id"`
	User    models.UserRef `json:"user"`
	Message string         `json:"message"`
}

func NewConnected(gameID uuid.UUID, u models.UserRef) Connected {
	return Connected{Type: TypeConnected, GameID: gameID, User: u, Message: "connected to game"}
}

type GameState struct {
	Type   string        `json:"type"`
	GameID uuid.UUID     `json:"game_id"`
	State  game.Snapshot `json:"state"`
}

func NewGameState(snap game.Snapshot) GameState {
	return GameState{Type: TypeGameState, GameID: snap.ID, State: snap}
}

// MoveInfo is the move as broadcast to the room.
type MoveInfo struct {
	Row        int        `json:"row"`
	Col        int        `json:"col"`
	Color      game.Color `json:"color"`
	Seq        int        `json:"seq"`
	NextPlayer game.Color `json:"next_player"`
	Timestamp  string     `json:"timestamp"`
}

type PlayerMove struct {
	Type      string    `json:"type"`
	GameID    uuid.UUID `json:"game_id"`
	Move      MoveInfo  `json:"move"`
	FromUser  uuid.UUID `json:"from_user"`
	Timestamp string    `json:"timestamp"`
}

// NewPlayerMove builds the player_move frame. next_player is null once the game ended.
func NewPlayerMove(gameID uuid.UUID, mv game.Move, finished bool) PlayerMove {
	next := mv.Color.Opponent()
	if finished {
		next = game.Empty
	}
	return PlayerMove{
		Type:   TypePlayerMove,
		GameID: gameID,
		Move: MoveInfo{
			Row:        mv.Row,
			Col:        mv.Col,
			Color:      mv.Color,
			Seq:        mv.Seq,
			NextPlayer: next,
			Timestamp:  FormatTime(mv.Timestamp),
		},
		FromUser:  mv.UserID,
		Timestamp: Now(),
	}
}

type GameEnd struct {
	Type     string     `json:"type"`
	GameID   uuid.UUID  `json:"game_id"`
	Winner   game.Color `json:"winner"`
	WinnerID *uuid.UUID `json:"winner_id,omitempty"`
	Draw     bool       `json:"draw"`
	Reason   string     `json:"reason"`
	Players  game.Seats `json:"players"`
}

func NewGameEnd(gameID uuid.UUID, o game.Outcome, seats game.Seats) GameEnd {
	end := GameEnd{
		Type:    TypeGameEnd,
		GameID:  gameID,
		Winner:  o.Winner,
		Draw:    o.Draw,
		Reason:  o.Reason,
		Players: seats,
	}
	if p := seats.Get(o.Winner); p != nil {
		id := p.ID
		end.WinnerID = &id
	}
	return end
}

type Pong struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

func NewPong() Pong {
	return Pong{Type: TypePong, Timestamp: Now()}
}

type PlayerDisconnected struct {
	Type     string    `json:"type"`
	GameID   uuid.UUID `json:"game_id"`
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Message  string    `json:"message"`
}

func NewPlayerDisconnected(gameID uuid.UUID, u models.UserRef) PlayerDisconnected {
	return PlayerDisconnected{
		Type:     TypePlayerDisconnected,
		GameID:   gameID,
		UserID:   u.ID,
		Username: u.Username,
		Message:  u.Username + " disconnected",
	}
}
