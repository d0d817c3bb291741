// internal/game/session.go
package game

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/piloto-life/Gomoku/internal/models"
)

// Mode is how a game was created. Only online games go through matchmaking.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeAI     Mode = "ai"
	ModeOnline Mode = "online"
)

// Status only ever moves forward: waiting -> active -> finished.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// Outcome reasons.
const (
	ReasonFive      = "five_in_a_row"
	ReasonBoardFull = "board_full"
	ReasonForfeit   = "forfeit"
	ReasonAbandoned = "abandoned"
)

// Move is one stone placement. Seq starts at 1.
type Move struct {
	Row       int       `json:"row"`
	Col       int       `json:"col"`
	Color     Color     `json:"color"`
	Seq       int       `json:"seq"`
	UserID    uuid.UUID `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Outcome describes how a finished game ended. Winner is Empty for a draw and for
// an abandoned game.
type Outcome struct {
	Winner Color  `json:"winner"`
	Draw   bool   `json:"draw"`
	Reason string `json:"reason"`
}

// Seats holds the players keyed by color.
type Seats struct {
	Black *models.UserRef `json:"black"`
	White *models.UserRef `json:"white"`
}

func (s Seats) clone() Seats {
	var cp Seats
	if s.Black != nil {
		b := *s.Black
		cp.Black = &b
	}
	if s.White != nil {
		w := *s.White
		cp.White = &w
	}
	return cp
}

// Get returns the player seated as c.
func (s Seats) Get(c Color) *models.UserRef {
	switch c {
	case Black:
		return s.Black
	case White:
		return s.White
	}
	return nil
}

// Snapshot is a detached copy of a session's state.
type Snapshot struct {
	ID          uuid.UUID `json:"id"`
	Mode        Mode      `json:"mode"`
	Status      Status    `json:"status"`
	Board       *Board    `json:"board"`
	CurrentTurn Color     `json:"current_turn"`
	Players     Seats     `json:"players"`
	Moves       []Move    `json:"moves"`
	Outcome     *Outcome  `json:"outcome,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EventType identifies a state change emitted by a session.
type EventType string

const (
	EventJoin EventType = "join"
	EventMove EventType = "move"
	EventEnd  EventType = "end"
)

// Event is handed to Session.Emit while the session lock is held, so events for one
// session are delivered in the order the state changed.
type Event struct {
	Type    EventType
	GameID  uuid.UUID
	Move    *Move
	Outcome *Outcome
	Players Seats
	// Final is set on a move event that ended the game.
	Final bool
	// State is the snapshot after a join.
	State *Snapshot
}

// MoveResult is returned by a successful ApplyMove.
type MoveResult struct {
	Move     Move
	Snapshot Snapshot
	Outcome  *Outcome
}

// Session is the state machine of one game. All methods are safe for concurrent use.
type Session struct {
	mu sync.Mutex

	id      uuid.UUID
	mode    Mode
	status  Status
	board   *Board
	turn    Color
	players Seats
	moves   []Move
	outcome *Outcome

	createdAt time.Time
	updatedAt time.Time

	// Emit, when set, receives every state change. Assign it before the session is shared.
	Emit func(Event)
}

// NewSession creates a waiting session with no players.
func NewSession(id uuid.UUID, mode Mode, size int) *Session {
	now := time.Now().UTC()
	return &Session{
		id:        id,
		mode:      mode,
		status:    StatusWaiting,
		board:     NewBoard(size),
		turn:      Black,
		createdAt: now,
		updatedAt: now,
	}
}

// NewOnlineSession creates an active session for a matched pair. black moves first.
func NewOnlineSession(id uuid.UUID, black, white models.UserRef, size int) *Session {
	s := NewSession(id, ModeOnline, size)
	s.players = Seats{Black: &black, White: &white}
	s.status = StatusActive
	return s
}

// SessionFromSnapshot rebuilds a session loaded from storage. A snapshot without a
// board gets a fresh board of size with the recorded moves replayed onto it.
func SessionFromSnapshot(snap Snapshot, size int) *Session {
	moves := make([]Move, len(snap.Moves))
	copy(moves, snap.Moves)

	var board *Board
	if snap.Board != nil && snap.Board.Size() > 0 {
		board = snap.Board.Clone()
	} else {
		board = NewBoard(size)
		for _, mv := range moves {
			if board.InBounds(mv.Row, mv.Col) {
				board.Set(mv.Row, mv.Col, mv.Color)
			}
		}
	}
	var outcome *Outcome
	if snap.Outcome != nil {
		o := *snap.Outcome
		outcome = &o
	}
	return &Session{
		id:        snap.ID,
		mode:      snap.Mode,
		status:    snap.Status,
		board:     board,
		turn:      snap.CurrentTurn,
		players:   snap.Players.clone(),
		moves:     moves,
		outcome:   outcome,
		createdAt: snap.CreatedAt,
		updatedAt: snap.UpdatedAt,
	}
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) Mode() Mode { return s.mode }

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Players returns a copy of the seats.
func (s *Session) Players() Seats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.players.clone()
}

// ColorOf returns the color userID is seated as.
func (s *Session) ColorOf(userID uuid.UUID) (Color, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.colorOfUnsafe(userID)
	return c, c != Empty
}

// HasPlayer reports whether userID holds a seat.
func (s *Session) HasPlayer(userID uuid.UUID) bool {
	_, ok := s.ColorOf(userID)
	return ok
}

// colorOfUnsafe assumes the lock is held. A user seated on both sides (local play)
// always plays the color whose turn it is.
func (s *Session) colorOfUnsafe(userID uuid.UUID) Color {
	isBlack := s.players.Black != nil && s.players.Black.ID == userID
	isWhite := s.players.White != nil && s.players.White.ID == userID
	switch {
	case isBlack && isWhite:
		return s.turn
	case isBlack:
		return Black
	case isWhite:
		return White
	}
	return Empty
}

// Seat places the creator of a non-matchmade game in the given color.
func (s *Session) Seat(user models.UserRef, c Color) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusWaiting {
		return ErrInvalidState
	}
	if s.colorOfUnsafe(user.ID) != Empty {
		return ErrAlreadySeated
	}
	switch c {
	case Black:
		if s.players.Black != nil {
			return ErrSeatTaken
		}
		s.players.Black = &user
	case White:
		if s.players.White != nil {
			return ErrSeatTaken
		}
		s.players.White = &user
	default:
		return ErrInvalidState
	}
	s.updatedAt = time.Now().UTC()
	return nil
}

// Join fills the free seat of a waiting session and starts the game.
func (s *Session) Join(user models.UserRef) (Color, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.colorOfUnsafe(user.ID) != Empty {
		return Empty, ErrAlreadySeated
	}
	if s.status != StatusWaiting {
		if s.players.Black != nil && s.players.White != nil {
			return Empty, ErrSeatTaken
		}
		return Empty, ErrInvalidState
	}

	var seat Color
	switch {
	case s.players.Black == nil:
		s.players.Black = &user
		seat = Black
	case s.players.White == nil:
		s.players.White = &user
		seat = White
	default:
		return Empty, ErrSeatTaken
	}

	if s.players.Black != nil && s.players.White != nil {
		s.status = StatusActive
		s.turn = Black
	}
	s.updatedAt = time.Now().UTC()
	snap := s.snapshotUnsafe()
	s.emitUnsafe(Event{Type: EventJoin, GameID: s.id, Players: snap.Players, State: &snap})
	return seat, nil
}

// ApplyMove validates and plays a stone for userID. Every check runs before the
// board is touched, so a returned error means nothing changed.
func (s *Session) ApplyMove(userID uuid.UUID, row, col int) (*MoveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusActive {
		return nil, ErrInvalidState
	}
	if !s.board.InBounds(row, col) {
		return nil, ErrOutOfBounds
	}
	if s.board.At(row, col) != Empty {
		return nil, ErrCellOccupied
	}
	color := s.colorOfUnsafe(userID)
	if color == Empty {
		return nil, ErrNotAPlayer
	}
	if color != s.turn {
		return nil, ErrNotYourTurn
	}

	now := time.Now().UTC()
	s.board.Set(row, col, color)
	mv := Move{
		Row:       row,
		Col:       col,
		Color:     color,
		Seq:       len(s.moves) + 1,
		UserID:    userID,
		Timestamp: now,
	}
	s.moves = append(s.moves, mv)
	s.turn = color.Opponent()
	s.updatedAt = now

	if winner := DetectWin(s.board, row, col); winner != Empty {
		s.finishUnsafe(&Outcome{Winner: winner, Reason: ReasonFive})
	} else if s.board.Full() {
		s.finishUnsafe(&Outcome{Draw: true, Reason: ReasonBoardFull})
	}

	res := &MoveResult{Move: mv, Snapshot: s.snapshotUnsafe(), Outcome: s.outcome}
	s.emitUnsafe(Event{Type: EventMove, GameID: s.id, Move: &mv, Players: s.players.clone(), Final: s.outcome != nil})
	if s.outcome != nil {
		s.emitUnsafe(Event{Type: EventEnd, GameID: s.id, Outcome: s.outcome, Players: s.players.clone()})
	}
	return res, nil
}

// Forfeit ends an active game in favor of userID's opponent.
func (s *Session) Forfeit(userID uuid.UUID) (*Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusActive {
		return nil, ErrInvalidState
	}
	color := s.colorOfUnsafe(userID)
	if color == Empty {
		return nil, ErrNotAPlayer
	}
	s.updatedAt = time.Now().UTC()
	s.finishUnsafe(&Outcome{Winner: color.Opponent(), Reason: ReasonForfeit})
	s.emitUnsafe(Event{Type: EventEnd, GameID: s.id, Outcome: s.outcome, Players: s.players.clone()})
	return s.outcome, nil
}

// Abandon ends a waiting or active game without a winner. Used when nobody is
// left in the game room.
func (s *Session) Abandon() (*Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusFinished {
		return nil, ErrInvalidState
	}
	s.updatedAt = time.Now().UTC()
	s.finishUnsafe(&Outcome{Reason: ReasonAbandoned})
	s.emitUnsafe(Event{Type: EventEnd, GameID: s.id, Outcome: s.outcome, Players: s.players.clone()})
	return s.outcome, nil
}

// Snapshot returns a deep copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotUnsafe()
}

func (s *Session) finishUnsafe(o *Outcome) {
	s.status = StatusFinished
	s.outcome = o
}

func (s *Session) emitUnsafe(ev Event) {
	if s.Emit != nil {
		s.Emit(ev)
	}
}

func (s *Session) snapshotUnsafe() Snapshot {
	moves := make([]Move, len(s.moves))
	copy(moves, s.moves)
	var outcome *Outcome
	if s.outcome != nil {
		o := *s.outcome
		outcome = &o
	}
	return Snapshot{
		ID:          s.id,
		Mode:        s.mode,
		Status:      s.status,
		Board:       s.board.Clone(),
		CurrentTurn: s.turn,
		Players:     s.players.clone(),
		Moves:       moves,
		Outcome:     outcome,
		CreatedAt:   s.createdAt,
		UpdatedAt:   s.updatedAt,
	}
}
