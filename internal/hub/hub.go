// Package hub owns the process-wide registries and routes connection events
// between them. It is constructed once in main and handed to the handlers.
package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/piloto-life/Gomoku/internal/game"
	"github.com/piloto-life/Gomoku/internal/lobby"
	"github.com/piloto-life/Gomoku/internal/models"
	"github.com/piloto-life/Gomoku/internal/protocol"
	"github.com/piloto-life/Gomoku/internal/room"
	"github.com/piloto-life/Gomoku/internal/session"
	"github.com/piloto-life/Gomoku/internal/ws"
	"github.com/sirupsen/logrus"
)

// ActionSink receives the action log. cache.Publisher implements it.
type ActionSink interface {
	Publish(ctx context.Context, rec models.GameActionRecord) error
}

// ResultRecorder stores the result of a finished game. database.Store implements it.
type ResultRecorder interface {
	RecordResult(ctx context.Context, snap game.Snapshot) error
}

type Options struct {
	// ForfeitOnDisconnect ends an active game in favor of the opponent when a
	// seated player's game connection drops.
	ForfeitOnDisconnect bool
	// PersistTimeout bounds storage calls made outside a request context.
	PersistTimeout time.Duration
	// AbandonAfter is how long a waiting or active game may sit with an empty
	// room before it is finished as abandoned.
	AbandonAfter time.Duration
}

const DefaultAbandonAfter = 2 * time.Minute

// Stats is the lobby overview served over HTTP.
type Stats struct {
	OnlinePlayers    int `json:"online_players"`
	WaitingQueueSize int `json:"waiting_queue_size"`
	ActiveGames      int `json:"active_games"`
	WaitingGames     int `json:"waiting_games"`
	InGamePlayers    int `json:"in_game_players"`
	OpenRooms        int `json:"open_rooms"`
}

type Hub struct {
	Lobby         *lobby.Lobby
	LobbySessions *session.Registry
	GameSessions  *session.Registry
	Rooms         *room.Registry
	Games         *game.GameStore

	actions ActionSink
	results ResultRecorder
	opts    Options
	logger  *logrus.Logger

	idleMu sync.Mutex
	idle   map[uuid.UUID]*time.Timer // active games whose room is empty
}

// New wires the registries together. actions and results may be nil.
func New(games *game.GameStore, actions ActionSink, results ResultRecorder, opts Options, logger *logrus.Logger) *Hub {
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 5 * time.Second
	}
	if opts.AbandonAfter <= 0 {
		opts.AbandonAfter = DefaultAbandonAfter
	}
	h := &Hub{
		LobbySessions: session.NewRegistry("lobby", logger),
		GameSessions:  session.NewRegistry("game", logger),
		Rooms:         room.NewRegistry(logger),
		Games:         games,
		actions:       actions,
		results:       results,
		opts:          opts,
		logger:        logger,
		idle:          make(map[uuid.UUID]*time.Timer),
	}
	h.Lobby = lobby.New(games, h.isPlaying, logger)

	h.Lobby.OnDead = h.HandleDeadConnection
	h.Lobby.OnGameStart = h.onGameStart
	h.LobbySessions.OnDead = h.HandleDeadConnection
	h.GameSessions.OnDead = h.HandleDeadConnection
	h.GameSessions.OnReplace = func(old ws.Conn) {
		h.Rooms.Leave(old.GameID(), old)
	}
	// room broadcasts run inside the session lock; cleanup may need that lock
	h.Rooms.OnDead = func(c ws.Conn) {
		go h.HandleDeadConnection(c)
	}
	games.OnLoad = func(s *game.Session) {
		s.Emit = h.onGameEvent
	}
	return h
}

// ConnectLobby registers a lobby connection and announces the user. Presence is
// refreshed before the old connection is evicted so a reconnecting user never
// drops out of the queue.
func (h *Hub) ConnectLobby(profile models.UserRef, conn ws.Conn) {
	h.Lobby.Join(profile, conn)
	h.LobbySessions.Register(profile.ID, conn)
}

// JoinQueue queues the connection's user and reports failures back to it. Frames
// still arriving on a replaced connection are ignored.
func (h *Hub) JoinQueue(ctx context.Context, conn ws.Conn) {
	if !h.LobbySessions.IsCurrent(conn) {
		return
	}
	err := h.Lobby.JoinQueue(ctx, conn.UserID())
	switch {
	case err == nil:
	case errors.Is(err, lobby.ErrAlreadyPlaying):
		h.send(conn, protocol.NewError(err.Error(), "already_playing"))
	case errors.Is(err, lobby.ErrNotInLobby):
		h.send(conn, protocol.NewError(err.Error(), "not_in_lobby"))
	default:
		// the user stays queued; pairing is retried on the next arrival
		h.send(conn, protocol.NewError("could not start game, still in queue", game.ErrorCode(err)))
	}
}

// LobbyChat relays a chat line to everyone in the lobby.
func (h *Hub) LobbyChat(conn ws.Conn, text string) {
	if !h.LobbySessions.IsCurrent(conn) {
		return
	}
	profile, ok := h.Lobby.Lookup(conn.UserID())
	if !ok || text == "" {
		return
	}
	h.Lobby.Broadcast(protocol.NewChatMessage(profile, text), uuid.Nil)
}

// AuthorizeGame returns the session for a game connection. The user must hold a seat.
func (h *Hub) AuthorizeGame(ctx context.Context, gameID, userID uuid.UUID) (*game.Session, error) {
	s, err := h.Games.Get(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if !s.HasPlayer(userID) {
		return nil, game.ErrNotAPlayer
	}
	return s, nil
}

// JoinGameRoom registers a game connection, adds it to the room and sends the
// greeting plus the full state.
func (h *Hub) JoinGameRoom(s *game.Session, profile models.UserRef, conn ws.Conn) {
	h.GameSessions.Register(profile.ID, conn)
	h.Rooms.Join(s.ID(), conn)
	h.stopIdle(s.ID())

	h.logger.WithFields(logrus.Fields{
		"game_id": s.ID(),
		"user_id": profile.ID,
	}).Info("player joined game room")

	if !h.send(conn, protocol.NewConnected(s.ID(), profile)) {
		return
	}
	h.send(conn, protocol.NewGameState(s.Snapshot()))
}

// HandleMove runs the move pipeline for a game connection. Validation errors go
// back to the sender only. Storage failures after a successful move are logged
// and reported to the action log; play continues from memory.
func (h *Hub) HandleMove(ctx context.Context, conn ws.Conn, row, col int) error {
	s, err := h.Games.Get(ctx, conn.GameID())
	if err != nil {
		h.send(conn, protocol.NewError(err.Error(), game.ErrorCode(err)))
		return err
	}

	res, err := s.ApplyMove(conn.UserID(), row, col)
	if err != nil {
		h.send(conn, protocol.NewError(err.Error(), game.ErrorCode(err)))
		return err
	}

	h.persist(ctx, s, res.Move.Seq)
	h.publish(ctx, models.GameActionRecord{
		GameID:      s.ID(),
		ActionIndex: res.Move.Seq,
		ActorUserID: conn.UserID(),
		ActionType:  models.ActionMove,
		ActionPayload: map[string]any{
			"row":   res.Move.Row,
			"col":   res.Move.Col,
			"color": res.Move.Color.String(),
		},
		Timestamp: res.Move.Timestamp.UnixMilli(),
	})
	if res.Outcome != nil {
		h.finish(ctx, res.Snapshot, conn.UserID())
	}
	return nil
}

// GameChat relays a chat line to everyone in the connection's room.
func (h *Hub) GameChat(conn ws.Conn, profile models.UserRef, text string) {
	if text == "" {
		return
	}
	h.Rooms.Broadcast(conn.GameID(), protocol.NewChatMessage(profile, text), uuid.Nil)
}

// CreateWaitingGame opens a non-matchmade game with the creator seated black. The
// creator leaves the matchmaking queue and cannot rejoin it while the game is live.
func (h *Hub) CreateWaitingGame(ctx context.Context, creator models.UserRef) (*game.Session, error) {
	var s *game.Session
	err := h.Lobby.Claim(creator.ID, func() error {
		var err error
		s, err = h.Games.CreateWaiting(ctx, creator)
		return err
	})
	if err != nil {
		return nil, err
	}
	h.watchIdle(s)
	return s, nil
}

// JoinWaitingGame seats the user in the free seat of a waiting game. Once both
// seats are filled the game starts and both players are told in the lobby.
func (h *Hub) JoinWaitingGame(ctx context.Context, gameID uuid.UUID, user models.UserRef) (*game.Session, game.Color, error) {
	s, err := h.Games.Get(ctx, gameID)
	if err != nil {
		return nil, game.Empty, err
	}

	var color game.Color
	err = h.Lobby.Claim(user.ID, func() error {
		var err error
		color, err = s.Join(user)
		return err
	})
	if err != nil {
		return nil, game.Empty, err
	}
	h.persist(ctx, s, 0)

	seats := s.Players()
	if s.Status() == game.StatusActive && seats.Black != nil && seats.White != nil {
		h.Lobby.LeaveQueue(seats.Black.ID)
		h.Lobby.LeaveQueue(seats.White.ID)
		_ = h.LobbySessions.Send(seats.Black.ID, protocol.NewGameStart(s.ID(), *seats.Black, *seats.White, game.Black))
		_ = h.LobbySessions.Send(seats.White.ID, protocol.NewGameStart(s.ID(), *seats.Black, *seats.White, game.White))
		h.onGameStart(s)
	}
	return s, color, nil
}

// HandleDeadConnection is the single cleanup path for a connection that closed or
// failed a send. It is safe to call more than once for the same connection.
func (h *Hub) HandleDeadConnection(conn ws.Conn) {
	conn.Close(websocket.StatusGoingAway, "connection lost")
	if conn.GameID() == uuid.Nil {
		h.LobbySessions.Unregister(conn.UserID(), conn)
		h.Lobby.Leave(conn)
		return
	}

	gameID := conn.GameID()
	userID := conn.UserID()
	current := h.GameSessions.Unregister(userID, conn)
	h.Rooms.Leave(gameID, conn)

	s, ok := h.Games.Lookup(gameID)
	if !ok {
		return
	}
	if current {
		if color, seated := s.ColorOf(userID); seated {
			if p := s.Players().Get(color); p != nil {
				h.Rooms.Broadcast(gameID, protocol.NewPlayerDisconnected(gameID, *p), userID)
			}
			h.logger.WithFields(logrus.Fields{"game_id": gameID, "user_id": userID}).Info("player disconnected from game")
			if h.opts.ForfeitOnDisconnect {
				h.forfeit(s, userID)
			}
		}
	}
	if h.Rooms.Size(gameID) > 0 {
		return
	}
	switch s.Status() {
	case game.StatusFinished:
		h.Games.Delete(gameID)
	case game.StatusWaiting, game.StatusActive:
		h.watchIdle(s)
	}
}

// Stats summarizes presence, queue and live games.
func (h *Hub) Stats() Stats {
	active, waiting := h.Games.Counts()
	return Stats{
		OnlinePlayers:    h.Lobby.Count(),
		WaitingQueueSize: h.Lobby.QueueLen(),
		ActiveGames:      active,
		WaitingGames:     waiting,
		InGamePlayers:    h.GameSessions.Len(),
		OpenRooms:        h.Rooms.Rooms(),
	}
}

// CloseAll closes every registered connection and stops pending abandonment
// timers. Used during shutdown.
func (h *Hub) CloseAll(reason string) {
	h.idleMu.Lock()
	for id, t := range h.idle {
		t.Stop()
		delete(h.idle, id)
	}
	h.idleMu.Unlock()

	for _, reg := range []*session.Registry{h.LobbySessions, h.GameSessions} {
		for _, id := range reg.Users() {
			if c, ok := reg.Get(id); ok {
				c.Close(websocket.StatusGoingAway, reason)
			}
		}
	}
}

func (h *Hub) forfeit(s *game.Session, userID uuid.UUID) {
	if _, err := s.Forfeit(userID); err != nil {
		// already finished, nothing to do
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.PersistTimeout)
	defer cancel()

	snap := s.Snapshot()
	h.persist(ctx, s, len(snap.Moves))
	h.finish(ctx, snap, userID)
}

// watchIdle arms the abandonment timer of a live game whose room is empty.
// Arming again restarts the wait.
func (h *Hub) watchIdle(s *game.Session) {
	id := s.ID()
	h.idleMu.Lock()
	defer h.idleMu.Unlock()
	if old, ok := h.idle[id]; ok {
		old.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(h.opts.AbandonAfter, func() {
		h.idleMu.Lock()
		if h.idle[id] != t {
			h.idleMu.Unlock()
			return
		}
		delete(h.idle, id)
		h.idleMu.Unlock()
		h.abandonIfIdle(s)
	})
	h.idle[id] = t
}

func (h *Hub) stopIdle(gameID uuid.UUID) {
	h.idleMu.Lock()
	defer h.idleMu.Unlock()
	if t, ok := h.idle[gameID]; ok {
		t.Stop()
		delete(h.idle, gameID)
	}
}

// abandonIfIdle finishes s without a winner when nobody came back to its room.
func (h *Hub) abandonIfIdle(s *game.Session) {
	if h.Rooms.Size(s.ID()) > 0 {
		return
	}
	if _, err := s.Abandon(); err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.PersistTimeout)
	defer cancel()

	snap := s.Snapshot()
	h.persist(ctx, s, len(snap.Moves))
	h.finish(ctx, snap, uuid.Nil)
	if h.Rooms.Size(s.ID()) == 0 {
		h.Games.Delete(s.ID())
	}
}

// finish records the end of a game in the action log and the rating store.
// Abandoned games are not rated.
func (h *Hub) finish(ctx context.Context, snap game.Snapshot, actor uuid.UUID) {
	if snap.Outcome == nil {
		return
	}
	payload := map[string]any{
		"reason": snap.Outcome.Reason,
		"draw":   snap.Outcome.Draw,
	}
	if snap.Outcome.Winner != game.Empty {
		payload["winner"] = snap.Outcome.Winner.String()
	}
	h.publish(ctx, models.GameActionRecord{
		GameID:        snap.ID,
		ActionIndex:   len(snap.Moves) + 1,
		ActorUserID:   actor,
		ActionType:    models.ActionGameEnd,
		ActionPayload: payload,
		Timestamp:     snap.UpdatedAt.UnixMilli(),
	})

	log := h.logger.WithFields(logrus.Fields{
		"game_id": snap.ID,
		"reason":  snap.Outcome.Reason,
	})
	log.Info("game finished")

	if h.results == nil || snap.Mode != game.ModeOnline || snap.Outcome.Reason == game.ReasonAbandoned {
		return
	}
	if err := h.results.RecordResult(ctx, snap); err != nil {
		log.Errorf("failed to record game result: %v", err)
	}
}

func (h *Hub) persist(ctx context.Context, s *game.Session, seq int) {
	err := h.Games.Save(ctx, s)
	if err == nil {
		return
	}
	h.logger.WithFields(logrus.Fields{
		"game_id": s.ID(),
		"seq":     seq,
	}).Errorf("failed to persist game, continuing from memory: %v", err)
	h.publish(ctx, models.GameActionRecord{
		GameID:        s.ID(),
		ActionIndex:   seq,
		ActionType:    models.ActionStorageError,
		ActionPayload: map[string]any{"error": err.Error()},
		Timestamp:     time.Now().UnixMilli(),
	})
}

func (h *Hub) publish(ctx context.Context, rec models.GameActionRecord) {
	if h.actions == nil {
		return
	}
	if err := h.actions.Publish(ctx, rec); err != nil {
		h.logger.WithFields(logrus.Fields{
			"game_id":     rec.GameID,
			"action_type": rec.ActionType,
		}).Warnf("failed to publish game action: %v", err)
	}
}

func (h *Hub) onGameStart(s *game.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.PersistTimeout)
	defer cancel()

	seats := s.Players()
	payload := map[string]any{}
	if seats.Black != nil {
		payload["black"] = seats.Black.ID.String()
	}
	if seats.White != nil {
		payload["white"] = seats.White.ID.String()
	}
	if h.Rooms.Size(s.ID()) == 0 {
		h.watchIdle(s)
	}
	h.publish(ctx, models.GameActionRecord{
		GameID:        s.ID(),
		ActionIndex:   0,
		ActionType:    models.ActionGameStart,
		ActionPayload: payload,
		Timestamp:     time.Now().UnixMilli(),
	})
}

// onGameEvent runs under the session lock, so it only enqueues room broadcasts.
func (h *Hub) onGameEvent(ev game.Event) {
	switch ev.Type {
	case game.EventMove:
		if ev.Move != nil {
			h.Rooms.Broadcast(ev.GameID, protocol.NewPlayerMove(ev.GameID, *ev.Move, ev.Final), uuid.Nil)
		}
	case game.EventEnd:
		if ev.Outcome != nil {
			h.Rooms.Broadcast(ev.GameID, protocol.NewGameEnd(ev.GameID, *ev.Outcome, ev.Players), uuid.Nil)
		}
	case game.EventJoin:
		if ev.State != nil {
			h.Rooms.Broadcast(ev.GameID, protocol.NewGameState(*ev.State), uuid.Nil)
		}
	}
}

// isPlaying reports whether the user holds a seat in a waiting or active game.
func (h *Hub) isPlaying(userID uuid.UUID) bool {
	_, ok := h.Games.LiveGameFor(userID)
	return ok
}

// send delivers msg to one connection and runs cleanup when the send fails.
func (h *Hub) send(conn ws.Conn, msg any) bool {
	if err := conn.Send(msg); err != nil {
		h.HandleDeadConnection(conn)
		return false
	}
	return true
}
