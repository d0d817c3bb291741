// internal/lobby/lobby.go
package lobby

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/piloto-life/Gomoku/internal/game"
	"github.com/piloto-life/Gomoku/internal/models"
	"github.com/piloto-life/Gomoku/internal/protocol"
	"github.com/piloto-life/Gomoku/internal/ws"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotInLobby     = errors.New("user is not in the lobby")
	ErrAlreadyPlaying = errors.New("user is already seated in a live game")
)

// GameCreator creates and persists the session for a matched pair.
type GameCreator interface {
	CreateOnline(ctx context.Context, black, white models.UserRef) (*game.Session, error)
}

// Entry is one user present in the lobby.
type Entry struct {
	Profile  models.UserRef
	Conn     ws.Conn
	JoinedAt time.Time
}

// Lobby tracks presence and the matchmaking queue. Both live under one mutex so a
// departing user leaves presence and queue in a single step that pairing cannot
// observe half-done.
type Lobby struct {
	mu      sync.Mutex
	players map[uuid.UUID]*Entry

	queue  []uuid.UUID
	queued map[uuid.UUID]time.Time

	games  GameCreator
	busy   func(userID uuid.UUID) bool
	logger *logrus.Logger

	// OnDead is called, outside the lock, for connections whose send failed.
	OnDead func(conn ws.Conn)
	// OnGameStart is called, outside the lock, for every session created by pairing.
	OnGameStart func(s *game.Session)
}

// New builds an empty lobby. busy reports whether a user holds a seat in a waiting
// or active game; such users cannot queue.
func New(games GameCreator, busy func(uuid.UUID) bool, logger *logrus.Logger) *Lobby {
	if busy == nil {
		busy = func(uuid.UUID) bool { return false }
	}
	return &Lobby{
		players: make(map[uuid.UUID]*Entry),
		queued:  make(map[uuid.UUID]time.Time),
		games:   games,
		busy:    busy,
		logger:  logger,
	}
}

// Join adds or refreshes the user's presence entry and announces it. A user that
// reconnects keeps its original join time and its place in the queue.
func (l *Lobby) Join(profile models.UserRef, conn ws.Conn) {
	var dead []ws.Conn

	l.mu.Lock()
	if e, ok := l.players[profile.ID]; ok {
		e.Profile = profile
		e.Conn = conn
	} else {
		l.players[profile.ID] = &Entry{Profile: profile, Conn: conn, JoinedAt: time.Now().UTC()}
	}

	if err := conn.Send(protocol.NewConnectionEstablished(profile)); err != nil {
		dead = append(dead, conn)
	}
	dead = append(dead, l.broadcastUnsafe(protocol.NewOnlinePlayers(l.playersUnsafe()), uuid.Nil)...)
	dead = append(dead, l.broadcastUnsafe(protocol.NewPlayerJoined(profile), profile.ID)...)
	if err := conn.Send(protocol.NewQueueUpdate(l.queueUnsafe())); err != nil {
		dead = append(dead, conn)
	}
	l.mu.Unlock()

	l.logger.WithField("user_id", profile.ID).Info("player joined lobby")
	l.reap(dead)
}

// Leave removes the user owning conn from presence and from the queue. It does
// nothing when the presence entry already points at a newer connection.
func (l *Lobby) Leave(conn ws.Conn) bool {
	userID := conn.UserID()
	var dead []ws.Conn

	l.mu.Lock()
	e, ok := l.players[userID]
	if !ok || e.Conn != conn {
		l.mu.Unlock()
		return false
	}
	delete(l.players, userID)
	wasQueued := l.removeFromQueueUnsafe(userID)

	dead = append(dead, l.broadcastUnsafe(protocol.NewPlayerLeft(userID), uuid.Nil)...)
	dead = append(dead, l.broadcastUnsafe(protocol.NewOnlinePlayers(l.playersUnsafe()), uuid.Nil)...)
	if wasQueued {
		dead = append(dead, l.broadcastUnsafe(protocol.NewQueueUpdate(l.queueUnsafe()), uuid.Nil)...)
	}
	l.mu.Unlock()

	l.logger.WithFields(logrus.Fields{"user_id": userID, "was_queued": wasQueued}).Info("player left lobby")
	l.reap(dead)
	return true
}

// Lookup returns the user's profile snapshot.
func (l *Lobby) Lookup(userID uuid.UUID) (models.UserRef, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.players[userID]
	if !ok {
		return models.UserRef{}, false
	}
	return e.Profile, true
}

// Players returns a copy of the presence list, oldest arrival first.
func (l *Lobby) Players() []protocol.PlayerInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.playersUnsafe()
}

// Count is the number of users present.
func (l *Lobby) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.players)
}

// Broadcast sends msg to every present user except exclude.
func (l *Lobby) Broadcast(msg any, exclude uuid.UUID) {
	l.mu.Lock()
	dead := l.broadcastUnsafe(msg, exclude)
	l.mu.Unlock()
	l.reap(dead)
}

func (l *Lobby) playersUnsafe() []protocol.PlayerInfo {
	out := make([]protocol.PlayerInfo, 0, len(l.players))
	for id, e := range l.players {
		_, inQueue := l.queued[id]
		out = append(out, protocol.PlayerInfo{
			ID:       e.Profile.ID,
			Username: e.Profile.Username,
			Rating:   e.Profile.Rating,
			Guest:    e.Profile.Guest,
			JoinedAt: protocol.FormatTime(e.JoinedAt),
			InQueue:  inQueue,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt == out[j].JoinedAt {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].JoinedAt < out[j].JoinedAt
	})
	return out
}

// broadcastUnsafe sends without blocking and returns the connections that failed.
func (l *Lobby) broadcastUnsafe(msg any, exclude uuid.UUID) []ws.Conn {
	var dead []ws.Conn
	for id, e := range l.players {
		if id == exclude {
			continue
		}
		if err := e.Conn.Send(msg); err != nil {
			dead = append(dead, e.Conn)
		}
	}
	return dead
}

func (l *Lobby) reap(dead []ws.Conn) {
	if len(dead) == 0 {
		return
	}
	seen := make(map[uuid.UUID]bool, len(dead))
	for _, c := range dead {
		if seen[c.ID()] {
			continue
		}
		seen[c.ID()] = true
		l.logger.WithField("user_id", c.UserID()).Warn("lobby send failed, dropping connection")
		if l.OnDead != nil {
			l.OnDead(c)
		}
	}
}
