// Package session keeps at most one live connection per user for a channel.
package session

import (
	"errors"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/piloto-life/Gomoku/internal/protocol"
	"github.com/piloto-life/Gomoku/internal/ws"
	"github.com/sirupsen/logrus"
)

// ReplacedCode closes a connection that was superseded by a newer one for the same user.
const ReplacedCode websocket.StatusCode = 4000

// ErrNotConnected is returned by Send when the user has no live connection.
var ErrNotConnected = errors.New("user is not connected")

// Registry maps user ids to their current connection. One instance exists per channel
// kind (lobby, game).
type Registry struct {
	mu    sync.Mutex
	name  string
	conns map[uuid.UUID]ws.Conn

	logger *logrus.Logger

	// OnReplace is called, outside the lock, with a connection that Register evicted.
	OnReplace func(old ws.Conn)
	// OnDead is called, outside the lock, for a connection whose send failed.
	OnDead func(conn ws.Conn)
}

func NewRegistry(name string, logger *logrus.Logger) *Registry {
	return &Registry{
		name:   name,
		conns:  make(map[uuid.UUID]ws.Conn),
		logger: logger,
	}
}

// Register makes conn the user's current connection. A previous connection is told
// it was replaced, closed with ReplacedCode and returned.
func (r *Registry) Register(userID uuid.UUID, conn ws.Conn) ws.Conn {
	r.mu.Lock()
	old, exists := r.conns[userID]
	r.conns[userID] = conn
	r.mu.Unlock()

	if !exists || old == conn {
		return nil
	}

	r.logger.WithFields(logrus.Fields{
		"registry": r.name,
		"user_id":  userID,
		"old_conn": old.ID(),
		"new_conn": conn.ID(),
	}).Info("replacing existing session")

	_ = old.Send(protocol.NewSessionReplaced())
	old.Close(ReplacedCode, "session replaced")
	if r.OnReplace != nil {
		r.OnReplace(old)
	}
	return old
}

// Unregister removes the mapping only if it still points at conn, so a replaced
// connection unwinding late cannot evict its successor.
func (r *Registry) Unregister(userID uuid.UUID, conn ws.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.conns[userID]
	if !ok || cur != conn {
		return false
	}
	delete(r.conns, userID)
	return true
}

// Get returns the user's current connection.
func (r *Registry) Get(userID uuid.UUID) (ws.Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[userID]
	return c, ok
}

// IsCurrent reports whether conn is its user's registered connection.
func (r *Registry) IsCurrent(conn ws.Conn) bool {
	cur, ok := r.Get(conn.UserID())
	return ok && cur == conn
}

// Len is the number of connected users.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Users returns the ids of connected users.
func (r *Registry) Users() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uuid.UUID, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	return out
}

// Send delivers msg to the user's current connection. A transport failure closes the
// connection and hands it to OnDead before the error is returned.
func (r *Registry) Send(userID uuid.UUID, msg any) error {
	conn, ok := r.Get(userID)
	if !ok {
		return ErrNotConnected
	}
	if err := conn.Send(msg); err != nil {
		r.dead(conn, err)
		return err
	}
	return nil
}

func (r *Registry) dead(conn ws.Conn, err error) {
	r.logger.WithFields(logrus.Fields{
		"registry": r.name,
		"user_id":  conn.UserID(),
		"conn_id":  conn.ID(),
	}).Warnf("send failed, dropping connection: %v", err)
	conn.Close(websocket.StatusGoingAway, "send failed")
	if r.OnDead != nil {
		r.OnDead(conn)
	}
}
