// Package room groups game connections by game id for broadcast.
package room

import (
	"sync"

	"github.com/google/uuid"
	"github.com/piloto-life/Gomoku/internal/ws"
	"github.com/sirupsen/logrus"
)

type Registry struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]map[uuid.UUID]ws.Conn // game id -> conn id -> conn

	logger *logrus.Logger

	// OnDead is called, outside the lock, for each connection pruned by Broadcast.
	OnDead func(conn ws.Conn)
}

func NewRegistry(logger *logrus.Logger) *Registry {
	return &Registry{
		rooms:  make(map[uuid.UUID]map[uuid.UUID]ws.Conn),
		logger: logger,
	}
}

// Join adds conn to the room. Joining twice is a no-op.
func (r *Registry) Join(gameID uuid.UUID, conn ws.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[gameID]
	if !ok {
		members = make(map[uuid.UUID]ws.Conn)
		r.rooms[gameID] = members
	}
	members[conn.ID()] = conn
}

// Leave removes conn and drops the room once it is empty. It reports whether conn
// was a member and whether the room is now gone.
func (r *Registry) Leave(gameID uuid.UUID, conn ws.Conn) (removed, emptied bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveUnsafe(gameID, conn)
}

func (r *Registry) leaveUnsafe(gameID uuid.UUID, conn ws.Conn) (removed, emptied bool) {
	members, ok := r.rooms[gameID]
	if !ok {
		return false, false
	}
	if _, ok := members[conn.ID()]; !ok {
		return false, false
	}
	delete(members, conn.ID())
	if len(members) == 0 {
		delete(r.rooms, gameID)
		return true, true
	}
	return true, false
}

// Size is the number of connections in the room.
func (r *Registry) Size(gameID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[gameID])
}

// Rooms is the number of non-empty rooms.
func (r *Registry) Rooms() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// Broadcast sends msg to every connection in the room except those owned by
// excludeUser. Connections that fail are removed from the room and passed to OnDead.
func (r *Registry) Broadcast(gameID uuid.UUID, msg any, excludeUser uuid.UUID) int {
	r.mu.Lock()
	var dead []ws.Conn
	sent := 0
	for _, c := range r.rooms[gameID] {
		if excludeUser != uuid.Nil && c.UserID() == excludeUser {
			continue
		}
		if err := c.Send(msg); err != nil {
			r.logger.WithFields(logrus.Fields{
				"game_id": gameID,
				"user_id": c.UserID(),
			}).Warnf("room send failed, pruning connection: %v", err)
			dead = append(dead, c)
			continue
		}
		sent++
	}
	for _, c := range dead {
		r.leaveUnsafe(gameID, c)
	}
	r.mu.Unlock()

	if r.OnDead != nil {
		for _, c := range dead {
			r.OnDead(c)
		}
	}
	return sent
}
