package lobby

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/piloto-life/Gomoku/internal/game"
	"github.com/piloto-life/Gomoku/internal/protocol"
	"github.com/piloto-life/Gomoku/internal/ws"
	"github.com/sirupsen/logrus"
)

// EstimatedWaitPerPlayer is the wait estimate added for every player ahead in the queue.
const EstimatedWaitPerPlayer = 30 * time.Second

// JoinQueue adds the user to the end of the queue and runs pairing. Queuing twice
// is a no-op. A returned error after the user was queued comes from pairing; the
// user stays queued in that case.
func (l *Lobby) JoinQueue(ctx context.Context, userID uuid.UUID) error {
	var dead []ws.Conn

	l.mu.Lock()
	if _, ok := l.queued[userID]; ok {
		l.mu.Unlock()
		return nil
	}
	if _, ok := l.players[userID]; !ok {
		l.mu.Unlock()
		return ErrNotInLobby
	}
	if l.busy(userID) {
		l.mu.Unlock()
		return ErrAlreadyPlaying
	}

	l.queue = append(l.queue, userID)
	l.queued[userID] = time.Now().UTC()
	dead = append(dead, l.broadcastUnsafe(protocol.NewQueueUpdate(l.queueUnsafe()), uuid.Nil)...)

	started, pairDead, err := l.pairUnsafe(ctx)
	dead = append(dead, pairDead...)
	l.mu.Unlock()

	l.reap(dead)
	if l.OnGameStart != nil {
		for _, s := range started {
			l.OnGameStart(s)
		}
	}
	return err
}

// Claim takes the user out of the queue and runs seat under the lobby lock, so
// pairing cannot pick the user while seat places it in another game. It fails
// with ErrAlreadyPlaying, without calling seat, when the user already holds a
// live seat.
func (l *Lobby) Claim(userID uuid.UUID, seat func() error) error {
	l.mu.Lock()
	if l.busy(userID) {
		l.mu.Unlock()
		return ErrAlreadyPlaying
	}
	removed := l.removeFromQueueUnsafe(userID)
	err := seat()
	var dead []ws.Conn
	if removed {
		dead = l.broadcastUnsafe(protocol.NewQueueUpdate(l.queueUnsafe()), uuid.Nil)
	}
	l.mu.Unlock()

	l.reap(dead)
	return err
}

// LeaveQueue removes the user from the queue if present.
func (l *Lobby) LeaveQueue(userID uuid.UUID) bool {
	l.mu.Lock()
	removed := l.removeFromQueueUnsafe(userID)
	var dead []ws.Conn
	if removed {
		dead = l.broadcastUnsafe(protocol.NewQueueUpdate(l.queueUnsafe()), uuid.Nil)
	}
	l.mu.Unlock()

	l.reap(dead)
	return removed
}

// InQueue reports whether the user is waiting to be paired.
func (l *Lobby) InQueue(userID uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.queued[userID]
	return ok
}

// Queue returns the waiting users, oldest first.
func (l *Lobby) Queue() []protocol.QueueEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queueUnsafe()
}

// QueueLen is the number of waiting users.
func (l *Lobby) QueueLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// EstimatedWait is the wait a newly queued player can expect.
func EstimatedWait(queueLen int) time.Duration {
	if queueLen <= 1 {
		return 0
	}
	return time.Duration(queueLen-1) * EstimatedWaitPerPlayer
}

// pairUnsafe pops pairs off the front of the queue while at least two users wait.
// The caller holds l.mu for the whole run, which makes pop-and-create atomic with
// respect to other pairing runs and to Leave.
func (l *Lobby) pairUnsafe(ctx context.Context) ([]*game.Session, []ws.Conn, error) {
	var started []*game.Session
	var dead []ws.Conn

	for len(l.queue) >= 2 {
		p1, p2 := l.queue[0], l.queue[1]
		t1, t2 := l.queued[p1], l.queued[p2]
		l.queue = l.queue[2:]
		delete(l.queued, p1)
		delete(l.queued, p2)

		e1, ok1 := l.players[p1]
		e2, ok2 := l.players[p2]
		if !ok1 || !ok2 {
			// keep the survivor's priority and stop this attempt
			if ok2 {
				l.requeueFrontUnsafe(p2, t2)
			}
			if ok1 {
				l.requeueFrontUnsafe(p1, t1)
			}
			l.logger.WithFields(logrus.Fields{"p1": p1, "p2": p2}).Warn("pairing aborted, player no longer present")
			dead = append(dead, l.broadcastUnsafe(protocol.NewQueueUpdate(l.queueUnsafe()), uuid.Nil)...)
			return started, dead, nil
		}

		s, err := l.games.CreateOnline(ctx, e1.Profile, e2.Profile)
		if err != nil {
			l.requeueFrontUnsafe(p2, t2)
			l.requeueFrontUnsafe(p1, t1)
			l.logger.WithFields(logrus.Fields{"p1": p1, "p2": p2}).Errorf("pairing aborted, could not create game: %v", err)
			return started, dead, err
		}

		l.logger.WithFields(logrus.Fields{
			"game_id": s.ID(),
			"black":   p1,
			"white":   p2,
		}).Info("players paired")

		if err := e1.Conn.Send(protocol.NewGameStart(s.ID(), e1.Profile, e2.Profile, game.Black)); err != nil {
			dead = append(dead, e1.Conn)
		}
		if err := e2.Conn.Send(protocol.NewGameStart(s.ID(), e1.Profile, e2.Profile, game.White)); err != nil {
			dead = append(dead, e2.Conn)
		}
		dead = append(dead, l.broadcastUnsafe(protocol.NewQueueUpdate(l.queueUnsafe()), uuid.Nil)...)
		started = append(started, s)
	}
	return started, dead, nil
}

func (l *Lobby) requeueFrontUnsafe(userID uuid.UUID, joinedAt time.Time) {
	l.queue = append([]uuid.UUID{userID}, l.queue...)
	l.queued[userID] = joinedAt
}

func (l *Lobby) removeFromQueueUnsafe(userID uuid.UUID) bool {
	if _, ok := l.queued[userID]; !ok {
		return false
	}
	delete(l.queued, userID)
	for i, id := range l.queue {
		if id == userID {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			break
		}
	}
	return true
}

func (l *Lobby) queueUnsafe() []protocol.QueueEntry {
	out := make([]protocol.QueueEntry, 0, len(l.queue))
	for _, id := range l.queue {
		entry := protocol.QueueEntry{ID: id}
		if e, ok := l.players[id]; ok {
			entry.Username = e.Profile.Username
			entry.Rating = e.Profile.Rating
		}
		out = append(out, entry)
	}
	return out
}
