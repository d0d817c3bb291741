// Package wstest provides an in-memory ws.Conn that records what is sent to it.
package wstest

import (
	"encoding/json"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/piloto-life/Gomoku/internal/ws"
)

type Conn struct {
	mu sync.Mutex

	id     uuid.UUID
	userID uuid.UUID
	gameID uuid.UUID

	msgs    []map[string]any
	failing bool

	closed bool
	code   websocket.StatusCode
	reason string
}

// New returns a lobby connection for userID.
func New(userID uuid.UUID) *Conn {
	return &Conn{id: uuid.New(), userID: userID}
}

// NewGame returns a game connection for userID in gameID.
func NewGame(userID, gameID uuid.UUID) *Conn {
	return &Conn{id: uuid.New(), userID: userID, gameID: gameID}
}

func (c *Conn) ID() uuid.UUID     { return c.id }
func (c *Conn) UserID() uuid.UUID { return c.userID }
func (c *Conn) GameID() uuid.UUID { return c.gameID }

// Send records msg in its decoded JSON form.
func (c *Conn) Send(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ws.ErrClosed
	}
	if c.failing {
		return ws.ErrBufferFull
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	c.msgs = append(c.msgs, m)
	return nil
}

func (c *Conn) Close(code websocket.StatusCode, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.code = code
	c.reason = reason
}

// Fail makes every later Send return a transport error.
func (c *Conn) Fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failing = true
}

// Closed reports whether Close was called and with which code.
func (c *Conn) Closed() (bool, websocket.StatusCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.code
}

// Messages returns a copy of everything received so far.
func (c *Conn) Messages() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, len(c.msgs))
	copy(out, c.msgs)
	return out
}

// Types returns the "type" field of each received message, in order.
func (c *Conn) Types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.msgs))
	for i, m := range c.msgs {
		out[i], _ = m["type"].(string)
	}
	return out
}

// Last returns the most recent message of the given type, or nil.
func (c *Conn) Last(typ string) map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.msgs) - 1; i >= 0; i-- {
		if c.msgs[i]["type"] == typ {
			return c.msgs[i]
		}
	}
	return nil
}

// Count returns how many messages of the given type were received.
func (c *Conn) Count(typ string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.msgs {
		if m["type"] == typ {
			n++
		}
	}
	return n
}

// Reset forgets received messages.
func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = nil
}
