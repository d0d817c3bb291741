// internal/ws/conn.go
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrClosed is returned by Send once the connection has been closed.
	ErrClosed = errors.New("connection closed")
	// ErrBufferFull is returned when the peer is not draining its outbound queue.
	ErrBufferFull = errors.New("outbound buffer full")
)

// Conn is the server side of one client channel. Send never blocks; any error it
// returns means the connection must be treated as dead.
type Conn interface {
	ID() uuid.UUID
	UserID() uuid.UUID
	// GameID is uuid.Nil for lobby connections.
	GameID() uuid.UUID
	Send(msg any) error
	Close(code websocket.StatusCode, reason string)
}

// Options tunes the write side of a Connection.
type Options struct {
	SendBuffer   int
	PingInterval time.Duration
	WriteTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 16
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	return o
}

// Connection wraps a websocket with a buffered outbound queue drained by WritePump.
type Connection struct {
	id     uuid.UUID
	userID uuid.UUID
	gameID uuid.UUID

	c    *websocket.Conn
	out  chan []byte
	done chan struct{}
	opts Options
	log  *logrus.Entry

	closeOnce   sync.Once
	closeCode   websocket.StatusCode
	closeReason string
}

// NewConnection wraps an accepted websocket. Start WritePump before sending.
func NewConnection(c *websocket.Conn, userID, gameID uuid.UUID, opts Options, logger *logrus.Logger) *Connection {
	opts = opts.withDefaults()
	id := uuid.New()
	return &Connection{
		id:        id,
		userID:    userID,
		gameID:    gameID,
		c:         c,
		out:       make(chan []byte, opts.SendBuffer),
		done:      make(chan struct{}),
		opts:      opts,
		closeCode: websocket.StatusNormalClosure,
		log: logger.WithFields(logrus.Fields{
			"conn_id": id,
			"user_id": userID,
		}),
	}
}

func (conn *Connection) ID() uuid.UUID     { return conn.id }
func (conn *Connection) UserID() uuid.UUID { return conn.userID }
func (conn *Connection) GameID() uuid.UUID { return conn.gameID }

// Done is closed when Close has been called.
func (conn *Connection) Done() <-chan struct{} { return conn.done }

// Send queues msg as a JSON text frame.
func (conn *Connection) Send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}
	select {
	case <-conn.done:
		return ErrClosed
	default:
	}
	select {
	case conn.out <- data:
		return nil
	case <-conn.done:
		return ErrClosed
	default:
		return ErrBufferFull
	}
}

// Close marks the connection closed. WritePump flushes what is already queued and
// then closes the websocket with code.
func (conn *Connection) Close(code websocket.StatusCode, reason string) {
	conn.closeOnce.Do(func() {
		conn.closeCode = code
		conn.closeReason = reason
		close(conn.done)
	})
}

// Read blocks for the next text frame.
func (conn *Connection) Read(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := conn.c.Read(ctx)
		if err != nil {
			return nil, err
		}
		if typ != websocket.MessageText {
			conn.log.Warnf("ignoring non-text frame of type %v", typ)
			continue
		}
		return data, nil
	}
}

// WritePump owns all writes to the websocket until ctx ends or Close is called.
func (conn *Connection) WritePump(ctx context.Context) {
	ticker := time.NewTicker(conn.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			conn.c.Close(conn.closeCode, conn.closeReason)
			return
		case <-conn.done:
			conn.flush(ctx)
			conn.c.Close(conn.closeCode, conn.closeReason)
			return
		case data := <-conn.out:
			if err := conn.write(ctx, data); err != nil {
				conn.log.Warnf("write failed: %v", err)
				conn.Close(websocket.StatusGoingAway, "write failed")
				conn.c.Close(conn.closeCode, conn.closeReason)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 3*conn.opts.WriteTimeout)
			err := conn.c.Ping(pingCtx)
			cancel()
			if err != nil {
				conn.log.Warnf("ping failed, assuming disconnect: %v", err)
				conn.Close(websocket.StatusGoingAway, "ping failed")
				conn.c.Close(conn.closeCode, conn.closeReason)
				return
			}
		}
	}
}

// flush writes whatever was queued before Close, e.g. a session_replaced notice.
func (conn *Connection) flush(ctx context.Context) {
	for {
		select {
		case data := <-conn.out:
			if err := conn.write(ctx, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (conn *Connection) write(ctx context.Context, data []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, conn.opts.WriteTimeout)
	defer cancel()
	return conn.c.Write(writeCtx, websocket.MessageText, data)
}
