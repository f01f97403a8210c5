package ocppj

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kilianp07/ocppbridge/core/model"
)

// ErrConnClosed is returned when sending on a closed connection.
var ErrConnClosed = errors.New("ocppj: connection closed")

// Conn is the registry channel of one charge point websocket. Writes are
// serialized by a mutex; pings use WriteControl which may run concurrently.
type Conn struct {
	id           string
	ws           *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	once   sync.Once
}

func newConn(id string, ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	return &Conn{id: id, ws: ws, writeTimeout: writeTimeout, done: make(chan struct{})}
}

// ID returns the charge box id of the connection.
func (c *Conn) ID() string { return c.id }

// Kind implements registry.Channel.
func (*Conn) Kind() model.TransportKind { return model.TransportJSON }

// Send writes one text frame. The write deadline is the earlier of the
// context deadline and the configured write timeout.
func (c *Conn) Send(ctx context.Context, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, msg)
}

// Close sends a close frame and closes the socket. It is safe to call more
// than once.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}
