package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendQueueSize = 16
	writeTimeout  = 3 * time.Second
)

// client is one websocket connection. The hub writes to send; writePump is
// the connection's only writer, as gorilla allows a single concurrent writer.
type client struct {
	id   string
	conn *websocket.Conn

	// mu guards send against close: broadcasts run outside the hub's lock,
	// so a disconnect may race a send on the same client.
	mu     sync.Mutex
	closed bool
	send   chan []byte

	// rooms this client joined; guarded by the hub's mutex.
	rooms map[string]struct{}
}

func newClient(id string, conn *websocket.Conn) *client {
	return &client{
		id:    id,
		conn:  conn,
		send:  make(chan []byte, sendQueueSize),
		rooms: make(map[string]struct{}),
	}
}

// trySend queues a payload without blocking. A full queue drops the message;
// broadcasts never wait on a slow consumer. Sends after close are dropped.
func (c *client) trySend(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- payload:
	default:
		slog.Warn("realtime: send queue full, dropping message", "participant", c.id)
	}
}

// close shuts the send queue, stopping writePump. Idempotent.
func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *client) writePump() {
	defer c.conn.Close()

	for payload := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}

	// send was closed by the hub: tell the peer we're done.
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
}
