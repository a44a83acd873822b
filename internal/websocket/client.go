package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Client is one websocket connection. It satisfies presence.Connection.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	limiter *CommandLimiter

	mu        sync.Mutex
	closed    bool
	userID    uuid.UUID
	sessionID string
}

func newClient(conn *websocket.Conn, limits CommandLimits) *Client {
	return &Client{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		limiter: NewCommandLimiter(limits),
	}
}

// Send queues payload for the write pump. A full buffer or closed client drops it.
func (c *Client) Send(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which sends a close frame and releases the socket.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.send)
	return nil
}

func (c *Client) attach(userID uuid.UUID, sessionID string) {
	c.mu.Lock()
	c.userID, c.sessionID = userID, sessionID
	c.mu.Unlock()
}

// identity returns the authenticated user and session. ok is false before authentication.
func (c *Client) identity() (userID uuid.UUID, sessionID string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID, c.sessionID, c.sessionID != ""
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
