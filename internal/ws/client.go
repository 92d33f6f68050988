package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// connState models the per-connection protocol state. A client object only
// exists after a successful handshake, so the zero state is authenticated.
type connState int

const (
	stateAuthenticated connState = iota
	stateJoined
	stateClosed
)

const sendBuffer = 256

// Client is one live websocket session bound to an authenticated user.
type Client struct {
	ID          string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time

	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	mu       sync.Mutex
	state    connState
	groupID  int
	lastSeen time.Time
}

// NewClient wraps an upgraded connection for the given user.
func NewClient(conn *websocket.Conn, userID int) *Client {
	now := time.Now()
	return &Client{
		ID:          uuid.NewString(),
		UserID:      userID,
		ConnectedAt: now,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		done:        make(chan struct{}),
		lastSeen:    now,
	}
}

// Enqueue queues a payload for the write pump without blocking. It reports
// false when the client is closed or too slow to keep up.
func (c *Client) Enqueue(payload []byte) bool {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Touch records liveness, driven by pong frames.
func (c *Client) Touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

// IdleSince reports the last observed liveness timestamp.
func (c *Client) IdleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// JoinedGroup returns the current room, or false when not joined.
func (c *Client) JoinedGroup() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.groupID, c.state == stateJoined
}

func (c *Client) markJoined(groupID int) {
	c.mu.Lock()
	if c.state != stateClosed {
		c.state = stateJoined
		c.groupID = groupID
	}
	c.mu.Unlock()
}

func (c *Client) markLeft(groupID int) {
	c.mu.Lock()
	if c.state == stateJoined && c.groupID == groupID {
		c.state = stateAuthenticated
		c.groupID = 0
	}
	c.mu.Unlock()
}

// close transitions to the terminal state. Idempotent; the send channel is
// never closed so concurrent Enqueue calls stay safe.
func (c *Client) close() {
	c.mu.Lock()
	already := c.state == stateClosed
	c.state = stateClosed
	c.mu.Unlock()
	if !already {
		close(c.done)
	}
}

func (c *Client) closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateClosed
}
