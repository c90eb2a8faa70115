package signaling

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

var (
	ErrConnClosed     = errors.New("signaling: connection closed")
	ErrSendBufferFull = errors.New("signaling: send buffer full")
)

// State is where a connection is in its lifecycle
type State int32

const (
	StateConnecting State = iota
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Conn represents a WebSocket client connection
type Conn struct {
	id     string
	roomID string
	ws     *websocket.Conn
	log    *slog.Logger

	// send is drained by writePump; guarded by mu so Close never races a Send.
	mu     sync.Mutex
	send   chan []byte
	closed bool

	state atomic.Int32
	room  *Room
}

// NewConn wraps ws for a peer bound to roomID. ws may be nil for a
// connection that is never pumped.
func NewConn(ws *websocket.Conn, roomID string, bufferSize int, logger *slog.Logger) *Conn {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	id := uuid.New().String()
	return &Conn{
		id:     id,
		roomID: roomID,
		ws:     ws,
		log:    logger.With("peer", id, "room", roomID),
		send:   make(chan []byte, bufferSize),
	}
}

func (c *Conn) ID() string     { return c.id }
func (c *Conn) RoomID() string { return c.roomID }
func (c *Conn) State() State   { return State(c.state.Load()) }

// transition moves the connection to next and returns the previous state
func (c *Conn) transition(next State) State {
	return State(c.state.Swap(int32(next)))
}

// Send queues msg for the write pump without blocking
func (c *Conn) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Conn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Close stops accepting messages. The write pump flushes what is already
// queued, sends a close frame and tears down the transport.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
	return nil
}

// readPump delivers text frames to onMessage until the transport fails
func (c *Conn) readPump(maxMessageBytes int64, onMessage func([]byte)) {
	if maxMessageBytes > 0 {
		c.ws.SetReadLimit(maxMessageBytes)
	}
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("peer.read_failed", "err", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			c.log.Debug("peer.non_text_frame", "type", msgType)
			continue
		}
		onMessage(message)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug("peer.write_failed", "err", err)
				c.Close()
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
