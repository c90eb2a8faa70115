package signaling

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mossy-p/signal-relay/internal/metrics"
)

// DefaultRoomID is used when a client names no room or an invalid one. All
// such clients share this room.
const DefaultRoomID = "default"

const (
	maxRoomIDLength = 128
	presenceTimeout = 2 * time.Second
)

// PresenceTracker mirrors room membership somewhere outside the process.
// Failures are logged and never affect relaying.
type PresenceTracker interface {
	Join(ctx context.Context, roomID, peerID string) error
	Leave(ctx context.Context, roomID, peerID string) error
}

type ServiceConfig struct {
	Registry *Registry
	Presence PresenceTracker
	Logger   *slog.Logger
	Metrics  *metrics.Metrics

	SendBufferSize  int
	MaxMessageBytes int64

	// CheckOrigin decides whether a websocket upgrade is allowed. Nil allows
	// every origin.
	CheckOrigin func(r *http.Request) bool
}

// Service accepts signaling websockets and wires them to rooms
type Service struct {
	registry *Registry
	presence PresenceTracker
	log      *slog.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	sendBufferSize  int
	maxMessageBytes int64

	mu       sync.Mutex
	conns    map[string]*Conn
	wg       sync.WaitGroup
	shutdown bool
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry(Options{Logger: cfg.Logger, Metrics: cfg.Metrics})
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Service{
		registry: cfg.Registry,
		presence: cfg.Presence,
		log:      cfg.Logger,
		metrics:  cfg.Metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		sendBufferSize:  cfg.SendBufferSize,
		maxMessageBytes: cfg.MaxMessageBytes,
		conns:           make(map[string]*Conn),
	}
}

// Registry returns the registry the service places peers in
func (s *Service) Registry() *Registry {
	return s.registry
}

// ResolveRoomID extracts the room from the "room" query parameter, falling
// back to DefaultRoomID when it is missing or not made of unreserved URI
// characters.
func ResolveRoomID(query url.Values) string {
	id := query.Get("room")
	if id == "" || len(id) > maxRoomIDLength {
		return DefaultRoomID
	}
	for i := 0; i < len(id); i++ {
		if !isUnreserved(id[i]) {
			return DefaultRoomID
		}
	}
	return id
}

func isUnreserved(b byte) bool {
	switch {
	case 'a' <= b && b <= 'z', 'A' <= b && b <= 'Z', '0' <= b && b <= '9':
		return true
	case b == '-', b == '.', b == '_', b == '~':
		return true
	}
	return false
}

// ServeHTTP upgrades the request and runs the connection until it closes
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	roomID := ResolveRoomID(r.URL.Query())

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("peer.upgrade_failed", "err", err)
		return
	}

	c := NewConn(ws, roomID, s.sendBufferSize, s.log)
	if !s.track(c) {
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		ws.Close()
		return
	}
	defer s.untrack(c)

	s.join(c)
	go c.writePump()
	c.readPump(s.maxMessageBytes, func(msg []byte) { s.relay(c, msg) })
	s.leave(c)
}

// join places c in its room, retrying if the room is retired underneath us
func (s *Service) join(c *Conn) {
	for {
		room := s.registry.GetOrCreate(c.roomID)
		role, err := room.Admit(c)
		if errors.Is(err, ErrRoomClosed) {
			continue
		}
		c.room = room
		c.transition(StateJoined)
		c.log.Info("peer.joined", "role", role)
		break
	}

	if s.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
		defer cancel()
		if err := s.presence.Join(ctx, c.roomID, c.id); err != nil {
			c.log.Warn("presence.join_failed", "err", err)
		}
	}
}

func (s *Service) relay(c *Conn, msg []byte) {
	if c.State() != StateJoined {
		return
	}
	c.room.Broadcast(c, msg)
}

func (s *Service) leave(c *Conn) {
	prev := c.transition(StateClosed)
	c.Close()
	if prev != StateJoined {
		return
	}

	if c.room.Evict(c) {
		s.registry.Remove(c.roomID)
	}
	c.log.Info("peer.left")

	if s.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
		defer cancel()
		if err := s.presence.Leave(ctx, c.roomID, c.id); err != nil {
			c.log.Warn("presence.leave_failed", "err", err)
		}
	}
}

func (s *Service) track(c *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return false
	}
	s.conns[c.id] = c
	s.wg.Add(1)
	s.metrics.ConnectionOpened()
	return true
}

func (s *Service) untrack(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()

	s.metrics.ConnectionClosed()
	s.wg.Done()
}

// Shutdown closes every live connection and waits for them to leave their
// rooms. New connections are refused from here on.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
