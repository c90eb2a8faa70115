package signaling

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/mossy-p/signal-relay/internal/metrics"
	"github.com/mossy-p/signal-relay/internal/models"
)

// Options configures the rooms a Registry creates
type Options struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	NotifyPeerLeft bool
}

// Registry maps room IDs to live rooms. A room is present exactly while it
// has members.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room
	opts  Options
}

func NewRegistry(opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Registry{
		rooms: make(map[string]*Room),
		opts:  opts,
	}
}

// GetOrCreate returns the room for roomID, creating it if needed
func (g *Registry) GetOrCreate(roomID string) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()

	room, exists := g.rooms[roomID]
	if !exists {
		room = newRoom(roomID, g.opts)
		g.rooms[roomID] = room
		g.opts.Metrics.RoomCreated()
		g.opts.Logger.Debug("room.created", "room", roomID)
	}
	return room
}

// Remove drops roomID if its room is empty. A room that gained a member in
// the meantime stays. It reports whether the room was removed.
func (g *Registry) Remove(roomID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	room, exists := g.rooms[roomID]
	if !exists || !room.retire() {
		return false
	}
	delete(g.rooms, roomID)
	g.opts.Metrics.RoomRemoved()
	g.opts.Logger.Debug("room.removed", "room", roomID)
	return true
}

// Lookup returns the live room for roomID, if any
func (g *Registry) Lookup(roomID string) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.rooms[roomID]
	return room, ok
}

// Len returns the number of live rooms
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// Snapshot lists live rooms and their member counts, sorted by ID
func (g *Registry) Snapshot() []models.RoomInfo {
	g.mu.Lock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, room := range g.rooms {
		rooms = append(rooms, room)
	}
	g.mu.Unlock()

	out := make([]models.RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, models.RoomInfo{RoomID: room.ID, Members: room.Len()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}
