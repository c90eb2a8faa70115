package signaling

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/mossy-p/signal-relay/internal/metrics"
	"github.com/mossy-p/signal-relay/internal/models"
)

// ErrRoomClosed is returned by Admit once the registry has retired the room.
// Callers should fetch a fresh room from the registry and try again.
var ErrRoomClosed = errors.New("signaling: room closed")

// Peer is the room's view of a connection
type Peer interface {
	ID() string
	Send(msg []byte) error
	IsOpen() bool
}

type member struct {
	peer Peer
	role models.Role
}

// Room manages peers in a signaling room
type Room struct {
	ID string

	mu      sync.Mutex
	members map[string]*member
	retired bool

	log            *slog.Logger
	metrics        *metrics.Metrics
	notifyPeerLeft bool
}

func newRoom(id string, opts Options) *Room {
	return &Room{
		ID:             id,
		members:        make(map[string]*member),
		log:            opts.Logger.With("room", id),
		metrics:        opts.Metrics,
		notifyPeerLeft: opts.NotifyPeerLeft,
	}
}

// Admit adds p to the room and returns its role. The first member of an
// empty room is the initiator, everyone after it a responder. Existing
// members are told about the newcomer before the newcomer learns its role.
func (r *Room) Admit(p Peer) (models.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.retired {
		return "", ErrRoomClosed
	}
	if m, ok := r.members[p.ID()]; ok {
		return m.role, nil
	}

	role := models.RoleResponder
	if len(r.members) == 0 {
		role = models.RoleInitiator
	}

	joined := models.PeerJoinedMessage()
	for _, m := range r.members {
		r.deliver(m.peer, joined)
	}

	r.members[p.ID()] = &member{peer: p, role: role}
	r.deliver(p, models.RoleMessage(role))
	r.metrics.Joined(string(role))

	return role, nil
}

// Broadcast forwards msg unchanged to every member except sender
func (r *Room) Broadcast(sender Peer, msg []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, m := range r.members {
		if id == sender.ID() {
			continue
		}
		r.deliver(m.peer, msg)
	}
}

// Evict removes p and reports whether the room is now empty
func (r *Room) Evict(p Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[p.ID()]; !ok {
		return len(r.members) == 0
	}
	delete(r.members, p.ID())

	if r.notifyPeerLeft && len(r.members) > 0 {
		left := models.PeerLeftMessage()
		for _, m := range r.members {
			r.deliver(m.peer, left)
		}
	}
	return len(r.members) == 0
}

// Len returns the current member count
func (r *Room) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// retire marks an empty room as closed for admission. It reports false
// when a member slipped in first.
func (r *Room) retire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.members) > 0 {
		return false
	}
	r.retired = true
	return true
}

// deliver must be called with r.mu held. Failures only affect the one peer.
func (r *Room) deliver(p Peer, msg []byte) {
	if !p.IsOpen() {
		r.metrics.Dropped(metrics.DropReasonClosed)
		return
	}
	if err := p.Send(msg); err != nil {
		reason := metrics.DropReasonBufferFull
		if errors.Is(err, ErrConnClosed) {
			reason = metrics.DropReasonClosed
		}
		r.metrics.Dropped(reason)
		r.log.Warn("peer.send_failed", "peer", p.ID(), "err", err)
		return
	}
	r.metrics.Relayed()
}
