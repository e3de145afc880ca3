package signaling

import (
	"log/slog"
	"sync"

	"github.com/BioHazard786/Duet/internal/metrics"
	"github.com/BioHazard786/Duet/internal/protocol"
)

// Registry maps room keys to their members and enforces the two-party
// capacity rule. Every operation runs under one lock, so checking occupancy
// and admitting a member is a single step.
type Registry struct {
	mu          sync.Mutex
	rooms       map[string]*Room
	memberships map[string]string // peer ID -> room key

	metrics *metrics.Metrics
	log     *slog.Logger
}

// Stats summarizes current occupancy.
type Stats struct {
	Rooms     int `json:"rooms"`
	Members   int `json:"members"`
	FullRooms int `json:"full_rooms"`
}

// NewRegistry creates an empty registry. Both arguments may be nil.
func NewRegistry(m *metrics.Metrics, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		rooms:       make(map[string]*Room),
		memberships: make(map[string]string),
		metrics:     m,
		log:         logger.With("component", "registry"),
	}
}

// Join admits p into roomKey. The first member becomes the initiator and is
// sent room_created; the second becomes the responder and is sent
// room_joined. A third is sent full_room and ErrRoomFull is returned.
//
// Joining the room p is already in re-sends its role. Joining a different
// room leaves the current one first, unless the new room is full, in which
// case p stays where it was.
func (r *Registry) Join(p Peer, roomKey string) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, inRoom := r.memberships[p.ID()]
	if inRoom && current == roomKey {
		room := r.rooms[roomKey]
		role := Role(room.indexOf(p))
		p.Deliver(protocol.Notice(role.notice(), roomKey))
		return role, nil
	}

	room, ok := r.rooms[roomKey]
	if ok && len(room.Members) >= MaxMembers {
		r.log.Info("room join rejected: room is full", "room", roomKey, "peer", p.ID())
		r.metrics.Inc(metrics.RoomsFull)
		p.Deliver(protocol.Notice(protocol.TypeFullRoom, roomKey))
		return 0, ErrRoomFull
	}

	if inRoom {
		r.leaveLocked(p, current)
	}
	if !ok {
		room = &Room{Key: roomKey}
		r.rooms[roomKey] = room
	}

	room.Members = append(room.Members, p)
	r.memberships[p.ID()] = roomKey
	role := Role(len(room.Members) - 1)

	if role == RoleInitiator {
		r.log.Info("room created", "room", roomKey, "peer", p.ID())
		r.metrics.Inc(metrics.RoomsCreated)
	} else {
		r.log.Info("peer joined room", "room", roomKey, "peer", p.ID())
		r.metrics.Inc(metrics.RoomsJoined)
	}

	if !p.Deliver(protocol.Notice(role.notice(), roomKey)) {
		r.log.Warn("could not deliver role notice", "room", roomKey, "peer", p.ID())
	}
	return role, nil
}

// Leave removes p from roomKey, or from whatever room it is in when roomKey is
// empty. The remaining member, if any, is sent exactly one peer_left and
// becomes the room's initiator. Leaving a room p is not in is a no-op.
func (r *Registry) Leave(p Peer, roomKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.memberships[p.ID()]
	if !ok {
		return false
	}
	if roomKey != "" && roomKey != current {
		return false
	}
	return r.leaveLocked(p, current)
}

func (r *Registry) leaveLocked(p Peer, roomKey string) bool {
	delete(r.memberships, p.ID())

	room, ok := r.rooms[roomKey]
	if !ok {
		return false
	}
	idx := room.indexOf(p)
	if idx < 0 {
		return false
	}
	room.Members = append(room.Members[:idx], room.Members[idx+1:]...)

	if len(room.Members) == 0 {
		delete(r.rooms, roomKey)
		r.log.Info("room deleted", "room", roomKey)
		return true
	}

	r.log.Info("peer left room", "room", roomKey, "peer", p.ID())
	r.metrics.Inc(metrics.PeersLeft)
	for _, m := range room.Members {
		if !m.Deliver(protocol.Notice(protocol.TypePeerLeft, roomKey)) {
			r.log.Warn("could not deliver peer_left", "room", roomKey, "peer", m.ID())
		}
	}
	return true
}

// Other returns the member of roomKey that is not p. ok is false when p is not
// a member of roomKey or is alone in it.
func (r *Registry) Other(p Peer, roomKey string) (Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.memberships[p.ID()] != roomKey {
		return nil, false
	}
	room, ok := r.rooms[roomKey]
	if !ok {
		return nil, false
	}
	other := room.other(p)
	return other, other != nil
}

// IsMember reports whether p currently belongs to roomKey.
func (r *Registry) IsMember(p Peer, roomKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.memberships[p.ID()] == roomKey
}

// RoomOf returns the key of the room p is in.
func (r *Registry) RoomOf(p Peer) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.memberships[p.ID()]
	return key, ok
}

// Size returns the number of members in roomKey.
func (r *Registry) Size(roomKey string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[roomKey]; ok {
		return len(room.Members)
	}
	return 0
}

// Snapshot returns current occupancy.
func (r *Registry) Snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{Rooms: len(r.rooms), Members: len(r.memberships)}
	for _, room := range r.rooms {
		if len(room.Members) >= MaxMembers {
			s.FullRooms++
		}
	}
	return s
}
