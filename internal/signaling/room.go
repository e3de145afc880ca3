package signaling

import (
	"errors"

	"github.com/BioHazard786/Duet/internal/protocol"
)

// MaxMembers is the capacity of every room.
const MaxMembers = 2

var ErrRoomFull = errors.New("room is full")

// Role is the position a member holds in its room.
type Role int

const (
	// RoleInitiator is held by the first member of a room.
	RoleInitiator Role = iota
	// RoleResponder is held by the second member of a room.
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "unknown"
	}
}

// notice is the message a member receives when it is admitted with this role.
func (r Role) notice() string {
	if r == RoleInitiator {
		return protocol.TypeRoomCreated
	}
	return protocol.TypeRoomJoined
}

// Peer is a connection handle as seen by the registry and router.
type Peer interface {
	// ID returns a stable identifier for the connection.
	ID() string

	// Deliver queues msg for the connection without blocking. It returns false
	// if the message could not be queued.
	Deliver(msg *protocol.Message) bool
}

// Room represents a single room where two peers can connect.
type Room struct {
	// Key is the opaque rendezvous key.
	Key string

	// Members is ordered by role: index 0 is the initiator.
	Members []Peer
}

func (r *Room) indexOf(p Peer) int {
	for i, m := range r.Members {
		if m.ID() == p.ID() {
			return i
		}
	}
	return -1
}

// other returns the member that is not p.
func (r *Room) other(p Peer) Peer {
	for _, m := range r.Members {
		if m.ID() != p.ID() {
			return m
		}
	}
	return nil
}
