package call

import (
	"github.com/BioHazard786/Duet/internal/control"
	"github.com/BioHazard786/Duet/internal/negotiation"
)

// EventKind identifies what an Event reports.
type EventKind int

const (
	// EventRoom: the relay placed us in RoomKey with Role.
	EventRoom EventKind = iota
	EventPeerJoined
	EventPeerLeft
	EventState
	EventChat
	EventReaction
	EventRemoteInfo
	EventRemoteMedia
	EventRemoteTrack
	EventLocalMedia
	EventError
)

// Event is a session update for the UI. Only the fields relevant to Kind are
// set.
type Event struct {
	Kind EventKind

	RoomKey string
	Role    negotiation.Role
	State   negotiation.State

	Text  string
	Emoji string
	From  string
	TS    int64

	Peer      control.PeerInfo
	Media     control.MediaState
	TrackKind string

	Err error
}
