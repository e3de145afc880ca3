package negotiation

// Role is fixed for the lifetime of a session and decides who yields when
// both sides offer at once.
type Role int

const (
	// RoleInitiator created the room, makes the first offer and is impolite
	// during an offer collision.
	RoleInitiator Role = iota

	// RoleResponder joined the room and is polite: it withdraws its own
	// offer when one collides with the initiator's.
	RoleResponder
)

// Polite reports whether this role yields on collision.
func (r Role) Polite() bool {
	return r == RoleResponder
}

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

// State is the lifecycle position of a negotiator.
type State int32

const (
	StateIdle State = iota
	StateGatheringMedia
	StateConnecting
	StateConnected

	// StateNegotiating is entered from StateConnecting or StateConnected while
	// an offer/answer exchange is in flight, and returns to the prior state.
	StateNegotiating

	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGatheringMedia:
		return "gathering-media"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateNegotiating:
		return "negotiating"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
