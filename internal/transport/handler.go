package transport

import (
	"context"

	"github.com/BioHazard786/Duet/internal/protocol"
)

// Source is anything that yields decoded signaling messages.
type Source interface {
	Incoming() <-chan *protocol.Message
}

// Handler filters incoming signaling messages down to the ones a call
// session acts on. Messages keep the order the relay sent them in, so a
// peer's last offer is always seen before its peer_left.
type Handler struct {
	source Source

	// Messages carries room, negotiation, chat and error messages in
	// arrival order.
	Messages chan *protocol.Message

	// Disconnected is closed when Start returns.
	Disconnected chan struct{}
}

// NewHandler creates a new message handler.
func NewHandler(source Source) *Handler {
	return &Handler{
		source:       source,
		Messages:     make(chan *protocol.Message, 64),
		Disconnected: make(chan struct{}),
	}
}

// Start forwards messages until the source closes or ctx is done.
func (h *Handler) Start(ctx context.Context) {
	defer close(h.Disconnected)

	incoming := h.source.Incoming()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-incoming:
			if !ok {
				return
			}
			if !Routed(msg.Type) {
				continue
			}
			select {
			case h.Messages <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Routed reports whether a session handles messages of type t.
func Routed(t string) bool {
	switch t {
	case protocol.TypeRoomCreated, protocol.TypeRoomJoined, protocol.TypeFullRoom,
		protocol.TypeStartCall, protocol.TypePeerLeft,
		protocol.TypeOffer, protocol.TypeAnswer, protocol.TypeCandidate,
		protocol.TypeChatMessage, protocol.TypeReaction,
		protocol.TypeError:
		return true
	}
	return false
}
