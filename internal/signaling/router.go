package signaling

import (
	"log/slog"

	"github.com/BioHazard786/Duet/internal/metrics"
	"github.com/BioHazard786/Duet/internal/protocol"
)

// Router forwards signaling messages between the two members of a room. It
// holds no state of its own; membership is read from the registry on every
// call.
type Router struct {
	registry *Registry
	limits   protocol.Limits
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// NewRouter creates a router over registry.
func NewRouter(registry *Registry, limits protocol.Limits, m *metrics.Metrics, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry: registry,
		limits:   limits,
		metrics:  m,
		log:      logger.With("component", "router"),
	}
}

// Relay forwards msg from sender to the other member of msg.RoomKey. Malformed
// messages, senders outside the room and rooms without a second member are
// dropped silently. It reports whether the message was delivered.
func (r *Router) Relay(from Peer, msg *protocol.Message) bool {
	if !protocol.IsRelayed(msg.Type) {
		r.metrics.Inc(metrics.DropUnexpectedType)
		return false
	}
	if err := msg.Validate(r.limits); err != nil {
		r.log.Debug("dropping malformed message", "type", msg.Type, "peer", from.ID(), "err", err)
		r.metrics.Inc(metrics.DropMalformed)
		return false
	}
	if !r.registry.IsMember(from, msg.RoomKey) {
		r.log.Debug("dropping message from non-member", "type", msg.Type, "room", msg.RoomKey, "peer", from.ID())
		r.metrics.Inc(metrics.DropNotMember)
		return false
	}

	target, ok := r.registry.Other(from, msg.RoomKey)
	if !ok {
		r.log.Debug("no other peer in room", "type", msg.Type, "room", msg.RoomKey)
		r.metrics.Inc(metrics.DropNoPeer)
		return false
	}

	out := forwardable(from, msg, r.limits)
	if !target.Deliver(out) {
		r.log.Warn("could not deliver relayed message", "type", msg.Type, "room", msg.RoomKey, "peer", target.ID())
		return false
	}

	r.log.Debug("relayed message", "type", msg.Type, "room", msg.RoomKey, "from", from.ID(), "to", target.ID())
	r.metrics.IncRelayed(msg.Type)
	return true
}

// forwardable copies the fields of msg that the receiving side needs. Session
// descriptions and candidates are passed through byte for byte.
func forwardable(from Peer, msg *protocol.Message, limits protocol.Limits) *protocol.Message {
	out := &protocol.Message{
		Type:    msg.Type,
		RoomKey: msg.RoomKey,
	}

	switch msg.Type {
	case protocol.TypeOffer, protocol.TypeAnswer:
		out.SDP = msg.SDP
	case protocol.TypeCandidate:
		out.Candidate = msg.Candidate
	case protocol.TypeChatMessage:
		out.Text = msg.Text
	case protocol.TypeReaction:
		out.Emoji = msg.Emoji
	}

	if msg.Type == protocol.TypeChatMessage || msg.Type == protocol.TypeReaction {
		out.TS = msg.TS
		out.Sanitize(limits)
		out.From = from.ID()
	}
	return out
}
