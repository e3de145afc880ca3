package negotiation

import (
	"fmt"

	"github.com/pion/webrtc/v4"
)

// ReplaceTrack swaps the outgoing track of the given kind ("audio" or
// "video") on its existing sender and then renegotiates. If a negotiation is
// already in flight the new offer is skipped: the track is on the sender, so
// the in-flight exchange carries it.
func (n *Negotiator) ReplaceTrack(kind string, track webrtc.TrackLocal) error {
	return n.call(event{kind: evReplaceTrack, trackKind: kind, track: track})
}

func (n *Negotiator) replaceTrack(kind string, track webrtc.TrackLocal) error {
	if n.pc == nil {
		return ErrNotConnected
	}
	sender, ok := n.senders[kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSender, kind)
	}
	if err := sender.ReplaceTrack(track); err != nil {
		return fmt.Errorf("replace %s track: %w", kind, err)
	}
	for i, t := range n.tracks {
		if t.Kind().String() == kind {
			n.tracks[i] = track
		}
	}
	return n.renegotiate()
}

// renegotiate sends a fresh offer when the signaling state is stable and
// defers otherwise.
func (n *Negotiator) renegotiate() error {
	stable := n.pc.SignalingState() == webrtc.SignalingStateStable
	if !stable || (n.role == RoleResponder && !n.remoteApplied) {
		n.log.Debug("renegotiation deferred to in-flight negotiation")
		n.count(func(s *Stats) { s.DeferredRenegotiations++ })
		return nil
	}
	n.count(func(s *Stats) { s.Renegotiations++ })
	return n.offer()
}
