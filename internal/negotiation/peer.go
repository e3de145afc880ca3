package negotiation

import (
	"github.com/pion/webrtc/v4"
)

// Sender is the outgoing half of a transceiver.
type Sender interface {
	ReplaceTrack(track webrtc.TrackLocal) error
}

// PeerConnection is the media engine surface the negotiator drives. It is
// owned by exactly one Negotiator.
type PeerConnection interface {
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	LocalDescription() *webrtc.SessionDescription
	RemoteDescription() *webrtc.SessionDescription
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	SignalingState() webrtc.SignalingState

	AddTrack(track webrtc.TrackLocal) (Sender, error)

	OnICECandidate(f func(*webrtc.ICECandidate))
	OnNegotiationNeeded(f func())
	OnConnectionStateChange(f func(webrtc.PeerConnectionState))

	Close() error
}

// Pion adapts a *webrtc.PeerConnection to PeerConnection.
type Pion struct {
	*webrtc.PeerConnection
}

// WrapPion returns pc as a PeerConnection.
func WrapPion(pc *webrtc.PeerConnection) *Pion {
	return &Pion{PeerConnection: pc}
}

// AddTrack attaches track on a new sender. Inbound RTCP for the sender is
// drained so NACK and report interceptors keep running.
func (p *Pion) AddTrack(track webrtc.TrackLocal) (Sender, error) {
	sender, err := p.PeerConnection.AddTrack(track)
	if err != nil {
		return nil, err
	}
	go drainRTCP(sender)
	return sender, nil
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
