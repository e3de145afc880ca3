package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// sessionDescription mirrors the browser's RTCSessionDescriptionInit.
type sessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Offer builds an offer message for roomKey.
func Offer(roomKey string, desc webrtc.SessionDescription) (*Message, error) {
	return describe(TypeOffer, roomKey, desc)
}

// Answer builds an answer message for roomKey.
func Answer(roomKey string, desc webrtc.SessionDescription) (*Message, error) {
	return describe(TypeAnswer, roomKey, desc)
}

func describe(t, roomKey string, desc webrtc.SessionDescription) (*Message, error) {
	raw, err := json.Marshal(sessionDescription{Type: desc.Type.String(), SDP: desc.SDP})
	if err != nil {
		return nil, err
	}
	return &Message{Type: t, RoomKey: roomKey, SDP: raw}, nil
}

// Candidate builds a candidate message for roomKey.
func Candidate(roomKey string, init webrtc.ICECandidateInit) (*Message, error) {
	raw, err := json.Marshal(init)
	if err != nil {
		return nil, err
	}
	return &Message{Type: TypeCandidate, RoomKey: roomKey, Candidate: raw}, nil
}

// SessionDescription decodes the opaque sdp field. The description type must
// agree with the message type.
func (m *Message) SessionDescription() (webrtc.SessionDescription, error) {
	var sd sessionDescription
	if err := json.Unmarshal(m.SDP, &sd); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: sdp: %v", ErrMalformed, err)
	}

	var t webrtc.SDPType
	switch sd.Type {
	case "offer":
		t = webrtc.SDPTypeOffer
	case "answer":
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("%w: unsupported sdp type %q", ErrMalformed, sd.Type)
	}
	if sd.Type != m.Type {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: %s message carries sdp.type=%q", ErrMalformed, m.Type, sd.Type)
	}
	if sd.SDP == "" {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: empty sdp", ErrMalformed)
	}
	return webrtc.SessionDescription{Type: t, SDP: sd.SDP}, nil
}

// ICECandidate decodes the opaque candidate field.
func (m *Message) ICECandidate() (webrtc.ICECandidateInit, error) {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(m.Candidate, &init); err != nil {
		return webrtc.ICECandidateInit{}, fmt.Errorf("%w: candidate: %v", ErrMalformed, err)
	}
	return init, nil
}
