package negotiation

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Duet/internal/protocol"
)

var errInvalidState = errors.New("invalid signaling state")

// fakePC models the signaling state transitions of a peer connection without
// any networking.
type fakePC struct {
	mu sync.Mutex

	name   string
	state  webrtc.SignalingState
	local  *webrtc.SessionDescription
	remote *webrtc.SessionDescription

	offers int

	applied       []webrtc.ICECandidateInit
	badCandidates map[string]bool
	senders       []*fakeSender
	closed        bool

	onCandidate func(*webrtc.ICECandidate)
	onNeeded    func()
	onConn      func(webrtc.PeerConnectionState)
}

func newFakePC(name string) *fakePC {
	return &fakePC{
		name:          name,
		state:         webrtc.SignalingStateStable,
		badCandidates: make(map[string]bool),
	}
}

func (f *fakePC) CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("%s-offer-%d", f.name, f.offers)}, nil
}

func (f *fakePC) CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != webrtc.SignalingStateHaveRemoteOffer {
		return webrtc.SessionDescription{}, errInvalidState
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: f.name + "-answer-to-" + f.remote.SDP}, nil
}

func (f *fakePC) SetLocalDescription(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch desc.Type {
	case webrtc.SDPTypeOffer:
		if f.state != webrtc.SignalingStateStable {
			return errInvalidState
		}
		f.local = &desc
		f.state = webrtc.SignalingStateHaveLocalOffer
	case webrtc.SDPTypeAnswer:
		if f.state != webrtc.SignalingStateHaveRemoteOffer {
			return errInvalidState
		}
		f.local = &desc
		f.state = webrtc.SignalingStateStable
	case webrtc.SDPTypeRollback:
		// Local rollback is not a valid transition from any state.
		return errInvalidState
	default:
		return fmt.Errorf("unsupported type %s", desc.Type)
	}
	return nil
}

func (f *fakePC) SetRemoteDescription(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch desc.Type {
	case webrtc.SDPTypeOffer:
		if f.state != webrtc.SignalingStateStable {
			return errInvalidState
		}
		f.remote = &desc
		f.state = webrtc.SignalingStateHaveRemoteOffer
	case webrtc.SDPTypeAnswer:
		if f.state != webrtc.SignalingStateHaveLocalOffer {
			return errInvalidState
		}
		f.remote = &desc
		f.state = webrtc.SignalingStateStable
	default:
		return fmt.Errorf("unsupported type %s", desc.Type)
	}
	return nil
}

func (f *fakePC) LocalDescription() *webrtc.SessionDescription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.local
}

func (f *fakePC) RemoteDescription() *webrtc.SessionDescription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remote
}

func (f *fakePC) AddICECandidate(c webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remote == nil {
		return errors.New("no remote description")
	}
	if f.badCandidates[c.Candidate] {
		return errors.New("invalid candidate")
	}
	f.applied = append(f.applied, c)
	return nil
}

func (f *fakePC) SignalingState() webrtc.SignalingState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakePC) AddTrack(track webrtc.TrackLocal) (Sender, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeSender{track: track}
	f.senders = append(f.senders, s)
	return s, nil
}

func (f *fakePC) OnICECandidate(fn func(*webrtc.ICECandidate)) { f.onCandidate = fn }

func (f *fakePC) OnNegotiationNeeded(fn func()) { f.onNeeded = fn }

func (f *fakePC) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) { f.onConn = fn }

func (f *fakePC) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.state = webrtc.SignalingStateClosed
	return nil
}

func (f *fakePC) appliedCandidates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.applied))
	for i, c := range f.applied {
		out[i] = c.Candidate
	}
	return out
}

type fakeSender struct {
	mu    sync.Mutex
	track webrtc.TrackLocal
}

func (s *fakeSender) ReplaceTrack(track webrtc.TrackLocal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.track = track
	return nil
}

func (s *fakeSender) current() webrtc.TrackLocal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track
}

// outbox records messages a negotiator sends.
type outbox struct {
	mu   sync.Mutex
	msgs []*protocol.Message
}

func (o *outbox) Send(msg *protocol.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	return nil
}

// drain returns and clears the recorded messages.
func (o *outbox) drain() []*protocol.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.msgs
	o.msgs = nil
	return out
}

func (o *outbox) types() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.msgs))
	for i, m := range o.msgs {
		out[i] = m.Type
	}
	return out
}
