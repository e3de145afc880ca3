// Package negotiation drives one peer connection through offer/answer
// exchange, candidate buffering, collision resolution and renegotiation.
//
// A Negotiator owns its peer connection. Every input (local calls, remote
// signaling messages and media engine callbacks) is queued as an event and
// handled one at a time by Run, so the peer connection is never touched
// concurrently.
package negotiation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Duet/internal/protocol"
)

var (
	ErrClosed       = errors.New("negotiator closed")
	ErrNotConnected = errors.New("peer connection not created")
	ErrNoSender     = errors.New("no sender for track kind")
)

const eventBuffer = 128

// Signaler delivers messages to the other room member through the relay.
type Signaler interface {
	Send(msg *protocol.Message) error
}

// Config configures a Negotiator.
type Config struct {
	Role    Role
	RoomKey string

	// Dial creates the peer connection when the negotiator starts connecting.
	Dial func() (PeerConnection, error)

	Signaler Signaler
	Logger   *slog.Logger

	// OnStateChange is called from the negotiator's loop and must not block.
	OnStateChange func(State)
}

// Stats counts what the negotiator has done so far.
type Stats struct {
	OffersSent          int
	AnswersSent         int
	RemoteDescriptions  int
	DescriptionFailures int
	StaleAnswers        int
	IgnoredOffers       int
	YieldedOffers       int

	CandidatesSent    int
	CandidatesApplied int
	CandidatesQueued  int
	CandidateFailures int

	Renegotiations         int
	DeferredRenegotiations int
}

type eventKind int

const (
	evBeginMedia eventKind = iota
	evConnect
	evSignal
	evLocalCandidate
	evNegotiationNeeded
	evConnectionState
	evReplaceTrack
)

type event struct {
	kind eventKind

	// from is the peer connection a media engine callback came from.
	from PeerConnection

	tracks    []webrtc.TrackLocal
	msg       *protocol.Message
	candidate *webrtc.ICECandidateInit
	connState webrtc.PeerConnectionState
	trackKind string
	track     webrtc.TrackLocal

	result chan error
}

// Negotiator is the per-session negotiation state machine.
type Negotiator struct {
	role     Role
	roomKey  string
	dial     func() (PeerConnection, error)
	signaler Signaler
	onState  func(State)
	log      *slog.Logger

	events    chan event
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	started   atomic.Bool

	state atomic.Int32

	statsMu sync.Mutex
	stats   Stats

	// Owned by the loop.
	pc            PeerConnection
	tracks        []webrtc.TrackLocal
	senders       map[string]Sender
	pending       pendingCandidates
	remoteApplied bool
	offered       bool
	prior         State
}

// New creates a negotiator in StateIdle. Call Run to start processing.
func New(cfg Config) *Negotiator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Negotiator{
		role:     cfg.Role,
		roomKey:  cfg.RoomKey,
		dial:     cfg.Dial,
		signaler: cfg.Signaler,
		onState:  cfg.OnStateChange,
		log:      logger.With("component", "negotiator", "role", cfg.Role.String(), "room", cfg.RoomKey),
		events:   make(chan event, eventBuffer),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		senders:  make(map[string]Sender),
	}
}

// Role returns the negotiator's fixed role.
func (n *Negotiator) Role() Role {
	return n.role
}

// State returns the current lifecycle state.
func (n *Negotiator) State() State {
	return State(n.state.Load())
}

// Stats returns a snapshot of the negotiator's counters.
func (n *Negotiator) Stats() Stats {
	n.statsMu.Lock()
	defer n.statsMu.Unlock()
	return n.stats
}

// Run processes events until ctx is cancelled or Close is called, then closes
// the peer connection.
func (n *Negotiator) Run(ctx context.Context) {
	n.started.Store(true)
	defer close(n.stopped)
	defer n.teardown()

	for {
		select {
		case <-ctx.Done():
			n.closeOnce.Do(func() { close(n.done) })
			return
		case <-n.done:
			return
		case ev := <-n.events:
			err := n.dispatch(ev)
			if ev.result != nil {
				ev.result <- err
			}
		}
	}
}

// Close stops the negotiator and discards any in-flight negotiation.
func (n *Negotiator) Close() {
	n.closeOnce.Do(func() { close(n.done) })
	if n.started.Load() {
		<-n.stopped
	}
}

// BeginMedia moves an idle negotiator to gathering-media and records the
// local tracks that will be attached once connecting.
func (n *Negotiator) BeginMedia(tracks ...webrtc.TrackLocal) {
	n.post(event{kind: evBeginMedia, tracks: tracks})
}

// Connect creates the peer connection with every known local track. The
// initiator then sends its first offer.
func (n *Negotiator) Connect(tracks ...webrtc.TrackLocal) error {
	return n.call(event{kind: evConnect, tracks: tracks})
}

// HandleSignal queues a relayed offer, answer or candidate.
func (n *Negotiator) HandleSignal(msg *protocol.Message) {
	n.post(event{kind: evSignal, msg: msg})
}

func (n *Negotiator) post(ev event) bool {
	select {
	case n.events <- ev:
		return true
	case <-n.done:
		return false
	}
}

func (n *Negotiator) call(ev event) error {
	ev.result = make(chan error, 1)
	if !n.post(ev) {
		return ErrClosed
	}
	select {
	case err := <-ev.result:
		return err
	case <-n.done:
		return ErrClosed
	}
}

func (n *Negotiator) dispatch(ev event) error {
	if n.State() == StateClosed {
		return ErrClosed
	}

	if ev.from != nil && ev.from != n.pc {
		n.log.Debug("ignoring callback from a replaced peer connection")
		return nil
	}

	switch ev.kind {
	case evBeginMedia:
		n.tracks = append(n.tracks, ev.tracks...)
		if n.State() == StateIdle {
			n.setState(StateGatheringMedia)
		}
		return nil
	case evConnect:
		n.tracks = append(n.tracks, ev.tracks...)
		return n.connect(n.role == RoleInitiator)
	case evSignal:
		return n.handleSignal(ev.msg)
	case evLocalCandidate:
		n.sendCandidate(ev.candidate)
		return nil
	case evNegotiationNeeded:
		return n.negotiationNeeded()
	case evConnectionState:
		n.connectionStateChanged(ev.connState)
		return nil
	case evReplaceTrack:
		return n.replaceTrack(ev.trackKind, ev.track)
	}
	return fmt.Errorf("unknown event kind %d", ev.kind)
}

// connect creates the peer connection, attaches tracks and optionally sends
// the first offer. With a peer connection in place it only sends the offer,
// and only if none was sent yet: an initiator whose connection was created
// by an incoming offer still owes its peer one.
func (n *Negotiator) connect(offer bool) error {
	if n.pc != nil {
		if err := n.attachTracks(); err != nil {
			return err
		}
		if offer && !n.offered && n.pc.SignalingState() == webrtc.SignalingStateStable {
			n.log.Info("peer connection predates connect, sending first offer")
			return n.offer()
		}
		return nil
	}
	return n.dialPeer(offer)
}

// dialPeer creates a peer connection carrying every current local track.
func (n *Negotiator) dialPeer(offer bool) error {
	if n.dial == nil {
		return fmt.Errorf("create peer connection: %w", ErrNotConnected)
	}

	pc, err := n.dial()
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}
	n.pc = pc

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		var init *webrtc.ICECandidateInit
		if c != nil {
			j := c.ToJSON()
			init = &j
		}
		n.post(event{kind: evLocalCandidate, from: pc, candidate: init})
	})
	pc.OnNegotiationNeeded(func() {
		n.post(event{kind: evNegotiationNeeded, from: pc})
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		n.post(event{kind: evConnectionState, from: pc, connState: s})
	})

	n.senders = make(map[string]Sender)
	if err := n.attachTracks(); err != nil {
		return err
	}

	n.setState(StateConnecting)
	n.log.Debug("peer connection created", "tracks", len(n.tracks))

	if offer {
		return n.offer()
	}
	return nil
}

// attachTracks adds every local track whose kind has no sender yet.
func (n *Negotiator) attachTracks() error {
	for _, track := range n.tracks {
		kind := track.Kind().String()
		if _, ok := n.senders[kind]; ok {
			continue
		}
		sender, err := n.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("add %s track: %w", kind, err)
		}
		n.senders[kind] = sender
	}
	return nil
}

// offer creates and sends a fresh offer. The caller checks that the
// signaling state is stable.
func (n *Negotiator) offer() error {
	n.enterNegotiating()

	offer, err := n.pc.CreateOffer(nil)
	if err != nil {
		n.leaveNegotiating()
		return fmt.Errorf("create offer: %w", err)
	}
	if err := n.pc.SetLocalDescription(offer); err != nil {
		n.leaveNegotiating()
		return fmt.Errorf("set local offer: %w", err)
	}

	local := n.pc.LocalDescription()
	if local == nil {
		local = &offer
	}
	msg, err := protocol.Offer(n.roomKey, *local)
	if err != nil {
		return fmt.Errorf("encode offer: %w", err)
	}
	n.send(msg)
	n.offered = true
	n.count(func(s *Stats) { s.OffersSent++ })
	n.log.Debug("offer sent")
	return nil
}

func (n *Negotiator) handleSignal(msg *protocol.Message) error {
	switch msg.Type {
	case protocol.TypeOffer:
		return n.handleOffer(msg)
	case protocol.TypeAnswer:
		n.handleAnswer(msg)
	case protocol.TypeCandidate:
		n.handleCandidate(msg)
	default:
		n.log.Debug("ignoring non-negotiation message", "type", msg.Type)
	}
	return nil
}

func (n *Negotiator) handleOffer(msg *protocol.Message) error {
	desc, err := msg.SessionDescription()
	if err != nil {
		n.log.Warn("skipping unreadable offer", "err", err)
		n.count(func(s *Stats) { s.DescriptionFailures++ })
		return nil
	}

	if n.pc == nil {
		if err := n.connect(false); err != nil {
			return err
		}
	}

	collision := n.pc.SignalingState() != webrtc.SignalingStateStable
	if collision && !n.role.Polite() {
		n.log.Info("ignoring colliding offer", "signaling_state", n.pc.SignalingState().String())
		n.count(func(s *Stats) { s.IgnoredOffers++ })
		return nil
	}

	if collision {
		if err := n.yield(); err != nil {
			n.log.Warn("could not withdraw local offer, skipping remote offer", "err", err)
			n.count(func(s *Stats) { s.DescriptionFailures++ })
			n.leaveNegotiatingIfStable()
			return nil
		}
		n.log.Info("withdrew local offer for remote offer")
		n.count(func(s *Stats) { s.YieldedOffers++ })
	}

	n.enterNegotiating()

	if err := n.pc.SetRemoteDescription(desc); err != nil {
		n.log.Warn("failed to apply remote offer", "err", err)
		n.count(func(s *Stats) { s.DescriptionFailures++ })
		n.leaveNegotiatingIfStable()
		return nil
	}
	n.remoteApplied = true
	n.count(func(s *Stats) { s.RemoteDescriptions++ })

	if err := n.answer(); err != nil {
		n.log.Warn("failed to answer remote offer", "err", err)
		n.count(func(s *Stats) { s.DescriptionFailures++ })
	}

	n.drainCandidates()
	n.leaveNegotiatingIfStable()
	return nil
}

// yield withdraws the outstanding local offer so a colliding remote offer can
// be applied. The media engine cannot roll back a local offer, so once a
// session has been agreed the offer is settled against the last remote
// description, which returns to stable without changing the agreed session.
// Before that there is nothing to keep and the peer connection is rebuilt.
func (n *Negotiator) yield() error {
	if agreed := n.pc.RemoteDescription(); agreed != nil {
		settle := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: agreed.SDP}
		if err := n.pc.SetRemoteDescription(settle); err != nil {
			return fmt.Errorf("settle local offer: %w", err)
		}
		return nil
	}

	old := n.pc
	n.pc = nil
	if err := old.Close(); err != nil {
		n.log.Debug("closing withdrawn peer connection", "err", err)
	}
	return n.dialPeer(false)
}

func (n *Negotiator) answer() error {
	answer, err := n.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := n.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local answer: %w", err)
	}

	local := n.pc.LocalDescription()
	if local == nil {
		local = &answer
	}
	msg, err := protocol.Answer(n.roomKey, *local)
	if err != nil {
		return fmt.Errorf("encode answer: %w", err)
	}
	n.send(msg)
	n.count(func(s *Stats) { s.AnswersSent++ })
	n.log.Debug("answer sent")
	return nil
}

func (n *Negotiator) handleAnswer(msg *protocol.Message) {
	desc, err := msg.SessionDescription()
	if err != nil {
		n.log.Warn("skipping unreadable answer", "err", err)
		n.count(func(s *Stats) { s.DescriptionFailures++ })
		return
	}

	if n.pc == nil || n.pc.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
		n.log.Debug("ignoring answer without an outstanding offer")
		n.count(func(s *Stats) { s.StaleAnswers++ })
		return
	}

	if err := n.pc.SetRemoteDescription(desc); err != nil {
		n.log.Warn("failed to apply remote answer", "err", err)
		n.count(func(s *Stats) { s.DescriptionFailures++ })
		return
	}
	n.remoteApplied = true
	n.count(func(s *Stats) { s.RemoteDescriptions++ })

	n.drainCandidates()
	n.leaveNegotiatingIfStable()
}

// handleCandidate applies a remote candidate now, or queues it until a remote
// description exists. Candidates are never dropped for arriving early.
func (n *Negotiator) handleCandidate(msg *protocol.Message) {
	init, err := msg.ICECandidate()
	if err != nil {
		n.log.Warn("skipping unreadable candidate", "err", err)
		n.count(func(s *Stats) { s.CandidateFailures++ })
		return
	}

	if n.pc == nil || n.pc.RemoteDescription() == nil {
		n.pending.push(init)
		n.count(func(s *Stats) { s.CandidatesQueued++ })
		n.log.Debug("queued remote candidate", "pending", n.pending.len())
		return
	}
	n.applyCandidate(init)
}

func (n *Negotiator) applyCandidate(init webrtc.ICECandidateInit) {
	if err := n.pc.AddICECandidate(init); err != nil {
		n.log.Warn("failed to apply remote candidate", "err", err)
		n.count(func(s *Stats) { s.CandidateFailures++ })
		return
	}
	n.count(func(s *Stats) { s.CandidatesApplied++ })
}

// drainCandidates applies every queued candidate once, then clears the queue.
func (n *Negotiator) drainCandidates() {
	queued := n.pending.take()
	if len(queued) == 0 {
		return
	}
	n.log.Debug("draining queued candidates", "count", len(queued))
	for _, c := range queued {
		n.applyCandidate(c)
	}
}

// sendCandidate forwards a local candidate. The end-of-candidates signal is
// not relayed.
func (n *Negotiator) sendCandidate(init *webrtc.ICECandidateInit) {
	if init == nil || init.Candidate == "" {
		return
	}
	msg, err := protocol.Candidate(n.roomKey, *init)
	if err != nil {
		n.log.Warn("failed to encode local candidate", "err", err)
		return
	}
	n.send(msg)
	n.count(func(s *Stats) { s.CandidatesSent++ })
}

func (n *Negotiator) negotiationNeeded() error {
	if n.pc == nil {
		return nil
	}
	if n.role == RoleResponder && !n.remoteApplied {
		n.log.Debug("negotiation needed before first remote offer, waiting for initiator")
		return nil
	}
	if n.pc.SignalingState() != webrtc.SignalingStateStable {
		n.log.Debug("negotiation needed while not stable, skipping")
		return nil
	}
	return n.offer()
}

func (n *Negotiator) connectionStateChanged(s webrtc.PeerConnectionState) {
	n.log.Debug("peer connection state changed", "state", s.String())

	switch s {
	case webrtc.PeerConnectionStateConnected:
		switch n.State() {
		case StateNegotiating:
			n.prior = StateConnected
		case StateConnecting:
			n.setState(StateConnected)
		}
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		n.closePeer()
	}
}

func (n *Negotiator) enterNegotiating() {
	switch cur := n.State(); cur {
	case StateConnecting, StateConnected:
		n.prior = cur
		n.setState(StateNegotiating)
	}
}

func (n *Negotiator) leaveNegotiating() {
	if n.State() == StateNegotiating {
		n.setState(n.prior)
	}
}

func (n *Negotiator) leaveNegotiatingIfStable() {
	if n.pc != nil && n.pc.SignalingState() == webrtc.SignalingStateStable {
		n.leaveNegotiating()
	}
}

func (n *Negotiator) send(msg *protocol.Message) {
	if n.signaler == nil {
		return
	}
	if err := n.signaler.Send(msg); err != nil {
		n.log.Warn("failed to send signaling message", "type", msg.Type, "err", err)
	}
}

func (n *Negotiator) setState(s State) {
	old := State(n.state.Swap(int32(s)))
	if old == s {
		return
	}
	n.log.Debug("state changed", "from", old.String(), "to", s.String())
	if n.onState != nil {
		n.onState(s)
	}
}

func (n *Negotiator) count(f func(*Stats)) {
	n.statsMu.Lock()
	f(&n.stats)
	n.statsMu.Unlock()
}

// closePeer closes the peer connection and drops queued candidates.
func (n *Negotiator) closePeer() {
	if n.pc != nil {
		if err := n.pc.Close(); err != nil {
			n.log.Debug("closing peer connection", "err", err)
		}
	}
	n.pending.take()
	n.setState(StateClosed)
}

func (n *Negotiator) teardown() {
	if n.State() != StateClosed {
		n.closePeer()
	}
}
