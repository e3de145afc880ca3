// Package call runs one participant's side of a call: it joins a room on the
// relay, drives a Negotiator for each peer connection and reports what
// happens as Events.
package call

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Duet/internal/config"
	"github.com/BioHazard786/Duet/internal/control"
	"github.com/BioHazard786/Duet/internal/media"
	"github.com/BioHazard786/Duet/internal/negotiation"
	"github.com/BioHazard786/Duet/internal/protocol"
	"github.com/BioHazard786/Duet/internal/transport"
	"github.com/BioHazard786/Duet/internal/version"
)

const (
	JoinTimeout = 10 * time.Second
	eventBuffer = 256
)

// Options configures a Session.
type Options struct {
	RoomKey string
	Config  *config.Client

	// PeerName is shown to the other side. Defaults to "duet".
	PeerName string

	// Library supplies local tracks. When nil one is built from Config.
	Library *media.Library

	Logger *slog.Logger
}

// Session is one participant's call in one room.
type Session struct {
	roomKey  string
	peerName string
	client   *transport.Client
	api      *webrtc.API
	ice      webrtc.Configuration
	lib      *media.Library
	video    *media.VideoSwitch
	log      *slog.Logger

	events    chan Event
	done      chan struct{}
	leaveOnce sync.Once
	leaving   atomic.Bool
	received  atomic.Uint64

	mu        sync.Mutex
	neg       *negotiation.Negotiator
	negCancel context.CancelFunc
	ctrl      *control.Conn
	micMuted  bool
	camMuted  bool
	sharing   bool
	present   bool
}

// New prepares a session. Nothing touches the network until Run.
func New(opts Options) (*Session, error) {
	if opts.Config == nil {
		return nil, NewError("create session", errors.New("missing client config"))
	}
	if strings.TrimSpace(opts.RoomKey) == "" {
		return nil, NewError("create session", errors.New("missing room key"))
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("room", opts.RoomKey)

	api, err := media.NewAPI(logger)
	if err != nil {
		return nil, NewError("create media engine", err)
	}

	lib := opts.Library
	if lib == nil {
		if lib, err = media.NewLibrary(opts.Config, logger); err != nil {
			return nil, NewError("load media", err)
		}
	}

	name := opts.PeerName
	if name == "" {
		name = "duet"
	}

	return &Session{
		roomKey:  opts.RoomKey,
		peerName: name,
		client:   transport.NewClient(opts.Config.ServerURL, logger),
		api:      api,
		ice:      media.ICEConfiguration(opts.Config, logger),
		lib:      lib,
		video:    media.NewVideoSwitch(lib),
		log:      logger.With("component", "call"),
		events:   make(chan Event, eventBuffer),
		done:     make(chan struct{}),
	}, nil
}

// Events delivers session updates. Updates are dropped if nobody reads.
func (s *Session) Events() <-chan Event {
	return s.events
}

// RoomKey returns the room this session joins.
func (s *Session) RoomKey() string {
	return s.roomKey
}

// BytesReceived counts remote media payload bytes.
func (s *Session) BytesReceived() uint64 {
	return s.received.Load()
}

// Negotiator returns the current negotiator, or nil between peers.
func (s *Session) Negotiator() *negotiation.Negotiator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.neg
}

// Run joins the room and serves the call until Leave, ctx cancellation or a
// fatal signaling error.
func (s *Session) Run(ctx context.Context) error {
	if err := s.client.Connect(ctx); err != nil {
		return NewError("connect to server", err)
	}
	defer s.client.Close()
	defer s.stopNegotiator()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	handler := transport.NewHandler(s.client)
	go handler.Start(ctx)

	go func() {
		if err := s.lib.Play(ctx); err != nil {
			s.log.Error("media source stopped", "err", err)
			s.emit(Event{Kind: EventError, Err: NewError("play media", err)})
		}
	}()

	if err := s.client.Send(protocol.Join(s.roomKey)); err != nil {
		return NewError("join room", err)
	}

	joinTimer := time.NewTimer(JoinTimeout)
	defer joinTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Leave()
			return nil

		case <-s.done:
			return nil

		case <-joinTimer.C:
			return NewError("join room", ErrTimeout)

		case msg := <-handler.Messages:
			if msg.Type == protocol.TypeRoomCreated || msg.Type == protocol.TypeRoomJoined {
				joinTimer.Stop()
			}
			if err := s.handle(ctx, msg); err != nil {
				return err
			}

		case <-handler.Disconnected:
			if s.leaving.Load() || ctx.Err() != nil {
				return nil
			}
			return NewError("signaling", ErrDisconnected)
		}
	}
}

// handle acts on one relay message. Messages arrive in the order the relay
// sent them, so everything the previous peer sent is handled before its
// peer_left.
func (s *Session) handle(ctx context.Context, msg *protocol.Message) error {
	switch msg.Type {
	case protocol.TypeRoomCreated:
		s.log.Info("room created, waiting for peer", "room", msg.RoomKey)
		s.startNegotiator(ctx, negotiation.RoleInitiator)

	case protocol.TypeRoomJoined:
		s.log.Info("joined room", "room", msg.RoomKey)
		n := s.startNegotiator(ctx, negotiation.RoleResponder)
		s.setPeerPresent(true)
		if err := s.client.Send(protocol.StartCall(s.roomKey)); err != nil {
			return NewError("start call", err)
		}
		s.emit(Event{Kind: EventPeerJoined})
		s.connect(n)

	case protocol.TypeFullRoom:
		return WrapError("join room", ErrRoomFull, msg.RoomKey)

	case protocol.TypeStartCall:
		n := s.Negotiator()
		if n == nil || n.Role() != negotiation.RoleInitiator {
			s.log.Debug("ignoring start_call")
			return nil
		}
		s.setPeerPresent(true)
		s.emit(Event{Kind: EventPeerJoined})
		s.connect(n)

	case protocol.TypeOffer, protocol.TypeAnswer, protocol.TypeCandidate:
		n := s.Negotiator()
		if n == nil || !s.PeerPresent() {
			s.log.Debug("dropping signal with no peer in the room", "type", msg.Type)
			return nil
		}
		n.HandleSignal(msg)

	case protocol.TypePeerLeft:
		s.log.Info("peer left, waiting for the next one")
		s.emit(Event{Kind: EventPeerLeft, Err: ErrPeerLeft})
		s.startNegotiator(ctx, negotiation.RoleInitiator)

	case protocol.TypeChatMessage, protocol.TypeReaction:
		s.chatReceived(msg)

	case protocol.TypeError:
		return WrapError("signaling", ErrSignalingError, msg.Text)
	}
	return nil
}

// PeerPresent reports whether the other participant is in the room.
func (s *Session) PeerPresent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.present
}

func (s *Session) setPeerPresent(present bool) {
	s.mu.Lock()
	s.present = present
	s.mu.Unlock()
}

// startNegotiator replaces any current negotiator with a fresh one in role
// and hands it the initial tracks.
func (s *Session) startNegotiator(ctx context.Context, role negotiation.Role) *negotiation.Negotiator {
	s.stopNegotiator()
	s.video.Reset()
	s.mu.Lock()
	s.sharing = false
	s.present = false
	s.mu.Unlock()

	n := negotiation.New(negotiation.Config{
		Role:     role,
		RoomKey:  s.roomKey,
		Dial:     s.dial,
		Signaler: s.client,
		Logger:   s.log,
		OnStateChange: func(st negotiation.State) {
			s.emit(Event{Kind: EventState, State: st})
		},
	})

	nctx, cancel := context.WithCancel(ctx)
	go n.Run(nctx)

	s.mu.Lock()
	s.neg = n
	s.negCancel = cancel
	s.mu.Unlock()

	s.emit(Event{Kind: EventRoom, RoomKey: s.roomKey, Role: role})
	n.BeginMedia(s.lib.Tracks()...)
	return n
}

func (s *Session) stopNegotiator() {
	s.mu.Lock()
	n, cancel := s.neg, s.negCancel
	s.neg, s.negCancel, s.ctrl = nil, nil, nil
	s.mu.Unlock()

	if n != nil {
		n.Close()
		cancel()
	}
}

func (s *Session) connect(n *negotiation.Negotiator) {
	if err := n.Connect(); err != nil {
		s.log.Error("failed to start peer connection", "err", err)
		s.emit(Event{Kind: EventError, Err: NewError("connect", err)})
	}
}

// dial creates a pion peer connection with the control channel and remote
// track handling attached. It runs on the negotiator's loop.
func (s *Session) dial() (negotiation.PeerConnection, error) {
	pc, err := s.api.NewPeerConnection(s.ice)
	if err != nil {
		return nil, err
	}

	ctrl, err := control.Open(pc, control.PeerInfo{Name: s.peerName, Version: version.Version}, control.Handlers{
		OnPeerInfo: func(info control.PeerInfo) {
			s.emit(Event{Kind: EventRemoteInfo, Peer: info})
		},
		OnMediaState: func(state control.MediaState) {
			s.emit(Event{Kind: EventRemoteMedia, Media: state})
		},
	}, s.log)
	if err != nil {
		pc.Close()
		return nil, err
	}
	if err := ctrl.SendMediaState(s.LocalMedia()); err != nil {
		s.log.Debug("media state not sent", "err", err)
	}

	pc.OnTrack(s.remoteTrack(pc))

	s.mu.Lock()
	s.ctrl = ctrl
	s.mu.Unlock()

	return negotiation.WrapPion(pc), nil
}

// remoteTrack asks for a keyframe on new video and counts received bytes
// until the track ends.
func (s *Session) remoteTrack(pc *webrtc.PeerConnection) func(*webrtc.TrackRemote, *webrtc.RTPReceiver) {
	return func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		kind := track.Kind().String()
		s.log.Info("remote track", "kind", kind, "codec", track.Codec().MimeType)
		s.emit(Event{Kind: EventRemoteTrack, TrackKind: kind})

		if track.Kind() == webrtc.RTPCodecTypeVideo {
			pli := []rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())}}
			if err := pc.WriteRTCP(pli); err != nil {
				s.log.Debug("keyframe request failed", "err", err)
			}
		}

		buf := make([]byte, 1500)
		for {
			n, _, err := track.Read(buf)
			if err != nil {
				return
			}
			s.received.Add(uint64(n))
		}
	}
}

func (s *Session) chatReceived(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeChatMessage:
		s.emit(Event{Kind: EventChat, Text: msg.Text, From: msg.From, TS: msg.TS})
	case protocol.TypeReaction:
		s.emit(Event{Kind: EventReaction, Emoji: msg.Emoji, From: msg.From, TS: msg.TS})
	}
}

// LocalMedia reports what this side is sending.
func (s *Session) LocalMedia() control.MediaState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return control.MediaState{
		Audio:  !s.micMuted,
		Video:  !s.camMuted,
		Screen: s.sharing,
	}
}

func (s *Session) publishMedia() {
	state := s.LocalMedia()
	s.emit(Event{Kind: EventLocalMedia, Media: state})

	s.mu.Lock()
	ctrl := s.ctrl
	s.mu.Unlock()
	if ctrl == nil {
		return
	}
	if err := ctrl.SendMediaState(state); err != nil {
		s.log.Debug("media state not sent", "err", err)
	}
}

// ToggleScreen switches the outgoing video between camera and screen and
// renegotiates. It returns whether the screen is now shared.
func (s *Session) ToggleScreen() (bool, error) {
	n := s.Negotiator()
	if n == nil {
		return false, NewError("share screen", ErrNotConnected)
	}

	sharing, err := s.video.Toggle(n)
	if err != nil {
		if errors.Is(err, negotiation.ErrNotConnected) {
			err = ErrNotConnected
		}
		return sharing, NewError("share screen", err)
	}

	s.mu.Lock()
	s.sharing = sharing
	s.mu.Unlock()
	s.publishMedia()
	return sharing, nil
}

// ToggleMute mutes or unmutes the microphone and returns the new muted state.
func (s *Session) ToggleMute() bool {
	s.mu.Lock()
	s.micMuted = !s.micMuted
	muted := s.micMuted
	s.mu.Unlock()

	s.lib.Microphone.SetMuted(muted)
	s.publishMedia()
	return muted
}

// ToggleVideo stops or resumes outgoing video and returns the new muted state.
func (s *Session) ToggleVideo() bool {
	s.mu.Lock()
	s.camMuted = !s.camMuted
	muted := s.camMuted
	s.mu.Unlock()

	s.lib.SetVideoMuted(muted)
	s.publishMedia()
	return muted
}

// SendChat relays a chat message to the peer.
func (s *Session) SendChat(text string) error {
	if strings.TrimSpace(text) == "" {
		return NewError("send chat", protocol.ErrMalformed)
	}
	if err := s.client.Send(protocol.Chat(s.roomKey, text)); err != nil {
		return NewError("send chat", err)
	}
	return nil
}

// SendReaction relays an emoji reaction to the peer.
func (s *Session) SendReaction(emoji string) error {
	if strings.TrimSpace(emoji) == "" {
		return NewError("send reaction", protocol.ErrMalformed)
	}
	if err := s.client.Send(protocol.Reaction(s.roomKey, emoji)); err != nil {
		return NewError("send reaction", err)
	}
	return nil
}

// Leave tells the relay we are leaving and ends Run.
func (s *Session) Leave() {
	s.leaveOnce.Do(func() {
		s.leaving.Store(true)
		if err := s.client.Send(protocol.Leave(s.roomKey)); err != nil {
			s.log.Debug("leave not sent", "err", err)
		}
		close(s.done)
	})
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.log.Debug("dropping session event", "kind", ev.Kind)
	}
}
