package control

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"
)

// Label of the negotiated control channel. Both sides create it with the same
// id so it exists before either offer is applied.
const (
	Label     = "control"
	ChannelID = uint16(0)
)

// Channel is the part of *webrtc.DataChannel a Conn uses.
type Channel interface {
	Send(data []byte) error
	OnOpen(f func())
	OnMessage(f func(msg webrtc.DataChannelMessage))
	ReadyState() webrtc.DataChannelState
}

// Handlers receive decoded remote messages. Nil handlers are skipped.
type Handlers struct {
	OnPeerInfo   func(PeerInfo)
	OnMediaState func(MediaState)
}

// Conn exchanges control messages over one data channel.
type Conn struct {
	ch       Channel
	info     PeerInfo
	handlers Handlers
	log      *slog.Logger

	mu      sync.Mutex
	pending *MediaState
}

// Open creates the negotiated control channel on pc.
func Open(pc *webrtc.PeerConnection, info PeerInfo, h Handlers, logger *slog.Logger) (*Conn, error) {
	negotiated := true
	ordered := true
	id := ChannelID

	dc, err := pc.CreateDataChannel(Label, &webrtc.DataChannelInit{
		Ordered:    &ordered,
		Negotiated: &negotiated,
		ID:         &id,
	})
	if err != nil {
		return nil, fmt.Errorf("create control channel: %w", err)
	}
	return Attach(dc, info, h, logger), nil
}

// Attach wires handlers onto an existing channel. info is sent on open,
// followed by the latest media state set before the channel was ready.
func Attach(ch Channel, info PeerInfo, h Handlers, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Conn{
		ch:       ch,
		info:     info,
		handlers: h,
		log:      logger.With("component", "control"),
	}

	ch.OnOpen(c.opened)
	ch.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.receive(msg.Data)
	})
	return c
}

func (c *Conn) opened() {
	if err := c.send(TypePeerInfo, c.info); err != nil {
		c.log.Warn("failed to send peer info", "error", err)
	}

	c.mu.Lock()
	state := c.pending
	c.pending = nil
	c.mu.Unlock()

	if state != nil {
		if err := c.send(TypeMediaState, *state); err != nil {
			c.log.Warn("failed to send media state", "error", err)
		}
	}
}

// SendMediaState announces local media state. Before the channel opens the
// latest state is held and sent on open.
func (c *Conn) SendMediaState(state MediaState) error {
	c.mu.Lock()
	if c.ch.ReadyState() != webrtc.DataChannelStateOpen {
		c.pending = &state
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.send(TypeMediaState, state)
}

func (c *Conn) send(t string, payload any) error {
	data, err := Encode(t, payload)
	if err != nil {
		return err
	}
	return c.ch.Send(data)
}

func (c *Conn) receive(data []byte) {
	msg, err := Decode(data)
	if err != nil {
		c.log.Debug("dropping unreadable control message", "error", err)
		return
	}

	switch msg.Type {
	case TypePeerInfo:
		var info PeerInfo
		if err := msg.DecodePayload(&info); err != nil {
			c.log.Debug("bad peer info", "error", err)
			return
		}
		if c.handlers.OnPeerInfo != nil {
			c.handlers.OnPeerInfo(info)
		}

	case TypeMediaState:
		var state MediaState
		if err := msg.DecodePayload(&state); err != nil {
			c.log.Debug("bad media state", "error", err)
			return
		}
		if c.handlers.OnMediaState != nil {
			c.handlers.OnMediaState(state)
		}

	default:
		c.log.Debug("ignoring control message", "type", msg.Type)
	}
}
