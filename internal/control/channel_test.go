package control

import (
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChannel connects to a peer fakeChannel; Send delivers synchronously.
type fakeChannel struct {
	mu     sync.Mutex
	state  webrtc.DataChannelState
	peer   *fakeChannel
	onOpen func()
	onMsg  func(webrtc.DataChannelMessage)
	sent   [][]byte
}

func (f *fakeChannel) Send(data []byte) error {
	f.mu.Lock()
	f.sent = append(f.sent, data)
	peer := f.peer
	f.mu.Unlock()
	if peer != nil && peer.onMsg != nil {
		peer.onMsg(webrtc.DataChannelMessage{Data: data})
	}
	return nil
}

func (f *fakeChannel) OnOpen(fn func()) { f.onOpen = fn }

func (f *fakeChannel) OnMessage(fn func(webrtc.DataChannelMessage)) { f.onMsg = fn }

func (f *fakeChannel) ReadyState() webrtc.DataChannelState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeChannel) open() {
	f.mu.Lock()
	f.state = webrtc.DataChannelStateOpen
	f.mu.Unlock()
	f.onOpen()
}

func linked() (*fakeChannel, *fakeChannel) {
	a := &fakeChannel{state: webrtc.DataChannelStateConnecting}
	b := &fakeChannel{state: webrtc.DataChannelStateConnecting}
	a.peer, b.peer = b, a
	return a, b
}

func TestPeerInfoAndPendingStateOnOpen(t *testing.T) {
	chA, chB := linked()

	var gotInfo []PeerInfo
	var gotState []MediaState
	a := Attach(chA, PeerInfo{Name: "alice", Version: "dev"}, Handlers{}, nil)
	Attach(chB, PeerInfo{Name: "bob"}, Handlers{
		OnPeerInfo:   func(p PeerInfo) { gotInfo = append(gotInfo, p) },
		OnMediaState: func(s MediaState) { gotState = append(gotState, s) },
	}, nil)

	// Held until open; only the latest survives.
	require.NoError(t, a.SendMediaState(MediaState{Audio: true}))
	require.NoError(t, a.SendMediaState(MediaState{Audio: true, Video: true}))
	assert.Empty(t, chA.sent)

	chA.open()
	assert.Equal(t, []PeerInfo{{Name: "alice", Version: "dev"}}, gotInfo)
	assert.Equal(t, []MediaState{{Audio: true, Video: true}}, gotState)

	require.NoError(t, a.SendMediaState(MediaState{Screen: true}))
	assert.Equal(t, MediaState{Screen: true}, gotState[len(gotState)-1])
	assert.Len(t, chA.sent, 3)
}

func TestUnknownAndGarbageMessagesIgnored(t *testing.T) {
	ch := &fakeChannel{state: webrtc.DataChannelStateOpen}
	called := false
	Attach(ch, PeerInfo{}, Handlers{
		OnMediaState: func(MediaState) { called = true },
		OnPeerInfo:   func(PeerInfo) { called = true },
	}, nil)

	ch.onMsg(webrtc.DataChannelMessage{Data: []byte{0xc1}})

	unknown, err := Encode("file_chunk", map[string]int{"n": 1})
	require.NoError(t, err)
	ch.onMsg(webrtc.DataChannelMessage{Data: unknown})

	bad, err := Encode(TypeMediaState, "not a struct")
	require.NoError(t, err)
	ch.onMsg(webrtc.DataChannelMessage{Data: bad})

	assert.False(t, called)
}

func TestEncodeDecode(t *testing.T) {
	data, err := Encode(TypeMediaState, MediaState{Audio: true, Screen: true})
	require.NoError(t, err)

	msg, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, TypeMediaState, msg.Type)

	var state MediaState
	require.NoError(t, msg.DecodePayload(&state))
	assert.Equal(t, MediaState{Audio: true, Screen: true}, state)
}

func TestOpenOnPeerConnection(t *testing.T) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	defer pc.Close()

	conn, err := Open(pc, PeerInfo{Name: "alice"}, Handlers{}, nil)
	require.NoError(t, err)
	require.NoError(t, conn.SendMediaState(MediaState{Audio: true}))

	offer, err := pc.CreateOffer(nil)
	require.NoError(t, err)
	assert.Contains(t, offer.SDP, "m=application")
}
