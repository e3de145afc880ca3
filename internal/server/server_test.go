package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Duet/internal/metrics"
	"github.com/BioHazard786/Duet/internal/protocol"
	"github.com/BioHazard786/Duet/internal/signaling"
)

func startServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()

	s := New(opts, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go s.Hub().Run(ctx)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg *protocol.Message) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func recv(t *testing.T, conn *websocket.Conn) *protocol.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg protocol.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return &msg
}

// expectSilence asserts nothing arrives on conn within a short window.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected message: %s", data)
}

func TestSignalingScenario(t *testing.T) {
	_, ts := startServer(t, Options{})

	a := dial(t, ts)
	send(t, a, protocol.Join("room1"))
	assert.Equal(t, protocol.TypeRoomCreated, recv(t, a).Type)

	b := dial(t, ts)
	send(t, b, protocol.Join("room1"))
	assert.Equal(t, protocol.TypeRoomJoined, recv(t, b).Type)

	send(t, b, protocol.StartCall("room1"))
	assert.Equal(t, protocol.TypeStartCall, recv(t, a).Type)

	offer := json.RawMessage(`{"type":"offer","sdp":"O1"}`)
	send(t, a, &protocol.Message{Type: protocol.TypeOffer, RoomKey: "room1", SDP: offer})
	got := recv(t, b)
	assert.Equal(t, protocol.TypeOffer, got.Type)
	assert.JSONEq(t, string(offer), string(got.SDP))

	answer := json.RawMessage(`{"type":"answer","sdp":"S1"}`)
	send(t, b, &protocol.Message{Type: protocol.TypeAnswer, RoomKey: "room1", SDP: answer})
	got = recv(t, a)
	assert.Equal(t, protocol.TypeAnswer, got.Type)
	assert.JSONEq(t, string(answer), string(got.SDP))

	cand := json.RawMessage(`{"candidate":"candidate:1 1 udp 2122260223 10.0.0.2 54321 typ host","sdpMid":"0","sdpMLineIndex":0}`)
	send(t, b, &protocol.Message{Type: protocol.TypeCandidate, RoomKey: "room1", Candidate: cand})
	got = recv(t, a)
	assert.Equal(t, protocol.TypeCandidate, got.Type)
	assert.JSONEq(t, string(cand), string(got.Candidate))

	c := dial(t, ts)
	send(t, c, protocol.Join("room1"))
	assert.Equal(t, protocol.TypeFullRoom, recv(t, c).Type)
	expectSilence(t, a)
	expectSilence(t, b)

	// Transport loss counts as leaving.
	a.Close()
	assert.Equal(t, protocol.TypePeerLeft, recv(t, b).Type)
}

func TestMalformedFramesAreIgnored(t *testing.T) {
	s, ts := startServer(t, Options{})

	a := dial(t, ts)
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"type":"teleport","roomKey":"x"}`)))
	send(t, a, &protocol.Message{Type: protocol.TypeJoin})

	// The connection is still usable.
	send(t, a, protocol.Join("room2"))
	assert.Equal(t, protocol.TypeRoomCreated, recv(t, a).Type)
	assert.EqualValues(t, 3, s.Metrics().Get("dropped_malformed"))
}

func TestRateLimitedFramesAreDropped(t *testing.T) {
	s, ts := startServer(t, Options{
		Client: signaling.ClientOptions{MessagesPerSecond: 0.01, Burst: 1},
	})

	a := dial(t, ts)
	send(t, a, protocol.Join("room4"))
	assert.Equal(t, protocol.TypeRoomCreated, recv(t, a).Type)

	for i := 0; i < 3; i++ {
		send(t, a, protocol.Join("room5"))
	}
	expectSilence(t, a)
	assert.Eventually(t, func() bool {
		return s.Metrics().Get(metrics.DropRateLimited) == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLeaveThenRejoin(t *testing.T) {
	_, ts := startServer(t, Options{})

	a := dial(t, ts)
	b := dial(t, ts)
	send(t, a, protocol.Join("room3"))
	recv(t, a)
	send(t, b, protocol.Join("room3"))
	recv(t, b)

	send(t, a, protocol.Leave("room3"))
	assert.Equal(t, protocol.TypePeerLeft, recv(t, b).Type)

	// b now holds the room alone; a comes back as responder.
	send(t, a, protocol.Join("room3"))
	assert.Equal(t, protocol.TypeRoomJoined, recv(t, a).Type)
}

func TestHealthAndStats(t *testing.T) {
	_, ts := startServer(t, Options{})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	a := dial(t, ts)
	send(t, a, protocol.Join("room4"))
	recv(t, a)

	resp, err = http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats StatsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.Rooms)
	assert.Equal(t, 1, stats.Members)
	assert.EqualValues(t, 1, stats.Counters["rooms_created"])
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://duet.example.com", "localhost:3000"})

	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	assert.True(t, check(req("https://duet.example.com")))
	assert.True(t, check(req("http://localhost:3000")))
	assert.True(t, check(req("")))
	assert.False(t, check(req("https://evil.example.com")))

	open := originChecker(nil)
	assert.True(t, open(req("https://anything.example")))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s := New(Options{Addr: "127.0.0.1:0"}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
