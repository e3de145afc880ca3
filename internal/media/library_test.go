package media

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Duet/internal/config"
)

type replacer struct {
	kinds  []string
	tracks []webrtc.TrackLocal
	err    error
}

func (r *replacer) ReplaceTrack(kind string, track webrtc.TrackLocal) error {
	if r.err != nil {
		return r.err
	}
	r.kinds = append(r.kinds, kind)
	r.tracks = append(r.tracks, track)
	return nil
}

func testLibrary(t *testing.T) *Library {
	t.Helper()
	lib, err := NewLibrary(&config.Client{}, nil)
	require.NoError(t, err)
	return lib
}

func TestLibraryTracks(t *testing.T) {
	lib := testLibrary(t)
	tracks := lib.Tracks()
	require.Len(t, tracks, 2)
	assert.Equal(t, webrtc.RTPCodecTypeVideo, tracks[0].Kind())
	assert.Equal(t, webrtc.RTPCodecTypeAudio, tracks[1].Kind())
}

func TestLibraryPlayStopsOnCancel(t *testing.T) {
	lib := testLibrary(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.NoError(t, lib.Play(ctx))
}

func TestSetVideoMuted(t *testing.T) {
	lib := testLibrary(t)
	lib.SetVideoMuted(true)
	assert.True(t, lib.Camera.Muted())
	assert.True(t, lib.Screen.Muted())
	assert.False(t, lib.Microphone.Muted())
}

func TestVideoSwitchToggle(t *testing.T) {
	lib := testLibrary(t)
	sw := NewVideoSwitch(lib)
	r := &replacer{}

	sharing, err := sw.Toggle(r)
	require.NoError(t, err)
	assert.True(t, sharing)

	sharing, err = sw.Toggle(r)
	require.NoError(t, err)
	assert.False(t, sharing)

	assert.Equal(t, []string{KindVideo, KindVideo}, r.kinds)
	assert.Equal(t, "screen", r.tracks[0].ID())
	assert.Equal(t, "camera", r.tracks[1].ID())
}

func TestVideoSwitchKeepsStateOnFailure(t *testing.T) {
	sw := NewVideoSwitch(testLibrary(t))

	sharing, err := sw.Toggle(&replacer{err: errors.New("not connected")})
	assert.Error(t, err)
	assert.False(t, sharing)
	assert.False(t, sw.Sharing())

	_, err = sw.Toggle(&replacer{})
	require.NoError(t, err)
	assert.True(t, sw.Sharing())
	sw.Reset()
	assert.False(t, sw.Sharing())
}

func TestICEConfiguration(t *testing.T) {
	cfg := &config.Client{
		STUNServers: []string{"stun:stun.example.com:3478"},
		TURNServer:  "turn.example.com",
		TURNUser:    "duet",
		TURNPass:    "secret",
		ForceRelay:  true,
	}

	conf := ICEConfiguration(cfg, nil)
	require.Len(t, conf.ICEServers, 2)
	assert.Equal(t, []string{"stun:stun.example.com:3478"}, conf.ICEServers[0].URLs)
	assert.Len(t, conf.ICEServers[1].URLs, 3)
	assert.Equal(t, "duet", conf.ICEServers[1].Username)
	assert.Equal(t, "secret", conf.ICEServers[1].Credential)
	assert.Equal(t, webrtc.ICETransportPolicyRelay, conf.ICETransportPolicy)
}

func TestICEConfigurationRelayNeedsTURN(t *testing.T) {
	conf := ICEConfiguration(&config.Client{ForceRelay: true}, nil)
	assert.Empty(t, conf.ICEServers)
	assert.NotEqual(t, webrtc.ICETransportPolicyRelay, conf.ICETransportPolicy)
}

func TestRestrictiveInterface(t *testing.T) {
	assert.True(t, restrictiveInterface("wg0", nil))
	assert.True(t, restrictiveInterface("CloudflareWARP", nil))
	assert.True(t, restrictiveInterface("utun3", nil))

	cgnat := []net.Addr{&net.IPNet{IP: net.ParseIP("100.100.1.2"), Mask: net.CIDRMask(32, 32)}}
	assert.True(t, restrictiveInterface("eth0", cgnat))

	lan := []net.Addr{&net.IPNet{IP: net.ParseIP("192.168.1.20"), Mask: net.CIDRMask(24, 32)}}
	assert.False(t, restrictiveInterface("eth0", lan))
}

func TestLoggerFactory(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	l := NewLoggerFactory(logger).NewLogger("ice")
	l.Infof("gathered %d candidates", 3)
	l.Debug("hidden")
	l.Tracef("hidden %d", 1)

	out := buf.String()
	assert.Contains(t, out, "pion=ice")
	assert.Contains(t, out, "gathered 3 candidates")
	assert.NotContains(t, out, "hidden")
}

func TestNewAPI(t *testing.T) {
	api, err := NewAPI(nil)
	require.NoError(t, err)

	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	assert.NoError(t, pc.Close())
}
