package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadClientDefaults(t *testing.T) {
	c, err := LoadClient(New())
	require.NoError(t, err)

	assert.Equal(t, DefaultServerURL, c.ServerURL)
	assert.Equal(t, DefaultSTUNServers, c.GetSTUNServers())
	assert.Nil(t, c.GetTURNServers())
	assert.Equal(t, "http://localhost:8080/stats", c.StatsURL())
}

func TestLoadClientLegacyEnv(t *testing.T) {
	t.Setenv("DOMAIN", "duet.example.com")
	t.Setenv("STUN_SERVER", "stun:stun.example.com:3478")
	t.Setenv("TURN_SERVER", "turn.example.com")
	t.Setenv("TURN_PASSWORD", "secret")

	c, err := LoadClient(New())
	require.NoError(t, err)

	assert.Equal(t, "wss://duet.example.com/ws", c.ServerURL)
	assert.Equal(t, "https://duet.example.com/stats", c.StatsURL())
	assert.Equal(t, []string{"stun:stun.example.com:3478"}, c.STUNServers)
	assert.Equal(t, []string{
		"turn:turn.example.com:3478?transport=udp",
		"turn:turn.example.com:3478?transport=tcp",
		"turns:turn.example.com:5349?transport=tcp",
	}, c.GetTURNServers())

	user, pass := c.GetTURNCredentials()
	assert.Equal(t, DefaultTURNUser, user)
	assert.Equal(t, "secret", pass)
}

func TestPrefixedEnvWinsOverLegacy(t *testing.T) {
	t.Setenv("DOMAIN", "old.example.com")
	t.Setenv("DUET_DOMAIN", "new.example.com")

	c, err := LoadClient(New())
	require.NoError(t, err)
	assert.Equal(t, "wss://new.example.com/ws", c.ServerURL)
}

func TestFlagsWinOverEnv(t *testing.T) {
	t.Setenv("DUET_SERVER", "ws://env.example.com/ws")

	flags := pflag.NewFlagSet("join", pflag.ContinueOnError)
	flags.String(KeyServer, "", "")
	flags.Bool(KeyForceRelay, false, "")
	require.NoError(t, flags.Parse([]string{"--server", "wss://flag.example.com/ws", "--force-relay"}))

	v := New()
	require.NoError(t, v.BindPFlags(flags))

	c, err := LoadClient(v)
	require.NoError(t, err)
	assert.Equal(t, "wss://flag.example.com/ws", c.ServerURL)
	assert.True(t, c.ForceRelay)
}

func TestLoadClientRejectsBadURL(t *testing.T) {
	v := New()
	v.Set(KeyServer, "ftp://example.com")
	_, err := LoadClient(v)
	assert.ErrorIs(t, err, ErrInvalidServerURL)

	v.Set(KeyServer, "ws://")
	_, err = LoadClient(v)
	assert.ErrorIs(t, err, ErrInvalidServerURL)
}

func TestLoadServer(t *testing.T) {
	t.Setenv("DUET_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	s, err := LoadServer(New())
	require.NoError(t, err)
	assert.Equal(t, DefaultListenAddr, s.Addr)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, s.AllowedOrigins)
	assert.EqualValues(t, DefaultMessagesPerSecond, s.MessagesPerSecond)
	assert.Equal(t, DefaultBurst, s.Burst)
	assert.EqualValues(t, DefaultMaxMessageSize, s.MaxMessageSize)
	assert.False(t, s.TLS())
}

func TestLoadServerTLSPair(t *testing.T) {
	v := New()
	v.Set(KeyTLSCert, "cert.pem")
	_, err := LoadServer(v)
	assert.ErrorIs(t, err, ErrIncompleteTLS)

	v.Set(KeyTLSKey, "key.pem")
	s, err := LoadServer(v)
	require.NoError(t, err)
	assert.True(t, s.TLS())
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "duet.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":9443\"\nburst: 7\n"), 0o600))

	v := New()
	require.NoError(t, ReadFile(v, path))
	require.NoError(t, ReadFile(v, ""))

	s, err := LoadServer(v)
	require.NoError(t, err)
	assert.Equal(t, ":9443", s.Addr)
	assert.Equal(t, 7, s.Burst)

	assert.Error(t, ReadFile(New(), filepath.Join(t.TempDir(), "missing.yaml")))
}
