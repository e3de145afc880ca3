package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// Default configuration values
const (
	DefaultListenAddr = ":8080"
	DefaultServerURL  = "ws://localhost:8080/ws"
	DefaultTURNUser   = "duet"

	DefaultMessagesPerSecond = 50
	DefaultBurst             = 100
	DefaultMaxMessageSize    = 64 * 1024
)

// DefaultSTUNServers are Google's public STUN servers.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
	"stun:stun3.l.google.com:19302",
	"stun:stun4.l.google.com:19302",
}

// Keys shared by flags, environment variables and config files.
const (
	KeyConfig = "config"

	KeyAddr           = "addr"
	KeyTLSCert        = "tls-cert"
	KeyTLSKey         = "tls-key"
	KeyAllowedOrigins = "allowed-origins"
	KeyRate           = "rate"
	KeyBurst          = "burst"
	KeyMaxMessageSize = "max-message-size"

	KeyServer       = "server"
	KeyDomain       = "domain"
	KeySTUN         = "stun"
	KeyTURN         = "turn"
	KeyTURNUser     = "turn-username"
	KeyTURNPassword = "turn-password"
	KeyForceRelay   = "force-relay"
	KeyCamera       = "camera"
	KeyScreen       = "screen"
	KeyMicrophone   = "microphone"
)

var (
	ErrInvalidServerURL = errors.New("invalid signaling server URL")
	ErrIncompleteTLS    = errors.New("tls-cert and tls-key must be set together")
)

// Server configures `duet serve`.
type Server struct {
	Addr           string   `mapstructure:"addr"`
	TLSCert        string   `mapstructure:"tls-cert"`
	TLSKey         string   `mapstructure:"tls-key"`
	AllowedOrigins []string `mapstructure:"allowed-origins"`

	// Per-connection inbound limits.
	MessagesPerSecond float64 `mapstructure:"rate"`
	Burst             int     `mapstructure:"burst"`
	MaxMessageSize    int64   `mapstructure:"max-message-size"`
}

// Client configures `duet join`.
type Client struct {
	// ServerURL is the signaling WebSocket endpoint. When empty it is built
	// from Domain.
	ServerURL string `mapstructure:"server"`
	Domain    string `mapstructure:"domain"`

	STUNServers []string `mapstructure:"stun"`
	TURNServer  string   `mapstructure:"turn"`
	TURNUser    string   `mapstructure:"turn-username"`
	TURNPass    string   `mapstructure:"turn-password"`
	ForceRelay  bool     `mapstructure:"force-relay"`

	// Media files standing in for capture devices.
	CameraFile     string `mapstructure:"camera"`
	ScreenFile     string `mapstructure:"screen"`
	MicrophoneFile string `mapstructure:"microphone"`
}

// New returns a viper instance reading DUET_* environment variables and the
// unprefixed names older deployments use. Values are resolved flag > env >
// config file > default once flags are bound with BindPFlags.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("DUET")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees keys viper knows about.
	for _, key := range []string{
		KeyAddr, KeyTLSCert, KeyTLSKey, KeyAllowedOrigins, KeyRate, KeyBurst, KeyMaxMessageSize,
		KeyServer, KeyForceRelay, KeyCamera, KeyScreen, KeyMicrophone,
	} {
		v.BindEnv(key)
	}
	v.BindEnv(KeyDomain, "DUET_DOMAIN", "DOMAIN")
	v.BindEnv(KeySTUN, "DUET_STUN", "STUN_SERVER")
	v.BindEnv(KeyTURN, "DUET_TURN", "TURN_SERVER")
	v.BindEnv(KeyTURNUser, "DUET_TURN_USERNAME", "TURN_USERNAME")
	v.BindEnv(KeyTURNPassword, "DUET_TURN_PASSWORD", "TURN_PASSWORD")

	v.SetDefault(KeyAddr, DefaultListenAddr)
	v.SetDefault(KeyRate, DefaultMessagesPerSecond)
	v.SetDefault(KeyBurst, DefaultBurst)
	v.SetDefault(KeyMaxMessageSize, DefaultMaxMessageSize)
	v.SetDefault(KeySTUN, DefaultSTUNServers)
	v.SetDefault(KeyTURNUser, DefaultTURNUser)
	return v
}

// ReadFile merges a config file into v. An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// LoadServer decodes and validates server settings.
func LoadServer(v *viper.Viper) (*Server, error) {
	var s Server
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode server config: %w", err)
	}

	if (s.TLSCert == "") != (s.TLSKey == "") {
		return nil, ErrIncompleteTLS
	}
	if s.MessagesPerSecond < 0 || s.Burst < 0 {
		return nil, fmt.Errorf("rate and burst must not be negative")
	}
	s.AllowedOrigins = splitList(s.AllowedOrigins)
	return &s, nil
}

// TLS reports whether HTTPS is configured.
func (s *Server) TLS() bool {
	return s.TLSCert != "" && s.TLSKey != ""
}

// LoadClient decodes and validates client settings.
func LoadClient(v *viper.Viper) (*Client, error) {
	var c Client
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode client config: %w", err)
	}

	if c.ServerURL == "" {
		if c.Domain != "" {
			c.ServerURL = fmt.Sprintf("wss://%s/ws", c.Domain)
		} else {
			c.ServerURL = DefaultServerURL
		}
	}

	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidServerURL, err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidServerURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidServerURL)
	}

	c.STUNServers = splitList(c.STUNServers)
	return &c, nil
}

// StatsURL returns the HTTP(S) /stats endpoint next to the WebSocket URL.
func (c *Client) StatsURL() string {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = strings.TrimSuffix(u.Path, "/ws") + "/stats"
	return u.String()
}

// GetSTUNServers returns STUN server URLs.
func (c *Client) GetSTUNServers() []string {
	return c.STUNServers
}

// GetTURNServers returns TURN server URLs if configured
func (c *Client) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(c.TURNServer, "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Client) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// splitList flattens comma-separated entries and drops blanks.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
