package media

import (
	"log/slog"
	"net"
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Duet/internal/config"
)

// ICEConfiguration builds the peer connection configuration from client
// settings. Relay-only transport is used when requested, or when the host
// looks like it sits behind a VPN or CGNAT and a TURN server is available.
func ICEConfiguration(cfg *config.Client, logger *slog.Logger) webrtc.Configuration {
	if logger == nil {
		logger = slog.Default()
	}

	var servers []webrtc.ICEServer
	if stun := cfg.GetSTUNServers(); len(stun) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: stun})
	}

	turn := cfg.GetTURNServers()
	if len(turn) > 0 {
		user, pass := cfg.GetTURNCredentials()
		servers = append(servers, webrtc.ICEServer{
			URLs:       turn,
			Username:   user,
			Credential: pass,
		})
	}

	conf := webrtc.Configuration{ICEServers: servers}

	relay := cfg.ForceRelay || ShouldForceRelay()
	switch {
	case relay && len(turn) == 0:
		if cfg.ForceRelay {
			logger.Warn("relay requested but no TURN server configured, using all candidates")
		}
	case relay:
		logger.Info("forcing TURN relay")
		conf.ICETransportPolicy = webrtc.ICETransportPolicyRelay
	}
	return conf
}

var cgnatBlock = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// vpnMarkers are interface name fragments of tunnels that break direct P2P:
// OpenVPN tun/tap, WireGuard, PPP and Cloudflare WARP.
var vpnMarkers = []string{"tun", "tap", "wg", "ppp", "warp"}

// ShouldForceRelay checks if the system is likely behind a restrictive VPN or
// CGNAT where TURN is the only path that reliably works.
func ShouldForceRelay() bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			addrs = nil
		}
		if restrictiveInterface(iface.Name, addrs) {
			return true
		}
	}
	return false
}

func restrictiveInterface(name string, addrs []net.Addr) bool {
	name = strings.ToLower(name)
	for _, marker := range vpnMarkers {
		if strings.Contains(name, marker) {
			return true
		}
	}

	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		// Tailscale and WARP hand out addresses from 100.64.0.0/10 as well.
		if ip != nil && cgnatBlock.Contains(ip) {
			return true
		}
	}
	return false
}
