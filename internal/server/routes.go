package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/Duet/internal/metrics"
	"github.com/BioHazard786/Duet/internal/signaling"
)

// StatsResponse is the body served on /stats.
type StatsResponse struct {
	signaling.Stats
	Counters map[string]uint64 `json:"counters"`
}

// NewRouter registers the signaling endpoints on a fresh mux.
func NewRouter(hub *signaling.Hub, m *metrics.Metrics, opts Options, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthCheckHandler)
	mux.HandleFunc("/stats", statsHandler(hub, m))
	mux.HandleFunc("/ws", ServeWs(hub, opts, logger))
	return mux
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling server is healthy."))
}

func statsHandler(hub *signaling.Hub, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		resp := StatsResponse{
			Stats:    hub.Registry().Snapshot(),
			Counters: m.Snapshot(),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

// ServeWs returns an http.HandlerFunc that upgrades the request and hands the
// connection to hub.
func ServeWs(hub *signaling.Hub, opts Options, logger *slog.Logger) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Debug("failed to upgrade connection", "remote", r.RemoteAddr, "err", err)
			return
		}

		client := signaling.NewClient(hub, conn, opts.Client)
		if !hub.Register(client) {
			conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}

// originChecker allows every origin when allowed is empty. Otherwise the
// request's Origin host must match one of the entries, which may be bare hosts
// or full origins. Requests without an Origin header (non-browser clients) are
// always accepted.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}

	hosts := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		a = strings.TrimSpace(strings.ToLower(a))
		if u, err := url.Parse(a); err == nil && u.Host != "" {
			a = u.Host
		}
		if a != "" {
			hosts[a] = struct{}{}
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := hosts[strings.ToLower(u.Host)]
		return ok
	}
}
