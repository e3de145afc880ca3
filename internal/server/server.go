// Package server exposes the signaling hub over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/BioHazard786/Duet/internal/metrics"
	"github.com/BioHazard786/Duet/internal/protocol"
	"github.com/BioHazard786/Duet/internal/signaling"
)

const shutdownTimeout = 10 * time.Second

// Options configure a signaling server.
type Options struct {
	Addr string

	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string
	TLSKey  string

	// AllowedOrigins restricts browser origins. Empty allows all.
	AllowedOrigins []string

	Limits protocol.Limits
	Client signaling.ClientOptions
}

// Server owns the hub and its HTTP listener.
type Server struct {
	opts    Options
	metrics *metrics.Metrics
	hub     *signaling.Hub
	handler http.Handler
	log     *slog.Logger
}

// New wires a registry, router and hub behind the HTTP routes.
func New(opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}

	m := metrics.New()
	registry := signaling.NewRegistry(m, logger)
	router := signaling.NewRouter(registry, opts.Limits, m, logger)
	hub := signaling.NewHub(registry, router, m, logger)

	return &Server{
		opts:    opts,
		metrics: m,
		hub:     hub,
		handler: NewRouter(hub, m, opts, logger),
		log:     logger.With("component", "server"),
	}
}

// Handler returns the HTTP handler, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hub returns the server's hub.
func (s *Server) Hub() *signaling.Hub {
	return s.hub
}

// Metrics returns the server's counters.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// ListenAndServe runs the hub and the HTTP server until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.Run(hubCtx)

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		tls := s.opts.TLSCert != "" && s.opts.TLSKey != ""
		s.log.Info("starting signaling server", "addr", ln.Addr().String(), "tls", tls)
		if tls {
			errCh <- srv.ServeTLS(ln, s.opts.TLSCert, s.opts.TLSKey)
		} else {
			errCh <- srv.Serve(ln)
		}
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("shutting down signaling server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown; stopping the
	// hub closes them.
	stopHub()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
