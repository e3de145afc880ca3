package signaling

import (
	"context"
	"log/slog"

	"github.com/BioHazard786/Duet/internal/metrics"
	"github.com/BioHazard786/Duet/internal/protocol"
)

// inbound is a message read from a client, waiting for the hub.
type inbound struct {
	client *Client
	msg    *protocol.Message
}

// Hub is the central brain of the signaling server. A single goroutine (Run)
// handles every register, unregister and inbound message, so each one is
// applied to the registry as one step.
type Hub struct {
	registry *Registry
	router   *Router
	metrics  *metrics.Metrics
	log      *slog.Logger

	// register is a channel for registering new clients.
	register chan *Client

	// unregisterCh is a channel for unregistering clients.
	unregisterCh chan *Client

	// inbound carries every decoded client message.
	inbound chan inbound

	done chan struct{}
}

// NewHub creates a Hub that manages rooms through registry and relays through
// router.
func NewHub(registry *Registry, router *Router, m *metrics.Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		registry:     registry,
		router:       router,
		metrics:      m,
		log:          logger.With("component", "hub"),
		register:     make(chan *Client),
		unregisterCh: make(chan *Client),
		inbound:      make(chan inbound, 64),
		done:         make(chan struct{}),
	}
}

// Registry returns the room registry the hub mutates.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Register hands a new client to the hub. It returns false once the hub has
// stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.unregisterCh <- c:
	case <-h.done:
	}
}

func (h *Hub) dispatch(c *Client, msg *protocol.Message) bool {
	select {
	case h.inbound <- inbound{client: c, msg: msg}:
		return true
	case <-h.done:
		return false
	}
}

// Run starts the hub's main processing loop and returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	clients := make(map[*Client]struct{})
	defer func() {
		for c := range clients {
			c.conn.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			clients[client] = struct{}{}
			h.metrics.Inc(metrics.Connections)
			client.log.Debug("client registered")

		case client := <-h.unregisterCh:
			if _, ok := clients[client]; !ok {
				continue
			}
			delete(clients, client)

			// Transport loss is an implicit leave.
			h.registry.Leave(client, "")
			h.metrics.Inc(metrics.Disconnects)
			client.log.Debug("client unregistered")

			client.closed = true
			close(client.send)

		case in := <-h.inbound:
			if _, ok := clients[in.client]; !ok {
				continue
			}
			h.handle(in.client, in.msg)
		}
	}
}

func (h *Hub) handle(c *Client, msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeJoin:
		if err := msg.Validate(h.router.limits); err != nil {
			h.metrics.Inc(metrics.DropMalformed)
			return
		}
		role, err := h.registry.Join(c, msg.RoomKey)
		if err == nil {
			c.log.Debug("joined", "room", msg.RoomKey, "role", role)
		}

	case protocol.TypeLeave:
		h.registry.Leave(c, msg.RoomKey)

	default:
		if protocol.IsRelayed(msg.Type) {
			h.router.Relay(c, msg)
			return
		}
		c.log.Debug("unexpected message type from client", "type", msg.Type)
		h.metrics.Inc(metrics.DropUnexpectedType)
	}
}
