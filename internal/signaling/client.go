package signaling

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/BioHazard786/Duet/internal/metrics"
	"github.com/BioHazard786/Duet/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// DefaultMaxMessageSize is enough for SDP with trickled candidates.
	DefaultMaxMessageSize = 64 * 1024

	// sendBuffer is the number of outbound messages queued per connection.
	sendBuffer = 256
)

// ClientOptions tune per-connection limits.
type ClientOptions struct {
	MaxMessageSize int64

	// MessagesPerSecond and Burst bound inbound traffic per connection.
	// Zero disables rate limiting.
	MessagesPerSecond float64
	Burst             int
}

// Client is a wrapper for a single websocket connection (a peer).
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	id   string

	// send is a buffered channel for all outbound messages. The hub writes to
	// it and WritePump drains it to the websocket.
	send chan *protocol.Message

	// closed is owned by the hub goroutine.
	closed bool

	maxMessageSize int64
	limiter        *rate.Limiter
	log            *slog.Logger
}

// NewClient wraps conn and assigns it a random ID.
func NewClient(hub *Hub, conn *websocket.Conn, opts ClientOptions) *Client {
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = DefaultMaxMessageSize
	}

	var limiter *rate.Limiter
	if opts.MessagesPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = int(opts.MessagesPerSecond)
		}
		limiter = rate.NewLimiter(rate.Limit(opts.MessagesPerSecond), burst)
	}

	id := uuid.NewString()
	return &Client{
		hub:            hub,
		conn:           conn,
		id:             id,
		send:           make(chan *protocol.Message, sendBuffer),
		maxMessageSize: opts.MaxMessageSize,
		limiter:        limiter,
		log:            hub.log.With("peer", id, "remote", conn.RemoteAddr().String()),
	}
}

// ID implements Peer.
func (c *Client) ID() string {
	return c.id
}

// Deliver implements Peer. It never blocks the hub: when the send buffer is
// full the connection is closed, and its read pump unregisters it.
func (c *Client) Deliver(msg *protocol.Message) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.log.Warn("send buffer full, closing slow client")
		c.hub.metrics.Inc(metrics.SlowConsumerClosure)
		c.conn.Close()
		return false
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug("read error", "err", err)
			}
			return
		}

		if c.limiter != nil && !c.limiter.Allow() {
			c.hub.metrics.Inc(metrics.DropRateLimited)
			continue
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			c.log.Debug("dropping undecodable frame", "err", err)
			c.hub.metrics.Inc(metrics.DropMalformed)
			continue
		}

		if !c.hub.dispatch(c, msg) {
			return
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.log.Debug("write error", "err", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
