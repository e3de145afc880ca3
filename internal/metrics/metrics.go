package metrics

import "sync"

// Counter names used by the signaling server.
const (
	Connections         = "connections"
	Disconnects         = "disconnects"
	RoomsCreated        = "rooms_created"
	RoomsJoined         = "rooms_joined"
	RoomsFull           = "rooms_full"
	PeersLeft           = "peers_left"
	Relayed             = "relayed"
	DropMalformed       = "dropped_malformed"
	DropNotMember       = "dropped_not_member"
	DropNoPeer          = "dropped_no_peer"
	DropRateLimited     = "dropped_rate_limited"
	DropUnexpectedType  = "dropped_unexpected_type"
	SlowConsumerClosure = "slow_consumer_closed"
)

// Metrics is a concurrency-safe counter registry.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

// Inc is safe to call on a nil *Metrics.
func (m *Metrics) Inc(name string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name]++
	m.mu.Unlock()
}

// IncRelayed counts one relayed message of the given type.
func (m *Metrics) IncRelayed(msgType string) {
	m.Inc(Relayed + "_" + msgType)
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	out := make(map[string]uint64)
	if m == nil {
		return out
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
