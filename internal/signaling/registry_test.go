package signaling

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Duet/internal/metrics"
	"github.com/BioHazard786/Duet/internal/protocol"
)

type fakePeer struct {
	id string

	mu   sync.Mutex
	msgs []*protocol.Message
}

func newFakePeer(id string) *fakePeer {
	return &fakePeer{id: id}
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Deliver(msg *protocol.Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return true
}

func (p *fakePeer) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.msgs))
	for i, m := range p.msgs {
		out[i] = m.Type
	}
	return out
}

func (p *fakePeer) last() *protocol.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.msgs) == 0 {
		return nil
	}
	return p.msgs[len(p.msgs)-1]
}

func (p *fakePeer) count(msgType string) int {
	n := 0
	for _, t := range p.types() {
		if t == msgType {
			n++
		}
	}
	return n
}

func TestRegistry_JoinAssignsRolesByArrival(t *testing.T) {
	r := NewRegistry(nil, nil)
	a, b := newFakePeer("a"), newFakePeer("b")

	role, err := r.Join(a, "room1")
	require.NoError(t, err)
	assert.Equal(t, RoleInitiator, role)
	assert.Equal(t, []string{protocol.TypeRoomCreated}, a.types())

	role, err = r.Join(b, "room1")
	require.NoError(t, err)
	assert.Equal(t, RoleResponder, role)
	assert.Equal(t, []string{protocol.TypeRoomJoined}, b.types())

	// The initiator is not notified by the registry itself.
	assert.Equal(t, []string{protocol.TypeRoomCreated}, a.types())
	assert.Equal(t, 2, r.Size("room1"))
}

func TestRegistry_ThirdJoinIsRejected(t *testing.T) {
	m := metrics.New()
	r := NewRegistry(m, nil)
	a, b, c := newFakePeer("a"), newFakePeer("b"), newFakePeer("c")

	_, err := r.Join(a, "room1")
	require.NoError(t, err)
	_, err = r.Join(b, "room1")
	require.NoError(t, err)

	_, err = r.Join(c, "room1")
	require.ErrorIs(t, err, ErrRoomFull)
	assert.Equal(t, []string{protocol.TypeFullRoom}, c.types())
	assert.False(t, r.IsMember(c, "room1"))
	assert.Equal(t, 2, r.Size("room1"))

	// Existing members are undisturbed.
	assert.Equal(t, []string{protocol.TypeRoomCreated}, a.types())
	assert.Equal(t, []string{protocol.TypeRoomJoined}, b.types())
	assert.EqualValues(t, 1, m.Get(metrics.RoomsFull))
}

func TestRegistry_ConcurrentJoinsAdmitAtMostTwo(t *testing.T) {
	for round := range 20 {
		r := NewRegistry(nil, nil)
		peers := make([]*fakePeer, 8)
		for i := range peers {
			peers[i] = newFakePeer(fmt.Sprintf("p%d", i))
		}

		var wg sync.WaitGroup
		for _, p := range peers {
			wg.Add(1)
			go func(p *fakePeer) {
				defer wg.Done()
				r.Join(p, "room")
			}(p)
		}
		wg.Wait()

		created, joined, full := 0, 0, 0
		for _, p := range peers {
			created += p.count(protocol.TypeRoomCreated)
			joined += p.count(protocol.TypeRoomJoined)
			full += p.count(protocol.TypeFullRoom)
		}
		assert.Equal(t, 1, created, "round %d", round)
		assert.Equal(t, 1, joined, "round %d", round)
		assert.Equal(t, len(peers)-2, full, "round %d", round)
		assert.Equal(t, 2, r.Size("room"), "round %d", round)
	}
}

func TestRegistry_LeaveNotifiesRemainingMemberOnce(t *testing.T) {
	r := NewRegistry(nil, nil)
	a, b := newFakePeer("a"), newFakePeer("b")
	r.Join(a, "room1")
	r.Join(b, "room1")

	assert.True(t, r.Leave(a, "room1"))
	assert.Equal(t, 1, b.count(protocol.TypePeerLeft))
	assert.Equal(t, 0, a.count(protocol.TypePeerLeft))

	// Leaving again is a no-op.
	assert.False(t, r.Leave(a, "room1"))
	assert.Equal(t, 1, b.count(protocol.TypePeerLeft))
}

func TestRegistry_LeaveAloneSendsNothing(t *testing.T) {
	r := NewRegistry(nil, nil)
	a := newFakePeer("a")
	r.Join(a, "room1")

	assert.True(t, r.Leave(a, ""))
	assert.Equal(t, []string{protocol.TypeRoomCreated}, a.types())
	assert.Equal(t, 0, r.Size("room1"))
	assert.Equal(t, Stats{}, r.Snapshot())
}

func TestRegistry_LeaveWrongRoomIsNoop(t *testing.T) {
	r := NewRegistry(nil, nil)
	a, b := newFakePeer("a"), newFakePeer("b")
	r.Join(a, "room1")
	r.Join(b, "room1")

	assert.False(t, r.Leave(a, "room2"))
	assert.Equal(t, 2, r.Size("room1"))
	assert.Equal(t, 0, b.count(protocol.TypePeerLeft))

	stranger := newFakePeer("s")
	assert.False(t, r.Leave(stranger, ""))
}

func TestRegistry_SurvivorBecomesInitiator(t *testing.T) {
	r := NewRegistry(nil, nil)
	a, b, c := newFakePeer("a"), newFakePeer("b"), newFakePeer("c")
	r.Join(a, "room1")
	r.Join(b, "room1")
	r.Leave(a, "")

	role, err := r.Join(c, "room1")
	require.NoError(t, err)
	assert.Equal(t, RoleResponder, role)

	// Re-joining reports b's current role.
	role, err = r.Join(b, "room1")
	require.NoError(t, err)
	assert.Equal(t, RoleInitiator, role)
	assert.Equal(t, protocol.TypeRoomCreated, b.last().Type)
}

func TestRegistry_JoinElsewhereLeavesCurrentRoom(t *testing.T) {
	r := NewRegistry(nil, nil)
	a, b := newFakePeer("a"), newFakePeer("b")
	r.Join(a, "room1")
	r.Join(b, "room1")

	role, err := r.Join(a, "room2")
	require.NoError(t, err)
	assert.Equal(t, RoleInitiator, role)

	key, ok := r.RoomOf(a)
	require.True(t, ok)
	assert.Equal(t, "room2", key)
	assert.Equal(t, 1, r.Size("room1"))
	assert.Equal(t, 1, b.count(protocol.TypePeerLeft))
}

func TestRegistry_RejectedJoinElsewhereKeepsCurrentRoom(t *testing.T) {
	r := NewRegistry(nil, nil)
	a, b := newFakePeer("a"), newFakePeer("b")
	c, d := newFakePeer("c"), newFakePeer("d")
	r.Join(a, "room1")
	r.Join(b, "room1")
	r.Join(c, "room2")
	r.Join(d, "room2")

	_, err := r.Join(a, "room2")
	require.ErrorIs(t, err, ErrRoomFull)
	assert.Equal(t, protocol.TypeFullRoom, a.last().Type)

	key, ok := r.RoomOf(a)
	require.True(t, ok)
	assert.Equal(t, "room1", key)
	assert.Equal(t, 2, r.Size("room1"))
	assert.Equal(t, 2, r.Size("room2"))
	assert.Zero(t, b.count(protocol.TypePeerLeft))
	assert.Equal(t, Stats{Rooms: 2, Members: 4, FullRooms: 2}, r.Snapshot())
}

func TestRegistry_RoomRemovedWhenEmpty(t *testing.T) {
	r := NewRegistry(nil, nil)
	a, b := newFakePeer("a"), newFakePeer("b")
	r.Join(a, "room1")
	r.Join(b, "room1")
	assert.Equal(t, Stats{Rooms: 1, Members: 2, FullRooms: 1}, r.Snapshot())

	r.Leave(a, "")
	r.Leave(b, "")
	assert.Equal(t, Stats{}, r.Snapshot())

	// A fresh join on the same key is the initiator path again.
	c := newFakePeer("c")
	role, err := r.Join(c, "room1")
	require.NoError(t, err)
	assert.Equal(t, RoleInitiator, role)
}
