package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const roomA = "negotiation:technology:T1"
const roomB = "chat:direct:D1"

var (
	u1 = Identity{ID: "u1", DisplayName: "Alice"}
	u2 = Identity{ID: "u2", DisplayName: "Bob"}
)

func TestMembership_JoinIdempotent(t *testing.T) {
	m := NewMembership()

	members, joined := m.Join(roomA, u1, "c1")
	assert.True(t, joined)
	assert.Equal(t, []Identity{u1}, members)

	members, joined = m.Join(roomA, u1, "c1")
	assert.False(t, joined)
	assert.Equal(t, []Identity{u1}, members)

	members, _ = m.Join(roomA, u2, "c2")
	assert.Equal(t, []Identity{u1, u2}, members, "sorted by identity id")
	assert.Equal(t, MembershipStats{Rooms: 1, Memberships: 2}, m.Stats())
}

func TestMembership_LeaveSequences(t *testing.T) {
	tests := []struct {
		name      string
		ops       func(m *Membership) (bool, int)
		wantLeft  bool
		wantRem   int
		wantRooms int
	}{
		{
			name: "join then leave drops empty room",
			ops: func(m *Membership) (bool, int) {
				m.Join(roomA, u1, "c1")
				return m.Leave(roomA, "u1", "c1")
			},
			wantLeft: true, wantRem: 0, wantRooms: 0,
		},
		{
			name: "second leave is a no-op",
			ops: func(m *Membership) (bool, int) {
				m.Join(roomA, u1, "c1")
				m.Join(roomA, u2, "c2")
				m.Leave(roomA, "u1", "c1")
				return m.Leave(roomA, "u1", "c1")
			},
			wantLeft: false, wantRem: 1, wantRooms: 1,
		},
		{
			name: "leaving a room never joined",
			ops: func(m *Membership) (bool, int) {
				return m.Leave(roomB, "u1", "c1")
			},
			wantLeft: false, wantRem: 0, wantRooms: 0,
		},
		{
			name: "other tab keeps identity in room",
			ops: func(m *Membership) (bool, int) {
				m.Join(roomA, u1, "c1")
				m.Join(roomA, u1, "c2")
				return m.Leave(roomA, "u1", "c1")
			},
			wantLeft: false, wantRem: 1, wantRooms: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMembership()
			left, rem := tt.ops(m)
			assert.Equal(t, tt.wantLeft, left)
			assert.Equal(t, tt.wantRem, rem)
			assert.Equal(t, tt.wantRooms, m.Stats().Rooms)
		})
	}
}

func TestMembership_PurgeConn(t *testing.T) {
	m := NewMembership()
	m.Join(roomA, u1, "c1")
	m.Join(roomB, u1, "c1")
	m.Join(roomB, u1, "c9")
	m.Join(roomA, u2, "c2")

	deps := m.PurgeConn("c1")
	assert.Equal(t, []Departure{{Room: roomA, Identity: u1, Remaining: 1}}, deps,
		"roomB still has u1 through c9")
	assert.Empty(t, m.ConnRooms("c1"))
	assert.Equal(t, []string{roomB}, m.RoomsOf("u1"))
	assert.Empty(t, m.PurgeConn("c1"))
}

func TestMembership_PurgeIdentity(t *testing.T) {
	m := NewMembership()
	m.Join(roomA, u1, "c1")
	m.Join(roomB, u1, "c2")
	m.Join(roomA, u2, "c3")

	deps := m.PurgeIdentity("u1")
	assert.Equal(t, []Departure{
		{Room: roomB, Identity: u1, Remaining: 0},
		{Room: roomA, Identity: u1, Remaining: 1},
	}, deps)
	assert.False(t, m.Joined(roomA, "c1"))
	assert.Empty(t, m.ConnRooms("c2"))
	assert.Equal(t, []Identity{u2}, m.MembersOf(roomA))
	assert.Empty(t, m.MembersOf(roomB))
	assert.Empty(t, m.PurgeIdentity("nobody"))
}
