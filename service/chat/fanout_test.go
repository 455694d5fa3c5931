package chat

import (
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fanoutFixture struct {
	reg     *Registry
	rooms   *Membership
	bc      *Broadcaster
	metrics *Metrics
}

func newFanoutFixture(t *testing.T) *fanoutFixture {
	t.Helper()
	reg := NewRegistry()
	t.Cleanup(reg.Close)
	rooms := NewMembership()
	metrics := NewMetrics(prometheus.NewRegistry())
	return &fanoutFixture{reg: reg, rooms: rooms, bc: NewBroadcaster(reg, rooms, metrics), metrics: metrics}
}

func (f *fanoutFixture) connect(id Identity, connID string, rooms ...string) *mockConn {
	c := newMockConn(connID)
	f.reg.Register(id, c)
	for _, r := range rooms {
		f.rooms.Join(r, id, connID)
	}
	return c
}

func TestBroadcaster_ToRoom(t *testing.T) {
	f := newFanoutFixture(t)
	a := f.connect(u1, "c1", roomA)
	aTab := f.connect(u1, "c1b")
	b := f.connect(u2, "c2", roomA)
	outsider := f.connect(Identity{ID: "u3"}, "c3", roomB)

	n := f.bc.ToRoom(roomA, "c1", EventUserTypingStart, PresencePayload{Identity: "u1", Room: roomA})

	assert.Equal(t, 2, n)
	assert.Empty(t, a.events(), "origin excluded")
	assert.Equal(t, []string{EventUserTypingStart}, aTab.events(), "other tabs of a member receive it")
	assert.Equal(t, []string{EventUserTypingStart}, b.events())
	assert.Empty(t, outsider.events())
}

func TestBroadcaster_StaleMemberSkipped(t *testing.T) {
	f := newFanoutFixture(t)
	f.rooms.Join(roomA, Identity{ID: "ghost"}, "gone")
	b := f.connect(u2, "c2", roomA)

	assert.Equal(t, 1, f.bc.ToRoom(roomA, "", "x:y", nil))
	assert.Len(t, b.events(), 1)
	assert.Zero(t, f.bc.ToRoom("no:such:room", "", "x:y", nil))
}

func TestBroadcaster_FullQueueDrops(t *testing.T) {
	f := newFanoutFixture(t)
	slow := f.connect(u1, "c1", roomA)
	slow.full = true
	fast := f.connect(u2, "c2", roomA)

	assert.Equal(t, 1, f.bc.ToRoom(roomA, "", "x:y", nil))
	assert.Len(t, fast.events(), 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.DroppedFrames))
}

func TestBroadcaster_ToAllAndToConn(t *testing.T) {
	f := newFanoutFixture(t)
	a := f.connect(u1, "c1")
	b := f.connect(u2, "c2")

	assert.Equal(t, 1, f.bc.ToAll("c1", EventUserStatus, StatusPayload{Identity: "u1", Status: StatusAway}))
	assert.Empty(t, a.events())
	require.Len(t, b.envelopes(), 1)

	var st StatusPayload
	require.NoError(t, json.Unmarshal(b.envelopes()[0].Data, &st))
	assert.Equal(t, StatusAway, st.Status)

	assert.True(t, f.bc.ToConn("c1", EventPong, PongPayload{TS: 1}))
	assert.False(t, f.bc.ToConn("missing", EventPong, nil))
}

func TestPusher_Publish(t *testing.T) {
	f := newFanoutFixture(t)
	p := NewPusher(f.bc, f.metrics)
	a := f.connect(u1, "c1", roomA)
	b := f.connect(u2, "c2", roomA)

	n, err := p.Publish(roomA, "message:created", map[string]any{"id": "m1"})
	require.NoError(t, err)
	assert.Equal(t, 2, n, "publish never excludes anyone")

	n, err = p.Publish(roomA, "message:deleted", json.RawMessage(`{"id":"m1"}`))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, c := range []*mockConn{a, b} {
		assert.Equal(t, []string{"message:created", "message:deleted"}, c.events())
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Published.WithLabelValues("message:created")))

	n, err = p.Publish("negotiation:technology:EMPTY", "message:created", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPusher_PublishRejects(t *testing.T) {
	f := newFanoutFixture(t)
	p := NewPusher(f.bc, f.metrics)

	tests := []struct {
		name    string
		room    string
		event   string
		payload any
	}{
		{name: "two segments", room: "negotiation:T1", event: "message:created"},
		{name: "empty segment", room: "negotiation::T1", event: "message:created"},
		{name: "colon in entity", room: "a:b:c:d", event: "message:created"},
		{name: "empty event", room: roomA, event: ""},
		{name: "event with space", room: roomA, event: "message created"},
		{name: "unencodable", room: roomA, event: "message:created", payload: func() {}},
		{name: "invalid raw json", room: roomA, event: "message:created", payload: json.RawMessage(`{`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Publish(tt.room, tt.event, tt.payload)
			assert.Error(t, err)
		})
	}
}

func TestParseRoom(t *testing.T) {
	r, err := ParseRoom("negotiation:technology:T1")
	require.NoError(t, err)
	assert.Equal(t, Room{Namespace: "negotiation", Subtype: "technology", EntityID: "T1"}, r)
	assert.Equal(t, "negotiation:technology:T1", r.Key())

	for _, bad := range []string{"", "a", "a:b", "a:b:", ":b:c", "a:b:c:d", "a: :c"} {
		assert.False(t, ValidRoom(bad), bad)
	}
}
