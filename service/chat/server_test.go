package chat

import (
	"encoding/json"
	"testing"
	"time"

	"PMarket/tools/errs"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcHandler struct {
	event string
	fn    func(ctx *Context, sess *Session, env *Envelope) error
}

func (h funcHandler) Type() string { return h.event }
func (h funcHandler) Handle(ctx *Context, sess *Session, env *Envelope) error {
	return h.fn(ctx, sess, env)
}

func frame(t *testing.T, event string, data any) []byte {
	t.Helper()
	b, err := Encode(event, data)
	require.NoError(t, err)
	return b
}

func lastError(t *testing.T, c *mockConn) ErrorPayload {
	t.Helper()
	envs := c.envelopes()
	require.NotEmpty(t, envs)
	last := envs[len(envs)-1]
	require.Equal(t, EventError, last.Event)
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(last.Data, &p))
	return p
}

func newTestServer(t *testing.T) (*Server, *Metrics) {
	t.Helper()
	m := NewMetrics(prometheus.NewRegistry())
	s := NewServer(Options{Metrics: m})
	t.Cleanup(s.Close)
	return s, m
}

func TestServer_DispatchErrors(t *testing.T) {
	s, m := newTestServer(t)
	c := newMockConn("c1")
	sess := s.Open(c)

	s.Dispatch(sess, []byte("not json"))
	assert.Equal(t, errs.BadPayloadCode, lastError(t, c).Code)

	s.Dispatch(sess, []byte(`{"data":{}}`))
	assert.Equal(t, errs.InvalidEventCode, lastError(t, c).Code)

	s.Dispatch(sess, frame(t, "teleport", nil))
	p := lastError(t, c)
	assert.Equal(t, errs.UnknownEventCode, p.Code)
	assert.Equal(t, "UNKNOWN_EVENT", p.Message)
	assert.Equal(t, "teleport", p.Event)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Events.WithLabelValues("unknown")))
}

func TestServer_HandlerPanicIsolated(t *testing.T) {
	s, m := newTestServer(t)
	s.Register(funcHandler{event: "boom", fn: func(*Context, *Session, *Envelope) error {
		panic("handler exploded")
	}})
	s.Register(funcHandler{event: "echo", fn: func(_ *Context, sess *Session, env *Envelope) error {
		return sess.Send("echoed", env.Data)
	}})

	bad, good := newMockConn("c1"), newMockConn("c2")
	badSess, goodSess := s.Open(bad), s.Open(good)

	s.Dispatch(badSess, frame(t, "boom", nil))
	p := lastError(t, bad)
	assert.Equal(t, errs.ServerInternalError, p.Code)
	assert.Equal(t, "INTERNAL", p.Message)
	assert.Empty(t, p.Detail)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HandlerPanics))

	s.Dispatch(goodSess, frame(t, "echo", map[string]int{"n": 1}))
	assert.Equal(t, []string{"echoed"}, good.events())

	s.Dispatch(badSess, frame(t, "echo", nil))
	assert.Equal(t, "echoed", bad.events()[len(bad.events())-1], "connection stays usable")
}

func TestServer_BindAndDisconnect(t *testing.T) {
	s, _ := newTestServer(t)
	c1, c2, c3 := newMockConn("c1"), newMockConn("c2"), newMockConn("c3")
	s1, s2, s3 := s.Open(c1), s.Open(c2), s.Open(c3)

	s.Bind(s1, u1)
	s.Bind(s2, u2)
	s.Bind(s3, Identity{ID: "u3"})
	s.Rooms().Join(roomA, u1, "c1")
	s.Rooms().Join(roomA, u2, "c2")
	s.Rooms().Join(roomB, u1, "c1")

	s.Disconnect(s1)
	s.Disconnect(s1)

	assert.False(t, s.Registry().IsOnline("u1"))
	assert.Empty(t, s.Rooms().RoomsOf("u1"))
	assert.Equal(t, []string{EventUserLeft, EventUserStatus}, c2.events(),
		"one user-left for the shared room, then the global offline status")
	assert.Equal(t, []string{EventUserStatus}, c3.events())

	var st StatusPayload
	require.NoError(t, json.Unmarshal(c3.envelopes()[0].Data, &st))
	assert.Equal(t, "u1", st.Identity)
	assert.Equal(t, StatusOffline, st.Status)
	assert.NotZero(t, st.LastSeen)

	assert.Equal(t, Stats{Rooms: 1, Connections: 2, Identities: 2, Sessions: 2}, s.Stats())
}

func TestServer_DisconnectOtherTabStaysOnline(t *testing.T) {
	s, _ := newTestServer(t)
	tab1, tab2, peer := newMockConn("t1"), newMockConn("t2"), newMockConn("p")
	st1 := s.Open(tab1)
	s.Bind(st1, u1)
	s.Bind(s.Open(tab2), u1)
	s.Bind(s.Open(peer), u2)
	s.Rooms().Join(roomA, u1, "t1")
	s.Rooms().Join(roomA, u2, "p")

	s.Disconnect(st1)

	assert.True(t, s.Registry().IsOnline("u1"))
	assert.Equal(t, []string{EventUserLeft}, peer.events(), "u1 left roomA; no offline status")
	assert.Empty(t, tab2.events())
}

func TestServer_LastJoinedTabEmitsSingleLeft(t *testing.T) {
	s, _ := newTestServer(t)
	tab1, tab2, peer := newMockConn("t1"), newMockConn("t2"), newMockConn("p")
	st1, st2 := s.Open(tab1), s.Open(tab2)
	s.Bind(st1, u1)
	s.Bind(st2, u1)
	s.Bind(s.Open(peer), u2)
	s.Rooms().Join(roomA, u1, "t1")
	s.Rooms().Join(roomA, u1, "t2")
	s.Rooms().Join(roomA, u2, "p")

	s.Disconnect(st1)
	assert.Empty(t, peer.events(), "u1 is still in roomA through t2")

	s.Disconnect(st2)
	assert.Equal(t, []string{EventUserLeft, EventUserStatus}, peer.events())
	assert.Equal(t, []Identity{u2}, s.Rooms().MembersOf(roomA))
}

func TestServer_RebindReleasesPreviousIdentity(t *testing.T) {
	s, _ := newTestServer(t)
	c, peer := newMockConn("c1"), newMockConn("c2")
	sess, sp := s.Open(c), s.Open(peer)
	s.Bind(sess, u1)
	s.Bind(sp, u2)
	s.Rooms().Join(roomA, u1, "c1")
	s.Rooms().Join(roomA, u2, "c2")

	s.Bind(sess, Identity{ID: "u9"})

	id, ok := sess.Identity()
	require.True(t, ok)
	assert.Equal(t, "u9", id.ID)
	assert.False(t, s.Registry().IsOnline("u1"))
	assert.Equal(t, []Identity{u2}, s.Rooms().MembersOf(roomA))
	assert.Equal(t, []string{EventUserLeft, EventUserStatus}, peer.events())
}

func TestServer_KickPurgesIdentity(t *testing.T) {
	s, _ := newTestServer(t)
	c1, c2, peer := newMockConn("c1"), newMockConn("c2"), newMockConn("p")
	for conn, id := range map[*mockConn]Identity{c1: u1, c2: u1, peer: u2} {
		s.Bind(s.Open(conn), id)
	}
	s.Rooms().Join(roomA, u1, "c1")
	s.Rooms().Join(roomA, u1, "c2")
	s.Rooms().Join(roomA, u2, "p")

	assert.Equal(t, 2, s.Kick("u1"))
	assert.True(t, c1.closed)
	assert.True(t, c2.closed)
	assert.Equal(t, []Identity{u2}, s.Rooms().MembersOf(roomA))
	assert.Equal(t, []string{EventUserLeft}, peer.events())
}

func TestServer_ServeInOrderAndUnauthTTL(t *testing.T) {
	s := NewServer(Options{UnauthTTL: 20 * time.Millisecond})
	t.Cleanup(s.Close)
	var seen []int
	s.Register(funcHandler{event: "n", fn: func(_ *Context, _ *Session, env *Envelope) error {
		var v int
		_ = json.Unmarshal(env.Data, &v)
		seen = append(seen, v)
		return nil
	}})

	c := newMockConn("c1")
	sess := s.Open(c)
	frames := make(chan []byte, 8)
	done := make(chan struct{})
	go func() {
		s.Serve(sess, frames)
		close(done)
	}()

	for i := 1; i <= 5; i++ {
		frames <- frame(t, "n", i)
	}
	assert.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.closed
	}, time.Second, 5*time.Millisecond, "unauthenticated connection closed after ttl")

	close(frames)
	<-done
	assert.Equal(t, []int{1, 2, 3, 4, 5}, seen)
	_, open := s.Session("c1")
	assert.False(t, open)
}
