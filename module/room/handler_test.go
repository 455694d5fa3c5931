package room

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"PMarket/middleware"
	"PMarket/module/room/model"
	"PMarket/module/room/store"
	"PMarket/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const roomKey = "negotiation:technology:T1"

type published struct {
	room, event string
	payload     any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *fakePublisher) Publish(room, event string, payload any) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	p.events = append(p.events, published{room: room, event: event, payload: payload})
	return 1, nil
}

type fakePresence map[string]bool

func (f fakePresence) IsOnline(id string) bool { return f[id] }

type fakeMirror struct {
	online   map[string]bool
	lastSeen time.Time
}

func (f fakeMirror) IsOnline(_ context.Context, id string) (bool, error) { return f.online[id], nil }
func (f fakeMirror) LastSeen(_ context.Context, _ string) (time.Time, bool, error) {
	return f.lastSeen, !f.lastSeen.IsZero(), nil
}

// orderStore records whether a publish was observed before the write finished.
type orderStore struct {
	*store.Memory
	pub     *fakePublisher
	inserts int
	seenPub int
}

func (s *orderStore) InsertMessage(ctx context.Context, m *model.Message) error {
	s.pub.mu.Lock()
	s.seenPub = len(s.pub.events)
	s.pub.mu.Unlock()
	s.inserts++
	return s.Memory.InsertMessage(ctx, m)
}

type fixture struct {
	r     *gin.Engine
	store store.Store
	pub   *fakePublisher
}

func newFixture(t *testing.T, s store.Store, pub *fakePublisher, opts ...Option) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if s == nil {
		s = store.NewMemory()
	}
	if pub == nil {
		pub = &fakePublisher{}
	}
	h := NewHandler(s, pub, fakePresence{"u1": true}, nil, opts...)
	h.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	r := gin.New()
	h.RegisterRoutes(r, middleware.RouteOpt{})
	return &fixture{r: r, store: s, pub: pub}
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestCreateMessage_WriteThenNotify(t *testing.T) {
	pub := &fakePublisher{}
	s := &orderStore{Memory: store.NewMemory(), pub: pub}
	f := newFixture(t, s, pub)

	w := f.do(http.MethodPost, "/api/rooms/"+roomKey+"/messages", map[string]any{
		"senderId": "u1", "senderName": "Alice", "body": "hello",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	msg := decode[model.Message](t, w)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, roomKey, msg.Room)

	assert.Equal(t, 1, s.inserts)
	assert.Equal(t, 0, s.seenPub)
	require.Len(t, pub.events, 1)
	assert.Equal(t, EventMessageCreated, pub.events[0].event)
	assert.Equal(t, roomKey, pub.events[0].room)

	list := decode[[]model.Message](t, f.do(http.MethodGet, "/api/rooms/"+roomKey+"/messages", nil))
	require.Len(t, list, 1)
	assert.Equal(t, msg.ID, list[0].ID)
}

func TestCreateMessage_Offer(t *testing.T) {
	f := newFixture(t, nil, nil)

	w := f.do(http.MethodPost, "/api/rooms/"+roomKey+"/messages", map[string]any{
		"senderId": "u1", "body": "my offer", "offer": map[string]any{"amount": 125000, "currency": "usd"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	msg := decode[model.Message](t, w)
	assert.True(t, msg.IsOffer)
	require.NotNil(t, msg.Offer)
	assert.Equal(t, msg.OfferID, msg.Offer.ID)
	assert.Equal(t, "USD", msg.Offer.Currency)
	assert.Equal(t, model.OfferPending, msg.Offer.Status)

	got := decode[model.Offer](t, f.do(http.MethodGet, "/api/offers/"+msg.OfferID, nil))
	assert.Equal(t, int64(125000), got.Amount)

	listed := decode[[]model.Message](t, f.do(http.MethodGet, "/api/rooms/"+roomKey+"/messages", nil))
	require.Len(t, listed, 1)
	assert.Nil(t, listed[0].Offer)
	assert.Equal(t, msg.OfferID, listed[0].OfferID)
}

func TestCreateMessage_Rejects(t *testing.T) {
	f := newFixture(t, nil, nil)

	tests := []struct {
		name   string
		room   string
		body   any
		status int
		code   int
	}{
		{name: "bad room", room: "nope", body: map[string]any{"senderId": "u1", "body": "x"}, status: http.StatusBadRequest, code: errs.InvalidRoomCode},
		{name: "missing sender", room: roomKey, body: map[string]any{"body": "x"}, status: http.StatusBadRequest, code: errs.BadPayloadCode},
		{name: "empty message", room: roomKey, body: map[string]any{"senderId": "u1"}, status: http.StatusBadRequest, code: errs.BadPayloadCode},
		{name: "offer without amount", room: roomKey, body: map[string]any{"senderId": "u1", "offer": map[string]any{"currency": "USD"}}, status: http.StatusBadRequest, code: errs.BadPayloadCode},
		{name: "not json", room: roomKey, body: "plain", status: http.StatusBadRequest, code: errs.BadPayloadCode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/api/rooms/"+tt.room+"/messages", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode[errs.CodeError](t, w).Code)
		})
	}
	assert.Empty(t, f.pub.events)
}

func TestUpdateAndDelete(t *testing.T) {
	f := newFixture(t, nil, nil)
	created := decode[model.Message](t, f.do(http.MethodPost, "/api/rooms/"+roomKey+"/messages",
		map[string]any{"senderId": "u1", "body": "first"}))

	w := f.do(http.MethodPatch, "/api/rooms/"+roomKey+"/messages/"+created.ID, map[string]any{"body": "edited"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "edited", decode[model.Message](t, w).Body)

	w = f.do(http.MethodDelete, "/api/rooms/"+roomKey+"/messages/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	deleted := decode[model.DeletedMessage](t, w)
	assert.Equal(t, created.ID, deleted.ID)

	w = f.do(http.MethodDelete, "/api/rooms/"+roomKey+"/messages/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.Len(t, f.pub.events, 3)
	assert.Equal(t, []string{EventMessageCreated, EventMessageUpdated, EventMessageDeleted},
		[]string{f.pub.events[0].event, f.pub.events[1].event, f.pub.events[2].event})
}

func TestGetOffer_NotFound(t *testing.T) {
	f := newFixture(t, nil, nil)
	w := f.do(http.MethodGet, "/api/offers/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, errs.RecordNotFoundCode, decode[errs.CodeError](t, w).Code)
}

func TestPublishFailureKeepsWrite(t *testing.T) {
	pub := &fakePublisher{err: errs.ErrInvalidEvent.Wrap()}
	f := newFixture(t, nil, pub)
	w := f.do(http.MethodPost, "/api/rooms/"+roomKey+"/messages", map[string]any{"senderId": "u1", "body": "x"})
	require.Equal(t, http.StatusOK, w.Code)

	list := decode[[]model.Message](t, f.do(http.MethodGet, "/api/rooms/"+roomKey+"/messages", nil))
	assert.Len(t, list, 1)
}

func TestIdentityOnline(t *testing.T) {
	seen := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, nil, nil, WithMirror(fakeMirror{online: map[string]bool{"u2": true}, lastSeen: seen}))

	tests := []struct {
		id       string
		online   bool
		local    bool
		lastSeen int64
	}{
		{id: "u1", online: true, local: true},
		{id: "u2", online: true},
		{id: "u3", lastSeen: seen.UnixMilli()},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got := decode[onlineResp](t, f.do(http.MethodGet, "/api/identities/"+tt.id+"/online", nil))
			assert.Equal(t, onlineResp{Identity: tt.id, Online: tt.online, Local: tt.local, LastSeen: tt.lastSeen}, got)
		})
	}
}

func TestNewHandler_RequiresDeps(t *testing.T) {
	var pub *fakePublisher
	assert.Panics(t, func() { NewHandler(store.NewMemory(), pub, fakePresence{}, nil) })
	assert.Panics(t, func() { NewHandler(nil, &fakePublisher{}, fakePresence{}, nil) })
	assert.NotPanics(t, func() { NewHandler(store.NewMemory(), &fakePublisher{}, fakePresence{}, nil) })
}
