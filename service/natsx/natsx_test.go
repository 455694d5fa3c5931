package natsx

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"PMarket/service/chat"
	"PMarket/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPusher struct {
	reqs []chat.PushRequest
	err  error
}

func (p *recordingPusher) PublishRequest(req chat.PushRequest) (int, error) {
	p.reqs = append(p.reqs, req)
	return 1, p.err
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, msg Message) error {
				order = append(order, name)
				return next(ctx, msg)
			}
		}
	}
	h := Chain(func(context.Context, Message) error {
		order = append(order, "handler")
		return nil
	}, mw("a"), mw("b"))

	require.NoError(t, h(context.Background(), Message{}))
	assert.Equal(t, []string{"a", "b", "handler"}, order)
}

func TestRecover(t *testing.T) {
	h := Chain(func(context.Context, Message) error { panic("boom") }, Recover())
	err := h(context.Background(), Message{Subject: "roompush.x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrInternal))
}

func TestIdempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	h := Chain(func(context.Context, Message) error {
		calls++
		return nil
	}, Idempotent(NewMemIdem(ctx, time.Minute), 0))

	withID := Message{Header: map[string]string{"Nats-Msg-Id": "m1"}}
	require.NoError(t, h(ctx, withID))
	require.NoError(t, h(ctx, withID))
	require.NoError(t, h(ctx, Message{}))
	require.NoError(t, h(ctx, Message{}))
	assert.Equal(t, 3, calls)
}

func TestMemIdemExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	mi := &memIdem{m: map[string]time.Time{}, ttl: time.Second, now: func() time.Time { return now }}

	seen, _ := mi.SeenOnce("k", 0)
	assert.False(t, seen)
	seen, _ = mi.SeenOnce("k", 0)
	assert.True(t, seen)

	now = now.Add(2 * time.Second)
	mi.sweep()
	assert.Empty(t, mi.m)
	seen, _ = mi.SeenOnce("k", 0)
	assert.False(t, seen)
}

func TestPushHandler(t *testing.T) {
	tests := []struct {
		name     string
		subject  string
		body     string
		wantRoom string
		wantErr  bool
	}{
		{name: "room in body", subject: "roompush.any", body: `{"room":"chat:direct:D1","event":"message:created","payload":{"id":"m1"}}`, wantRoom: "chat:direct:D1"},
		{name: "room from subject", subject: "roompush.negotiation:technology:T1", body: `{"event":"message:deleted","payload":{"id":"m1"}}`, wantRoom: "negotiation:technology:T1"},
		{name: "not json", subject: "roompush.x", body: `nope`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &recordingPusher{}
			err := PushHandler(p)(context.Background(), Message{Subject: tt.subject, Data: []byte(tt.body)})
			if tt.wantErr {
				assert.True(t, errors.Is(err, errs.ErrBadPayload))
				assert.Empty(t, p.reqs)
				return
			}
			require.NoError(t, err)
			require.Len(t, p.reqs, 1)
			assert.Equal(t, tt.wantRoom, p.reqs[0].Room)
			assert.True(t, json.Valid(p.reqs[0].Payload))
		})
	}
}

func TestPushHandler_PublishErrorSurfaces(t *testing.T) {
	p := &recordingPusher{err: errs.ErrInvalidRoom.Wrap()}
	h := Chain(PushHandler(p), Logging(zap.NewNop(), 0))
	err := h(context.Background(), Message{Subject: "roompush.bad", Data: []byte(`{"event":"e"}`)})
	assert.True(t, errors.Is(err, errs.ErrInvalidRoom))
}

func TestPushSubject(t *testing.T) {
	assert.Equal(t, "roompush.chat:direct:D1", PushSubject(DefaultPushSubject, "chat:direct:D1"))
	assert.Equal(t, "custom.chat:direct:D1", PushSubject("custom", "chat:direct:D1"))
	assert.Equal(t, "roompush.chat:direct:D1", PushSubject("", "chat:direct:D1"))
}

func TestNewClient_NoServers(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}
