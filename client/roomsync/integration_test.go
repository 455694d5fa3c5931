package roomsync

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PMarket/global"
	"PMarket/service/gateway"
	"PMarket/tools/errs"
)

func startGateway(t *testing.T) (*gateway.App, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := global.Default()
	cfg.WS.UnauthTTL = 0
	app, err := gateway.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(app.Server().Close)
	ts := httptest.NewServer(app.Handler())
	t.Cleanup(ts.Close)
	return app, ts
}

func postJSON(t *testing.T, url string, body any) map[string]any {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHTTPSource_AgainstGateway(t *testing.T) {
	_, ts := startGateway(t)
	src := NewHTTPSource(ts.URL, "", time.Second)
	ctx := context.Background()

	postJSON(t, ts.URL+"/api/rooms/"+room+"/messages", map[string]any{"senderId": "u1", "body": "hello"})
	created := postJSON(t, ts.URL+"/api/rooms/"+room+"/messages", map[string]any{
		"senderId": "u1", "body": "offer", "offer": map[string]any{"amount": 1500, "currency": "usd"},
	})

	msgs, err := src.ListMessages(ctx, room)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Body)
	assert.True(t, msgs[1].IsOffer)

	o, err := src.GetOffer(ctx, created["offerId"].(string))
	require.NoError(t, err)
	assert.EqualValues(t, 1500, o.Amount)
	assert.Equal(t, "USD", o.Currency)

	_, err = src.GetOffer(ctx, "missing")
	assert.ErrorIs(t, err, errs.ErrRecordNotFound)

	_, err = src.ListMessages(ctx, "lobby")
	assert.ErrorIs(t, err, errs.ErrInvalidRoom)
}

func TestEngine_AgainstGateway(t *testing.T) {
	app, ts := startGateway(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := NewWSTransport(WSConfig{
		URL:            "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
		Identity:       "watcher",
		DisplayName:    "Watcher",
		InitialBackoff: 20 * time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
	})
	go func() { _ = tr.Run(ctx) }()

	e, err := Open(ctx, Config{Room: room, PollInterval: time.Hour}, NewHTTPSource(ts.URL, "", time.Second), tr)
	require.NoError(t, err)
	defer e.Close()
	require.Eventually(t, e.PushReady, 3*time.Second, 10*time.Millisecond)

	postJSON(t, ts.URL+"/api/rooms/"+room+"/messages", map[string]any{
		"senderId": "seller", "body": "deal?", "offer": map[string]any{"amount": 99, "currency": "eur"},
	})
	require.Eventually(t, hasMessages(e, 1), 3*time.Second, 10*time.Millisecond)
	got := e.Messages()[0]
	require.NotNil(t, got.Offer)
	assert.Equal(t, "EUR", got.Offer.Currency)

	// dropped connection: the transport re-authenticates and re-joins
	assert.Equal(t, 1, app.Server().Kick("watcher"))

	postJSON(t, ts.URL+"/api/rooms/"+room+"/messages", map[string]any{"senderId": "buyer", "body": "yes"})
	require.Eventually(t, hasMessages(e, 2), 3*time.Second, 10*time.Millisecond)
}
