package roomsync

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"PMarket/logger"
	"PMarket/protocol"
	"PMarket/tools/errs"
)

type WSConfig struct {
	URL         string
	Identity    string
	DisplayName string
	Token       string
	Header      http.Header
	Dialer      *websocket.Dialer

	WriteWait      time.Duration
	AuthTimeout    time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c *WSConfig) norm() {
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = 10 * time.Second
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
}

// WSTransport is the push channel over the gateway websocket. Every (re)connect
// authenticates first and then re-joins every room still wanted.
type WSTransport struct {
	conf WSConfig
	log  *zap.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	rooms     map[string]struct{}
	listeners map[uint64]func(PushEvent)
	states    map[uint64]func(bool)
	seq       uint64

	writeMu sync.Mutex
}

func NewWSTransport(conf WSConfig) *WSTransport {
	conf.norm()
	return &WSTransport{
		conf:      conf,
		log:       logger.Named("roomsync.ws").With(zap.String("identity", conf.Identity)),
		rooms:     make(map[string]struct{}),
		listeners: make(map[uint64]func(PushEvent)),
		states:    make(map[uint64]func(bool)),
	}
}

func (t *WSTransport) Listen(fn func(PushEvent)) func() {
	t.mu.Lock()
	t.seq++
	id := t.seq
	t.listeners[id] = fn
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

func (t *WSTransport) OnState(fn func(bool)) func() {
	t.mu.Lock()
	t.seq++
	id := t.seq
	t.states[id] = fn
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.states, id)
		t.mu.Unlock()
	}
}

func (t *WSTransport) Join(room string) error {
	t.mu.Lock()
	t.rooms[room] = struct{}{}
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	return t.write(conn, protocol.EventJoinRoom, protocol.RoomPayload{Room: room})
}

func (t *WSTransport) Leave(room string) error {
	t.mu.Lock()
	delete(t.rooms, room)
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	return t.write(conn, protocol.EventLeaveRoom, protocol.RoomPayload{Room: room})
}

// Run keeps the push channel up until ctx is done. A rejected authentication is
// not retried.
func (t *WSTransport) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.conf.InitialBackoff
	b.MaxInterval = t.conf.MaxBackoff
	b.MaxElapsedTime = 0
	bo := backoff.WithContext(b, ctx)

	for {
		connected, err := t.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errs.ErrAuthFailed.Is(err) {
			return err
		}
		if connected {
			bo.Reset()
		}
		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return nil
		}
		t.log.Warn("push channel down", zap.Error(err), zap.Duration("retry_in", wait))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// session runs one connection; connected reports whether it got past authentication.
func (t *WSTransport) session(ctx context.Context) (connected bool, err error) {
	conn, _, err := t.conf.Dialer.DialContext(ctx, t.conf.URL, t.conf.Header)
	if err != nil {
		return false, errs.WrapMsg(err, "dial", "url", t.conf.URL)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	if err := t.authenticate(conn); err != nil {
		return false, err
	}

	t.mu.Lock()
	t.conn = conn
	rooms := make([]string, 0, len(t.rooms))
	for r := range t.rooms {
		rooms = append(rooms, r)
	}
	t.mu.Unlock()
	t.emitState(true)
	defer func() {
		t.mu.Lock()
		t.conn = nil
		t.mu.Unlock()
		t.emitState(false)
	}()

	for _, r := range rooms {
		if err := t.write(conn, protocol.EventJoinRoom, protocol.RoomPayload{Room: r}); err != nil {
			return true, err
		}
	}
	t.log.Info("push channel up", zap.Int("rooms", len(rooms)))

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return true, errs.WrapMsg(err, "read")
		}
		env, err := protocol.ParseEnvelope(raw)
		if err != nil {
			t.log.Debug("dropping frame", zap.Error(err))
			continue
		}
		t.dispatch(PushEvent{Event: env.Event, Data: env.Data})
	}
}

func (t *WSTransport) authenticate(conn *websocket.Conn) error {
	err := t.write(conn, protocol.EventAuthenticate, protocol.AuthenticatePayload{
		Identity:    t.conf.Identity,
		DisplayName: t.conf.DisplayName,
		Token:       t.conf.Token,
	})
	if err != nil {
		return err
	}
	_ = conn.SetReadDeadline(time.Now().Add(t.conf.AuthTimeout))
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return errs.WrapMsg(err, "await authenticated")
		}
		env, err := protocol.ParseEnvelope(raw)
		if err != nil || env.Event != protocol.EventAuthenticated {
			continue
		}
		var p protocol.AuthenticatedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || !p.Success {
			return errs.ErrAuthFailed.WrapMsg("rejected", "identity", t.conf.Identity)
		}
		return conn.SetReadDeadline(time.Time{})
	}
}

func (t *WSTransport) write(conn *websocket.Conn, event string, data any) error {
	frame, err := protocol.Encode(event, data)
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(t.conf.WriteWait))
	return errs.WrapMsg(conn.WriteMessage(websocket.TextMessage, frame), "write", "event", event)
}

func (t *WSTransport) dispatch(ev PushEvent) {
	t.mu.Lock()
	fns := make([]func(PushEvent), 0, len(t.listeners))
	for _, fn := range t.listeners {
		fns = append(fns, fn)
	}
	t.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (t *WSTransport) emitState(up bool) {
	t.mu.Lock()
	fns := make([]func(bool), 0, len(t.states))
	for _, fn := range t.states {
		fns = append(fns, fn)
	}
	t.mu.Unlock()
	for _, fn := range fns {
		fn(up)
	}
}
