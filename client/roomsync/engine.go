package roomsync

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"PMarket/logger"
	"PMarket/protocol"
	"PMarket/tools/errs"
	"PMarket/tools/safe"
)

var ErrClosed = errs.New("roomsync: engine closed")

type Config struct {
	Room           string
	PollInterval   time.Duration
	OfferCacheSize int
	IDTieBreak     bool
	Logger         *zap.Logger
}

// Engine keeps one room's message list. Polls, pushes and refreshes are applied
// one at a time on the engine's own goroutine.
type Engine struct {
	conf    Config
	src     Source
	tr      Transport
	offers  *OfferCache
	reducer Reducer
	log     *zap.Logger

	mu    sync.RWMutex
	state State
	subs  map[uint64]func([]Message)
	seq   uint64

	pushReady atomic.Bool
	inbox     chan func(context.Context)
	detach    []func()
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Open starts polling conf.Room and, when tr is not nil, joins it on the push
// channel. The first poll runs immediately.
func Open(ctx context.Context, conf Config, src Source, tr Transport) (*Engine, error) {
	safe.MustNotNil(src, "source")
	if _, err := protocol.ParseRoom(conf.Room); err != nil {
		return nil, err
	}
	if conf.PollInterval <= 0 {
		conf.PollInterval = 5 * time.Second
	}
	if conf.Logger == nil {
		conf.Logger = logger.Named("roomsync")
	}
	offers, err := NewOfferCache(src, conf.OfferCacheSize)
	if err != nil {
		return nil, err
	}
	var ropts []ReducerOption
	if conf.IDTieBreak {
		ropts = append(ropts, WithIDTieBreak())
	}

	runCtx, cancel := context.WithCancel(ctx)
	e := &Engine{
		conf:    conf,
		src:     src,
		tr:      tr,
		offers:  offers,
		reducer: NewReducer(ropts...),
		log:     conf.Logger.With(zap.String("room", conf.Room)),
		subs:    make(map[uint64]func([]Message)),
		inbox:   make(chan func(context.Context), 256),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	if tr != nil {
		e.detach = append(e.detach, tr.Listen(e.onPush), tr.OnState(e.onState))
		if err := tr.Join(conf.Room); err != nil {
			e.log.Warn("join on push channel failed, polling only until reconnect", zap.Error(err))
		}
	}
	go e.loop(runCtx)
	return e, nil
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(e.conf.PollInterval)
	defer ticker.Stop()

	_ = e.poll(ctx, false)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = e.poll(ctx, false)
		case job := <-e.inbox:
			job(ctx)
		}
	}
}

func (e *Engine) enqueue(job func(context.Context)) bool {
	select {
	case e.inbox <- job:
		return true
	case <-e.done:
		return false
	}
}

// poll replaces the list with the server's; force refetches every offer.
func (e *Engine) poll(ctx context.Context, force bool) error {
	pctx, cancel := context.WithTimeout(ctx, e.conf.PollInterval)
	defer cancel()

	msgs, err := e.src.ListMessages(pctx, e.conf.Room)
	if err != nil {
		if ctx.Err() == nil {
			e.log.Warn("poll failed", zap.Error(err))
		}
		return err
	}
	// a forced poll refetches each offer once, later references hit the cache
	refetched := make(map[string]struct{})
	for i := range msgs {
		id := msgs[i].OfferID
		_, seen := refetched[id]
		if force && msgs[i].needsOffer() {
			refetched[id] = struct{}{}
		}
		e.resolve(pctx, &msgs[i], force && !seen)
	}
	e.apply(Snapshot{Messages: msgs})
	return nil
}

// resolve attaches the referenced offer; failures leave the message unresolved.
func (e *Engine) resolve(ctx context.Context, m *Message, force bool) {
	if !m.needsOffer() {
		return
	}
	o, err := e.offers.Resolve(ctx, m.OfferID, force)
	if err != nil {
		e.log.Warn("offer lookup failed", zap.String("offer_id", m.OfferID), zap.Error(err))
		return
	}
	m.Offer = o
}

func (e *Engine) apply(ev Event) {
	e.mu.Lock()
	prev := e.state.Messages
	e.state = e.reducer.Reduce(e.state, ev)
	cur := e.state.Messages
	changed := !sameMessages(prev, cur)
	var fns []func([]Message)
	if changed {
		fns = make([]func([]Message), 0, len(e.subs))
		for _, fn := range e.subs {
			fns = append(fns, fn)
		}
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(cloneMessages(cur))
	}
}

func (e *Engine) onPush(ev PushEvent) {
	switch ev.Event {
	case EventMessageCreated, EventMessageUpdated:
		var m Message
		if err := json.Unmarshal(ev.Data, &m); err != nil {
			e.log.Debug("bad message push", zap.String("event", ev.Event), zap.Error(err))
			return
		}
		if !e.ours(m.Room) {
			return
		}
		e.enqueue(func(ctx context.Context) {
			e.resolve(ctx, &m, false)
			e.apply(Upserted{Message: m})
		})
	case EventMessageDeleted:
		var d deletedPayload
		if err := json.Unmarshal(ev.Data, &d); err != nil || !e.ours(d.Room) {
			return
		}
		if d.DeletedAt.IsZero() {
			d.DeletedAt = time.Now()
		}
		e.enqueue(func(context.Context) {
			e.apply(Deleted{ID: d.ID, At: d.DeletedAt})
		})
	case protocol.EventRoomUsers:
		var p protocol.RoomUsersPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.Room != e.conf.Room {
			return
		}
		// joined: catch up on whatever was missed while the push channel was down
		e.enqueue(func(ctx context.Context) {
			if !e.pushReady.Swap(true) {
				_ = e.poll(ctx, false)
			}
		})
	}
}

func (e *Engine) onState(up bool) {
	if !up {
		e.pushReady.Store(false)
	}
}

func (e *Engine) ours(room string) bool {
	return room == "" || room == e.conf.Room
}

// Refresh polls now and refetches every referenced offer.
func (e *Engine) Refresh(ctx context.Context) error {
	res := make(chan error, 1)
	if !e.enqueue(func(lctx context.Context) { res <- e.poll(lctx, true) }) {
		return ErrClosed
	}
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrClosed
	}
}

// Messages returns a copy of the current list.
func (e *Engine) Messages() []Message {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return cloneMessages(e.state.Messages)
}

// OnChange registers fn for every change to the list; the returned func removes it.
func (e *Engine) OnChange(fn func([]Message)) func() {
	e.mu.Lock()
	e.seq++
	id := e.seq
	e.subs[id] = fn
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// PushReady reports whether the room is joined on a live push channel.
func (e *Engine) PushReady() bool { return e.pushReady.Load() }

func (e *Engine) Room() string { return e.conf.Room }

// Close leaves the room, detaches from the transport and stops polling.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		if e.tr != nil {
			if err := e.tr.Leave(e.conf.Room); err != nil {
				e.log.Debug("leave failed", zap.Error(err))
			}
		}
		for _, d := range e.detach {
			d()
		}
		e.cancel()
		<-e.done
		e.pushReady.Store(false)
	})
}

func sameMessages(a, b []Message) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

func cloneMessages(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	copy(out, in)
	return out
}
