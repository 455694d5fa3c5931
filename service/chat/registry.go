package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"PMarket/logger"
	"PMarket/tools/safe"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrQueueFull  = errors.New("send queue full")
	ErrConnClosed = errors.New("connection closed")
)

// Outbound is the write side of one client connection. Send must not block.
type Outbound interface {
	ID() string
	Send(frame []byte) error
	Close() error
}

// PresenceMirror receives per-connection online/offline transitions, e.g. a redis set.
type PresenceMirror interface {
	Online(ctx context.Context, identityID, connID string) error
	Offline(ctx context.Context, identityID, connID string) error
}

type RegistryStats struct {
	Connections int `json:"connections"`
	Identities  int `json:"identities"`
}

type binding struct {
	identity Identity
	out      Outbound
	seq      uint64
}

type mirrorOp struct {
	online   bool
	identity string
	connID   string
}

// Registry maps authenticated identities to their live connections.
type Registry struct {
	mu         sync.RWMutex
	byConn     map[string]*binding            // conn_id -> binding
	byIdentity map[string]map[string]*binding // identity -> conn_id -> binding
	seq        uint64

	mirror        PresenceMirror
	mirrorQ       chan mirrorOp
	mirrorTimeout time.Duration
	stopOnce      sync.Once
	stopCh        chan struct{}
	doneCh        chan struct{}
	log           *zap.Logger
}

type RegistryOption func(*Registry)

// WithPresenceMirror forwards transitions to m from a single background worker,
// so the mirror sees them in registration order.
func WithPresenceMirror(m PresenceMirror, timeout time.Duration) RegistryOption {
	return func(r *Registry) {
		r.mirror = m
		if timeout > 0 {
			r.mirrorTimeout = timeout
		}
	}
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		byConn:        make(map[string]*binding),
		byIdentity:    make(map[string]map[string]*binding),
		mirrorTimeout: 2 * time.Second,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
		log:           logger.Named("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.mirror != nil {
		r.mirrorQ = make(chan mirrorOp, 1024)
		safe.SafeGo(r.mirrorLoop)
	} else {
		close(r.doneCh)
	}
	return r
}

// Register binds out to identity. The newest connection becomes the primary one;
// earlier live connections of the same identity stay registered. Returns true
// when this is the identity's first live connection.
func (r *Registry) Register(identity Identity, out Outbound) bool {
	if identity.Empty() || out == nil {
		return false
	}
	r.mu.Lock()
	prev, rebound := r.byConn[out.ID()]
	if rebound {
		r.removeLocked(prev)
	}
	r.seq++
	b := &binding{identity: identity, out: out, seq: r.seq}
	r.byConn[out.ID()] = b
	m := r.byIdentity[identity.ID]
	first := len(m) == 0
	if m == nil {
		m = make(map[string]*binding)
		r.byIdentity[identity.ID] = m
	}
	m[out.ID()] = b
	r.mu.Unlock()

	if rebound {
		r.notify(mirrorOp{online: false, identity: prev.identity.ID, connID: out.ID()})
	}
	r.notify(mirrorOp{online: true, identity: identity.ID, connID: out.ID()})
	return first
}

// Unregister removes the binding of connID only. offline is true when the
// identity has no live connection left.
func (r *Registry) Unregister(connID string) (identity Identity, offline bool) {
	r.mu.Lock()
	b, ok := r.byConn[connID]
	if !ok {
		r.mu.Unlock()
		return Identity{}, false
	}
	offline = r.removeLocked(b)
	r.mu.Unlock()

	r.notify(mirrorOp{online: false, identity: b.identity.ID, connID: connID})
	return b.identity, offline
}

func (r *Registry) removeLocked(b *binding) bool {
	id := b.out.ID()
	delete(r.byConn, id)
	m := r.byIdentity[b.identity.ID]
	if m == nil {
		return true
	}
	delete(m, id)
	if len(m) == 0 {
		delete(r.byIdentity, b.identity.ID)
		return true
	}
	return false
}

func (r *Registry) IsOnline(identityID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIdentity[identityID]) > 0
}

// ConnsOf lists the identity's connections, primary (most recent) first.
func (r *Registry) ConnsOf(identityID string) []Outbound {
	r.mu.RLock()
	m := r.byIdentity[identityID]
	bs := make([]*binding, 0, len(m))
	for _, b := range m {
		bs = append(bs, b)
	}
	r.mu.RUnlock()

	sort.Slice(bs, func(i, j int) bool { return bs[i].seq > bs[j].seq })
	out := make([]Outbound, len(bs))
	for i, b := range bs {
		out[i] = b.out
	}
	return out
}

// Primary is the most recently registered connection of the identity.
func (r *Registry) Primary(identityID string) (Outbound, bool) {
	conns := r.ConnsOf(identityID)
	if len(conns) == 0 {
		return nil, false
	}
	return conns[0], true
}

func (r *Registry) IdentityOf(connID string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byConn[connID]
	if !ok {
		return Identity{}, false
	}
	return b.identity, true
}

func (r *Registry) Conn(connID string) (Outbound, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byConn[connID]
	if !ok {
		return nil, false
	}
	return b.out, true
}

// All is a snapshot of every registered connection in registration order.
func (r *Registry) All() []Outbound {
	r.mu.RLock()
	bs := make([]*binding, 0, len(r.byConn))
	for _, b := range r.byConn {
		bs = append(bs, b)
	}
	r.mu.RUnlock()

	sort.Slice(bs, func(i, j int) bool { return bs[i].seq < bs[j].seq })
	out := make([]Outbound, len(bs))
	for i, b := range bs {
		out[i] = b.out
	}
	return out
}

func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RegistryStats{Connections: len(r.byConn), Identities: len(r.byIdentity)}
}

// Close stops the mirror worker after draining queued transitions.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.doneCh
}

func (r *Registry) notify(op mirrorOp) {
	if r.mirror == nil {
		return
	}
	select {
	case <-r.stopCh:
		return
	default:
	}
	select {
	case r.mirrorQ <- op:
	default:
		r.log.Warn("presence mirror queue full, drop",
			zap.String("identity", op.identity), zap.String("conn_id", op.connID), zap.Bool("online", op.online))
	}
}

func (r *Registry) mirrorLoop() {
	defer close(r.doneCh)
	for {
		select {
		case op := <-r.mirrorQ:
			r.applyMirror(op)
		case <-r.stopCh:
			for {
				select {
				case op := <-r.mirrorQ:
					r.applyMirror(op)
				default:
					return
				}
			}
		}
	}
}

func (r *Registry) applyMirror(op mirrorOp) {
	ctx, cancel := context.WithTimeout(context.Background(), r.mirrorTimeout)
	defer cancel()

	var err error
	if op.online {
		err = r.mirror.Online(ctx, op.identity, op.connID)
	} else {
		err = r.mirror.Offline(ctx, op.identity, op.connID)
	}
	if err != nil {
		r.log.Warn("presence mirror update failed",
			zap.String("identity", op.identity), zap.String("conn_id", op.connID),
			zap.Bool("online", op.online), zap.Error(err))
	}
}
