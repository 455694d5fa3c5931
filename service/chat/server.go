package chat

import (
	"sync"
	"time"

	"PMarket/logger"
	"PMarket/tools/errs"
	"PMarket/tools/safe"
	"PMarket/tools/security"
	"PMarket/tools/specialerror"

	"go.uber.org/zap"
)

type Options struct {
	Auth          security.Options
	Metrics       *Metrics
	Mirror        PresenceMirror
	MirrorTimeout time.Duration
	// UnauthTTL closes connections that have not authenticated in time; 0 disables it.
	UnauthTTL time.Duration
}

type Stats struct {
	Rooms       int `json:"rooms"`
	Connections int `json:"connections"`
	Identities  int `json:"identities"`
	Sessions    int `json:"sessions"`
}

// Server owns the registry, membership and dispatch for one process. It is
// constructed once and handed to handlers through Context.
type Server struct {
	reg     *Registry
	rooms   *Membership
	bc      *Broadcaster
	push    *Pusher
	disp    *Dispatcher
	metrics *Metrics
	opts    Options
	log     *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewServer(opts Options) *Server {
	var regOpts []RegistryOption
	if opts.Mirror != nil {
		regOpts = append(regOpts, WithPresenceMirror(opts.Mirror, opts.MirrorTimeout))
	}
	reg := NewRegistry(regOpts...)
	rooms := NewMembership()
	bc := NewBroadcaster(reg, rooms, opts.Metrics)
	return &Server{
		reg:      reg,
		rooms:    rooms,
		bc:       bc,
		push:     NewPusher(bc, opts.Metrics),
		disp:     NewDispatcher(),
		metrics:  opts.Metrics,
		opts:     opts,
		log:      logger.Named("relay"),
		sessions: make(map[string]*Session),
	}
}

func (s *Server) Registry() *Registry           { return s.reg }
func (s *Server) Rooms() *Membership            { return s.rooms }
func (s *Server) Broadcaster() *Broadcaster     { return s.bc }
func (s *Server) Pusher() *Pusher               { return s.push }
func (s *Server) AuthOptions() security.Options { return s.opts.Auth }
func (s *Server) Logger() *zap.Logger           { return s.log }

func (s *Server) Register(h Handler) { s.disp.Register(h) }

// Publish is the server push entry point; see Pusher.Publish.
func (s *Server) Publish(room, event string, payload any) (int, error) {
	return s.push.Publish(room, event, payload)
}

// Open creates the session for a new transport connection.
func (s *Server) Open(out Outbound) *Session {
	sess := newSession(out)
	s.mu.Lock()
	s.sessions[out.ID()] = sess
	s.mu.Unlock()
	s.metrics.connOpened()
	s.log.Debug("session opened", zap.String("conn_id", out.ID()))
	return sess
}

// Serve drains frames in order on the calling goroutine and disconnects the
// session once frames is closed.
func (s *Server) Serve(sess *Session, frames <-chan []byte) {
	var ttl <-chan time.Time
	if s.opts.UnauthTTL > 0 {
		t := time.NewTimer(s.opts.UnauthTTL)
		defer t.Stop()
		ttl = t.C
	}
	defer s.Disconnect(sess)

	for {
		select {
		case raw, ok := <-frames:
			if !ok {
				return
			}
			s.Dispatch(sess, raw)
		case <-ttl:
			ttl = nil
			if !sess.Authenticated() {
				s.log.Info("closing unauthenticated connection", zap.String("conn_id", sess.ID()))
				_ = sess.out.Close()
			}
		}
	}
}

// Dispatch handles one inbound frame to completion. Handler errors become
// error events; a panicking handler is recovered and answered with INTERNAL.
func (s *Server) Dispatch(sess *Session, raw []byte) {
	env, err := ParseEnvelope(raw)
	if err != nil {
		s.reply(sess, err, "")
		return
	}
	h, ok := s.disp.Lookup(env.Event)
	if !ok {
		s.metrics.event("unknown")
		s.reply(sess, errs.ErrUnknownEvent.WrapMsg("", "event", env.Event), env.Event)
		return
	}
	s.metrics.event(env.Event)

	herr, panicked := safe.Recover(func() error {
		return h.Handle(&Context{S: s}, sess, env)
	})
	if panicked {
		s.metrics.panicked()
		s.log.Error("handler panic", zap.String("conn_id", sess.ID()), zap.String("event", env.Event), zap.Error(herr))
		s.reply(sess, errs.ErrInternal, env.Event)
		return
	}
	if herr != nil {
		s.reply(sess, herr, env.Event)
	}
}

func (s *Server) reply(sess *Session, err error, event string) {
	if ce := specialerror.AsCode(err); ce.Code >= errs.ServerInternalError {
		s.log.Error("handler failed", zap.String("conn_id", sess.ID()), zap.String("event", event), zap.Error(err))
	} else {
		s.log.Debug("event rejected", zap.String("conn_id", sess.ID()), zap.String("event", event), zap.Error(err))
	}
	if serr := sess.SendError(err, event); serr != nil {
		s.metrics.dropped()
	}
}

// Bind authenticates sess as identity. Rebinding to a different identity
// releases the previous one first, with the usual leave notifications.
func (s *Server) Bind(sess *Session, identity Identity) {
	if cur, ok := sess.Identity(); ok && cur.ID != identity.ID {
		s.release(sess)
	}
	sess.bind(identity)
	if s.reg.Register(identity, sess.out) {
		s.log.Info("identity online", zap.String("identity", identity.ID), zap.String("conn_id", sess.ID()))
	}
}

// Disconnect unregisters the session, leaves every room it joined and
// announces the identity offline when this was its last connection.
func (s *Server) Disconnect(sess *Session) {
	s.mu.Lock()
	_, open := s.sessions[sess.ID()]
	delete(s.sessions, sess.ID())
	s.mu.Unlock()
	if !open {
		return
	}

	s.release(sess)
	s.metrics.connClosed()
	s.log.Debug("session closed", zap.String("conn_id", sess.ID()))
}

func (s *Server) release(sess *Session) {
	identity, ok := sess.unbind()
	if !ok {
		return
	}
	_, offline := s.reg.Unregister(sess.ID())
	for _, d := range s.rooms.PurgeConn(sess.ID()) {
		s.bc.ToRoom(d.Room, sess.ID(), EventUserLeft, PresencePayload{
			Identity:    d.Identity.ID,
			DisplayName: d.Identity.DisplayName,
			Room:        d.Room,
		})
	}
	s.metrics.setRooms(s.rooms.Stats().Rooms)
	if offline {
		s.bc.ToAll(sess.ID(), EventUserStatus, StatusPayload{
			Identity: identity.ID,
			Status:   StatusOffline,
			LastSeen: nowMilli(),
		})
		s.log.Info("identity offline", zap.String("identity", identity.ID))
	}
}

// Kick removes identity from every room and closes all of its connections.
func (s *Server) Kick(identityID string) int {
	for _, d := range s.rooms.PurgeIdentity(identityID) {
		s.bc.ToRoom(d.Room, "", EventUserLeft, PresencePayload{
			Identity:    d.Identity.ID,
			DisplayName: d.Identity.DisplayName,
			Room:        d.Room,
		})
	}
	s.metrics.setRooms(s.rooms.Stats().Rooms)
	conns := s.reg.ConnsOf(identityID)
	for _, c := range conns {
		_ = c.Close()
	}
	return len(conns)
}

func (s *Server) Session(connID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[connID]
	return sess, ok
}

func (s *Server) Stats() Stats {
	rs := s.reg.Stats()
	s.mu.RLock()
	n := len(s.sessions)
	s.mu.RUnlock()
	return Stats{
		Rooms:       s.rooms.Stats().Rooms,
		Connections: rs.Connections,
		Identities:  rs.Identities,
		Sessions:    n,
	}
}

// SyncRoomGauge refreshes the rooms gauge after membership changes made by handlers.
func (s *Server) SyncRoomGauge() { s.metrics.setRooms(s.rooms.Stats().Rooms) }

// Close closes every open connection and stops the presence mirror worker.
func (s *Server) Close() {
	s.mu.RLock()
	open := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.RUnlock()
	for _, sess := range open {
		_ = sess.out.Close()
	}
	s.reg.Close()
}
