package chat

import (
	"sync"

	"PMarket/tools/errs"
	"PMarket/tools/specialerror"
)

// Session is the per-connection protocol state: unauthenticated until a
// successful authenticate binds an identity.
type Session struct {
	out Outbound

	mu       sync.RWMutex
	identity Identity
	authed   bool
}

func newSession(out Outbound) *Session {
	return &Session{out: out}
}

func (s *Session) ID() string { return s.out.ID() }

func (s *Session) Out() Outbound { return s.out }

func (s *Session) Identity() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity, s.authed
}

func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authed
}

// RequireIdentity returns the bound identity or ErrNotAuthenticated.
func (s *Session) RequireIdentity() (Identity, error) {
	id, ok := s.Identity()
	if !ok {
		return Identity{}, errs.ErrNotAuthenticated.Wrap()
	}
	return id, nil
}

func (s *Session) bind(id Identity) {
	s.mu.Lock()
	s.identity, s.authed = id, true
	s.mu.Unlock()
}

func (s *Session) unbind() (Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.identity, s.authed
	s.identity, s.authed = Identity{}, false
	return id, ok
}

// Send encodes and enqueues one frame for this connection.
func (s *Session) Send(event string, data any) error {
	frame, err := Encode(event, data)
	if err != nil {
		return err
	}
	return s.out.Send(frame)
}

// SendError replies with an error event. Client-side codes carry their detail.
func (s *Session) SendError(err error, event string) error {
	ce := specialerror.AsCode(err)
	p := ErrorPayload{Code: ce.Code, Message: ce.Msg, Event: event}
	if ce.Code < errs.ServerInternalError {
		p.Detail = ce.Detail
	}
	return s.Send(EventError, p)
}
