package chat

import (
	"encoding/json"
	"sync"
)

type mockConn struct {
	id     string
	mu     sync.Mutex
	frames [][]byte
	closed bool
	full   bool
}

func newMockConn(id string) *mockConn { return &mockConn{id: id} }

func (m *mockConn) ID() string { return m.id }

func (m *mockConn) Send(frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrConnClosed
	}
	if m.full {
		return ErrQueueFull
	}
	m.frames = append(m.frames, frame)
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) envelopes() []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Envelope, 0, len(m.frames))
	for _, f := range m.frames {
		var env Envelope
		_ = json.Unmarshal(f, &env)
		out = append(out, env)
	}
	return out
}

func (m *mockConn) events() []string {
	var out []string
	for _, e := range m.envelopes() {
		out = append(out, e.Event)
	}
	return out
}

func (m *mockConn) reset() {
	m.mu.Lock()
	m.frames = nil
	m.mu.Unlock()
}
