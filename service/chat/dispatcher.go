package chat

import (
	"sync"
)

// Dispatcher selects the handler for an envelope by its event tag.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register replaces any handler previously registered for h.Type().
func (d *Dispatcher) Register(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[h.Type()] = h
}

func (d *Dispatcher) Lookup(event string) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[event]
	return h, ok
}
