package natsx

import (
	"context"
	"sync"
	"time"
)

// IdemStore remembers message ids for a while.
type IdemStore interface {
	SeenOnce(key string, ttl time.Duration) (seen bool, err error)
}

type memIdem struct {
	mu  sync.Mutex
	m   map[string]time.Time // key -> expiry
	ttl time.Duration
	now func() time.Time
}

// NewMemIdem returns a process-local IdemStore; expired keys are swept until ctx ends.
func NewMemIdem(ctx context.Context, defaultTTL time.Duration) IdemStore {
	mi := &memIdem{m: make(map[string]time.Time), ttl: defaultTTL, now: time.Now}
	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				mi.sweep()
			}
		}
	}()
	return mi
}

func (mi *memIdem) sweep() {
	now := mi.now()
	mi.mu.Lock()
	defer mi.mu.Unlock()
	for k, exp := range mi.m {
		if !exp.After(now) {
			delete(mi.m, k)
		}
	}
}

func (mi *memIdem) SeenOnce(key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = mi.ttl
	}
	now := mi.now()
	mi.mu.Lock()
	defer mi.mu.Unlock()
	if exp, ok := mi.m[key]; ok && exp.After(now) {
		return true, nil
	}
	mi.m[key] = now.Add(ttl)
	return false, nil
}

func msgIDFromHeader(h map[string]string) string {
	for _, k := range []string{"Nats-Msg-Id", "X-Msg-Id"} {
		if v := h[k]; v != "" {
			return v
		}
	}
	return ""
}

// Idempotent drops redeliveries of a message id seen within ttl. Messages without an
// id header always pass.
func Idempotent(store IdemStore, ttl time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg Message) error {
			id := msgIDFromHeader(msg.Header)
			if id == "" {
				return next(ctx, msg)
			}
			if seen, _ := store.SeenOnce(id, ttl); seen {
				return nil
			}
			return next(ctx, msg)
		}
	}
}
