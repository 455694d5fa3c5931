package roomsync

import (
	"sort"
	"time"
)

// Event is one of Upserted, Deleted or Snapshot.
type Event interface{ isEvent() }

type Upserted struct{ Message Message }

type Deleted struct {
	ID string
	At time.Time
}

type Snapshot struct{ Messages []Message }

func (Upserted) isEvent() {}
func (Deleted) isEvent()  {}
func (Snapshot) isEvent() {}

// State is an immutable view; Reduce never modifies its input.
type State struct {
	Messages   []Message
	tombstones map[string]time.Time
}

func (s State) Len() int { return len(s.Messages) }

func (s State) index(id string) int {
	for i := range s.Messages {
		if s.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// Deleted reports whether id has a live tombstone.
func (s State) Deleted(id string) bool {
	_, ok := s.tombstones[id]
	return ok
}

type Reducer struct {
	idTieBreak    bool
	maxTombstones int
}

type ReducerOption func(*Reducer)

// WithIDTieBreak orders messages with equal CreatedAt by id instead of arrival.
func WithIDTieBreak() ReducerOption {
	return func(r *Reducer) { r.idTieBreak = true }
}

// WithMaxTombstones bounds remembered deletions; the oldest are forgotten first.
func WithMaxTombstones(n int) ReducerOption {
	return func(r *Reducer) { r.maxTombstones = n }
}

func NewReducer(opts ...ReducerOption) Reducer {
	r := Reducer{maxTombstones: 1024}
	for _, o := range opts {
		o(&r)
	}
	return r
}

var defaultReducer = NewReducer()

// Reduce applies ev with the default reducer.
func Reduce(s State, ev Event) State { return defaultReducer.Reduce(s, ev) }

func (r Reducer) Reduce(s State, ev Event) State {
	switch e := ev.(type) {
	case Upserted:
		return r.upsert(s, e.Message)
	case Deleted:
		return r.delete(s, e)
	case Snapshot:
		return r.snapshot(s, e.Messages)
	}
	return s
}

func (r Reducer) upsert(s State, m Message) State {
	if m.ID == "" {
		return s
	}
	tombs := s.tombstones
	if at, ok := tombs[m.ID]; ok {
		// a stale redelivery of a deleted message
		if !m.version().After(at) {
			return s
		}
		tombs = copyTombs(tombs)
		delete(tombs, m.ID)
	}

	out := make([]Message, len(s.Messages), len(s.Messages)+1)
	copy(out, s.Messages)
	if i := s.index(m.ID); i >= 0 {
		out[i] = m
	} else {
		out = append(out, m)
	}
	r.sort(out)
	return State{Messages: out, tombstones: tombs}
}

func (r Reducer) delete(s State, d Deleted) State {
	if d.ID == "" {
		return s
	}
	out := s.Messages
	if i := s.index(d.ID); i >= 0 {
		out = make([]Message, 0, len(s.Messages)-1)
		out = append(out, s.Messages[:i]...)
		out = append(out, s.Messages[i+1:]...)
	}
	tombs := copyTombs(s.tombstones)
	if cur, ok := tombs[d.ID]; !ok || d.At.After(cur) {
		tombs[d.ID] = d.At
	}
	r.pruneTombs(tombs)
	return State{Messages: out, tombstones: tombs}
}

// snapshot is authoritative: it replaces the list, keeping the last copy of a
// repeated id, and forgets deletions the server still lists.
func (r Reducer) snapshot(s State, msgs []Message) State {
	pos := make(map[string]int, len(msgs))
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID == "" {
			continue
		}
		if i, ok := pos[m.ID]; ok {
			out[i] = m
			continue
		}
		pos[m.ID] = len(out)
		out = append(out, m)
	}
	r.sort(out)

	var tombs map[string]time.Time
	for id, at := range s.tombstones {
		if _, listed := pos[id]; listed {
			continue
		}
		if tombs == nil {
			tombs = make(map[string]time.Time, len(s.tombstones))
		}
		tombs[id] = at
	}
	return State{Messages: out, tombstones: tombs}
}

func (r Reducer) sort(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		a, b := msgs[i].CreatedAt, msgs[j].CreatedAt
		if !a.Equal(b) {
			return a.Before(b)
		}
		return r.idTieBreak && msgs[i].ID < msgs[j].ID
	})
}

func (r Reducer) pruneTombs(tombs map[string]time.Time) {
	if r.maxTombstones <= 0 || len(tombs) <= r.maxTombstones {
		return
	}
	type tomb struct {
		id string
		at time.Time
	}
	all := make([]tomb, 0, len(tombs))
	for id, at := range tombs {
		all = append(all, tomb{id, at})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
	for _, t := range all[:len(all)-r.maxTombstones] {
		delete(tombs, t.id)
	}
}

func copyTombs(in map[string]time.Time) map[string]time.Time {
	out := make(map[string]time.Time, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}
