package chat

import (
	"sort"
	"sync"
)

// Departure reports an identity that is no longer a member of Room.
type Departure struct {
	Room      string
	Identity  Identity
	Remaining int
}

type MembershipStats struct {
	Rooms       int `json:"rooms"`
	Memberships int `json:"memberships"`
}

type member struct {
	identity Identity
	conns    map[string]struct{}
}

// Membership is the room x identity relation. Each member keeps the set of
// connections that joined, so one tab leaving does not evict the identity
// while another joined tab remains.
type Membership struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]*member // room -> identity -> member
	byConn map[string]map[string]string  // conn_id -> room -> identity
}

func NewMembership() *Membership {
	return &Membership{
		rooms:  make(map[string]map[string]*member),
		byConn: make(map[string]map[string]string),
	}
}

// Join adds connID on behalf of identity and returns the members after the join.
// joined is true only when the identity was not a member before.
func (m *Membership) Join(room string, identity Identity, connID string) (members []Identity, joined bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.rooms[room]
	if r == nil {
		r = make(map[string]*member)
		m.rooms[room] = r
	}
	mb := r[identity.ID]
	if mb == nil {
		mb = &member{identity: identity, conns: make(map[string]struct{})}
		r[identity.ID] = mb
		joined = true
	}
	mb.conns[connID] = struct{}{}

	cr := m.byConn[connID]
	if cr == nil {
		cr = make(map[string]string)
		m.byConn[connID] = cr
	}
	cr[room] = identity.ID

	return membersLocked(r), joined
}

// Joined reports whether connID has joined room.
func (m *Membership) Joined(room, connID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byConn[connID][room]
	return ok
}

// Leave drops connID from room. left is true when the identity has no joined
// connection in the room anymore. Leaving a room not joined is a no-op.
func (m *Membership) Leave(room, identityID, connID string) (left bool, remaining int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.rooms[room]
	if r == nil {
		return false, 0
	}
	mb := r[identityID]
	if mb == nil {
		return false, len(r)
	}
	if _, ok := mb.conns[connID]; !ok {
		return false, len(r)
	}
	left = m.dropConnLocked(room, r, mb, connID)
	return left, len(m.rooms[room])
}

func (m *Membership) MembersOf(room string) []Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return membersLocked(m.rooms[room])
}

// RoomsOf lists the rooms the identity belongs to through any connection.
func (m *Membership) RoomsOf(identityID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for room, r := range m.rooms {
		if _, ok := r[identityID]; ok {
			out = append(out, room)
		}
	}
	sort.Strings(out)
	return out
}

// ConnRooms lists the rooms connID joined.
func (m *Membership) ConnRooms(connID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.byConn[connID]))
	for room := range m.byConn[connID] {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

// PurgeIdentity removes the identity from every room regardless of connection.
func (m *Membership) PurgeIdentity(identityID string) []Departure {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Departure
	for room, r := range m.rooms {
		mb := r[identityID]
		if mb == nil {
			continue
		}
		for connID := range mb.conns {
			m.unindexConnLocked(connID, room)
		}
		delete(r, identityID)
		if len(r) == 0 {
			delete(m.rooms, room)
		}
		out = append(out, Departure{Room: room, Identity: mb.identity, Remaining: len(r)})
	}
	sortDepartures(out)
	return out
}

// PurgeConn removes connID from every room it joined. A Departure is reported
// only where its identity has no other joined connection in that room.
func (m *Membership) PurgeConn(connID string) []Departure {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Departure
	for room, identityID := range m.byConn[connID] {
		r := m.rooms[room]
		if r == nil {
			continue
		}
		mb := r[identityID]
		if mb == nil {
			continue
		}
		if m.dropConnLocked(room, r, mb, connID) {
			out = append(out, Departure{Room: room, Identity: mb.identity, Remaining: len(r)})
		}
	}
	delete(m.byConn, connID)
	sortDepartures(out)
	return out
}

func (m *Membership) Stats() MembershipStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := MembershipStats{Rooms: len(m.rooms)}
	for _, r := range m.rooms {
		st.Memberships += len(r)
	}
	return st
}

// dropConnLocked removes connID from mb and cleans up empty entries.
func (m *Membership) dropConnLocked(room string, r map[string]*member, mb *member, connID string) bool {
	delete(mb.conns, connID)
	m.unindexConnLocked(connID, room)
	if len(mb.conns) > 0 {
		return false
	}
	delete(r, mb.identity.ID)
	if len(r) == 0 {
		delete(m.rooms, room)
	}
	return true
}

func (m *Membership) unindexConnLocked(connID, room string) {
	cr := m.byConn[connID]
	if cr == nil {
		return
	}
	delete(cr, room)
	if len(cr) == 0 {
		delete(m.byConn, connID)
	}
}

func membersLocked(r map[string]*member) []Identity {
	out := make([]Identity, 0, len(r))
	for _, mb := range r {
		out = append(out, mb.identity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortDepartures(ds []Departure) {
	sort.Slice(ds, func(i, j int) bool { return ds[i].Room < ds[j].Room })
}
