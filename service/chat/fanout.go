package chat

import (
	"PMarket/logger"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Broadcaster fans frames out to resolved connections. Delivery is a
// non-blocking enqueue; a full or closed queue drops the frame.
type Broadcaster struct {
	reg     *Registry
	rooms   *Membership
	metrics *Metrics
	log     *zap.Logger
}

func NewBroadcaster(reg *Registry, rooms *Membership, metrics *Metrics) *Broadcaster {
	return &Broadcaster{reg: reg, rooms: rooms, metrics: metrics, log: logger.Named("fanout")}
}

// ToRoom sends to every connection of every member of room except excludeConnID.
// Members without a live connection are skipped.
func (b *Broadcaster) ToRoom(room, excludeConnID, event string, data any) int {
	frame, err := Encode(event, data)
	if err != nil {
		b.log.Error("encode room frame", zap.String("room", room), zap.String("event", event), zap.Error(err))
		return 0
	}
	return b.RoomFrame(room, excludeConnID, frame)
}

// RoomFrame is ToRoom for an already encoded frame.
func (b *Broadcaster) RoomFrame(room, excludeConnID string, frame []byte) int {
	return b.deliver(b.roomConns(room, excludeConnID), frame)
}

// ToAll sends to every registered connection except excludeConnID.
func (b *Broadcaster) ToAll(excludeConnID, event string, data any) int {
	frame, err := Encode(event, data)
	if err != nil {
		b.log.Error("encode global frame", zap.String("event", event), zap.Error(err))
		return 0
	}
	all := b.reg.All()
	targets := all[:0:0]
	for _, c := range all {
		if c.ID() != excludeConnID {
			targets = append(targets, c)
		}
	}
	return b.deliver(targets, frame)
}

// ToConn sends to one registered connection.
func (b *Broadcaster) ToConn(connID, event string, data any) bool {
	out, ok := b.reg.Conn(connID)
	if !ok {
		return false
	}
	frame, err := Encode(event, data)
	if err != nil {
		b.log.Error("encode conn frame", zap.String("conn_id", connID), zap.String("event", event), zap.Error(err))
		return false
	}
	return b.deliver([]Outbound{out}, frame) == 1
}

func (b *Broadcaster) roomConns(room, excludeConnID string) []Outbound {
	members := b.rooms.MembersOf(room)
	if len(members) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(members))
	out := make([]Outbound, 0, len(members))
	for _, m := range members {
		for _, c := range b.reg.ConnsOf(m.ID) {
			id := c.ID()
			if id == excludeConnID {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

func (b *Broadcaster) deliver(conns []Outbound, frame []byte) int {
	n := 0
	for _, c := range conns {
		if err := c.Send(frame); err != nil {
			b.metrics.dropped()
			if !errors.Is(err, ErrQueueFull) && !errors.Is(err, ErrConnClosed) {
				b.log.Warn("send failed", zap.String("conn_id", c.ID()), zap.Error(err))
			} else {
				b.log.Debug("frame dropped", zap.String("conn_id", c.ID()), zap.Error(err))
			}
			continue
		}
		n++
	}
	return n
}
