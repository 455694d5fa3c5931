package chat

import (
	"encoding/json"
	"sync"

	"PMarket/logger"
	"PMarket/tools/errs"

	"go.uber.org/zap"
)

// PushRequest is the body accepted by every push ingress (HTTP, NATS, Kafka).
type PushRequest struct {
	Room    string          `json:"room"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Pusher is the entry point collaborators call after a durable write.
type Pusher struct {
	mu      sync.Mutex
	bc      *Broadcaster
	metrics *Metrics
	log     *zap.Logger
}

func NewPusher(bc *Broadcaster, metrics *Metrics) *Pusher {
	return &Pusher{bc: bc, metrics: metrics, log: logger.Named("push")}
}

// Publish delivers payload to every connection of every member of room. Calls are
// serialised, so two publishes reach each connection in call order.
func (p *Pusher) Publish(room, event string, payload any) (int, error) {
	if _, err := ParseRoom(room); err != nil {
		return 0, err
	}
	if !ValidEventName(event) {
		return 0, errs.ErrInvalidEvent.WrapMsg("invalid push event", "event", event)
	}
	frame, err := Encode(event, payload)
	if err != nil {
		return 0, errs.ErrBadPayload.WrapMsg(err.Error(), "event", event)
	}

	p.mu.Lock()
	n := p.bc.RoomFrame(room, "", frame)
	p.mu.Unlock()

	p.metrics.published(event)
	p.log.Debug("published", zap.String("room", room), zap.String("event", event), zap.Int("delivered", n))
	return n, nil
}

// PublishRequest validates and publishes a decoded ingress body.
func (p *Pusher) PublishRequest(req PushRequest) (int, error) {
	return p.Publish(req.Room, req.Event, req.Payload)
}
