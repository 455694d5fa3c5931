package kafka

import (
	"context"
	"encoding/json"

	"PMarket/service/chat"
	"PMarket/tools/errs"

	"github.com/pkg/errors"
)

// PushPublisher is satisfied by *chat.Pusher.
type PushPublisher interface {
	PublishRequest(req chat.PushRequest) (int, error)
}

// PushHandler decodes a room-push record. The record key is the room and fills in a
// body without one.
func PushHandler(pub PushPublisher) MessageHandler {
	return func(_ context.Context, topic string, key, value []byte) error {
		var req chat.PushRequest
		if err := json.Unmarshal(value, &req); err != nil {
			return errs.ErrBadPayload.WrapMsg(err.Error(), "topic", topic)
		}
		if req.Room == "" {
			req.Room = string(key)
		}
		_, err := pub.PublishRequest(req)
		return err
	}
}

// SendPush produces req on topic keyed by its room.
func (p *Producer) SendPush(topic string, req chat.PushRequest) error {
	if topic == "" {
		topic = DefaultPushTopic
	}
	b, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "encode push")
	}
	_, _, err = p.Send(topic, req.Room, b)
	return err
}
