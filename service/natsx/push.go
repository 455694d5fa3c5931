package natsx

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"PMarket/service/chat"
	"PMarket/tools/errs"

	"go.uber.org/zap"
)

// PushPublisher is satisfied by *chat.Pusher.
type PushPublisher interface {
	PublishRequest(req chat.PushRequest) (int, error)
}

// PushHandler decodes a push body and hands it to pub. When the body has no room,
// the subject tail after the first token is used, e.g. roompush.chat:direct:D1.
func PushHandler(pub PushPublisher) Handler {
	return func(_ context.Context, msg Message) error {
		var req chat.PushRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return errs.ErrBadPayload.WrapMsg(err.Error(), "subject", msg.Subject)
		}
		if req.Room == "" {
			if i := strings.IndexByte(msg.Subject, '.'); i >= 0 {
				req.Room = msg.Subject[i+1:]
			}
		}
		_, err := pub.PublishRequest(req)
		return err
	}
}

// SubscribePush wires the push ingress on the configured subject.
func (c *Client) SubscribePush(ctx context.Context, pub PushPublisher) error {
	mws := []Middleware{
		Logging(c.log, 200*time.Millisecond),
		Recover(),
		Idempotent(NewMemIdem(ctx, 5*time.Minute), 0),
	}
	if err := c.Subscribe(c.cfg.Subject, PushHandler(pub), mws...); err != nil {
		return err
	}
	c.log.Info("push ingress subscribed", zap.String("subject", c.cfg.Subject), zap.String("queue", c.cfg.Queue))
	return nil
}

// PushSubject is the subject a producer uses for room.
func PushSubject(prefix, room string) string {
	prefix = strings.TrimSuffix(strings.TrimSuffix(prefix, ">"), ".")
	if prefix == "" {
		prefix = "roompush"
	}
	return prefix + "." + room
}
