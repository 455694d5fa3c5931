package natsx

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

// Subscribe registers h on subject. With a Durable configured the subscription is a
// JetStream push consumer that acks on success and naks on error; otherwise it is a
// core subscription, queue-grouped when Queue is set.
func (c *Client) Subscribe(subject string, h Handler, mws ...Middleware) error {
	h = Chain(h, mws...)

	if c.cfg.Durable != "" {
		js, err := c.jetStream()
		if err != nil {
			return err
		}
		opts := []nats.SubOpt{
			nats.ManualAck(),
			nats.AckWait(c.cfg.AckWait),
			nats.MaxAckPending(c.cfg.MaxAckPending),
			nats.Durable(c.cfg.Durable),
		}
		cb := func(m *nats.Msg) {
			if err := h(context.Background(), fromNats(m)); err == nil {
				_ = m.Ack()
			} else {
				_ = m.Nak()
			}
		}
		var sub *nats.Subscription
		if c.cfg.Queue == "" {
			sub, err = js.Subscribe(subject, cb, opts...)
		} else {
			sub, err = js.QueueSubscribe(subject, c.cfg.Queue, cb, opts...)
		}
		if err != nil {
			return errors.Wrapf(err, "jetstream subscribe %s", subject)
		}
		c.track(sub)
		return nil
	}

	cb := func(m *nats.Msg) { _ = h(context.Background(), fromNats(m)) }
	var (
		sub *nats.Subscription
		err error
	)
	if c.cfg.Queue == "" {
		sub, err = c.nc.Subscribe(subject, cb)
	} else {
		sub, err = c.nc.QueueSubscribe(subject, c.cfg.Queue, cb)
	}
	if err != nil {
		return errors.Wrapf(err, "subscribe %s", subject)
	}
	_ = sub.SetPendingLimits(1_000_000, 64*1024*1024)
	c.track(sub)
	return nil
}
