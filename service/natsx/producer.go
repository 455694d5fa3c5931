package natsx

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

// Publish sends data on subject. JetStream is used when a Durable is configured so the
// publish is acknowledged by the stream.
func (c *Client) Publish(ctx context.Context, subject string, data []byte, hdr map[string]string) error {
	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, v := range hdr {
		msg.Header.Add(k, v)
	}

	if c.cfg.Durable != "" {
		js, err := c.jetStream()
		if err != nil {
			return err
		}
		if _, err := js.PublishMsg(msg, nats.Context(ctx)); err != nil {
			return errors.Wrapf(err, "jetstream publish %s", subject)
		}
		return nil
	}
	if err := c.nc.PublishMsg(msg); err != nil {
		return errors.Wrapf(err, "publish %s", subject)
	}
	return nil
}
