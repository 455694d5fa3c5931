package natsx

import (
	"context"
	"time"

	"PMarket/tools/safe"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Message is the transport-neutral view of a received nats message.
type Message struct {
	Subject string
	Data    []byte
	Header  map[string]string
}

type Handler func(ctx context.Context, msg Message) error

type Middleware func(Handler) Handler

// Chain wraps h so that mws[0] runs first.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Recover turns a handler panic into an error.
func Recover() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg Message) error {
			err, panicked := safe.Recover(func() error { return next(ctx, msg) })
			if panicked {
				return errors.Wrapf(err, "handler panic on %s", msg.Subject)
			}
			return err
		}
	}
}

// Logging logs failures and slow handlers.
func Logging(log *zap.Logger, slow time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg Message) error {
			start := time.Now()
			err := next(ctx, msg)
			took := time.Since(start)
			if err != nil {
				log.Warn("handler failed", zap.String("subject", msg.Subject), zap.Duration("took", took), zap.Error(err))
			} else if slow > 0 && took > slow {
				log.Info("slow handler", zap.String("subject", msg.Subject), zap.Duration("took", took))
			}
			return err
		}
	}
}

func fromNats(m *nats.Msg) Message {
	return Message{
		Subject: m.Subject,
		Data:    append([]byte(nil), m.Data...),
		Header:  headerToMap(m.Header),
	}
}

func headerToMap(h nats.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
