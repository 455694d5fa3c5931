package kafka

import (
	"context"
	"sort"
	"time"

	"PMarket/logger"
	"PMarket/tools/safe"

	"github.com/Shopify/sarama"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type groupHandler struct {
	router *Router
	log    *zap.Logger
}

func (h *groupHandler) Setup(s sarama.ConsumerGroupSession) error {
	h.log.Info("consumer group setup", zap.String("member", s.MemberID()), zap.Int32("generation", s.GenerationID()))
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.log.Info("consumer group cleanup")
	return nil
}

// ConsumeClaim marks every message, including failed ones; pushes are best effort.
func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		h.handle(session.Context(), msg)
		session.MarkMessage(msg, "")
	}
	return nil
}

func (h *groupHandler) handle(ctx context.Context, msg *sarama.ConsumerMessage) {
	handler, err := h.router.Get(msg.Topic)
	if err != nil {
		h.log.Warn("no handler", zap.String("topic", msg.Topic))
		return
	}
	err, panicked := safe.Recover(func() error { return handler(ctx, msg.Topic, msg.Key, msg.Value) })
	if err != nil {
		h.log.Warn("handler failed",
			zap.String("topic", msg.Topic),
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Bool("panic", panicked),
			zap.Error(err))
	}
}

// Consumer runs one consumer group over the router's topics.
type Consumer struct {
	group  sarama.ConsumerGroup
	router *Router
	log    *zap.Logger
}

func NewConsumer(c Config, router *Router) (*Consumer, error) {
	cfg, err := BuildBaseConfig(c)
	if err != nil {
		return nil, err
	}
	group, err := sarama.NewConsumerGroup(c.Brokers, c.GroupID, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "new consumer group")
	}
	return NewConsumerFromGroup(group, router), nil
}

func NewConsumerFromGroup(group sarama.ConsumerGroup, router *Router) *Consumer {
	return &Consumer{group: group, router: router, log: logger.Named("kafka")}
}

// Run consumes until ctx is done, rejoining after rebalances and errors.
func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.log.Warn("consumer group error", zap.Error(err))
		}
	}()

	topics := c.router.Topics()
	sort.Strings(topics)
	h := &groupHandler{router: c.router, log: c.log}
	for {
		if err := c.group.Consume(ctx, topics, h); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.log.Warn("consume error", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) Close() error { return c.group.Close() }
