package kafka

import (
	"github.com/Shopify/sarama"
	"github.com/pkg/errors"
)

// Producer sends keyed records synchronously.
type Producer struct {
	sp sarama.SyncProducer
}

func NewProducer(c Config) (*Producer, error) {
	cfg, err := BuildBaseConfig(c)
	if err != nil {
		return nil, err
	}
	sp, err := sarama.NewSyncProducer(c.Brokers, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "new sync producer")
	}
	return &Producer{sp: sp}, nil
}

func NewProducerFrom(sp sarama.SyncProducer) *Producer { return &Producer{sp: sp} }

func (p *Producer) Send(topic, key string, value []byte) (partition int32, offset int64, err error) {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	}
	partition, offset, err = p.sp.SendMessage(msg)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "send to %s", topic)
	}
	return partition, offset, nil
}

func (p *Producer) Close() error { return p.sp.Close() }
