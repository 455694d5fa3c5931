package kafka

import (
	"errors"

	"PMarket/logger"

	"github.com/Shopify/sarama"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// EnsureTopics creates missing topics and grows partitions that are below the
// configured count. Kafka cannot shrink partitions, so larger topics are left alone.
func EnsureTopics(admin sarama.ClusterAdmin, topics []string, c Config) error {
	log := logger.Named("kafka")
	minISR := "1"
	if c.ReplicationFactor >= 3 {
		minISR = "2"
	}
	for _, t := range topics {
		descs, err := admin.DescribeTopics([]string{t})
		if err != nil {
			return pkgerrors.Wrapf(err, "describe topic %s", t)
		}
		exists := len(descs) == 1 && errors.Is(descs[0].Err, sarama.ErrNoError)

		if !exists {
			td := &sarama.TopicDetail{
				NumPartitions:     c.PartitionsPerTopic,
				ReplicationFactor: c.ReplicationFactor,
				ConfigEntries: map[string]*string{
					"cleanup.policy":                 strPtr("delete"),
					"min.insync.replicas":            strPtr(minISR),
					"unclean.leader.election.enable": strPtr("false"),
					"compression.type":               strPtr("producer"),
				},
			}
			if err := admin.CreateTopic(t, td, false); err != nil {
				var te *sarama.TopicError
				if (errors.As(err, &te) && te.Err == sarama.ErrTopicAlreadyExists) || errors.Is(err, sarama.ErrTopicAlreadyExists) {
					log.Info("topic exists (race)", zap.String("topic", t))
					continue
				}
				return pkgerrors.Wrapf(err, "create topic %s", t)
			}
			log.Info("topic created", zap.String("topic", t), zap.Int32("partitions", c.PartitionsPerTopic))
			continue
		}

		cur := int32(len(descs[0].Partitions))
		if c.PartitionsPerTopic > cur {
			if err := admin.CreatePartitions(t, c.PartitionsPerTopic, nil, false); err != nil {
				return pkgerrors.Wrapf(err, "expand partitions %s from %d to %d", t, cur, c.PartitionsPerTopic)
			}
			log.Info("partitions expanded", zap.String("topic", t), zap.Int32("from", cur), zap.Int32("to", c.PartitionsPerTopic))
		}
	}
	return nil
}

func strPtr(s string) *string { return &s }
