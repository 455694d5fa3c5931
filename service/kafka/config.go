package kafka

import (
	"strings"
	"time"

	"github.com/Shopify/sarama"
	"github.com/pkg/errors"
)

// Config is the kafka section of the app config.
type Config struct {
	Enabled                 bool     `yaml:"enabled"`
	Brokers                 []string `yaml:"brokers"`
	GroupID                 string   `yaml:"group_id"`
	Topic                   string   `yaml:"topic"`
	Version                 string   `yaml:"version"`
	PartitionsPerTopic      int32    `yaml:"partitions"`
	ReplicationFactor       int16    `yaml:"replication_factor"`
	ProducerRetries         int      `yaml:"producer_retries"`
	ProducerCompression     string   `yaml:"compression"`    // none/snappy/lz4/zstd
	ConsumerInitialOffset   string   `yaml:"initial_offset"` // newest/oldest
	AutoCreateTopicsOnStart bool     `yaml:"auto_create_topic"`
}

const DefaultPushTopic = "room-push"

func DefaultConfig() Config {
	return Config{
		Brokers:               []string{"127.0.0.1:9092"},
		GroupID:               "pmarket-gateway",
		Topic:                 DefaultPushTopic,
		Version:               "2.1.0",
		PartitionsPerTopic:    8,
		ReplicationFactor:     1,
		ProducerRetries:       5,
		ProducerCompression:   "snappy",
		ConsumerInitialOffset: "newest",
	}
}

// BuildBaseConfig maps c onto a sarama config shared by producer, consumer and admin.
func BuildBaseConfig(c Config) (*sarama.Config, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = "pmarket"
	if c.Version != "" {
		v, err := sarama.ParseKafkaVersion(c.Version)
		if err != nil {
			return nil, errors.Wrapf(err, "kafka version %q", c.Version)
		}
		cfg.Version = v
	} else {
		cfg.Version = sarama.V2_1_0_0
	}

	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = c.ProducerRetries
	if cfg.Producer.Retry.Max <= 0 {
		cfg.Producer.Retry.Max = 1
	}
	// room key selects the partition so one room's pushes stay ordered
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	switch strings.ToLower(c.ProducerCompression) {
	case "snappy":
		cfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		cfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		cfg.Producer.Compression = sarama.CompressionZSTD
	default:
		cfg.Producer.Compression = sarama.CompressionNone
	}

	switch strings.ToLower(c.ConsumerInitialOffset) {
	case "oldest":
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true

	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second
	return cfg, nil
}
