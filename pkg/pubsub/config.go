package pubsub

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

// KafkaConfig holds Kafka-specific configuration.
type KafkaConfig struct {
	Brokers    string `mapstructure:"brokers"`
	GroupID    string `mapstructure:"group_id"`
	Partitions int    `mapstructure:"partitions"`
}

// Config holds the configuration for the pub/sub system.
type Config struct {
	Driver string      `mapstructure:"driver"` // "redis", "kafka", "none"
	Kafka  KafkaConfig `mapstructure:"kafka"`
}

// NewPubSub creates a new PubSub instance based on the configuration.
// The redis driver reuses the shared client.
func NewPubSub(cfg Config, client *redis.Client) (PubSub, error) {
	switch cfg.Driver {
	case "kafka":
		return NewKafkaPubSub(cfg.Kafka)
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis pubsub requires a redis client")
		}
		return NewRedisPubSub(client), nil
	case "", "none":
		return NewNoop(), nil
	default:
		return nil, fmt.Errorf("unsupported pubsub driver: %s", cfg.Driver)
	}
}
