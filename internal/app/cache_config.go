package app

import (
	"strings"

	"github.com/charlesng35/tippster/internal/cache"
	"github.com/charlesng35/tippster/internal/events"
)

// RedisClientConfig converts the application cache configuration into the cache package representation.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
	}
}

// KafkaPublisherConfig converts the events configuration for the Kafka publisher.
func (c EventsConfig) KafkaPublisherConfig() events.KafkaConfig {
	brokers := make([]string, 0, len(c.Kafka.Brokers))
	for _, broker := range c.Kafka.Brokers {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return events.KafkaConfig{
		Brokers:      brokers,
		Topic:        strings.TrimSpace(c.Kafka.Topic),
		BatchSize:    c.Kafka.BatchSize,
		BatchTimeout: c.Kafka.BatchTimeout,
		Async:        c.Kafka.Async,
	}
}
