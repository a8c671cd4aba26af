package mq

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewProducer 按配置选择 Redis Streams 或 Kafka
func NewProducer(mqType string, rdb *redis.Client, brokers []string) (Producer, error) {
	switch mqType {
	case TypeRedis, "":
		if rdb == nil {
			return nil, fmt.Errorf("redis mq requires a redis client")
		}
		return NewRedisProducer(rdb), nil
	case TypeKafka:
		if len(brokers) == 0 {
			return nil, fmt.Errorf("kafka mq requires brokers")
		}
		return NewKafkaProducer(brokers), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMQType, mqType)
	}
}

// NewConsumer group 为消费者组名，name 为本实例在组内的名字 (只有 Redis 使用)
func NewConsumer(mqType string, rdb *redis.Client, brokers []string, group, name string, log *zap.Logger) (Consumer, error) {
	switch mqType {
	case TypeRedis, "":
		if rdb == nil {
			return nil, fmt.Errorf("redis mq requires a redis client")
		}
		return NewRedisConsumer(rdb, group, name, log), nil
	case TypeKafka:
		if len(brokers) == 0 {
			return nil, fmt.Errorf("kafka mq requires brokers")
		}
		return NewKafkaConsumer(brokers, group, log), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMQType, mqType)
	}
}
