package mq

import (
	"context"
	"errors"
)

// Message 代表一条通用的业务消息
type Message struct {
	ID      string // 消息ID (Redis Stream ID 或 Kafka partition/offset)
	Topic   string
	Key     string // 分区键，入账事件使用 UserID
	Payload []byte // JSON
}

// Producer 生产者接口
type Producer interface {
	// Publish key 用于分区，同一个用户的事件保持有序
	Publish(ctx context.Context, topic string, key string, payload []byte) error
	Close() error
}

// Consumer 消费者接口，Subscribe 阻塞直到 ctx 取消 (Kafka 实现在处理失败时也会返回)
type Consumer interface {
	Subscribe(ctx context.Context, topic string, handler func(msg *Message) error) error
	Close() error
}

var ErrUnknownMQType = errors.New("unknown mq type")

const (
	TypeRedis = "redis"
	TypeKafka = "kafka"
)
