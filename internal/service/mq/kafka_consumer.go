package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaConsumer 实现 Consumer 接口
type KafkaConsumer struct {
	brokers []string
	groupID string
	reader  *kafka.Reader
	log     *zap.Logger
}

func NewKafkaConsumer(brokers []string, groupID string, log *zap.Logger) *KafkaConsumer {
	return &KafkaConsumer{brokers: brokers, groupID: groupID, log: log}
}

func (c *KafkaConsumer) Subscribe(ctx context.Context, topic string, handler func(msg *Message) error) error {
	// GroupID 保证同组内一个分区只被一个消费者消费
	c.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.brokers,
		GroupID:     c.groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	})
	c.log.Info("[Kafka MQ] 开始监听主题", zap.String("topic", topic), zap.String("group", c.groupID))
	return consume(ctx, c.reader, handler, c.log)
}

// groupReader kafka.Reader 中消费循环用到的部分
type groupReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// consume 处理失败时停止消费并返回错误：组内 offset 只能前进，
// 继续提交后面的消息会越过失败的那条，停下来才能在重启后重新投递
func consume(ctx context.Context, r groupReader, handler func(msg *Message) error, log *zap.Logger) error {
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("[Kafka MQ] 读取消息错误", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		msg := &Message{
			ID:      fmt.Sprintf("%d/%d", m.Partition, m.Offset),
			Topic:   m.Topic,
			Key:     string(m.Key),
			Payload: m.Value,
		}
		if err := handler(msg); err != nil {
			log.Error("[Kafka MQ] 业务处理失败，停止消费", zap.String("id", msg.ID), zap.Error(err))
			return fmt.Errorf("handle kafka message %s: %w", msg.ID, err)
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Warn("[Kafka MQ] 提交 Offset 失败", zap.Error(err))
		}
	}
}

func (c *KafkaConsumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}
