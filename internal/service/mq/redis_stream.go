package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisProducer 基于 Redis Streams (XADD)
type RedisProducer struct {
	client *redis.Client
	maxLen int64
}

func NewRedisProducer(client *redis.Client) *RedisProducer {
	return &RedisProducer{client: client, maxLen: 100_000}
}

func (p *RedisProducer) Publish(ctx context.Context, topic string, key string, payload []byte) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"key":     key,
			"payload": payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis xadd error: %w", err)
	}
	return nil
}

// Close 连接由调用方管理
func (p *RedisProducer) Close() error { return nil }

// RedisConsumer 消费者组读取 (XREADGROUP)，处理成功后 XACK
type RedisConsumer struct {
	client *redis.Client
	group  string
	name   string
	log    *zap.Logger
}

func NewRedisConsumer(client *redis.Client, group, name string, log *zap.Logger) *RedisConsumer {
	return &RedisConsumer{client: client, group: group, name: name, log: log}
}

func (c *RedisConsumer) Subscribe(ctx context.Context, topic string, handler func(msg *Message) error) error {
	// XGROUP CREATE <stream> <group> $ MKSTREAM
	err := c.client.XGroupCreateMkStream(ctx, topic, c.group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("创建消费者组失败: %w", err)
	}
	c.log.Info("[Redis MQ] 开始监听主题", zap.String("topic", topic), zap.String("group", c.group))

	for {
		if ctx.Err() != nil {
			return nil
		}
		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.name,
			Streams:  []string{topic, ">"},
			Count:    10,
			Block:    2 * time.Second,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn("[Redis MQ] 读取消息错误", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, xm := range stream.Messages {
				msg, ok := decodeStreamMessage(topic, xm)
				if !ok {
					c.log.Warn("[Redis MQ] 消息格式错误: payload 缺失", zap.String("id", xm.ID))
					c.ack(ctx, topic, xm.ID)
					continue
				}
				if err := handler(msg); err != nil {
					// 留在 PEL 里，等待 XCLAIM 或人工处理
					c.log.Error("[Redis MQ] 消息处理失败", zap.String("id", xm.ID), zap.Error(err))
					continue
				}
				c.ack(ctx, topic, xm.ID)
			}
		}
	}
}

func decodeStreamMessage(topic string, xm redis.XMessage) (*Message, bool) {
	payload, ok := xm.Values["payload"].(string)
	if !ok {
		return nil, false
	}
	key, _ := xm.Values["key"].(string)
	return &Message{ID: xm.ID, Topic: topic, Key: key, Payload: []byte(payload)}, true
}

func (c *RedisConsumer) ack(ctx context.Context, topic, id string) {
	if err := c.client.XAck(ctx, topic, c.group, id).Err(); err != nil {
		c.log.Warn("[Redis MQ] ACK 失败", zap.String("id", id), zap.Error(err))
	}
}

// Close 连接由调用方管理
func (c *RedisConsumer) Close() error { return nil }
