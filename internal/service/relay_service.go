package service

import (
	"context"
	"time"

	"deposit-reconciler/internal/model"
	"deposit-reconciler/internal/service/mq"
	"deposit-reconciler/pkg/monitor"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RelayService 负责将本地消息表的消息搬运到 MQ
// 只有发送成功才标记 SENT，所以是 at-least-once，下游按 tx_hash 幂等
type RelayService struct {
	db        *gorm.DB
	producer  mq.Producer
	interval  time.Duration
	batchSize int
	metrics   *monitor.BusinessMetrics
	log       *zap.Logger
}

func NewRelayService(db *gorm.DB, producer mq.Producer, metrics *monitor.BusinessMetrics, log *zap.Logger) *RelayService {
	return &RelayService{
		db:        db,
		producer:  producer,
		interval:  500 * time.Millisecond,
		batchSize: 50,
		metrics:   metrics,
		log:       log,
	}
}

func (s *RelayService) Start(ctx context.Context) {
	s.log.Info("[Relay] 启动消息中继服务", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("[Relay] 停止服务")
			return
		case <-ticker.C:
			s.RelayPending(ctx)
		}
	}
}

// RelayPending 发送一批 PENDING 消息，返回成功发送的条数
func (s *RelayService) RelayPending(ctx context.Context) int {
	var messages []model.OutboxMessage
	if err := s.db.WithContext(ctx).
		Where("status = ?", model.OutboxPending).
		Order("id").
		Limit(s.batchSize).
		Find(&messages).Error; err != nil {
		s.log.Error("[Relay] 查询消息失败", zap.Error(err))
		return 0
	}
	if len(messages) == 0 {
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if err := s.producer.Publish(ctx, msg.Topic, msg.Key, msg.Payload); err != nil {
			s.log.Warn("[Relay] 发送消息失败", zap.Uint64("id", msg.ID), zap.String("topic", msg.Topic), zap.Error(err))
			s.metrics.OutboxRelayedTotal.WithLabelValues(msg.Topic, "error").Inc()
			// 保持顺序，同一批后面的消息下次再发
			break
		}
		s.metrics.OutboxRelayedTotal.WithLabelValues(msg.Topic, "sent").Inc()

		// 如果这里更新失败，下次还会再发一次
		if err := s.db.WithContext(ctx).Model(&model.OutboxMessage{}).
			Where("id = ? AND status = ?", msg.ID, model.OutboxPending).
			Update("status", model.OutboxSent).Error; err != nil {
			s.log.Error("[Relay] 更新状态失败", zap.Uint64("id", msg.ID), zap.Error(err))
			continue
		}
		sent++
	}
	s.log.Debug("[Relay] 本批投递完成", zap.Int("pending", len(messages)), zap.Int("sent", sent))
	return sent
}
