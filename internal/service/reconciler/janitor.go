package reconciler

import (
	"context"
	"fmt"
	"time"

	"deposit-reconciler/internal/model"
	"deposit-reconciler/internal/store"
	"deposit-reconciler/pkg/errno"

	"go.uber.org/zap"
)

// Janitor 过期未匹配的 intent
// 匹配查询本身已经排除了过期记录，这里只是让状态和统计准确
type Janitor struct {
	intents *store.IntentStore
	now     func() time.Time
	log     *zap.Logger
}

func NewJanitor(intents *store.IntentStore, now func() time.Time, log *zap.Logger) *Janitor {
	return &Janitor{intents: intents, now: now, log: log}
}

// Run networks 为空时处理全部网络
func (j *Janitor) Run(ctx context.Context, networks ...model.Network) (int64, error) {
	n, err := j.intents.ExpirePending(ctx, j.now(), networks...)
	if err != nil {
		return 0, errno.Wrap(errno.ErrDatabase, fmt.Errorf("expire intents: %w", err))
	}
	if n > 0 {
		j.log.Info("过期充值意向", zap.Int64("count", n))
	}
	return n, nil
}
