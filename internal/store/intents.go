package store

import (
	"context"
	"time"

	"deposit-reconciler/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type IntentStore struct {
	db *gorm.DB
}

func NewIntentStore(db *gorm.DB) *IntentStore {
	return &IntentStore{db: db}
}

// WithTx 返回绑定到事务的 store
func (s *IntentStore) WithTx(tx *gorm.DB) *IntentStore {
	return &IntentStore{db: tx}
}

// OldestCandidate 金额区间内最早创建的待匹配 intent，exclude 用于跳过 CAS 失败的记录
func (s *IntentStore) OldestCandidate(ctx context.Context, network model.Network, lo, hi decimal.Decimal, now time.Time, exclude []uint64) (*model.DepositIntent, error) {
	q := s.db.WithContext(ctx).
		Where("network = ? AND status = ? AND expires_at > ?", network, model.IntentPending, now).
		Where("expected_amount BETWEEN ? AND ?", lo, hi)
	if len(exclude) > 0 {
		q = q.Where("id NOT IN ?", exclude)
	}
	var intent model.DepositIntent
	if err := q.Order("created_at ASC, id ASC").Limit(1).Take(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

// Transition 状态 CAS，返回是否更新成功
func (s *IntentStore) Transition(ctx context.Context, id uint64, from, to string, now time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.DepositIntent{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "updated_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ExpirePending 把过期的 pending intent 标记为 expired，networks 为空表示全部网络
func (s *IntentStore) ExpirePending(ctx context.Context, now time.Time, networks ...model.Network) (int64, error) {
	q := s.db.WithContext(ctx).Model(&model.DepositIntent{}).
		Where("status = ? AND expires_at < ?", model.IntentPending, now)
	if len(networks) > 0 {
		q = q.Where("network IN ?", networks)
	}
	res := q.Updates(map[string]interface{}{"status": model.IntentExpired, "updated_at": now})
	return res.RowsAffected, res.Error
}
