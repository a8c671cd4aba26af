package store

import (
	"context"
	"time"

	"deposit-reconciler/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DepositStore struct {
	db *gorm.DB
}

func NewDepositStore(db *gorm.DB) *DepositStore {
	return &DepositStore{db: db}
}

// InsertIfAbsent 依赖 tx_hash 唯一索引去重，已存在时返回 false
func (s *DepositStore) InsertIfAbsent(ctx context.Context, dep *model.DepositTransaction) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "tx_hash"}}, DoNothing: true}).
		Create(dep)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *DepositStore) FindByHash(ctx context.Context, txHash string) (*model.DepositTransaction, error) {
	var dep model.DepositTransaction
	if err := s.db.WithContext(ctx).Where("tx_hash = ?", txHash).Take(&dep).Error; err != nil {
		return nil, err
	}
	return &dep, nil
}

// ListTrackable 最近的未终结交易，限制批量控制每轮开销
// 已确认但没有归属用户的交易不再参与，人工补上 user_id 后会重新进入入账流程
func (s *DepositStore) ListTrackable(ctx context.Context, network model.Network, limit int) ([]model.DepositTransaction, error) {
	var deps []model.DepositTransaction
	err := s.db.WithContext(ctx).
		Where("network = ?", network).
		Where("(status = ? OR (status = ? AND user_id IS NOT NULL))", model.TxPending, model.TxConfirmed).
		Order("block_number DESC, id DESC").
		Limit(limit).
		Find(&deps).Error
	return deps, err
}

// UpdateConfirmations 确认数只增不减
func (s *DepositStore) UpdateConfirmations(ctx context.Context, id uint64, confirmations int64, now time.Time) error {
	return s.db.WithContext(ctx).Model(&model.DepositTransaction{}).
		Where("id = ? AND confirmations < ?", id, confirmations).
		Updates(map[string]interface{}{"confirmations": confirmations, "updated_at": now}).Error
}

// MarkConfirmed pending -> confirmed 的 CAS，返回是否由本次调用完成迁移
func (s *DepositStore) MarkConfirmed(ctx context.Context, id uint64, confirmations int64, now time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.DepositTransaction{}).
		Where("id = ? AND status = ?", id, model.TxPending).
		Updates(map[string]interface{}{
			"status":        model.TxConfirmed,
			"confirmations": confirmations,
			"confirmed_at":  now,
			"updated_at":    now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListUnmatched 未绑定用户的入账，需要人工对账
func (s *DepositStore) ListUnmatched(ctx context.Context, network model.Network, limit int) ([]model.DepositTransaction, error) {
	q := s.db.WithContext(ctx).
		Where("user_id IS NULL AND status IN ?", []string{model.TxPending, model.TxConfirmed})
	if network != "" {
		q = q.Where("network = ?", network)
	}
	var deps []model.DepositTransaction
	err := q.Order("id ASC").Limit(limit).Find(&deps).Error
	return deps, err
}

// CountUnmatched network 为空时统计全部网络
func (s *DepositStore) CountUnmatched(ctx context.Context, network model.Network) (int64, error) {
	q := s.db.WithContext(ctx).Model(&model.DepositTransaction{}).
		Where("user_id IS NULL AND status IN ?", []string{model.TxPending, model.TxConfirmed})
	if network != "" {
		q = q.Where("network = ?", network)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}
