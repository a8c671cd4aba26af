package store

import (
	"context"
	"errors"
	"time"

	"deposit-reconciler/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CheckpointStore 每个网络的扫描水位
type CheckpointStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewCheckpointStore(db *gorm.DB) *CheckpointStore {
	return &CheckpointStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// GetCheckpoint 不存在时返回 0
func (s *CheckpointStore) GetCheckpoint(ctx context.Context, network model.Network) (int64, error) {
	var cp model.BlockCheckpoint
	err := s.db.WithContext(ctx).Where("network = ?", network).Take(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return cp.LastProcessedBlock, nil
}

// SetCheckpoint 只会往前推进，比当前水位低的写入被忽略
func (s *CheckpointStore) SetCheckpoint(ctx context.Context, network model.Network, height int64) error {
	cp := model.BlockCheckpoint{
		Network:            network,
		LastProcessedBlock: height,
		UpdatedAt:          s.now(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "network"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_processed_block", "updated_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "block_checkpoints.last_processed_block < excluded.last_processed_block"},
		}},
	}).Create(&cp).Error
}

// List 返回所有网络的水位，运维接口使用
func (s *CheckpointStore) List(ctx context.Context) ([]model.BlockCheckpoint, error) {
	var cps []model.BlockCheckpoint
	err := s.db.WithContext(ctx).Order("network").Find(&cps).Error
	return cps, err
}
