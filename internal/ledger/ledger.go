package ledger

import (
	"context"
	"fmt"
	"time"

	"deposit-reconciler/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const TypeDeposit = "deposit"

// Ledger 用户余额的写接口
// tx 是调用方开启的事务，入账和状态迁移必须在同一个事务里提交
type Ledger interface {
	CreditLedger(ctx context.Context, tx *gorm.DB, userID uint64, amount decimal.Decimal, reason, reference string) error
}

// GormLedger 直接写 user_balances 和 transaction_log
type GormLedger struct {
	now func() time.Time
}

func NewGormLedger() *GormLedger {
	return &GormLedger{now: func() time.Time { return time.Now().UTC() }}
}

func (l *GormLedger) CreditLedger(ctx context.Context, tx *gorm.DB, userID uint64, amount decimal.Decimal, reason, reference string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("credit amount must be positive, got %s", amount)
	}
	now := l.now()
	tx = tx.WithContext(ctx)

	// 1. 余额原子自增 (不存在则创建)
	bal := model.UserBalance{UserID: userID, AvailableBalance: amount, UpdatedAt: now}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Set{
			{Column: clause.Column{Name: "available_balance"}, Value: gorm.Expr("user_balances.available_balance + excluded.available_balance")},
			{Column: clause.Column{Name: "updated_at"}, Value: now},
		},
	}).Create(&bal).Error
	if err != nil {
		return fmt.Errorf("increment balance for user %d: %w", userID, err)
	}

	// 2. 流水，(type, reference) 唯一，重复入账会在这里失败并回滚
	entry := model.TransactionLog{
		UserID:    userID,
		Type:      TypeDeposit,
		Amount:    amount,
		Reference: reference,
		Reason:    reason,
		CreatedAt: now,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("append transaction log %s: %w", reference, err)
	}
	return nil
}
