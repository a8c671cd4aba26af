package reconciler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"deposit-reconciler/internal/ledger"
	"deposit-reconciler/internal/model"
	"deposit-reconciler/pkg/errno"
	"deposit-reconciler/pkg/monitor"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreditApplier confirmed -> credited，余额、流水、intent、outbox 在同一个事务里
type CreditApplier struct {
	db     *gorm.DB
	ledger ledger.Ledger
	now    func() time.Time
	log    *zap.Logger

	metrics *monitor.BusinessMetrics
}

func NewCreditApplier(db *gorm.DB, l ledger.Ledger, now func() time.Time, log *zap.Logger) *CreditApplier {
	return &CreditApplier{db: db, ledger: l, now: now, log: log}
}

// WithMetrics 入账成功时记录笔数和金额
func (c *CreditApplier) WithMetrics(m *monitor.BusinessMetrics) *CreditApplier {
	c.metrics = m
	return c
}

// Apply 返回 true 表示本次调用完成了入账
// 已入账、未确认或未绑定用户的交易都是 no-op
func (c *CreditApplier) Apply(ctx context.Context, depositID uint64) (bool, error) {
	now := c.now()
	var dep model.DepositTransaction
	credited := false

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.Where("id = ?", depositID).Take(&dep).Error; err != nil {
			return err
		}
		if dep.Status != model.TxConfirmed || dep.UserID == nil {
			return nil
		}

		// 1. 状态 CAS 是提交标记，RowsAffected=0 说明别的进程已经入账
		res := tx.Model(&model.DepositTransaction{}).
			Where("id = ? AND status = ? AND user_id IS NOT NULL", dep.ID, model.TxConfirmed).
			Updates(map[string]interface{}{
				"status":      model.TxCredited,
				"credited_at": now,
				"updated_at":  now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		// 2. 余额 + 流水
		reason := fmt.Sprintf("%s deposit %s", dep.Network, dep.TxHash)
		if err := c.ledger.CreditLedger(ctx, tx, *dep.UserID, dep.Amount, reason, dep.TxHash); err != nil {
			return err
		}

		// 3. intent detected -> credited
		if dep.DepositIntentID != nil {
			if err := tx.Model(&model.DepositIntent{}).
				Where("id = ? AND status = ?", *dep.DepositIntentID, model.IntentDetected).
				Updates(map[string]interface{}{"status": model.IntentCredited, "updated_at": now}).Error; err != nil {
				return err
			}
		}

		// 4. Outbox 消息 (同一个事务)
		event := model.DepositCreditedEvent{
			TxHash:          dep.TxHash,
			Network:         dep.Network,
			UserID:          *dep.UserID,
			Amount:          dep.Amount.String(),
			DepositIntentID: dep.DepositIntentID,
			CreditedAt:      now.Format(time.RFC3339),
		}
		if err := model.CreateOutboxMessage(tx, model.TopicDepositCredited, strconv.FormatUint(*dep.UserID, 10), event); err != nil {
			return err
		}

		credited = true
		return nil
	})
	if err != nil {
		return false, errno.Wrap(errno.ErrDatabase, fmt.Errorf("credit deposit %d: %w", depositID, err))
	}

	if credited {
		if c.metrics != nil {
			c.metrics.DepositsCreditedTotal.WithLabelValues(string(dep.Network)).Inc()
			c.metrics.DepositAmountTotal.WithLabelValues(string(dep.Network)).Add(dep.Amount.InexactFloat64())
		}
		c.log.Info("充值入账成功",
			zap.String("tx_hash", dep.TxHash),
			zap.String("network", string(dep.Network)),
			zap.Uint64("user_id", *dep.UserID),
			zap.String("amount", dep.Amount.String()))
	}
	return credited, nil
}
