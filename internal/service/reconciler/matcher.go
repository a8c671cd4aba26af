package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"deposit-reconciler/internal/model"
	"deposit-reconciler/internal/store"
	"deposit-reconciler/pkg/errno"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultAmountTolerance = 0.05

	// 候选 intent 被并发抢走时最多换几个候选
	maxBindAttempts = 3
)

var errAlreadyBound = errors.New("transaction already bound to a user")

// Matcher 把未归属的入账绑定到最早的、金额在容差内的 pending intent
type Matcher struct {
	db        *gorm.DB
	tolerance decimal.Decimal
	now       func() time.Time
	log       *zap.Logger
}

func NewMatcher(db *gorm.DB, tolerance float64, now func() time.Time, log *zap.Logger) *Matcher {
	return &Matcher{
		db:        db,
		tolerance: decimal.NewFromFloat(tolerance),
		now:       now,
		log:       log,
	}
}

// Band 返回 amount 的容差区间 [amount*(1-tol), amount*(1+tol)]
func (m *Matcher) Band(amount decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	one := decimal.NewFromInt(1)
	return amount.Mul(one.Sub(m.tolerance)), amount.Mul(one.Add(m.tolerance))
}

// Match 返回绑定的 intent，没有匹配时返回 nil
// 已经绑定过用户的交易直接跳过
func (m *Matcher) Match(ctx context.Context, dep *model.DepositTransaction) (*model.DepositIntent, error) {
	if dep.UserID != nil || dep.Status == model.TxCredited {
		return nil, nil
	}

	lo, hi := m.Band(dep.Amount)
	now := m.now()
	var bound *model.DepositIntent

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		intents := store.NewIntentStore(tx)
		var tried []uint64

		for attempt := 0; attempt < maxBindAttempts; attempt++ {
			intent, err := intents.OldestCandidate(ctx, dep.Network, lo, hi, now, tried)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			if err != nil {
				return err
			}

			// 1. intent pending -> detected，失败说明被别的交易抢先绑定
			ok, err := intents.Transition(ctx, intent.ID, model.IntentPending, model.IntentDetected, now)
			if err != nil {
				return err
			}
			if !ok {
				tried = append(tried, intent.ID)
				continue
			}

			// 2. 交易绑定用户，只允许从未绑定状态写入
			res := tx.Model(&model.DepositTransaction{}).
				Where("id = ? AND user_id IS NULL", dep.ID).
				Updates(map[string]interface{}{
					"user_id":           intent.UserID,
					"deposit_intent_id": intent.ID,
					"updated_at":        now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errAlreadyBound
			}

			intent.Status = model.IntentDetected
			bound = intent
			return nil
		}
		return nil
	})

	if errors.Is(err, errAlreadyBound) {
		return nil, nil
	}
	if err != nil {
		return nil, errno.Wrap(errno.ErrDatabase, fmt.Errorf("match %s: %w", dep.TxHash, err))
	}

	if bound != nil {
		uid, iid := bound.UserID, bound.ID
		dep.UserID = &uid
		dep.DepositIntentID = &iid
		m.log.Info("入账匹配到充值意向",
			zap.String("tx_hash", dep.TxHash),
			zap.String("amount", dep.Amount.String()),
			zap.Uint64("intent_id", bound.ID),
			zap.Uint64("user_id", bound.UserID))
	} else {
		m.log.Info("入账未匹配到充值意向，等待人工对账",
			zap.String("tx_hash", dep.TxHash),
			zap.String("network", string(dep.Network)),
			zap.String("amount", dep.Amount.String()))
	}
	return bound, nil
}
