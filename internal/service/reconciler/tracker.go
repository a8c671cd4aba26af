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

const DefaultBatchSize = 50

// TrackResult 一次确认数扫描的结果
type TrackResult struct {
	Confirmed  int
	Credited   int
	ItemErrors []ItemError
}

// Tracker 按链头重新计算确认数，达到阈值后 pending -> confirmed，并在同一轮触发入账
type Tracker struct {
	deposits  *store.DepositStore
	wallets   *store.WalletStore
	credit    *CreditApplier
	batchSize int
	now       func() time.Time
	log       *zap.Logger
}

func NewTracker(deposits *store.DepositStore, wallets *store.WalletStore, credit *CreditApplier, batchSize int, now func() time.Time, log *zap.Logger) *Tracker {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Tracker{deposits: deposits, wallets: wallets, credit: credit, batchSize: batchSize, now: now, log: log}
}

// Confirmations 链头减去交易区块高度，不会小于 0
func Confirmations(head, block int64) int64 {
	if head <= block {
		return 0
	}
	return head - block
}

// Track 数据库错误终止本次扫描，单笔入账失败只记录不中断
func (t *Tracker) Track(ctx context.Context, network model.Network, head int64, defaultMin int) (*TrackResult, error) {
	thresholds, err := t.wallets.MinConfirmationsByAddress(ctx, network)
	if err != nil {
		return nil, errno.Wrap(errno.ErrDatabase, fmt.Errorf("load wallet thresholds: %w", err))
	}
	deps, err := t.deposits.ListTrackable(ctx, network, t.batchSize)
	if err != nil {
		return nil, errno.Wrap(errno.ErrDatabase, fmt.Errorf("list trackable: %w", err))
	}

	res := &TrackResult{}
	for i := range deps {
		dep := &deps[i]
		conf := Confirmations(head, dep.BlockNumber)
		minConf, ok := thresholds[dep.ToAddress]
		if !ok {
			minConf = defaultMin
		}
		now := t.now()

		if conf > dep.Confirmations {
			if err := t.deposits.UpdateConfirmations(ctx, dep.ID, conf, now); err != nil {
				return res, errno.Wrap(errno.ErrDatabase, fmt.Errorf("update confirmations %s: %w", dep.TxHash, err))
			}
			dep.Confirmations = conf
		}

		if dep.Status == model.TxPending && conf >= int64(minConf) {
			promoted, err := t.deposits.MarkConfirmed(ctx, dep.ID, conf, now)
			if err != nil {
				return res, errno.Wrap(errno.ErrDatabase, fmt.Errorf("confirm %s: %w", dep.TxHash, err))
			}
			if promoted {
				res.Confirmed++
				t.log.Info("入账达到确认数",
					zap.String("tx_hash", dep.TxHash),
					zap.Int64("confirmations", conf),
					zap.Int("min_confirmations", minConf))
			}
			dep.Status = model.TxConfirmed
		}

		if dep.Status != model.TxConfirmed || dep.UserID == nil {
			continue
		}

		// 上一轮入账失败的 confirmed 交易也会在这里重试
		credited, err := t.credit.Apply(ctx, dep.ID)
		if err != nil {
			t.log.Error("入账失败", zap.String("tx_hash", dep.TxHash), zap.Error(err))
			res.ItemErrors = append(res.ItemErrors, ItemError{
				TxHash: dep.TxHash,
				Stage:  "credit",
				Kind:   errno.KindOf(err).String(),
				Error:  err.Error(),
			})
			continue
		}
		if credited {
			res.Credited++
		}
	}
	return res, nil
}
