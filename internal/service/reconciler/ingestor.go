package reconciler

import (
	"context"
	"encoding/json"
	"fmt"

	"deposit-reconciler/internal/chain"
	"deposit-reconciler/internal/model"
	"deposit-reconciler/internal/store"
	"deposit-reconciler/pkg/errno"
)

// Ingestor 把链上转账落库为 pending 的 DepositTransaction，按 tx_hash 幂等
type Ingestor struct {
	deposits *store.DepositStore
}

func NewIngestor(deposits *store.DepositStore) *Ingestor {
	return &Ingestor{deposits: deposits}
}

// Ingest 返回 created=false 表示已存在，此时 dep 是库里已有的记录
func (i *Ingestor) Ingest(ctx context.Context, raw chain.RawTransfer) (bool, *model.DepositTransaction, error) {
	if raw.TxHash == "" {
		return false, nil, errno.Wrap(errno.ErrMalformedTransfer, fmt.Errorf("empty tx hash"))
	}
	if !raw.Amount.IsPositive() {
		return false, nil, errno.Wrap(errno.ErrMalformedTransfer, fmt.Errorf("non-positive amount %s in %s", raw.Amount, raw.TxHash))
	}

	payload := string(raw.Raw)
	if payload == "" || !json.Valid(raw.Raw) {
		payload = "{}"
	}

	dep := &model.DepositTransaction{
		TxHash:        raw.TxHash,
		FromAddress:   raw.From,
		ToAddress:     raw.To,
		Amount:        raw.Amount,
		Network:       raw.Network,
		BlockNumber:   raw.BlockNumber,
		BlockHash:     raw.BlockHash,
		Confirmations: 0,
		Status:        model.TxPending,
		RawPayload:    payload,
	}

	created, err := i.deposits.InsertIfAbsent(ctx, dep)
	if err != nil {
		return false, nil, errno.Wrap(errno.ErrDatabase, fmt.Errorf("insert %s: %w", raw.TxHash, err))
	}
	if created {
		return true, dep, nil
	}

	existing, err := i.deposits.FindByHash(ctx, raw.TxHash)
	if err != nil {
		return false, nil, errno.Wrap(errno.ErrDatabase, fmt.Errorf("load %s: %w", raw.TxHash, err))
	}
	return false, existing, nil
}
