package chain

import (
	"context"
	"encoding/json"
	"sort"

	"deposit-reconciler/internal/model"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// TransferEventSignature ERC20/TRC20 Transfer(address,address,uint256) 的 topic0
var TransferEventSignature = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// RawTransfer 链上一笔转入主钱包的转账，Amount 已经按 token 精度换算
type RawTransfer struct {
	TxHash      string
	From        string
	To          string
	Amount      decimal.Decimal
	Network     model.Network
	BlockNumber int64
	BlockHash   string
	LogIndex    uint
	Raw         json.RawMessage
}

// Malformed 无法解码的事件，跳过但需要记录
type Malformed struct {
	TxHash string
	Reason string
}

// Batch 一次拉取的结果
type Batch struct {
	Transfers []RawTransfer
	Malformed []Malformed
}

// Adapter 只读的链 RPC 封装，不做重试也不落库
type Adapter interface {
	Network() model.Network
	// HeadHeight 返回当前链头高度
	HeadHeight(ctx context.Context) (int64, error)
	// FetchTransfers 返回 (from, to] 区间内转入 wallet 的转账
	FetchTransfers(ctx context.Context, wallet model.MainWallet, from, to int64) (Batch, error)
	// ChunkSize 单次调用允许的最大区块跨度，0 表示不限制
	ChunkSize() int64
}

// NextRange 计算 checkpoint 之后的下一个扫描区间，ok=false 表示已经追上链头
func NextRange(checkpoint, head, chunkSize int64) (from, to int64, ok bool) {
	if checkpoint >= head {
		return checkpoint, checkpoint, false
	}
	to = head
	if chunkSize > 0 && checkpoint+chunkSize < head {
		to = checkpoint + chunkSize
	}
	return checkpoint, to, true
}

// FetchTransfersSince 从 checkpoint 之后拉取一个区间的转账，同时返回链头高度
// 调用方需要循环调用直到追上链头
func FetchTransfersSince(ctx context.Context, a Adapter, checkpoint int64, wallet model.MainWallet) (Batch, int64, error) {
	head, err := a.HeadHeight(ctx)
	if err != nil {
		return Batch{}, 0, err
	}
	from, to, ok := NextRange(checkpoint, head, a.ChunkSize())
	if !ok {
		return Batch{}, head, nil
	}
	batch, err := a.FetchTransfers(ctx, wallet, from, to)
	if err != nil {
		return Batch{}, head, err
	}
	return batch, head, nil
}

// SortTransfers 按区块和日志顺序排序
func SortTransfers(ts []RawTransfer) {
	sort.SliceStable(ts, func(i, j int) bool {
		if ts[i].BlockNumber != ts[j].BlockNumber {
			return ts[i].BlockNumber < ts[j].BlockNumber
		}
		return ts[i].LogIndex < ts[j].LogIndex
	})
}

// Registry 按网络查找 adapter
type Registry map[model.Network]Adapter

func NewRegistry(adapters ...Adapter) Registry {
	r := make(Registry, len(adapters))
	for _, a := range adapters {
		r[a.Network()] = a
	}
	return r
}
