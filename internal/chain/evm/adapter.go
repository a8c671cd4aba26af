package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"deposit-reconciler/internal/chain"
	"deposit-reconciler/internal/model"
	"deposit-reconciler/pkg/errno"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultChunkSize = 1000

// Client 只用到 ethclient 的这两个方法，测试时可以替换
type Client interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

type Config struct {
	Network    model.Network
	ChunkSize  int64
	Decimals   int32
	RPCTimeout time.Duration
}

// Adapter BEP20/ERC20 充值扫描: 按区块区间过滤 Transfer 日志
type Adapter struct {
	client Client
	cfg    Config
	log    *zap.Logger
}

// Dial 连接 RPC 节点
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(rpcURL)
	if trimmed == "" {
		return nil, fmt.Errorf("evm rpc url required")
	}
	return ethclient.DialContext(ctx, trimmed)
}

func NewAdapter(client Client, cfg Config, log *zap.Logger) *Adapter {
	if cfg.Network == "" {
		cfg.Network = model.NetworkBEP20
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Decimals == 0 {
		cfg.Decimals = 18
	}
	if cfg.RPCTimeout <= 0 {
		cfg.RPCTimeout = 15 * time.Second
	}
	return &Adapter{client: client, cfg: cfg, log: log.With(zap.String("network", string(cfg.Network)))}
}

func (a *Adapter) Network() model.Network { return a.cfg.Network }

func (a *Adapter) ChunkSize() int64 { return a.cfg.ChunkSize }

func (a *Adapter) HeadHeight(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.RPCTimeout)
	defer cancel()

	n, err := a.client.BlockNumber(ctx)
	if err != nil {
		return 0, chain.WrapRPCError("eth_blockNumber", err)
	}
	return int64(n), nil
}

func (a *Adapter) FetchTransfers(ctx context.Context, wallet model.MainWallet, from, to int64) (chain.Batch, error) {
	if !common.IsHexAddress(wallet.Address) {
		return chain.Batch{}, errno.Wrap(errno.ErrInvalidConfig, fmt.Errorf("wallet %d address %s", wallet.ID, wallet.Address))
	}
	if !common.IsHexAddress(wallet.TokenContractAddress) {
		return chain.Batch{}, errno.Wrap(errno.ErrInvalidConfig, fmt.Errorf("wallet %d token %s", wallet.ID, wallet.TokenContractAddress))
	}
	token := common.HexToAddress(wallet.TokenContractAddress)
	target := common.HexToAddress(wallet.Address)

	q := ethereum.FilterQuery{
		FromBlock: big.NewInt(from + 1),
		ToBlock:   big.NewInt(to),
		Addresses: []common.Address{token},
		Topics: [][]common.Hash{
			{chain.TransferEventSignature},
			nil,
			{common.BytesToHash(target.Bytes())},
		},
	}

	rctx, cancel := context.WithTimeout(ctx, a.cfg.RPCTimeout)
	defer cancel()
	logs, err := a.client.FilterLogs(rctx, q)
	if err != nil {
		return chain.Batch{}, chain.WrapRPCError(fmt.Sprintf("eth_getLogs [%d,%d]", from+1, to), err)
	}

	var batch chain.Batch
	// 同一笔交易里多条转入日志合并成一条记录，tx_hash 是去重键
	byHash := make(map[string]int)
	for _, lg := range logs {
		t, reason := a.decode(lg, token, target, wallet.Address)
		if reason != "" {
			a.log.Warn("跳过无法解析的 Transfer 日志",
				zap.String("tx_hash", lg.TxHash.Hex()),
				zap.Uint("log_index", lg.Index),
				zap.String("reason", reason))
			batch.Malformed = append(batch.Malformed, chain.Malformed{TxHash: lg.TxHash.Hex(), Reason: reason})
			continue
		}
		if t == nil {
			continue
		}
		if i, ok := byHash[t.TxHash]; ok {
			batch.Transfers[i].Amount = batch.Transfers[i].Amount.Add(t.Amount)
			continue
		}
		byHash[t.TxHash] = len(batch.Transfers)
		batch.Transfers = append(batch.Transfers, *t)
	}

	chain.SortTransfers(batch.Transfers)
	return batch, nil
}

// decode 返回 (nil, "") 表示不是给我们的日志，直接忽略
func (a *Adapter) decode(lg types.Log, token, target common.Address, walletAddr string) (*chain.RawTransfer, string) {
	if lg.Removed {
		return nil, ""
	}
	if lg.Address != token {
		return nil, ""
	}
	if len(lg.Topics) != 3 || lg.Topics[0] != chain.TransferEventSignature {
		return nil, "unexpected topics"
	}
	if common.BytesToAddress(lg.Topics[2].Bytes()) != target {
		return nil, ""
	}
	if len(lg.Data) != 32 {
		return nil, fmt.Sprintf("unexpected data length %d", len(lg.Data))
	}

	value := new(big.Int).SetBytes(lg.Data)
	if value.Sign() <= 0 {
		return nil, "zero value transfer"
	}

	raw, _ := json.Marshal(lg)
	return &chain.RawTransfer{
		TxHash:      lg.TxHash.Hex(),
		From:        common.BytesToAddress(lg.Topics[1].Bytes()).Hex(),
		To:          walletAddr,
		Amount:      decimal.NewFromBigInt(value, -a.cfg.Decimals),
		Network:     a.cfg.Network,
		BlockNumber: int64(lg.BlockNumber),
		BlockHash:   lg.BlockHash.Hex(),
		LogIndex:    lg.Index,
		Raw:         raw,
	}, ""
}
