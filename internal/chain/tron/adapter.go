package tron

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"deposit-reconciler/internal/chain"
	"deposit-reconciler/internal/model"
	"deposit-reconciler/pkg/errno"

	"github.com/fbsobreira/gotron-sdk/pkg/address"
	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// 主网地址前缀
	addressPrefix = byte(0x41)

	triggerSmartContract = "TriggerSmartContract"
	resultSuccess        = "SUCCESS"
)

// API 适配器依赖的 TronGrid 接口，*HTTPClient 实现了它
type API interface {
	GetAccountTransactions(ctx context.Context, address string, limit int, fingerprint string) (*AccountTransactionsResponse, error)
	GetTransactionInfo(ctx context.Context, txID string) (*TransactionInfo, error)
	GetNowBlock(ctx context.Context) (int64, error)
	GetBlockID(ctx context.Context, num int64) (string, error)
}

type Config struct {
	Network    model.Network
	Decimals   int32
	PageSize   int
	MaxPages   int
	RPCTimeout time.Duration
}

// Adapter TRC20 充值扫描
// 账户模型链没有按区块过滤日志的接口，只能翻账户最近的交易，再逐笔查回执解析 Transfer 日志
type Adapter struct {
	api API
	cfg Config
	log *zap.Logger

	// 区块号 -> 区块 ID，同一区块的多笔转账只查一次
	blocks *gocache.Cache
}

func NewAdapter(api API, cfg Config, log *zap.Logger) *Adapter {
	if cfg.Network == "" {
		cfg.Network = model.NetworkTRC20
	}
	if cfg.Decimals == 0 {
		cfg.Decimals = 6
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	if cfg.RPCTimeout <= 0 {
		cfg.RPCTimeout = 15 * time.Second
	}
	return &Adapter{
		api:    api,
		cfg:    cfg,
		log:    log.With(zap.String("network", string(cfg.Network))),
		blocks: gocache.New(30*time.Minute, 10*time.Minute),
	}
}

func (a *Adapter) Network() model.Network { return a.cfg.Network }

// ChunkSize 账户接口按时间倒序分页，不按区块区间切分
func (a *Adapter) ChunkSize() int64 { return 0 }

func (a *Adapter) HeadHeight(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.RPCTimeout)
	defer cancel()

	n, err := a.api.GetNowBlock(ctx)
	if err != nil {
		return 0, chain.WrapRPCError("getnowblock", err)
	}
	return n, nil
}

func (a *Adapter) FetchTransfers(ctx context.Context, wallet model.MainWallet, from, to int64) (chain.Batch, error) {
	walletAddr, err := address.Base58ToAddress(wallet.Address)
	if err != nil {
		return chain.Batch{}, errno.Wrap(errno.ErrInvalidConfig, fmt.Errorf("wallet %d address %s: %w", wallet.ID, wallet.Address, err))
	}
	tokenAddr, err := address.Base58ToAddress(wallet.TokenContractAddress)
	if err != nil {
		return chain.Batch{}, errno.Wrap(errno.ErrInvalidConfig, fmt.Errorf("wallet %d token %s: %w", wallet.ID, wallet.TokenContractAddress, err))
	}

	candidates, err := a.listCandidates(ctx, wallet.Address, tokenAddr, from, to)
	if err != nil {
		return chain.Batch{}, err
	}

	var batch chain.Batch
	for _, rec := range candidates {
		t, reason, err := a.decodeTransfer(ctx, rec, walletAddr, tokenAddr, wallet.Address)
		if err != nil {
			return chain.Batch{}, err
		}
		if reason != "" {
			a.log.Warn("跳过无法解析的 TRC20 交易", zap.String("tx_hash", rec.TxID), zap.String("reason", reason))
			batch.Malformed = append(batch.Malformed, chain.Malformed{TxHash: rec.TxID, Reason: reason})
			continue
		}
		if t == nil {
			continue
		}

		t.BlockHash, err = a.blockID(ctx, t.BlockNumber)
		if err != nil {
			return chain.Batch{}, err
		}
		batch.Transfers = append(batch.Transfers, *t)
	}

	chain.SortTransfers(batch.Transfers)
	return batch, nil
}

// listCandidates 翻页直到越过 from 或者达到页数上限
func (a *Adapter) listCandidates(ctx context.Context, owner string, token address.Address, from, to int64) ([]TransactionRecord, error) {
	tokenHex := hex.EncodeToString(token.Bytes())
	seen := make(map[string]bool)
	var out []TransactionRecord

	fingerprint := ""
	reachedFrom := false
	for page := 0; page < a.cfg.MaxPages; page++ {
		rctx, cancel := context.WithTimeout(ctx, a.cfg.RPCTimeout)
		resp, err := a.api.GetAccountTransactions(rctx, owner, a.cfg.PageSize, fingerprint)
		cancel()
		if err != nil {
			return nil, chain.WrapRPCError("account transactions", err)
		}

		for _, rec := range resp.Data {
			if rec.BlockNumber <= from {
				reachedFrom = true
				continue
			}
			if rec.BlockNumber > to || seen[rec.TxID] {
				continue
			}
			if isTokenCall(rec, tokenHex) {
				seen[rec.TxID] = true
				out = append(out, rec)
			}
		}

		if reachedFrom || resp.Meta.Fingerprint == "" || len(resp.Data) < a.cfg.PageSize {
			reachedFrom = true
			break
		}
		fingerprint = resp.Meta.Fingerprint
	}

	if !reachedFrom {
		// 超出分页窗口的更早交易不会再被扫到，需要人工核对
		a.log.Warn("分页上限内没有翻到 checkpoint，可能遗漏更早的交易",
			zap.String("address", owner),
			zap.Int64("from", from),
			zap.Int("max_pages", a.cfg.MaxPages))
	}
	return out, nil
}

func isTokenCall(rec TransactionRecord, tokenHex string) bool {
	if len(rec.Ret) > 0 && rec.Ret[0].ContractRet != resultSuccess {
		return false
	}
	if len(rec.RawData.Contract) == 0 {
		return false
	}
	c := rec.RawData.Contract[0]
	if c.Type != triggerSmartContract {
		return false
	}
	return strings.EqualFold(strings.TrimPrefix(c.Parameter.Value.ContractAddress, "0x"), tokenHex)
}

// decodeTransfer 查询回执并解析 Transfer 日志
// 返回 reason 非空表示数据异常，error 非空表示 RPC 失败
func (a *Adapter) decodeTransfer(ctx context.Context, rec TransactionRecord, wallet, token address.Address, walletAddr string) (*chain.RawTransfer, string, error) {
	rctx, cancel := context.WithTimeout(ctx, a.cfg.RPCTimeout)
	info, err := a.api.GetTransactionInfo(rctx, rec.TxID)
	cancel()
	if err != nil {
		return nil, "", chain.WrapRPCError("gettransactioninfobyid "+rec.TxID, err)
	}
	if info.Receipt.Result != "" && info.Receipt.Result != resultSuccess {
		return nil, "", nil
	}

	topic0 := hex.EncodeToString(chain.TransferEventSignature.Bytes())
	total := new(big.Int)
	var from []byte
	matched := false
	for _, lg := range info.Log {
		if !strings.EqualFold(strings.TrimPrefix(lg.Address, "0x"), hex.EncodeToString(token.Bytes()[1:])) {
			continue
		}
		if len(lg.Topics) == 0 || !strings.EqualFold(lg.Topics[0], topic0) {
			continue
		}
		if len(lg.Topics) != 3 {
			return nil, "unexpected topics", nil
		}
		toTopic, err := hex.DecodeString(lg.Topics[2])
		if err != nil || len(toTopic) != 32 {
			return nil, "bad to topic", nil
		}
		if !bytes.Equal(toTopic[12:], wallet.Bytes()[1:]) {
			continue
		}
		fromTopic, err := hex.DecodeString(lg.Topics[1])
		if err != nil || len(fromTopic) != 32 {
			return nil, "bad from topic", nil
		}
		data, err := hex.DecodeString(lg.Data)
		if err != nil || len(data) != 32 {
			return nil, "bad data", nil
		}
		total.Add(total, new(big.Int).SetBytes(data))
		if from == nil {
			from = fromTopic[12:]
		}
		matched = true
	}
	if !matched {
		return nil, "", nil
	}
	if total.Sign() <= 0 {
		return nil, "zero value transfer", nil
	}

	block := info.BlockNumber
	if block == 0 {
		block = rec.BlockNumber
	}
	raw, _ := json.Marshal(struct {
		Transaction TransactionRecord `json:"transaction"`
		Info        *TransactionInfo  `json:"info"`
	}{rec, info})

	return &chain.RawTransfer{
		TxHash:      rec.TxID,
		From:        toBase58(from),
		To:          walletAddr,
		Amount:      decimal.NewFromBigInt(total, -a.cfg.Decimals),
		Network:     a.cfg.Network,
		BlockNumber: block,
		Raw:         raw,
	}, "", nil
}

func (a *Adapter) blockID(ctx context.Context, num int64) (string, error) {
	key := strconv.FormatInt(num, 10)
	if id, ok := a.blocks.Get(key); ok {
		return id.(string), nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.RPCTimeout)
	defer cancel()
	id, err := a.api.GetBlockID(ctx, num)
	if err != nil {
		return "", chain.WrapRPCError(fmt.Sprintf("getblockbynum %d", num), err)
	}
	a.blocks.SetDefault(key, id)
	return id, nil
}

// toBase58 20 字节地址转成 T 开头的 base58 地址
func toBase58(b []byte) string {
	return address.Address(append([]byte{addressPrefix}, b...)).String()
}
