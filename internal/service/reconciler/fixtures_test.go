package reconciler

import (
	"context"
	"sync"
	"testing"

	"deposit-reconciler/internal/chain"
	"deposit-reconciler/internal/model"
	"deposit-reconciler/internal/store"
	"deposit-reconciler/internal/testutil"
	"deposit-reconciler/pkg/monitor"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// fakeAdapter 内存里的链，按区块高度返回转入钱包的转账
type fakeAdapter struct {
	network   model.Network
	chunk     int64
	head      int64
	headErr   error
	fetchErr  error
	transfers []chain.RawTransfer
	malformed []chain.Malformed
	// 拉取 from 等于 blockFrom 的区块段时挂起，直到 ctx 结束
	blockFrom int64

	mu     sync.Mutex
	ranges [][2]int64
}

func (f *fakeAdapter) Network() model.Network { return f.network }
func (f *fakeAdapter) ChunkSize() int64       { return f.chunk }

func (f *fakeAdapter) HeadHeight(context.Context) (int64, error) {
	return f.head, f.headErr
}

func (f *fakeAdapter) FetchTransfers(ctx context.Context, w model.MainWallet, from, to int64) (chain.Batch, error) {
	f.mu.Lock()
	f.ranges = append(f.ranges, [2]int64{from, to})
	f.mu.Unlock()
	if f.blockFrom > 0 && from == f.blockFrom {
		<-ctx.Done()
		return chain.Batch{}, chain.WrapRPCError("eth_getLogs", ctx.Err())
	}
	if f.fetchErr != nil {
		return chain.Batch{}, f.fetchErr
	}
	var b chain.Batch
	for _, tr := range f.transfers {
		if tr.To == w.Address && tr.BlockNumber > from && tr.BlockNumber <= to {
			b.Transfers = append(b.Transfers, tr)
		}
	}
	b.Malformed = f.malformed
	f.malformed = nil
	return b, nil
}

func (f *fakeAdapter) fetchedRanges() [][2]int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][2]int64(nil), f.ranges...)
}

func transfer(network model.Network, hash, to, amount string, block int64) chain.RawTransfer {
	return chain.RawTransfer{
		TxHash:      hash,
		From:        "sender",
		To:          to,
		Amount:      decimal.RequireFromString(amount),
		Network:     network,
		BlockNumber: block,
		BlockHash:   "blk",
	}
}

func wallet(t *testing.T, db *gorm.DB, network model.Network, address string, minConf int) model.MainWallet {
	t.Helper()
	w := &model.MainWallet{
		Network:              network,
		Address:              address,
		TokenContractAddress: "token",
		MinConfirmations:     minConf,
		IsActive:             true,
	}
	testutil.MustCreate(t, db, w)
	return *w
}

func testMetrics() *monitor.BusinessMetrics {
	return monitor.NewBusinessMetrics(prometheus.NewRegistry())
}

func newTestEngine(db *gorm.DB, clock *testutil.Clock, cfg Config, adapters ...chain.Adapter) *Engine {
	return NewEngine(db, chain.NewRegistry(adapters...), cfg, Options{
		Metrics: testMetrics(),
		Logger:  zap.NewNop(),
		Now:     clock.Now,
	})
}

// pendingDeposit 直接落一条 pending 交易
func pendingDeposit(t *testing.T, db *gorm.DB, network model.Network, hash, to, amount string, block int64) *model.DepositTransaction {
	t.Helper()
	ing := NewIngestor(store.NewDepositStore(db))
	created, dep, err := ing.Ingest(context.Background(), transfer(network, hash, to, amount, block))
	if err != nil || !created {
		t.Fatalf("ingest %s: created=%v err=%v", hash, created, err)
	}
	return dep
}
