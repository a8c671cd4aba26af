package reconciler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"deposit-reconciler/internal/chain"
	"deposit-reconciler/internal/ledger"
	"deposit-reconciler/internal/model"
	"deposit-reconciler/internal/store"
	"deposit-reconciler/pkg/errno"
	"deposit-reconciler/pkg/monitor"
	"deposit-reconciler/pkg/tracing"
	"deposit-reconciler/pkg/utils/lock"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// NetworkConfig 每个网络的扫描参数
type NetworkConfig struct {
	DefaultMinConfirmations int
	StartBlock              int64 // checkpoint 为 0 时从这个高度开始扫
	InitialLookback         int64 // 没有 StartBlock 时从 head-InitialLookback 开始，0 表示从创世块
}

type Config struct {
	AmountTolerance   float64
	BatchSize         int
	NetworkTimeout    time.Duration
	MaxChunksPerCycle int
	UseLock           bool
	Networks          map[model.Network]NetworkConfig
}

func DefaultConfig() Config {
	return Config{
		AmountTolerance:   DefaultAmountTolerance,
		BatchSize:         DefaultBatchSize,
		NetworkTimeout:    2 * time.Minute,
		MaxChunksPerCycle: 50,
		Networks:          map[model.Network]NetworkConfig{},
	}
}

// Options 可选依赖，零值使用默认实现
type Options struct {
	Ledger  ledger.Ledger
	Locker  lock.DistributedLock
	Metrics *monitor.BusinessMetrics
	Logger  *zap.Logger
	Now     func() time.Time
}

// Engine 对账引擎，本身不持有跨轮次状态，所有事实每轮从数据库重新读取
type Engine struct {
	cfg      Config
	adapters chain.Registry

	wallets     *store.WalletStore
	deposits    *store.DepositStore
	checkpoints *store.CheckpointStore

	Ingestor *Ingestor
	Matcher  *Matcher
	Credit   *CreditApplier
	Tracker  *Tracker
	Janitor  *Janitor

	locker  lock.DistributedLock
	metrics *monitor.BusinessMetrics
	log     *zap.Logger
	now     func() time.Time
}

func NewEngine(db *gorm.DB, adapters chain.Registry, cfg Config, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Ledger == nil {
		opts.Ledger = ledger.NewGormLedger()
	}
	if opts.Metrics == nil {
		opts.Metrics = monitor.InitBusinessMetrics()
	}
	if cfg.UseLock && opts.Locker == nil {
		opts.Locker = lock.NewLocalLock()
	}
	if cfg.NetworkTimeout <= 0 {
		cfg.NetworkTimeout = 2 * time.Minute
	}
	if cfg.Networks == nil {
		cfg.Networks = map[model.Network]NetworkConfig{}
	}

	log := opts.Logger
	deposits := store.NewDepositStore(db)
	wallets := store.NewWalletStore(db)
	credit := NewCreditApplier(db, opts.Ledger, opts.Now, log.Named("credit")).WithMetrics(opts.Metrics)

	return &Engine{
		cfg:         cfg,
		adapters:    adapters,
		wallets:     wallets,
		deposits:    deposits,
		checkpoints: store.NewCheckpointStore(db),
		Ingestor:    NewIngestor(deposits),
		Matcher:     NewMatcher(db, cfg.AmountTolerance, opts.Now, log.Named("matcher")),
		Credit:      credit,
		Tracker:     NewTracker(deposits, wallets, credit, cfg.BatchSize, opts.Now, log.Named("tracker")),
		Janitor:     NewJanitor(store.NewIntentStore(db), opts.Now, log.Named("janitor")),
		locker:      opts.Locker,
		metrics:     opts.Metrics,
		log:         log,
		now:         opts.Now,
	}
}

// ProcessCycle 处理所有有启用钱包的网络，网络之间并发且互相隔离
// 只有无法开始本轮时 (没有启用的钱包、读不到钱包配置) 才返回 error，其余失败都记录在报告里
func (e *Engine) ProcessCycle(ctx context.Context) (*CycleReport, error) {
	report := &CycleReport{CycleID: uuid.NewString(), StartedAt: e.now()}
	ctx, span := tracing.Tracer().Start(ctx, "reconciler.ProcessCycle")
	span.SetAttributes(attribute.String("cycle_id", report.CycleID))
	defer span.End()

	log := e.log.With(zap.String("cycle_id", report.CycleID))

	wallets, err := e.wallets.ListActive(ctx)
	if err != nil {
		err = errno.Wrap(errno.ErrDatabase, fmt.Errorf("list active wallets: %w", err))
		return e.abortCycle(report, span, log, err)
	}
	if len(wallets) == 0 {
		return e.abortCycle(report, span, log, errno.ErrNoActiveWallets)
	}

	groups := store.GroupByNetwork(wallets)
	networks := make([]model.Network, 0, len(groups))
	for n := range groups {
		networks = append(networks, n)
	}
	sort.Slice(networks, func(i, j int) bool { return networks[i] < networks[j] })

	report.Networks = make([]NetworkReport, len(networks))
	var g errgroup.Group
	for i, n := range networks {
		g.Go(func() error {
			report.Networks[i] = e.processNetwork(ctx, n, groups[n], log)
			return nil
		})
	}
	_ = g.Wait()

	expired, err := e.Janitor.Run(ctx)
	if err != nil {
		log.Error("Janitor 执行失败", zap.Error(err))
		report.Error = err.Error()
	} else {
		report.Expired = expired
		e.metrics.IntentsExpiredTotal.Add(float64(expired))
	}

	report.FinishedAt = e.now()
	t := report.Totals()
	log.Info("对账周期完成",
		zap.Int("networks", len(report.Networks)),
		zap.Any("failed", report.Failed()),
		zap.Int("ingested", t.Ingested),
		zap.Int("matched", t.Matched),
		zap.Int("credited", t.Credited),
		zap.Int64("expired", report.Expired),
		zap.Int64("unmatched", t.Unmatched))
	return report, nil
}

func (e *Engine) abortCycle(report *CycleReport, span trace.Span, log *zap.Logger, err error) (*CycleReport, error) {
	log.Error("对账周期无法执行", zap.Error(err), zap.String("kind", errno.KindOf(err).String()))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	report.Error = err.Error()
	report.FinishedAt = e.now()
	return report, err
}

// ProcessNetwork 只处理一个网络，并过期该网络的 intent
func (e *Engine) ProcessNetwork(ctx context.Context, network model.Network) (*NetworkReport, error) {
	wallets, err := e.wallets.ListActiveByNetwork(ctx, network)
	if err != nil {
		return nil, errno.Wrap(errno.ErrDatabase, fmt.Errorf("list wallets for %s: %w", network, err))
	}
	if len(wallets) == 0 {
		return nil, errno.Wrap(errno.ErrNoActiveWallets, fmt.Errorf("network %s", network))
	}

	rep := e.processNetwork(ctx, network, wallets, e.log)
	if rep.Status != StatusFailed {
		expired, err := e.Janitor.Run(ctx, network)
		if err != nil {
			rep.itemError("", "expire", err)
		} else {
			rep.Expired = expired
			e.metrics.IntentsExpiredTotal.Add(float64(expired))
		}
	}
	return &rep, nil
}

func (e *Engine) processNetwork(ctx context.Context, network model.Network, wallets []model.MainWallet, log *zap.Logger) (rep NetworkReport) {
	start := time.Now()
	rep = NetworkReport{Network: network, Status: StatusOK}
	log = log.With(zap.String("network", string(network)))

	ctx, span := tracing.Tracer().Start(ctx, "reconciler.ProcessNetwork")
	span.SetAttributes(attribute.String("network", string(network)))
	defer span.End()

	defer func() {
		rep.Duration = time.Since(start)
		e.metrics.CyclesTotal.WithLabelValues(string(network), rep.Status).Inc()
		e.metrics.NetworkPassDuration.WithLabelValues(string(network)).Observe(rep.Duration.Seconds())
		if rep.Status == StatusFailed {
			span.SetStatus(codes.Error, rep.Error)
			log.Error("网络对账失败，本轮放弃", zap.String("error", rep.Error), zap.String("kind", rep.ErrorKind))
		}
	}()

	adapter, ok := e.adapters[network]
	if !ok {
		rep.fail(errno.Wrap(errno.ErrUnknownNetwork, fmt.Errorf("network %s", network)))
		return rep
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.NetworkTimeout)
	defer cancel()

	if e.cfg.UseLock {
		key := "reconciler:cycle:" + string(network)
		acquired, err := e.locker.Acquire(ctx, key, e.cfg.NetworkTimeout+30*time.Second)
		if err != nil {
			rep.fail(errno.Wrap(errno.ErrLockHeld, err))
			return rep
		}
		if !acquired {
			rep.Status = StatusSkipped
			log.Info("其他实例正在处理该网络，跳过")
			return rep
		}
		defer func() {
			if err := e.locker.Release(context.Background(), key); err != nil {
				log.Warn("释放锁失败", zap.Error(err))
			}
		}()
	}

	netCfg := e.cfg.Networks[network]

	// 链头在本轮开始时取一次，扫描和确认数都以它为准
	head, err := adapter.HeadHeight(ctx)
	if err != nil {
		rep.fail(err)
		return rep
	}
	rep.Head = head

	checkpoint, err := e.checkpoints.GetCheckpoint(ctx, network)
	if err != nil {
		rep.fail(errno.Wrap(errno.ErrDatabase, fmt.Errorf("get checkpoint: %w", err)))
		return rep
	}
	if checkpoint == 0 {
		checkpoint = bootstrapCheckpoint(netCfg, head)
	}
	rep.FromBlock = checkpoint
	rep.ToBlock = checkpoint

	if err := e.scan(ctx, adapter, wallets, checkpoint, head, &rep, log); err != nil {
		rep.fail(err)
		return rep
	}

	tr, err := e.Tracker.Track(ctx, network, head, netCfg.DefaultMinConfirmations)
	if tr != nil {
		rep.Confirmed += tr.Confirmed
		rep.Credited += tr.Credited
		rep.ItemErrors = append(rep.ItemErrors, tr.ItemErrors...)
	}
	if err != nil {
		rep.fail(err)
		return rep
	}

	unmatched, err := e.deposits.CountUnmatched(ctx, network)
	if err != nil {
		log.Warn("统计未匹配入账失败", zap.Error(err))
	} else {
		rep.Unmatched = unmatched
		e.metrics.UnmatchedTransactions.WithLabelValues(string(network)).Set(float64(unmatched))
	}

	log.Info("网络对账完成",
		zap.Int64("head", rep.Head),
		zap.Int64("from", rep.FromBlock),
		zap.Int64("to", rep.ToBlock),
		zap.Int("ingested", rep.Ingested),
		zap.Int("matched", rep.Matched),
		zap.Int("confirmed", rep.Confirmed),
		zap.Int("credited", rep.Credited),
		zap.Int64("unmatched", rep.Unmatched))
	return rep
}

// scan 分段拉取 (checkpoint, head]，每段所有钱包都入库后才推进 checkpoint
func (e *Engine) scan(ctx context.Context, adapter chain.Adapter, wallets []model.MainWallet, checkpoint, head int64, rep *NetworkReport, log *zap.Logger) error {
	network := adapter.Network()
	cursor := checkpoint

	for {
		from, to, ok := chain.NextRange(cursor, head, adapter.ChunkSize())
		if !ok {
			return nil
		}
		if e.cfg.MaxChunksPerCycle > 0 && rep.Chunks >= e.cfg.MaxChunksPerCycle {
			rep.Truncated = true
			log.Warn("本轮区块段数达到上限，剩余部分下轮继续",
				zap.Int64("checkpoint", cursor),
				zap.Int64("head", head))
			return nil
		}

		for _, w := range wallets {
			batch, err := adapter.FetchTransfers(ctx, w, from, to)
			if err != nil {
				return fmt.Errorf("fetch wallet %d (%d,%d]: %w", w.ID, from, to, err)
			}

			rep.Fetched += len(batch.Transfers)
			rep.Malformed += len(batch.Malformed)
			e.metrics.TransfersMalformedTotal.WithLabelValues(string(network)).Add(float64(len(batch.Malformed)))
			for _, m := range batch.Malformed {
				rep.ItemErrors = append(rep.ItemErrors, ItemError{
					TxHash: m.TxHash,
					Stage:  "decode",
					Kind:   errno.KindData.String(),
					Error:  m.Reason,
				})
			}

			for _, raw := range batch.Transfers {
				if err := e.ingestAndMatch(ctx, raw, rep); err != nil {
					return err
				}
			}
		}

		// write-ahead: 本段转账全部落库后才推进水位
		if err := e.checkpoints.SetCheckpoint(ctx, network, to); err != nil {
			return errno.Wrap(errno.ErrDatabase, fmt.Errorf("set checkpoint %d: %w", to, err))
		}
		e.metrics.CheckpointHeight.WithLabelValues(string(network)).Set(float64(to))
		rep.Chunks++
		rep.ToBlock = to
		cursor = to
	}
}

// ingestAndMatch 数据异常只记录，数据库错误返回并终止本网络
func (e *Engine) ingestAndMatch(ctx context.Context, raw chain.RawTransfer, rep *NetworkReport) error {
	network := string(raw.Network)

	created, dep, err := e.Ingestor.Ingest(ctx, raw)
	if err != nil {
		if errno.KindOf(err) == errno.KindData {
			rep.Malformed++
			rep.itemError(raw.TxHash, "ingest", err)
			e.metrics.TransfersMalformedTotal.WithLabelValues(network).Inc()
			return nil
		}
		return err
	}

	if created {
		rep.Ingested++
		e.metrics.TransfersIngestedTotal.WithLabelValues(network).Inc()
	} else {
		rep.Duplicates++
		e.metrics.TransfersDuplicateTotal.WithLabelValues(network).Inc()
		// 重复的记录如果还没归属 (上次落库后进程退出)，这里补做匹配
		if dep.UserID != nil || dep.Status != model.TxPending {
			return nil
		}
	}

	intent, err := e.Matcher.Match(ctx, dep)
	if err != nil {
		return err
	}
	if intent != nil {
		rep.Matched++
		e.metrics.IntentsMatchedTotal.WithLabelValues(network).Inc()
	}
	return nil
}

func bootstrapCheckpoint(cfg NetworkConfig, head int64) int64 {
	if cfg.StartBlock > 0 {
		return cfg.StartBlock - 1
	}
	if cfg.InitialLookback > 0 && head > cfg.InitialLookback {
		return head - cfg.InitialLookback
	}
	return 0
}
