package cmd

import (
	"context"
	"fmt"

	"deposit-reconciler/internal/chain"
	"deposit-reconciler/internal/chain/evm"
	"deposit-reconciler/internal/chain/tron"
	"deposit-reconciler/internal/model"
	"deposit-reconciler/internal/service/reconciler"
	"deposit-reconciler/pkg/config"
	"deposit-reconciler/pkg/database"
	"deposit-reconciler/pkg/errno"
	"deposit-reconciler/pkg/logger"
	"deposit-reconciler/pkg/monitor"
	"deposit-reconciler/pkg/utils/lock"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// runtime 各子命令共用的依赖
type runtime struct {
	db       *gorm.DB
	rdb      *redis.Client
	adapters chain.Registry
	engine   *reconciler.Engine
	metrics  *monitor.BusinessMetrics
}

func connectDB() (*gorm.DB, error) {
	cfg := config.Global
	db, err := database.ConnectPostgres(cfg.DB.DSN(), cfg.App.Env == "development")
	if err != nil {
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}

	// 生产环境使用 cmd/migrate 管理 Schema
	if cfg.App.Env == "development" {
		if err := db.AutoMigrate(model.AllModels()...); err != nil {
			database.Close(db)
			return nil, fmt.Errorf("数据库自动迁移失败: %w", err)
		}
		logger.Info("开发环境: AutoMigrate 完成")
	}
	return db, nil
}

// buildRuntime requireRedis=false 时 Redis 不可用只降级为进程内锁
func buildRuntime(ctx context.Context, requireRedis bool) (*runtime, error) {
	cfg := config.Global
	rt := &runtime{metrics: monitor.InitBusinessMetrics()}

	db, err := connectDB()
	if err != nil {
		return nil, err
	}
	rt.db = db

	rdb, err := database.ConnectRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		if requireRedis {
			rt.close()
			return nil, fmt.Errorf("redis 连接失败: %w", err)
		}
		logger.Warn("Redis 不可用，使用进程内锁", zap.Error(err))
	} else {
		rt.rdb = rdb
	}

	rt.adapters, err = buildAdapters(ctx, cfg)
	if err != nil {
		rt.close()
		return nil, err
	}

	var locker lock.DistributedLock
	if cfg.Reconciler.UseLock {
		if rt.rdb != nil {
			locker = lock.NewRedisLock(rt.rdb)
		} else {
			locker = lock.NewLocalLock()
		}
	}

	rt.engine = reconciler.NewEngine(db, rt.adapters, engineConfig(cfg), reconciler.Options{
		Locker:  locker,
		Metrics: rt.metrics,
		Logger:  logger.Named("reconciler"),
	})
	return rt, nil
}

func (rt *runtime) close() {
	if rt.db != nil {
		database.Close(rt.db)
	}
	if rt.rdb != nil {
		_ = rt.rdb.Close()
	}
}

func engineConfig(cfg config.Config) reconciler.Config {
	r := cfg.Reconciler
	return reconciler.Config{
		AmountTolerance:   r.AmountTolerance,
		BatchSize:         r.BatchSize,
		NetworkTimeout:    r.NetworkTimeout,
		MaxChunksPerCycle: r.MaxChunksPerCycle,
		UseLock:           r.UseLock,
		Networks: map[model.Network]reconciler.NetworkConfig{
			model.NetworkTRC20: networkConfig(cfg.Chains.Tron.ScanConfig),
			model.NetworkBEP20: networkConfig(cfg.Chains.BSC.ScanConfig),
		},
	}
}

func networkConfig(s config.ScanConfig) reconciler.NetworkConfig {
	return reconciler.NetworkConfig{
		DefaultMinConfirmations: s.MinConfirmations,
		StartBlock:              s.StartBlock,
		InitialLookback:         s.InitialLookback,
	}
}

// buildAdapters 只为启用的链创建 adapter
func buildAdapters(ctx context.Context, cfg config.Config) (chain.Registry, error) {
	var adapters []chain.Adapter
	timeout := cfg.Reconciler.RPCTimeout

	if t := cfg.Chains.Tron; t.Enabled {
		client := tron.NewHTTPClient(t.APIURL, t.APIKey, timeout, logger.Named("trongrid"))
		adapters = append(adapters, tron.NewAdapter(client, tron.Config{
			Network:    model.NetworkTRC20,
			Decimals:   t.TokenDecimals,
			PageSize:   t.PageSize,
			MaxPages:   t.MaxPages,
			RPCTimeout: timeout,
		}, logger.Named("tron")))
	}

	if b := cfg.Chains.BSC; b.Enabled {
		client, err := evm.Dial(ctx, b.RpcUrl)
		if err != nil {
			return nil, errno.Wrap(errno.ErrChainUnavailable, fmt.Errorf("dial bsc: %w", err))
		}
		adapters = append(adapters, evm.NewAdapter(client, evm.Config{
			Network:    model.NetworkBEP20,
			ChunkSize:  b.ChunkSize,
			Decimals:   b.TokenDecimals,
			RPCTimeout: timeout,
		}, logger.Named("bsc")))
	}

	if len(adapters) == 0 {
		return nil, errno.Wrap(errno.ErrInvalidConfig, fmt.Errorf("no chain enabled"))
	}
	return chain.NewRegistry(adapters...), nil
}
