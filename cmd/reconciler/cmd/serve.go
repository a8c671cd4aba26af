package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"deposit-reconciler/internal/handler"
	"deposit-reconciler/internal/server"
	"deposit-reconciler/internal/service"
	"deposit-reconciler/internal/service/mq"
	"deposit-reconciler/internal/store"
	"deposit-reconciler/pkg/config"
	"deposit-reconciler/pkg/logger"
	"deposit-reconciler/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "定时对账 + outbox 中继 + 运维 HTTP 接口",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServe(); err != nil {
			logger.Fatal("服务异常退出", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg := config.Global
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracing.InitTracer(ctx, tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		CollectorURL: cfg.Tracing.CollectorURL,
		Environment:  cfg.App.Env,
		SampleRate:   cfg.Tracing.SampleRate,
		Insecure:     cfg.Tracing.Insecure,
	}, logger.Log)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(sctx)
	}()

	rt, err := buildRuntime(ctx, cfg.Reconciler.UseLock || cfg.Redis.MQType == mq.TypeRedis)
	if err != nil {
		return err
	}
	defer rt.close()

	// 1. Outbox 中继
	producer, err := mq.NewProducer(cfg.Redis.MQType, rt.rdb, cfg.Kafka.Brokers)
	if err != nil {
		return err
	}
	defer producer.Close()
	logger.Info("消息队列已就绪", zap.String("mq_type", cfg.Redis.MQType))
	relay := service.NewRelayService(rt.db, producer, rt.metrics, logger.Named("relay"))
	go relay.Start(ctx)

	// 2. 定时对账
	cronSvc := service.NewCronService(rt.engine, cfg.Reconciler.PollInterval,
		cfg.Reconciler.NetworkTimeout+time.Minute, logger.Named("cron"))
	if err := cronSvc.Start(); err != nil {
		return err
	}
	// 启动后立即跑一轮，不等第一个 tick
	go cronSvc.Trigger()

	// 3. 运维接口
	if cfg.App.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := server.NewHTTPRouter(server.Handlers{
		Health:   handler.NewHealthHandler(rt.db, cronSvc.LastReport),
		Deposits: handler.NewDepositHandler(store.NewDepositStore(rt.db), store.NewCheckpointStore(rt.db)),
	}, logger.Named("http"))
	app := server.New(server.Config{HttpPort: cfg.App.HttpPort}, router, logger.Log)

	runErr := app.Run(ctx)

	logger.Info("正在停止定时任务...")
	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Reconciler.NetworkTimeout)
	defer cancel()
	cronSvc.Stop(stopCtx)
	logger.Info("系统已退出")
	return runErr
}
