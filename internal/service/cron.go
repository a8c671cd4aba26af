package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"deposit-reconciler/internal/service/reconciler"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CycleRunner 对账引擎的最小接口
type CycleRunner interface {
	ProcessCycle(ctx context.Context) (*reconciler.CycleReport, error)
}

// CronService 定时驱动对账周期
// 上一轮没跑完时跳过本次触发，多实例之间的互斥由引擎里的分布式锁保证
type CronService struct {
	cron     *cron.Cron
	job      cron.Job
	runner   CycleRunner
	interval time.Duration
	timeout  time.Duration
	log      *zap.Logger

	mu     sync.Mutex
	last   *reconciler.CycleReport
	manual sync.WaitGroup
}

func NewCronService(runner CycleRunner, interval, timeout time.Duration, log *zap.Logger) *CronService {
	cl := cronLogger{log.Sugar()}
	s := &CronService{
		cron:     cron.New(cron.WithLogger(cl)),
		runner:   runner,
		interval: interval,
		timeout:  timeout,
		log:      log,
	}
	// 定时触发和 Trigger 共用同一个 SkipIfStillRunning，任何时刻最多一轮在跑
	s.job = cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(s.RunCycle))
	return s
}

func (s *CronService) Start() error {
	schedule := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddJob(schedule, s.job); err != nil {
		return fmt.Errorf("schedule reconcile cycle %q: %w", schedule, err)
	}
	s.cron.Start()
	s.log.Info("Cron Service started", zap.String("schedule", schedule))
	return nil
}

// Trigger 立即跑一轮，上一轮还没结束时直接跳过
func (s *CronService) Trigger() {
	s.manual.Add(1)
	defer s.manual.Done()
	s.job.Run()
}

// Stop 等待正在执行的周期结束
func (s *CronService) Stop(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		<-s.cron.Stop().Done()
		s.manual.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("等待对账周期结束超时")
	}
	s.log.Info("Cron Service stopped")
}

// RunCycle 执行一轮对账
func (s *CronService) RunCycle() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	report, err := s.runner.ProcessCycle(ctx)
	if report != nil {
		s.mu.Lock()
		s.last = report
		s.mu.Unlock()
	}
	if err != nil {
		s.log.Error("对账周期失败", zap.Error(err))
		return
	}
	if failed := report.Failed(); len(failed) > 0 {
		s.log.Warn("部分网络本轮失败，下轮重试", zap.Any("networks", failed), zap.String("cycle_id", report.CycleID))
	}
}

// LastReport 最近一轮的报告，还没有执行过时返回 nil
func (s *CronService) LastReport() *reconciler.CycleReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// cronLogger 把 cron 的日志接到 zap
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
