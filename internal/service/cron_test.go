package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"deposit-reconciler/internal/model"
	"deposit-reconciler/internal/service/reconciler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRunner struct {
	calls  atomic.Int32
	report *reconciler.CycleReport
	err    error
	block  time.Duration
}

func (r *fakeRunner) ProcessCycle(ctx context.Context) (*reconciler.CycleReport, error) {
	r.calls.Add(1)
	if r.block > 0 {
		select {
		case <-time.After(r.block):
		case <-ctx.Done():
		}
	}
	return r.report, r.err
}

func TestRunCycleKeepsLastReport(t *testing.T) {
	report := &reconciler.CycleReport{
		CycleID:  "c1",
		Networks: []reconciler.NetworkReport{{Network: model.NetworkBEP20, Status: reconciler.StatusFailed}},
	}
	runner := &fakeRunner{report: report}
	s := NewCronService(runner, time.Minute, time.Second, zap.NewNop())

	assert.Nil(t, s.LastReport())
	s.RunCycle()
	assert.Equal(t, int32(1), runner.calls.Load())
	assert.Same(t, report, s.LastReport())

	runner.err = errors.New("no wallets")
	runner.report = &reconciler.CycleReport{CycleID: "c2", Error: "no wallets"}
	s.RunCycle()
	assert.Equal(t, "c2", s.LastReport().CycleID)
}

func TestCronSkipsOverlappingCycles(t *testing.T) {
	runner := &fakeRunner{report: &reconciler.CycleReport{}, block: 3 * time.Second}
	s := NewCronService(runner, time.Second, 10*time.Second, zap.NewNop())
	require.NoError(t, s.Start())

	time.Sleep(2200 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Stop(ctx)

	assert.Equal(t, int32(1), runner.calls.Load(), "second tick skipped while the first cycle runs")
}

func TestTriggerSharesOverlapGuardWithSchedule(t *testing.T) {
	runner := &fakeRunner{report: &reconciler.CycleReport{}, block: 3 * time.Second}
	s := NewCronService(runner, time.Second, 10*time.Second, zap.NewNop())

	go s.Trigger()
	require.Eventually(t, func() bool { return runner.calls.Load() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, s.Start())

	// 定时触发和手动触发都遇到正在运行的一轮
	s.Trigger()
	time.Sleep(1500 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Stop(ctx)

	assert.Equal(t, int32(1), runner.calls.Load(), "only the startup cycle ran")
	assert.NotNil(t, s.LastReport(), "Stop waits for the triggered cycle")
}
