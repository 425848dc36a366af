package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/taoyao-code/iot-btcfg/internal/mrvl"
	"github.com/taoyao-code/iot-btcfg/internal/provision"
	"github.com/taoyao-code/iot-btcfg/internal/runtracker"
	"github.com/taoyao-code/iot-btcfg/internal/transport"
)

// TestRunMonitor_CheckStalledRuns 停摆检测：等待超过阈值的在途运行被标记并计数
func TestRunMonitor_CheckStalledRuns(t *testing.T) {
	base := time.Now()
	now := base
	tracker := runtracker.NewTracker(
		runtracker.WithStallAfter(time.Second),
		runtracker.WithNow(func() time.Time { return now }),
	)
	tracker.StateChanged("run-1", mrvl.PipelineSCO, mrvl.StateIdle, mrvl.StateAwaitPCMSettings)

	monitor := NewRunMonitor(tracker, nil, nil, transport.NewLoopback(), nil, zap.NewNop())

	// 未超阈值：不算停摆
	active := monitor.checkStalledRuns()
	assert.Len(t, active, 1)
	assert.Equal(t, int64(0), monitor.statsStalled.Load())

	// 越过停摆阈值
	now = base.Add(2 * time.Second)
	active = monitor.checkStalledRuns()
	assert.Len(t, active, 1)
	assert.True(t, active[0].Stalled)
	assert.Equal(t, int64(1), monitor.statsStalled.Load())
}

// TestRunMonitor_StartShutdown 启动与关闭：巡检按间隔执行，取消后退出
func TestRunMonitor_StartShutdown(t *testing.T) {
	tracker := runtracker.NewTracker()
	_, appm := NewMetrics()
	monitor := NewRunMonitor(tracker, nil, provision.NewMemQueue(), transport.NewLoopback(), appm, zap.NewNop())
	monitor.checkInterval = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()
	monitor.Start(ctx)

	assert.GreaterOrEqual(t, monitor.statsChecked.Load(), int64(3), "应至少执行3次巡检")
}

// TestRunMonitor_Stats 统计快照
func TestRunMonitor_Stats(t *testing.T) {
	monitor := NewRunMonitor(runtracker.NewTracker(), nil, nil, transport.NewLoopback(), nil, zap.NewNop())
	monitor.statsChecked.Store(10)
	monitor.statsStalled.Store(2)
	monitor.statsReconciled.Store(1)

	stats := monitor.Stats()
	assert.Equal(t, int64(10), stats["checked"])
	assert.Equal(t, int64(2), stats["stalled_seen"])
	assert.Equal(t, int64(1), stats["reconciled"])
}
