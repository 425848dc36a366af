package app

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/iot-btcfg/internal/hci"
	"github.com/taoyao-code/iot-btcfg/internal/metrics"
	"github.com/taoyao-code/iot-btcfg/internal/provision"
	"github.com/taoyao-code/iot-btcfg/internal/runtracker"
	pgstorage "github.com/taoyao-code/iot-btcfg/internal/storage/pg"
	"github.com/taoyao-code/iot-btcfg/internal/transport"
)

// RunMonitor 后台巡检：停摆运行告警、崩溃遗留记录收敛、仪表采样。
// 链路本身没有超时，控制器失联造成的停摆只能在这里暴露。
type RunMonitor struct {
	tracker *runtracker.Tracker
	repo    *pgstorage.Repository // 可为空（未启用持久化）
	queue   provision.Queue       // 可为空
	tr      transport.Transport
	appm    *metrics.AppMetrics
	logger  *zap.Logger

	checkInterval time.Duration
	staleAfter    time.Duration // config_runs 遗留 running 行的收敛阈值

	// 统计
	statsChecked    atomic.Int64
	statsStalled    atomic.Int64
	statsReconciled atomic.Int64
}

// NewRunMonitor 创建运行巡检器
func NewRunMonitor(
	tracker *runtracker.Tracker,
	repo *pgstorage.Repository,
	queue provision.Queue,
	tr transport.Transport,
	appm *metrics.AppMetrics,
	logger *zap.Logger,
) *RunMonitor {
	return &RunMonitor{
		tracker:       tracker,
		repo:          repo,
		queue:         queue,
		tr:            tr,
		appm:          appm,
		logger:        logger,
		checkInterval: 30 * time.Second,
		staleAfter:    10 * time.Minute,
	}
}

// Start 启动巡检循环（阻塞，直至 ctx 取消）
func (m *RunMonitor) Start(ctx context.Context) {
	m.logger.Info("run monitor started",
		zap.Duration("check_interval", m.checkInterval),
		zap.Duration("stale_after", m.staleAfter))

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("run monitor stopped",
				zap.Int64("checked", m.statsChecked.Load()),
				zap.Int64("stalled_seen", m.statsStalled.Load()),
				zap.Int64("reconciled", m.statsReconciled.Load()))
			return
		case <-ticker.C:
			m.statsChecked.Add(1)
			active := m.checkStalledRuns()
			m.reconcileStaleRuns(ctx, active)
			m.sampleGauges(ctx)
		}
	}
}

// checkStalledRuns 对等待完成事件超过阈值的在途运行告警，返回在途快照
func (m *RunMonitor) checkStalledRuns() []runtracker.Run {
	active := m.tracker.Active()
	for _, run := range active {
		if !run.Stalled {
			continue
		}
		m.statsStalled.Add(1)
		m.logger.Warn("config run stalled, no completion from controller",
			zap.String("run_id", run.RunID),
			zap.String("pipeline", run.Pipeline),
			zap.String("state", run.State),
			zap.Time("last_event_at", run.LastEventAt),
			zap.String("suggestion", "check controller power and device path"))
	}
	return active
}

// reconcileStaleRuns 把数据库里滞留 running 的运行收敛为失败。
// 进程崩溃会留下没有终态的行；当前在途运行排除在外。
func (m *RunMonitor) reconcileStaleRuns(ctx context.Context, active []runtracker.Run) {
	if m.repo == nil {
		return
	}

	exclude := make([]string, 0, len(active))
	for _, r := range active {
		exclude = append(exclude, r.RunID)
	}

	n, err := m.repo.FailStaleRuns(ctx, m.staleAfter, exclude)
	if err != nil {
		m.logger.Error("reconcile stale runs failed", zap.Error(err))
		return
	}
	if n > 0 {
		m.statsReconciled.Add(n)
		m.logger.Warn("stale runs converged to failed",
			zap.Int64("count", n),
			zap.Duration("older_than", m.staleAfter))
	}
}

// sampleGauges 采样缓冲池占用与作业队列深度
func (m *RunMonitor) sampleGauges(ctx context.Context) {
	if m.appm == nil {
		return
	}
	if p, ok := m.tr.(interface{ Pool() *hci.Pool }); ok {
		m.appm.BuffersInUse.Set(float64(p.Pool().InUse()))
	}
	if m.queue != nil {
		if depth, err := m.queue.Depth(ctx); err == nil {
			m.appm.ProvisionDepth.Set(float64(depth))
		}
	}
}

// Stats 获取统计信息
func (m *RunMonitor) Stats() map[string]interface{} {
	return map[string]interface{}{
		"checked":      m.statsChecked.Load(),
		"stalled_seen": m.statsStalled.Load(),
		"reconciled":   m.statsReconciled.Load(),
	}
}
