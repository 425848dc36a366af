package health

import (
	"context"
	"fmt"
	"time"

	"github.com/taoyao-code/iot-btcfg/internal/hci"
	"github.com/taoyao-code/iot-btcfg/internal/transport"
)

// DeviceChecker HCI传输健康检查器
type DeviceChecker struct {
	tr transport.Transport
}

// NewDeviceChecker 创建HCI传输健康检查器
func NewDeviceChecker(tr transport.Transport) *DeviceChecker {
	return &DeviceChecker{tr: tr}
}

// Name 返回检查器名称
func (c *DeviceChecker) Name() string {
	return "device"
}

// Check 执行健康检查
func (c *DeviceChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	status := StatusHealthy
	message := "ok"
	details := map[string]interface{}{}

	// 1. 缓冲池统计（实现了Pool()的传输）
	if p, ok := c.tr.(interface{ Pool() *hci.Pool }); ok {
		pool := p.Pool()
		inUse := pool.InUse()
		limit := pool.Limit()

		details["buffers_in_use"] = inUse
		details["buffers_denied"] = pool.Denied()
		details["buffer_double_frees"] = pool.DoubleFrees()

		// double free说明驱动侧有释放错误，持续降级直到重启排查
		if pool.DoubleFrees() > 0 {
			status = StatusDegraded
			message = "buffer double free observed"
		}

		// 2. 计算缓冲池利用率（limit<=0表示不限制）
		if limit > 0 {
			utilization := float64(inUse) / float64(limit)
			details["buffer_limit"] = limit
			details["utilization"] = fmt.Sprintf("%.1f%%", utilization*100)

			if utilization > 0.8 {
				status = StatusDegraded
				message = "high buffer usage"
			}
			if utilization >= 1.0 {
				status = StatusUnhealthy
				message = "buffer pool exhausted"
			}
		}
	}

	// 3. 传输计数（实现了Stats()的传输）
	if s, ok := c.tr.(interface{ Stats() transport.Stats }); ok {
		st := s.Stats()
		details["pending_commands"] = st.Pending
		details["unmatched_events"] = st.Unmatched
		details["non_complete_events"] = st.NonComplete
	}

	// 传输不暴露任何统计时返回基础状态
	if len(details) == 0 {
		return CheckResult{
			Status:  StatusHealthy,
			Message: "no stats available",
			Latency: time.Since(start),
		}
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: details,
		Latency: time.Since(start),
	}
}
