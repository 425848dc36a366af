package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PendingMigrationsFunc 返回尚未应用的迁移版本号
type PendingMigrationsFunc func(ctx context.Context) ([]int64, error)

// DatabaseChecker 数据库健康检查器
type DatabaseChecker struct {
	pool    *pgxpool.Pool
	pending PendingMigrationsFunc // 可为nil
}

// NewDatabaseChecker 创建数据库健康检查器。pending 为nil时跳过迁移检查。
func NewDatabaseChecker(pool *pgxpool.Pool, pending PendingMigrationsFunc) *DatabaseChecker {
	return &DatabaseChecker{pool: pool, pending: pending}
}

// Name 返回检查器名称
func (c *DatabaseChecker) Name() string {
	return "database"
}

// Check 执行健康检查
func (c *DatabaseChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	// 1. Ping测试
	if err := c.pool.Ping(ctx); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("ping failed: %v", err),
			Latency: time.Since(start),
		}
	}

	// 2. 迁移版本检查：有未应用迁移时降级（schema可能落后于代码）
	if c.pending != nil {
		if versions, err := c.pending(ctx); err == nil && len(versions) > 0 {
			return CheckResult{
				Status:  StatusDegraded,
				Message: fmt.Sprintf("%d migrations pending", len(versions)),
				Details: map[string]interface{}{
					"pending_versions": versions,
				},
				Latency: time.Since(start),
			}
		}
	}

	// 3. 获取连接池统计
	stats := c.pool.Stat()

	// 4. 计算连接池利用率
	utilization := 0.0
	if stats.MaxConns() > 0 {
		utilization = float64(stats.AcquiredConns()) / float64(stats.MaxConns())
	}

	// 5. 判断健康状态
	status := StatusHealthy
	message := "ok"

	if utilization > 0.9 {
		status = StatusDegraded
		message = "connection pool near limit"
	}

	if utilization >= 1.0 {
		status = StatusUnhealthy
		message = "connection pool exhausted"
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: map[string]interface{}{
			"total_conns":    stats.TotalConns(),
			"idle_conns":     stats.IdleConns(),
			"acquired_conns": stats.AcquiredConns(),
			"max_conns":      stats.MaxConns(),
			"utilization":    fmt.Sprintf("%.1f%%", utilization*100),
		},
		Latency: time.Since(start),
	}
}
