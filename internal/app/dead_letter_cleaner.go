package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	redisstorage "github.com/taoyao-code/iot-btcfg/internal/storage/redis"
)

// DeadLetterCleaner 死信队列清理器。
// 重试耗尽的预配置作业落入死信队列，定期清掉超过保留期的条目。
type DeadLetterCleaner struct {
	queue         *redisstorage.ProvisionQueue
	logger        *zap.Logger
	checkInterval time.Duration
	retention     time.Duration

	statsCleaned int64
}

// NewDeadLetterCleaner 创建死信队列清理器
func NewDeadLetterCleaner(queue *redisstorage.ProvisionQueue, logger *zap.Logger) *DeadLetterCleaner {
	return &DeadLetterCleaner{
		queue:         queue,
		logger:        logger,
		checkInterval: 1 * time.Hour,
		retention:     24 * time.Hour,
	}
}

// Start 启动清理循环（阻塞，直至 ctx 取消）
func (c *DeadLetterCleaner) Start(ctx context.Context) {
	c.logger.Info("dead letter cleaner started",
		zap.Duration("check_interval", c.checkInterval),
		zap.Duration("retention", c.retention))

	ticker := time.NewTicker(c.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("dead letter cleaner stopped",
				zap.Int64("total_cleaned", c.statsCleaned))
			return
		case <-ticker.C:
			c.cleanExpiredJobs(ctx)
		}
	}
}

// cleanExpiredJobs 清理超过保留期的死信作业
func (c *DeadLetterCleaner) cleanExpiredJobs(ctx context.Context) {
	count, err := c.queue.GetDeadCount(ctx)
	if err != nil {
		c.logger.Error("failed to get dead count", zap.Error(err))
		return
	}
	if count == 0 {
		return
	}

	cleaned, err := c.queue.CleanExpiredDead(ctx, c.retention, 100)
	if err != nil {
		c.logger.Error("failed to clean expired dead jobs",
			zap.Error(err),
			zap.Int64("dead_count", count))
	} else if cleaned > 0 {
		c.statsCleaned += cleaned
		c.logger.Info("cleaned expired dead jobs",
			zap.Int64("cleaned", cleaned),
			zap.Int64("remaining", count-cleaned),
			zap.Int64("total_cleaned", c.statsCleaned))
	}

	// 告警阈值检查
	if remaining := count - cleaned; remaining > 1000 {
		c.logger.Warn("dead letter queue overloaded",
			zap.Int64("dead_count", remaining),
			zap.String("suggestion", "manual intervention required"))
	}
}

// Stats 获取统计信息
func (c *DeadLetterCleaner) Stats() map[string]interface{} {
	return map[string]interface{}{
		"total_cleaned": c.statsCleaned,
	}
}
