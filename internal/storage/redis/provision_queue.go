package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Redis Key前缀
	provisionQueueKey      = "provision:queue"         // 待处理队列（Sorted Set，按优先级+时间排序）
	provisionProcessingKey = "provision:processing:%s" // 处理中（Hash，适配器维度）
	provisionDeadKey       = "provision:dead"          // 死信队列（List）

	maxPriority = 9
)

// ProvisionJob 预配置作业
type ProvisionJob struct {
	ID        string    `json:"id"`         // 作业ID（唯一）
	AdapterID string    `json:"adapter_id"` // 目标适配器标识
	BDAddr    string    `json:"bd_addr"`    // 指定地址；为空则从地址池租取
	Pipelines []string  `json:"pipelines"`  // 要执行的流水线（firmware/sco）
	Priority  int       `json:"priority"`   // 优先级（0-9，9最高）
	Retries   int       `json:"retries"`    // 已重试次数
	MaxRetry  int       `json:"max_retry"`  // 最大重试次数
	CreatedAt time.Time `json:"created_at"` // 创建时间
	UpdatedAt time.Time `json:"updated_at"` // 更新时间
}

// ProvisionQueue Redis预配置作业队列
type ProvisionQueue struct {
	client *Client
}

// NewProvisionQueue 创建Redis预配置队列
func NewProvisionQueue(client *Client) *ProvisionQueue {
	return &ProvisionQueue{client: client}
}

// Enqueue 入队（添加新作业到队列）
func (q *ProvisionQueue) Enqueue(ctx context.Context, job *ProvisionJob) error {
	// 序列化作业
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	// 添加到Sorted Set，ZPopMin 弹出最小score，因此高优先级取反后靠前
	return q.client.ZAdd(ctx, provisionQueueKey, redis.Z{
		Score:  jobScore(job),
		Member: job.ID + ":" + string(data),
	}).Err()
}

// jobScore 计算排序score：同优先级按创建时间（秒）先进先出。
// 秒级时间戳远小于优先级带宽1e12，float64精度内不会串带。
func jobScore(job *ProvisionJob) float64 {
	p := job.Priority
	if p < 0 {
		p = 0
	}
	if p > maxPriority {
		p = maxPriority
	}
	return float64(maxPriority-p)*1e12 + float64(job.CreatedAt.Unix())
}

// Dequeue 出队（获取一条待处理作业，队列为空返回 nil, nil）
func (q *ProvisionQueue) Dequeue(ctx context.Context) (*ProvisionJob, error) {
	// 使用ZPOPMIN原子操作（Redis 5.0+）
	result, err := q.client.ZPopMin(ctx, provisionQueueKey, 1).Result()
	if err != nil {
		return nil, err
	}

	if len(result) == 0 {
		return nil, nil // 队列为空
	}

	member := result[0].Member.(string)
	job, err := parseJob(member)
	if err != nil {
		return nil, fmt.Errorf("parse job: %w", err)
	}

	return job, nil
}

// MarkProcessing 标记作业为处理中
func (q *ProvisionQueue) MarkProcessing(ctx context.Context, job *ProvisionJob, ttl time.Duration) error {
	processingKey := fmt.Sprintf(provisionProcessingKey, job.AdapterID)

	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	// 设置到Hash，带TTL（防止进程崩溃导致永久锁定）
	pipe := q.client.Pipeline()
	pipe.HSet(ctx, processingKey, job.ID, data)
	pipe.Expire(ctx, processingKey, ttl)
	_, err = pipe.Exec(ctx)

	return err
}

// MarkSuccess 标记作业处理成功（删除）
func (q *ProvisionQueue) MarkSuccess(ctx context.Context, job *ProvisionJob) error {
	processingKey := fmt.Sprintf(provisionProcessingKey, job.AdapterID)
	return q.client.HDel(ctx, processingKey, job.ID).Err()
}

// MarkFailed 标记作业处理失败（重试或进入死信队列）
func (q *ProvisionQueue) MarkFailed(ctx context.Context, job *ProvisionJob, errMsg string) error {
	processingKey := fmt.Sprintf(provisionProcessingKey, job.AdapterID)

	// 先从处理中删除
	if err := q.client.HDel(ctx, processingKey, job.ID).Err(); err != nil {
		return err
	}

	job.Retries++
	job.UpdatedAt = time.Now()

	// 判断是否需要重试
	if job.Retries < job.MaxRetry {
		return q.Enqueue(ctx, job)
	}

	// 超过最大重试次数，进入死信队列
	deadJob := map[string]interface{}{
		"job":       job,
		"error":     errMsg,
		"failed_at": time.Now(),
	}
	data, _ := json.Marshal(deadJob)

	return q.client.LPush(ctx, provisionDeadKey, data).Err()
}

// GetPendingCount 获取待处理作业数量
func (q *ProvisionQueue) GetPendingCount(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, provisionQueueKey).Result()
}

// GetProcessingCount 获取处理中作业数量（所有适配器）
func (q *ProvisionQueue) GetProcessingCount(ctx context.Context) (int64, error) {
	var cursor uint64
	var count int64

	for {
		keys, nextCursor, err := q.client.Scan(ctx, cursor, "provision:processing:*", 100).Result()
		if err != nil {
			return 0, err
		}

		for _, key := range keys {
			n, err := q.client.HLen(ctx, key).Result()
			if err != nil {
				return 0, err
			}
			count += n
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return count, nil
}

// GetDeadCount 获取死信队列作业数量
func (q *ProvisionQueue) GetDeadCount(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, provisionDeadKey).Result()
}

// CleanExpiredDead 清理失败时间早于 olderThan 的死信作业，单次最多处理 limit 条。
// 死信通过 LPush 追加，列表尾部是最旧的条目，从尾部逐条判断并弹出。
// 返回实际清理的条数。
func (q *ProvisionQueue) CleanExpiredDead(ctx context.Context, olderThan time.Duration, limit int64) (int64, error) {
	if limit <= 0 {
		limit = 100
	}
	cutoff := time.Now().Add(-olderThan)

	var removed int64
	for removed < limit {
		raw, err := q.client.LIndex(ctx, provisionDeadKey, -1).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return removed, err
		}

		var entry struct {
			FailedAt time.Time `json:"failed_at"`
		}
		// 无法解析的条目按已过期处理，避免坏数据永久滞留
		if jsonErr := json.Unmarshal([]byte(raw), &entry); jsonErr == nil && entry.FailedAt.After(cutoff) {
			break // 尾部最旧条目未过期，更新的条目必然也未过期
		}

		if err := q.client.RPop(ctx, provisionDeadKey).Err(); err != nil {
			if err == redis.Nil {
				break
			}
			return removed, err
		}
		removed++
	}

	return removed, nil
}

// parseJob 解析队列成员（格式: "ID:JSON"）
func parseJob(member string) (*ProvisionJob, error) {
	colonIdx := strings.IndexByte(member, ':')
	if colonIdx == -1 {
		return nil, fmt.Errorf("invalid job format")
	}

	data := []byte(member[colonIdx+1:])
	var job ProvisionJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}

	return &job, nil
}

// Stats 获取队列统计信息
func (q *ProvisionQueue) Stats(ctx context.Context) (map[string]interface{}, error) {
	pending, _ := q.GetPendingCount(ctx)
	processing, _ := q.GetProcessingCount(ctx)
	dead, _ := q.GetDeadCount(ctx)

	return map[string]interface{}{
		"pending":    pending,
		"processing": processing,
		"dead":       dead,
		"total":      pending + processing,
	}, nil
}
