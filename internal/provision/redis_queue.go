package provision

import (
	"context"
	"time"

	redisstorage "github.com/taoyao-code/iot-btcfg/internal/storage/redis"
)

// processingTTL 处理中标记的保鲜时长（进程崩溃后自动失效）
const processingTTL = 5 * time.Minute

// RedisQueue 将 storage/redis 的作业队列适配为 Queue
type RedisQueue struct {
	q *redisstorage.ProvisionQueue
}

// NewRedisQueue 创建 Redis 队列适配器
func NewRedisQueue(q *redisstorage.ProvisionQueue) *RedisQueue {
	return &RedisQueue{q: q}
}

func (r *RedisQueue) Enqueue(ctx context.Context, job *Job) error {
	return r.q.Enqueue(ctx, toStorage(job))
}

func (r *RedisQueue) Dequeue(ctx context.Context) (*Job, error) {
	sj, err := r.q.Dequeue(ctx)
	if err != nil || sj == nil {
		return nil, err
	}
	return fromStorage(sj), nil
}

func (r *RedisQueue) MarkProcessing(ctx context.Context, job *Job) error {
	return r.q.MarkProcessing(ctx, toStorage(job), processingTTL)
}

func (r *RedisQueue) MarkSuccess(ctx context.Context, job *Job) error {
	return r.q.MarkSuccess(ctx, toStorage(job))
}

func (r *RedisQueue) MarkFailed(ctx context.Context, job *Job, errMsg string) error {
	sj := toStorage(job)
	err := r.q.MarkFailed(ctx, sj, errMsg)
	// 回写重试计数，消费侧据此区分重试与死信
	job.Retries = sj.Retries
	job.UpdatedAt = sj.UpdatedAt
	return err
}

func (r *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return r.q.GetPendingCount(ctx)
}

func (r *RedisQueue) Stats(ctx context.Context) (map[string]interface{}, error) {
	return r.q.Stats(ctx)
}

func toStorage(j *Job) *redisstorage.ProvisionJob {
	return &redisstorage.ProvisionJob{
		ID:        j.ID,
		AdapterID: j.AdapterID,
		BDAddr:    j.BDAddr,
		Pipelines: j.Pipelines,
		Priority:  j.Priority,
		Retries:   j.Retries,
		MaxRetry:  j.MaxRetry,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

func fromStorage(sj *redisstorage.ProvisionJob) *Job {
	return &Job{
		ID:        sj.ID,
		AdapterID: sj.AdapterID,
		BDAddr:    sj.BDAddr,
		Pipelines: sj.Pipelines,
		Priority:  sj.Priority,
		Retries:   sj.Retries,
		MaxRetry:  sj.MaxRetry,
		CreatedAt: sj.CreatedAt,
		UpdatedAt: sj.UpdatedAt,
	}
}
