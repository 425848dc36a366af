package provision

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrQueueFull = errors.New("provision queue full")

// Queue 作业队列抽象：Redis 后端与进程内后端共用同一消费循环。
// Dequeue 在队列为空时返回 (nil, nil)。
type Queue interface {
	Enqueue(ctx context.Context, job *Job) error
	Dequeue(ctx context.Context) (*Job, error)
	// MarkProcessing 在作业开始执行前调用（崩溃可见性）
	MarkProcessing(ctx context.Context, job *Job) error
	MarkSuccess(ctx context.Context, job *Job) error
	// MarkFailed 重试次数未耗尽时重新入队，否则进入死信
	MarkFailed(ctx context.Context, job *Job, errMsg string) error
	// Depth 待处理作业数
	Depth(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (map[string]interface{}, error)
}

// MemQueue 进程内队列：未启用 Redis 时的默认后端。
// 语义与 Redis 队列对齐（重试回队、死信留存），但不跨进程持久。
type MemQueue struct {
	mu      sync.Mutex
	pending []*Job
	dead    []deadJob
}

type deadJob struct {
	Job      *Job      `json:"job"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

const memQueueCap = 256

// NewMemQueue 创建进程内队列
func NewMemQueue() *MemQueue {
	return &MemQueue{}
}

func (q *MemQueue) Enqueue(ctx context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) >= memQueueCap {
		return ErrQueueFull
	}
	q.pending = append(q.pending, job)
	return nil
}

func (q *MemQueue) Dequeue(ctx context.Context) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, nil
	}
	job := q.pending[0]
	q.pending = q.pending[1:]
	return job, nil
}

func (q *MemQueue) MarkProcessing(ctx context.Context, job *Job) error { return nil }

func (q *MemQueue) MarkSuccess(ctx context.Context, job *Job) error { return nil }

func (q *MemQueue) MarkFailed(ctx context.Context, job *Job, errMsg string) error {
	job.Retries++
	job.UpdatedAt = time.Now()
	if job.Retries < job.MaxRetry {
		return q.Enqueue(ctx, job)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dead = append(q.dead, deadJob{Job: job, Error: errMsg, FailedAt: time.Now()})
	return nil
}

func (q *MemQueue) Depth(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.pending)), nil
}

func (q *MemQueue) Stats(ctx context.Context) (map[string]interface{}, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return map[string]interface{}{
		"pending":    int64(len(q.pending)),
		"processing": int64(0),
		"dead":       int64(len(q.dead)),
		"total":      int64(len(q.pending)),
	}, nil
}
