package provision

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/iot-btcfg/internal/runtracker"
)

// Worker 作业队列消费者：逐个取出作业并交给 Service 执行
type Worker struct {
	queue    Queue
	svc      *Service
	logger   *zap.Logger
	interval time.Duration
	obs      runtracker.Observer
	stopC    chan struct{}

	// 统计
	succeeded atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
	deadCount atomic.Int64
}

// NewWorker 创建消费者。interval 为空队列时的轮询间隔。
func NewWorker(queue Queue, svc *Service, interval time.Duration, logger *zap.Logger, obs runtracker.Observer) *Worker {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if obs == nil {
		obs = runtracker.NopObserver()
	}
	return &Worker{
		queue:    queue,
		svc:      svc,
		logger:   logger,
		interval: interval,
		obs:      obs,
		stopC:    make(chan struct{}),
	}
}

// Start 启动消费循环（阻塞，直至 ctx 取消或 Stop）
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("provision worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("provision worker stopping")
			return
		case <-w.stopC:
			w.logger.Info("provision worker stopped")
			return
		case <-ticker.C:
			// 清空队列再睡：避免积压时受轮询间隔限制
			for w.processOne(ctx) {
				select {
				case <-ctx.Done():
					return
				case <-w.stopC:
					return
				default:
				}
			}
		}
	}
}

// Stop 停止Worker
func (w *Worker) Stop() {
	close(w.stopC)
}

// processOne 处理一条作业，返回是否实际处理了作业
func (w *Worker) processOne(ctx context.Context) bool {
	job, err := w.queue.Dequeue(ctx)
	if err != nil {
		w.logger.Error("dequeue failed", zap.Error(err))
		return false
	}
	if job == nil {
		return false // 队列为空
	}

	if err := w.queue.MarkProcessing(ctx, job); err != nil {
		w.logger.Error("mark processing failed",
			zap.String("job_id", job.ID),
			zap.Error(err))
		return true
	}

	w.logger.Info("provision job started",
		zap.String("job_id", job.ID),
		zap.String("adapter_id", job.AdapterID),
		zap.Strings("pipelines", job.Pipelines),
		zap.Int("retry", job.Retries))

	if err := w.svc.Execute(ctx, job); err != nil {
		w.markFailed(ctx, job, err)
		return true
	}

	if err := w.queue.MarkSuccess(ctx, job); err != nil {
		w.logger.Error("mark success failed",
			zap.String("job_id", job.ID),
			zap.Error(err))
		return true
	}

	w.succeeded.Add(1)
	w.obs.Record("provision_job", "success")
	w.logger.Info("provision job done",
		zap.String("job_id", job.ID),
		zap.String("adapter_id", job.AdapterID),
		zap.String("bd_addr", job.BDAddr))
	return true
}

// markFailed 标记失败（队列内部决定重试或死信）
func (w *Worker) markFailed(ctx context.Context, job *Job, cause error) {
	if err := w.queue.MarkFailed(ctx, job, cause.Error()); err != nil {
		w.logger.Error("mark failed error",
			zap.String("job_id", job.ID),
			zap.Error(err))
		return
	}

	if job.Retries >= job.MaxRetry {
		w.deadCount.Add(1)
		w.obs.Record("provision_job", "dead")
		w.logger.Warn("provision job moved to dead queue",
			zap.String("job_id", job.ID),
			zap.String("adapter_id", job.AdapterID),
			zap.Error(cause))
	} else {
		w.retried.Add(1)
		w.obs.Record("provision_job", "retry")
		w.logger.Debug("provision job retrying",
			zap.String("job_id", job.ID),
			zap.Int("retry", job.Retries))
	}

	w.failed.Add(1)
	w.obs.Record("provision_job", "fail")
}

// Stats 获取统计信息
func (w *Worker) Stats(ctx context.Context) map[string]interface{} {
	queueStats, _ := w.queue.Stats(ctx)

	return map[string]interface{}{
		"succeeded": w.succeeded.Load(),
		"failed":    w.failed.Load(),
		"retried":   w.retried.Load(),
		"dead":      w.deadCount.Load(),
		"queue":     queueStats,
	}
}
