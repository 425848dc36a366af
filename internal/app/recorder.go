package app

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/iot-btcfg/internal/hci"
	"github.com/taoyao-code/iot-btcfg/internal/mrvl"
	pgstorage "github.com/taoyao-code/iot-btcfg/internal/storage/pg"
)

const (
	recorderQueueSize    = 256
	recorderWriteTimeout = 3 * time.Second
	recorderCloseWait    = 2 * time.Second
)

// RunRecorder 把流水线观察事件异步写入 PostgreSQL。
// 观察回调发生在事件派发路径上，这里只入队；真正的写库在独立goroutine里，
// 队列满时丢弃并告警。持久化永远不反压设备链路。
type RunRecorder struct {
	repo      *pgstorage.Repository
	adapterID int64 // adapters 表本地行ID
	log       *zap.Logger

	ch      chan func(context.Context)
	quit    chan struct{}
	done    chan struct{}
	dropped atomic.Int64
}

// NewRunRecorder 创建并启动记录器。adapterDBID 为本机适配器在 adapters 表的行ID。
func NewRunRecorder(repo *pgstorage.Repository, adapterDBID int64, log *zap.Logger) *RunRecorder {
	if log == nil {
		log = zap.NewNop()
	}
	r := &RunRecorder{
		repo:      repo,
		adapterID: adapterDBID,
		log:       log,
		ch:        make(chan func(context.Context), recorderQueueSize),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *RunRecorder) loop() {
	defer close(r.done)
	for {
		select {
		case op := <-r.ch:
			r.apply(op)
		case <-r.quit:
			// 退出前清空积压
			for {
				select {
				case op := <-r.ch:
					r.apply(op)
				default:
					return
				}
			}
		}
	}
}

func (r *RunRecorder) apply(op func(context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), recorderWriteTimeout)
	op(ctx)
	cancel()
}

func (r *RunRecorder) enqueue(op func(context.Context)) {
	select {
	case r.ch <- op:
	default:
		if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
			r.log.Warn("run recorder queue full, dropping writes",
				zap.Int64("dropped_total", n))
		}
	}
}

// Close 停止写库goroutine，等待积压清空（有限等待）
func (r *RunRecorder) Close() {
	close(r.quit)
	select {
	case <-r.done:
	case <-time.After(recorderCloseWait):
		r.log.Warn("run recorder close timed out")
	}
}

// Dropped 因队列满被丢弃的写入条数
func (r *RunRecorder) Dropped() int64 { return r.dropped.Load() }

// StateChanged 只在运行建档时落一行 config_runs（离开 Idle 恰好一次）
func (r *RunRecorder) StateChanged(runID string, p mrvl.Pipeline, from, _ mrvl.State) {
	if from != mrvl.StateIdle {
		return
	}
	pipeline := p.String()
	startedAt := time.Now()
	r.enqueue(func(ctx context.Context) {
		if err := r.repo.StartConfigRun(ctx, runID, r.adapterID, pipeline, startedAt); err != nil {
			r.log.Warn("record run start failed",
				zap.String("run_id", runID), zap.Error(err))
		}
	})
}

// CommandSent 落一行下行指令日志
func (r *RunRecorder) CommandSent(runID string, _ mrvl.Pipeline, op hci.Opcode) {
	opcode := int32(op)
	name := mrvl.CmdString(op)
	r.enqueue(func(ctx context.Context) {
		if err := r.repo.InsertCmdLog(ctx, runID, opcode, name, pgstorage.DirOut, nil, nil); err != nil {
			r.log.Warn("record command failed",
				zap.String("run_id", runID), zap.String("cmd", name), zap.Error(err))
		}
	})
}

// CommandCompleted 落一行上行完成日志（带状态字节）
func (r *RunRecorder) CommandCompleted(runID string, _ mrvl.Pipeline, op hci.Opcode, status uint8) {
	opcode := int32(op)
	name := mrvl.CmdString(op)
	st := int16(status)
	r.enqueue(func(ctx context.Context) {
		if err := r.repo.InsertCmdLog(ctx, runID, opcode, name, pgstorage.DirIn, nil, &st); err != nil {
			r.log.Warn("record completion failed",
				zap.String("run_id", runID), zap.String("cmd", name), zap.Error(err))
		}
	})
}

// Finish 写入运行终态。由终局汇聚回调触发，不属于观察接口。
func (r *RunRecorder) Finish(res mrvl.Result) {
	runID := res.RunID
	success := res.Success
	finalState := res.FinalState.String()

	var lastOp *int32
	if res.LastOpcode != 0 {
		v := int32(res.LastOpcode)
		lastOp = &v
	}
	st := int16(res.Status)
	var errMsg *string
	if res.Err != nil {
		s := res.Err.Error()
		errMsg = &s
	}

	r.enqueue(func(ctx context.Context) {
		if err := r.repo.FinishConfigRun(ctx, runID, success, finalState, lastOp, &st, errMsg); err != nil {
			r.log.Warn("record run finish failed",
				zap.String("run_id", runID), zap.Error(err))
		}
	})
}
