package app

import (
	"errors"

	"go.uber.org/zap"

	"github.com/taoyao-code/iot-btcfg/internal/hci"
	"github.com/taoyao-code/iot-btcfg/internal/metrics"
	"github.com/taoyao-code/iot-btcfg/internal/mrvl"
	"github.com/taoyao-code/iot-btcfg/internal/runtracker"
)

// metricsObserver 把流水线观察事件桥接为 Prometheus 指标。
// 回调发生在事件派发路径上，这里只做计数器与仪表操作。
type metricsObserver struct {
	m *metrics.AppMetrics
}

// NewMetricsObserver 创建指标观察器
func NewMetricsObserver(m *metrics.AppMetrics) mrvl.Observer {
	return &metricsObserver{m: m}
}

// StateChanged 离开 Idle 记一次在途，进入终态减一次。
// 两个条件同时成立时净值为零，仪表不会漂移。
func (o *metricsObserver) StateChanged(_ string, _ mrvl.Pipeline, from, to mrvl.State) {
	if from == mrvl.StateIdle {
		o.m.ActiveRuns.Inc()
	}
	if to.Terminal() {
		o.m.ActiveRuns.Dec()
	}
}

func (o *metricsObserver) CommandSent(_ string, _ mrvl.Pipeline, op hci.Opcode) {
	o.m.CommandsSent.WithLabelValues(mrvl.CmdString(op)).Inc()
}

func (o *metricsObserver) CommandCompleted(_ string, _ mrvl.Pipeline, op hci.Opcode, status uint8) {
	s := "ok"
	if status != 0 {
		s = "error"
	}
	o.m.CompletionsTotal.WithLabelValues(mrvl.CmdString(op), s).Inc()
}

// NewTrackObserver 把追踪器与作业Worker的内部事件计入指标。
// 目前只消费作业结局，其余事件（run_track/run_finish/run_stalled）
// 已由终局汇聚与运行监控覆盖。
func NewTrackObserver(m *metrics.AppMetrics) runtracker.Observer {
	return runtracker.ObserverFunc(func(operation, status string) {
		if operation == "provision_job" {
			m.ProvisionJobs.WithLabelValues(status).Inc()
		}
	})
}

// NewResultSink 汇聚流水线终局：追踪器归档、异步落库、指标更新、日志。
// 作为 Manager 的构造期回调挂接，每次运行恰好触发一次。
func NewResultSink(tracker *runtracker.Tracker, rec *RunRecorder, m *metrics.AppMetrics, log *zap.Logger) func(mrvl.Result) {
	if log == nil {
		log = zap.NewNop()
	}
	return func(res mrvl.Result) {
		pipeline := res.Pipeline.String()

		if tracker != nil {
			tracker.Finish(res)
			if m != nil {
				if run, ok := tracker.Get(res.RunID); ok && run.FinishedAt != nil {
					m.RunDuration.WithLabelValues(pipeline).Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
				}
			}
		}
		if rec != nil {
			rec.Finish(res)
		}

		if m != nil {
			outcome := "success"
			if !res.Success {
				outcome = "fail"
			}
			m.RunsTotal.WithLabelValues(pipeline, outcome).Inc()
			if errors.Is(res.Err, mrvl.ErrUnexpectedCompletion) {
				m.UnexpectedEvents.Inc()
			}
		}

		if res.Success {
			log.Info("config run finished",
				zap.String("run_id", res.RunID),
				zap.String("pipeline", pipeline),
				zap.String("final_state", res.FinalState.String()))
		} else {
			log.Warn("config run failed",
				zap.String("run_id", res.RunID),
				zap.String("pipeline", pipeline),
				zap.String("final_state", res.FinalState.String()),
				zap.String("last_cmd", mrvl.CmdString(res.LastOpcode)),
				zap.Uint8("hci_status", res.Status),
				zap.Error(res.Err))
		}
	}
}
