package mrvl

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/taoyao-code/iot-btcfg/internal/hci"
	"github.com/taoyao-code/iot-btcfg/internal/transport"
)

var (
	ErrAlreadyStarted       = errors.New("sequencer already started")
	ErrParseEvent           = errors.New("parse completion event")
	ErrUnexpectedCompletion = errors.New("unexpected completion")
)

// Sequencer 单次流水线运行：持有显式状态，逐条发命令、等完成、再推进。
// 同一时刻至多一条命令在途；意外完成操作码立即终局失败。
// 完成派发由传输层读循环串行调用，Start 与派发之间用互斥保护状态。
type Sequencer struct {
	pipeline Pipeline
	runID    string
	tr       transport.Transport
	params   Params
	log      *zap.Logger
	obs      Observer
	done     func(Result)

	mu       sync.Mutex
	state    State
	lastSent hci.Opcode
	reported bool
}

func newSequencer(p Pipeline, runID string, tr transport.Transport, params Params, log *zap.Logger, obs Observer, done func(Result)) *Sequencer {
	if log == nil {
		log = zap.NewNop()
	}
	if obs == nil {
		obs = NopObserver()
	}
	return &Sequencer{
		pipeline: p,
		runID:    runID,
		tr:       tr,
		params:   params,
		log:      log,
		obs:      obs,
		done:     done,
		state:    StateIdle,
	}
}

// RunID 本次运行标识
func (s *Sequencer) RunID() string { return s.runID }

// State 当前状态快照
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastSent 最近一次已发出的命令操作码
func (s *Sequencer) LastSent() hci.Opcode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSent
}

// Start 触发流水线：发出首条命令并进入等待状态。
// 构包或发送同步失败时立即终局失败（终局通过回调上报，错误同时返回）。
func (s *Sequencer) Start() error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	spec, await := firstCommand(s.pipeline, &s.params)
	s.state = await
	s.mu.Unlock()

	s.obs.StateChanged(s.runID, s.pipeline, StateIdle, await)
	s.log.Info("pipeline started",
		zap.String("run_id", s.runID),
		zap.String("pipeline", s.pipeline.String()),
		zap.String("first_cmd", CmdString(spec.Opcode)))
	return s.send(spec)
}

// OnComplete 完成派发：解析事件、释放缓冲（仅此一次）、按迁移函数推进。
// 作为 transport.CompleteFunc 注册。
func (s *Sequencer) OnComplete(evt *hci.Buffer) {
	ce, perr := hci.ParseCommandComplete(evt.Bytes())
	evt.Release()
	if perr != nil {
		// 解析失败按协议失配收场，不猜测事件内容
		s.log.Warn("bad completion event",
			zap.String("run_id", s.runID),
			zap.String("pipeline", s.pipeline.String()),
			zap.Error(perr))
		s.fail(0, 0, fmt.Errorf("%w: %v", ErrParseEvent, perr))
		return
	}

	s.obs.CommandCompleted(s.runID, s.pipeline, ce.Opcode, ce.Status)
	s.log.Debug("command complete",
		zap.String("run_id", s.runID),
		zap.String("cmd", CmdString(ce.Opcode)),
		zap.String("opcode", ce.Opcode.String()),
		zap.Uint8("status", ce.Status))

	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		s.log.Warn("completion after terminal state dropped",
			zap.String("run_id", s.runID),
			zap.String("cmd", CmdString(ce.Opcode)))
		return
	}
	from := s.state
	next, act := transition(s.pipeline, s.state, ce.Opcode, ce.Status, &s.params)
	s.state = next
	s.mu.Unlock()

	if next != from {
		s.obs.StateChanged(s.runID, s.pipeline, from, next)
	}

	switch act.Kind {
	case ActionSend:
		_ = s.send(act.Command)
	case ActionReport:
		res := Result{
			Pipeline:   s.pipeline,
			RunID:      s.runID,
			Success:    act.Success,
			FinalState: next,
			LastOpcode: ce.Opcode,
			Status:     ce.Status,
		}
		if !act.Success {
			res.Err = fmt.Errorf("%w: %s (%s) in state %s",
				ErrUnexpectedCompletion, CmdString(ce.Opcode), ce.Opcode, from)
		}
		s.report(res)
	}
}

// send 构包并发出一条命令。发送同步失败时缓冲仍归本方，释放后终局失败，
// 完成回调此后不会再来。
func (s *Sequencer) send(spec CommandSpec) error {
	buf, err := hci.BuildCommand(s.tr, spec.Opcode, spec.Params)
	if err != nil {
		s.log.Error("build command failed",
			zap.String("run_id", s.runID),
			zap.String("cmd", CmdString(spec.Opcode)),
			zap.Error(err))
		s.fail(spec.Opcode, 0, err)
		return err
	}

	s.mu.Lock()
	s.lastSent = spec.Opcode
	s.mu.Unlock()

	s.obs.CommandSent(s.runID, s.pipeline, spec.Opcode)
	s.log.Debug("command sent",
		zap.String("run_id", s.runID),
		zap.String("cmd", CmdString(spec.Opcode)),
		zap.String("opcode", spec.Opcode.String()),
		zap.Int("param_len", len(spec.Params)))

	if err := s.tr.Send(spec.Opcode, buf, s.OnComplete); err != nil {
		buf.Release()
		s.log.Error("send command failed",
			zap.String("run_id", s.runID),
			zap.String("cmd", CmdString(spec.Opcode)),
			zap.Error(err))
		s.fail(spec.Opcode, 0, err)
		return err
	}
	return nil
}

// fail 置失败终态并上报（若尚未终局）
func (s *Sequencer) fail(op hci.Opcode, status uint8, err error) {
	s.mu.Lock()
	if s.state.Terminal() && s.reported {
		s.mu.Unlock()
		return
	}
	from := s.state
	s.state = StateFailed
	s.mu.Unlock()

	if from != StateFailed {
		s.obs.StateChanged(s.runID, s.pipeline, from, StateFailed)
	}
	s.report(Result{
		Pipeline:   s.pipeline,
		RunID:      s.runID,
		Success:    false,
		FinalState: StateFailed,
		LastOpcode: op,
		Status:     status,
		Err:        err,
	})
}

// report 终局上报，保证至多一次，且在锁外回调
func (s *Sequencer) report(res Result) {
	s.mu.Lock()
	if s.reported {
		s.mu.Unlock()
		return
	}
	s.reported = true
	s.mu.Unlock()

	if res.Success {
		s.log.Info("pipeline succeeded",
			zap.String("run_id", s.runID),
			zap.String("pipeline", s.pipeline.String()),
			zap.Uint8("status", res.Status))
	} else {
		s.log.Warn("pipeline failed",
			zap.String("run_id", s.runID),
			zap.String("pipeline", s.pipeline.String()),
			zap.String("last_cmd", CmdString(res.LastOpcode)),
			zap.Error(res.Err))
	}
	if s.done != nil {
		s.done(res)
	}
}
