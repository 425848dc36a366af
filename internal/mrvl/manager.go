package mrvl

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/iot-btcfg/internal/transport"
)

var (
	ErrPipelineBusy  = errors.New("pipeline already in flight")
	ErrAddressLocked = errors.New("bd address locked while firmware config in flight")
	ErrNoBDAddress   = errors.New("bd address not set")
)

// Callbacks 构造期注册的终局回调（可为空）
type Callbacks struct {
	OnFirmwareResult func(Result)
	OnScoResult      func(Result)
}

// Manager 驱动上下文：持有传输、参数与每类流水线至多一个在途序列器。
// 替代全局可变状态的唯一入口；触发一次即新建一次运行，终局后可重新触发，
// 不携带上一次运行的任何记忆。
type Manager struct {
	tr  transport.Transport
	log *zap.Logger
	obs Observer
	cbs Callbacks

	mu        sync.Mutex
	params    Params
	active    map[Pipeline]*Sequencer
	startedAt map[Pipeline]time.Time
}

// New 创建管理器。params 会被校验，回调与观察器可为空。
func New(tr transport.Transport, params Params, cbs Callbacks, log *zap.Logger, obs Observer) (*Manager, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	if obs == nil {
		obs = NopObserver()
	}
	return &Manager{
		tr:        tr,
		log:       log,
		obs:       obs,
		cbs:       cbs,
		params:    params,
		active:    make(map[Pipeline]*Sequencer),
		startedAt: make(map[Pipeline]time.Time),
	}, nil
}

// SetBDAddress 单写语义：固件配置在途时拒绝改写，运行之间允许换新地址。
func (m *Manager) SetBDAddress(a BDAddress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlightLocked(PipelineFirmware) {
		return ErrAddressLocked
	}
	m.params.BDAddr = a
	return nil
}

// BDAddress 当前地址快照
func (m *Manager) BDAddress() BDAddress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.params.BDAddr
}

// SetAudioParams 更换 PCM/SCO 负载模板（SCO 配置在途时拒绝）
func (m *Manager) SetAudioParams(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlightLocked(PipelineSCO) {
		return ErrPipelineBusy
	}
	m.params.PCMSettings = p.PCMSettings
	m.params.PCMSyncSettings = p.PCMSyncSettings
	m.params.PCMLinkSettings = p.PCMLinkSettings
	m.params.SCODataPath = p.SCODataPath
	return nil
}

// StartFirmwareConfig 触发固件配置流水线（写 BD 地址）。
// done 与构造期回调都会在终局时各收到一次结果。
func (m *Manager) StartFirmwareConfig(done func(Result)) (string, error) {
	m.mu.Lock()
	if m.params.BDAddr.IsZero() {
		m.mu.Unlock()
		return "", ErrNoBDAddress
	}
	m.mu.Unlock()
	return m.start(PipelineFirmware, done)
}

// StartScoConfig 触发 SCO/PCM 音频通路配置流水线
func (m *Manager) StartScoConfig(done func(Result)) (string, error) {
	return m.start(PipelineSCO, done)
}

func (m *Manager) start(p Pipeline, done func(Result)) (string, error) {
	m.mu.Lock()
	if m.inFlightLocked(p) {
		m.mu.Unlock()
		return "", ErrPipelineBusy
	}
	runID := uuid.NewString()
	params := m.params.clone()
	seq := newSequencer(p, runID, m.tr, params, m.log, m.obs, func(res Result) {
		m.finish(p, res, done)
	})
	m.active[p] = seq
	m.startedAt[p] = time.Now()
	m.mu.Unlock()

	if err := seq.Start(); err != nil {
		// 终局已通过回调上报，这里只透传触发错误
		return runID, err
	}
	return runID, nil
}

// finish 清理在途表并分发终局回调
func (m *Manager) finish(p Pipeline, res Result, done func(Result)) {
	m.mu.Lock()
	delete(m.active, p)
	delete(m.startedAt, p)
	m.mu.Unlock()

	switch p {
	case PipelineFirmware:
		if m.cbs.OnFirmwareResult != nil {
			m.cbs.OnFirmwareResult(res)
		}
	case PipelineSCO:
		if m.cbs.OnScoResult != nil {
			m.cbs.OnScoResult(res)
		}
	}
	if done != nil {
		done(res)
	}
}

func (m *Manager) inFlightLocked(p Pipeline) bool {
	seq, ok := m.active[p]
	return ok && !seq.State().Terminal()
}

// RunStatus 在途运行快照
type RunStatus struct {
	Pipeline  string    `json:"pipeline"`
	RunID     string    `json:"run_id"`
	State     string    `json:"state"`
	LastCmd   string    `json:"last_cmd"`
	StartedAt time.Time `json:"started_at"`
}

// Active 返回全部在途运行的快照
func (m *Manager) Active() []RunStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RunStatus, 0, len(m.active))
	for p, seq := range m.active {
		out = append(out, RunStatus{
			Pipeline:  p.String(),
			RunID:     seq.RunID(),
			State:     seq.State().String(),
			LastCmd:   CmdString(seq.LastSent()),
			StartedAt: m.startedAt[p],
		})
	}
	return out
}
