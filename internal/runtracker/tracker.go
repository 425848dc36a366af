package runtracker

import (
	"sync"
	"time"

	"github.com/taoyao-code/iot-btcfg/internal/hci"
	"github.com/taoyao-code/iot-btcfg/internal/mrvl"
)

// Observer 追踪器操作观察钩子（指标桥接用）
type Observer interface {
	Record(operation, status string)
}

type ObserverFunc func(operation, status string)

func (f ObserverFunc) Record(operation, status string) {
	if f != nil {
		f(operation, status)
	}
}

func NopObserver() Observer {
	return ObserverFunc(func(string, string) {})
}

// CommandRecord 一条命令的发出/完成轨迹
type CommandRecord struct {
	Opcode      string     `json:"opcode"`
	Name        string     `json:"name"`
	SentAt      time.Time  `json:"sent_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Status      *uint8     `json:"status,omitempty"`
}

// Transition 状态迁移记录
type Transition struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	At   time.Time `json:"at"`
}

// Run 一次配置运行的全轨迹
type Run struct {
	RunID       string          `json:"run_id"`
	Pipeline    string          `json:"pipeline"`
	State       string          `json:"state"`
	StartedAt   time.Time       `json:"started_at"`
	LastEventAt time.Time       `json:"last_event_at"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
	Success     *bool           `json:"success,omitempty"`
	Stalled     bool            `json:"stalled"`
	Error       string          `json:"error,omitempty"`
	Commands    []CommandRecord `json:"commands"`
	Transitions []Transition    `json:"transitions"`
}

// Tracker 配置运行追踪器：在途表 + 已结束环形缓存。
// 运行记录由观察回调按需建档，对乱序到达稳健。
// 链路本身没有超时，停摆只能在这里暴露：等待超过阈值的运行标记 stalled。
type Tracker struct {
	mu     sync.Mutex
	active map[string]*Run
	recent []*Run

	capacity   int
	stallAfter time.Duration
	observer   Observer
	now        func() time.Time
}

type Option func(*Tracker)

const (
	defaultCapacity   = 128
	defaultStallAfter = 10 * time.Second
)

func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		active:     make(map[string]*Run),
		capacity:   defaultCapacity,
		stallAfter: defaultStallAfter,
		observer:   NopObserver(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func WithCapacity(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.capacity = n
		}
	}
}

func WithStallAfter(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.stallAfter = d
		}
	}
}

func WithObserver(observer Observer) Option {
	return func(t *Tracker) {
		if observer != nil {
			t.observer = observer
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// upsertLocked 取或建运行记录
func (t *Tracker) upsertLocked(runID string, p mrvl.Pipeline, now time.Time) *Run {
	if r, ok := t.active[runID]; ok {
		return r
	}
	r := &Run{
		RunID:       runID,
		Pipeline:    p.String(),
		State:       mrvl.StateIdle.String(),
		StartedAt:   now,
		LastEventAt: now,
	}
	t.active[runID] = r
	t.observer.Record("run_track", "ok")
	return r
}

// StateChanged 实现 mrvl.Observer
func (t *Tracker) StateChanged(runID string, p mrvl.Pipeline, from, to mrvl.State) {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.upsertLocked(runID, p, now)
	r.State = to.String()
	r.LastEventAt = now
	r.Transitions = append(r.Transitions, Transition{From: from.String(), To: to.String(), At: now})
}

// CommandSent 实现 mrvl.Observer
func (t *Tracker) CommandSent(runID string, p mrvl.Pipeline, op hci.Opcode) {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.upsertLocked(runID, p, now)
	r.LastEventAt = now
	r.Commands = append(r.Commands, CommandRecord{
		Opcode: op.String(),
		Name:   mrvl.CmdString(op),
		SentAt: now,
	})
}

// CommandCompleted 实现 mrvl.Observer
func (t *Tracker) CommandCompleted(runID string, p mrvl.Pipeline, op hci.Opcode, status uint8) {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.upsertLocked(runID, p, now)
	r.LastEventAt = now
	// 补到最近一条未完成的同名命令上；意外操作码单独落一条
	for i := len(r.Commands) - 1; i >= 0; i-- {
		if r.Commands[i].CompletedAt == nil {
			r.Commands[i].CompletedAt = &now
			st := status
			r.Commands[i].Status = &st
			if r.Commands[i].Opcode == op.String() {
				return
			}
			r.Commands[i].Name = mrvl.CmdString(op) + " (unexpected " + op.String() + ")"
			return
		}
	}
	st := status
	r.Commands = append(r.Commands, CommandRecord{
		Opcode:      op.String(),
		Name:        mrvl.CmdString(op),
		SentAt:      now,
		CompletedAt: &now,
		Status:      &st,
	})
}

// Finish 终局归档：挪出在途表，压入环形缓存
func (t *Tracker) Finish(res mrvl.Result) {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.upsertLocked(res.RunID, res.Pipeline, now)
	delete(t.active, res.RunID)

	r.State = res.FinalState.String()
	r.LastEventAt = now
	r.FinishedAt = &now
	ok := res.Success
	r.Success = &ok
	if res.Err != nil {
		r.Error = res.Err.Error()
	}

	t.recent = append(t.recent, r)
	if len(t.recent) > t.capacity {
		t.recent = t.recent[len(t.recent)-t.capacity:]
	}
	if res.Success {
		t.observer.Record("run_finish", "success")
	} else {
		t.observer.Record("run_finish", "fail")
	}
}

// Active 在途运行快照，等待过久的标记 stalled
func (t *Tracker) Active() []Run {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Run, 0, len(t.active))
	for _, r := range t.active {
		snap := snapshot(r)
		if t.stallAfter > 0 && now.Sub(r.LastEventAt) > t.stallAfter {
			snap.Stalled = true
			t.observer.Record("run_stalled", r.Pipeline)
		}
		out = append(out, snap)
	}
	return out
}

// Recent 最近结束的运行（新在前），n<=0 取全部
func (t *Tracker) Recent(n int) []Run {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := len(t.recent)
	if n <= 0 || n > total {
		n = total
	}
	out := make([]Run, 0, n)
	for i := total - 1; i >= total-n; i-- {
		out = append(out, snapshot(t.recent[i]))
	}
	return out
}

// Get 按运行号查找（在途优先）
func (t *Tracker) Get(runID string) (Run, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.active[runID]; ok {
		return snapshot(r), true
	}
	for i := len(t.recent) - 1; i >= 0; i-- {
		if t.recent[i].RunID == runID {
			return snapshot(t.recent[i]), true
		}
	}
	return Run{}, false
}

// snapshot 深拷贝，避免调用方拿到内部切片
func snapshot(r *Run) Run {
	out := *r
	out.Commands = append([]CommandRecord(nil), r.Commands...)
	out.Transitions = append([]Transition(nil), r.Transitions...)
	return out
}
