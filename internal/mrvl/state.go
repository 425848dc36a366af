package mrvl

import "github.com/taoyao-code/iot-btcfg/internal/hci"

// Pipeline 配置流水线类别
type Pipeline uint8

const (
	PipelineFirmware Pipeline = iota
	PipelineSCO
)

func (p Pipeline) String() string {
	switch p {
	case PipelineFirmware:
		return "firmware"
	case PipelineSCO:
		return "sco"
	default:
		return "unknown"
	}
}

// ParsePipeline 解析流水线名（API/队列入参用）
func ParsePipeline(s string) (Pipeline, bool) {
	switch s {
	case "firmware":
		return PipelineFirmware, true
	case "sco":
		return PipelineSCO, true
	default:
		return 0, false
	}
}

// State 流水线显式状态
type State uint8

const (
	StateIdle State = iota
	StateAwaitBDAddress
	StateAwaitPCMSettings
	StateAwaitPCMSync
	StateAwaitPCMLink
	StateAwaitSCOPath
	StateSucceeded
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:             "idle",
	StateAwaitBDAddress:   "await_bd_address",
	StateAwaitPCMSettings: "await_pcm_settings",
	StateAwaitPCMSync:     "await_pcm_sync",
	StateAwaitPCMLink:     "await_pcm_link",
	StateAwaitSCOPath:     "await_sco_path",
	StateSucceeded:        "succeeded",
	StateFailed:           "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal 是否终态（终态不再接受任何事件）
func (s State) Terminal() bool { return s == StateSucceeded || s == StateFailed }

// ActionKind 状态迁移产生的动作类别
type ActionKind uint8

const (
	ActionNone ActionKind = iota
	ActionSend
	ActionReport
)

// CommandSpec 待发送命令：操作码 + 参数负载
type CommandSpec struct {
	Opcode hci.Opcode
	Params []byte
}

// Action 迁移动作。Kind==ActionSend 时 Command 有效，
// Kind==ActionReport 时 Success 有效。
type Action struct {
	Kind    ActionKind
	Command CommandSpec
	Success bool
}

// Result 一次流水线运行的终局
type Result struct {
	Pipeline   Pipeline
	RunID      string
	Success    bool
	FinalState State
	LastOpcode hci.Opcode
	Status     uint8
	Err        error
}

// firstCommand 流水线的首条命令与对应等待状态
func firstCommand(p Pipeline, params *Params) (CommandSpec, State) {
	switch p {
	case PipelineFirmware:
		return CommandSpec{Opcode: OpWriteBDAddress, Params: params.bdAddressParams()}, StateAwaitBDAddress
	case PipelineSCO:
		return CommandSpec{Opcode: OpWritePCMSettings, Params: params.PCMSettings}, StateAwaitPCMSettings
	default:
		return CommandSpec{}, StateFailed
	}
}

// transition 纯迁移函数：(状态, 完成操作码, 状态字节) -> (下一状态, 动作)。
// status 仅随波记录，不参与推进判定；不匹配的完成操作码一律终局失败，
// 不重试不重同步。终态下返回原状态与空动作。
func transition(p Pipeline, st State, completed hci.Opcode, status uint8, params *Params) (State, Action) {
	_ = status

	if st.Terminal() {
		return st, Action{Kind: ActionNone}
	}

	switch p {
	case PipelineFirmware:
		if st == StateAwaitBDAddress && completed == OpWriteBDAddress {
			return StateSucceeded, Action{Kind: ActionReport, Success: true}
		}
	case PipelineSCO:
		switch st {
		case StateAwaitPCMSettings:
			if completed == OpWritePCMSettings {
				return StateAwaitPCMSync, Action{Kind: ActionSend, Command: CommandSpec{
					Opcode: OpWritePCMSyncSettings, Params: params.PCMSyncSettings,
				}}
			}
		case StateAwaitPCMSync:
			if completed == OpWritePCMSyncSettings {
				return StateAwaitPCMLink, Action{Kind: ActionSend, Command: CommandSpec{
					Opcode: OpWritePCMLinkSettings, Params: params.PCMLinkSettings,
				}}
			}
		case StateAwaitPCMLink:
			if completed == OpWritePCMLinkSettings {
				return StateAwaitSCOPath, Action{Kind: ActionSend, Command: CommandSpec{
					Opcode: OpSetSCODataPath, Params: params.SCODataPath,
				}}
			}
		case StateAwaitSCOPath:
			if completed == OpSetSCODataPath {
				return StateSucceeded, Action{Kind: ActionReport, Success: true}
			}
		}
	}

	return StateFailed, Action{Kind: ActionReport, Success: false}
}
