package hci

import "fmt"

// HCI UART (H4) 包类型指示字节
const (
	PktCommand byte = 0x01
	PktACLData byte = 0x02
	PktSCOData byte = 0x03
	PktEvent   byte = 0x04
)

// 事件码（仅厂商配置通道关心的子集）
const (
	EvtCommandComplete byte = 0x0E
	EvtCommandStatus   byte = 0x0F
	EvtHardwareError   byte = 0x10
)

// 布局常量
// 命令包：opcodeLE[2] | paramLen[1] | params[..]
// 事件包：evtCode[1] | paramLen[1] | params[..]
// Command Complete 参数：numPkts[1] | opcodeLE[2] | status[1] | ret[..]
const (
	CmdPreambleSize = 3
	EvtPreambleSize = 2
	MaxCmdParamLen  = 255

	evtCmdCmplOpcodeOffset = 3
	evtCmdCmplStatusOffset = 5
	evtCmdCmplMinLen       = 6
)

const ogfVendor = 0x3F

// Opcode HCI 命令操作码（OGF 高6位 + OCF 低10位），线上小端
type Opcode uint16

func (op Opcode) OGF() uint8  { return uint8(op >> 10) }
func (op Opcode) OCF() uint16 { return uint16(op) & 0x03FF }

// Vendor 是否厂商自定义命令（OGF=0x3F）
func (op Opcode) Vendor() bool { return op.OGF() == ogfVendor }

func (op Opcode) String() string { return fmt.Sprintf("0x%04X", uint16(op)) }

// CompleteEvent 已解析的 Command Complete 事件
// Status 仅透传记录，不参与链路推进判定
type CompleteEvent struct {
	Opcode Opcode
	Status uint8
}
