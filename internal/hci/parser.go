package hci

import (
	"encoding/binary"
	"errors"
)

var (
	ErrShortEvent     = errors.New("short event packet")
	ErrNotCmdComplete = errors.New("not a command complete event")
)

// ParseCommandComplete 从事件包中取出完成的 opcode 与状态字节。
// opcode 固定位于偏移 3（事件码、参数长度、Num_HCI_Command_Packets 之后），小端。
// 长度或事件码不符时报错收场，绝不越界读。
func ParseCommandComplete(data []byte) (CompleteEvent, error) {
	if len(data) < evtCmdCmplMinLen {
		return CompleteEvent{}, ErrShortEvent
	}
	if data[0] != EvtCommandComplete {
		return CompleteEvent{}, ErrNotCmdComplete
	}
	if int(data[1]) < evtCmdCmplMinLen-EvtPreambleSize {
		return CompleteEvent{}, ErrShortEvent
	}
	op := Opcode(binary.LittleEndian.Uint16(data[evtCmdCmplOpcodeOffset : evtCmdCmplOpcodeOffset+2]))
	return CompleteEvent{Opcode: op, Status: data[evtCmdCmplStatusOffset]}, nil
}

// StreamDecoder 处理 H4 字节流的半包/粘包，产出完整事件包（剥掉类型字节）。
// 非事件类型的包按各自头部声明的长度跳过；未知类型字节丢弃1字节重新同步。
type StreamDecoder struct {
	buf         []byte
	maxFrameLen int // 保护上限，避免畸形长度占用过多内存
}

// NewStreamDecoder 创建流式解码器
func NewStreamDecoder(maxFrameLen int) *StreamDecoder {
	if maxFrameLen <= 0 {
		maxFrameLen = 1024 // 事件包最长 2+255，ACL 放宽一些
	}
	return &StreamDecoder{maxFrameLen: maxFrameLen}
}

// Feed 追加数据并尽可能解出多包事件
func (d *StreamDecoder) Feed(p []byte) ([][]byte, error) {
	if len(p) == 0 {
		return nil, nil
	}
	d.buf = append(d.buf, p...)
	var events [][]byte

	for len(d.buf) > 0 {
		hdrLen := headerLen(d.buf[0])
		if hdrLen < 0 {
			// 未知类型，滑动1字节继续同步
			d.buf = d.buf[1:]
			continue
		}
		if len(d.buf) < 1+hdrLen {
			// 头部未到齐
			return events, nil
		}
		total := 1 + hdrLen + bodyLen(d.buf[0], d.buf[1:1+hdrLen])
		if total > d.maxFrameLen {
			d.buf = d.buf[1:]
			continue
		}
		if len(d.buf) < total {
			// 半包，等待更多
			return events, nil
		}
		if d.buf[0] == PktEvent {
			pkt := make([]byte, total-1)
			copy(pkt, d.buf[1:total])
			events = append(events, pkt)
		}
		d.buf = d.buf[total:]
	}
	return events, nil
}

// headerLen 类型字节之后的包头长度；未知类型返回 -1
func headerLen(t byte) int {
	switch t {
	case PktEvent:
		return 2 // evtCode + paramLen
	case PktACLData:
		return 4 // handle + lenLE16
	case PktSCOData:
		return 3 // handle + len
	case PktCommand:
		return 3 // opcodeLE + paramLen
	default:
		return -1
	}
}

// bodyLen 包头声明的负载长度
func bodyLen(t byte, hdr []byte) int {
	switch t {
	case PktEvent:
		return int(hdr[1])
	case PktACLData:
		return int(binary.LittleEndian.Uint16(hdr[2:4]))
	case PktSCOData:
		return int(hdr[2])
	case PktCommand:
		return int(hdr[2])
	default:
		return 0
	}
}
