package hci

import (
	"encoding/binary"
	"errors"
)

var (
	ErrNoBuffer      = errors.New("no buffer available")
	ErrParamsTooLong = errors.New("command params too long")
)

// BuildCommand 构造一条 HCI 命令包（与底层解析约定对应）。
// 布局：opcodeLE[2] | paramLen[1] | params[..]
// 分配失败返回 ErrNoBuffer，由调用方按失败终态处理；成功时缓冲所有权归调用方。
func BuildCommand(alloc Allocator, op Opcode, params []byte) (*Buffer, error) {
	if len(params) > MaxCmdParamLen {
		return nil, ErrParamsTooLong
	}
	b := alloc.Alloc(CmdPreambleSize + len(params))
	if b == nil {
		return nil, ErrNoBuffer
	}
	data := b.Bytes()
	binary.LittleEndian.PutUint16(data[0:2], uint16(op))
	data[2] = byte(len(params))
	copy(data[CmdPreambleSize:], params)
	return b, nil
}
