package transport

import (
	"context"
	"errors"

	"github.com/taoyao-code/iot-btcfg/internal/hci"
)

var (
	ErrClosed         = errors.New("transport closed")
	ErrOpcodePending  = errors.New("opcode already pending")
	ErrOpenInProgress = errors.New("open already in progress")
)

// CompleteFunc 命令完成回调。事件缓冲所有权随调用移交给回调方，
// 由其解析后释放一次。
type CompleteFunc func(evt *hci.Buffer)

// Transport 命令/事件传输契约，由序列器消费。
//
// Send 语义：
//   - 成功入队后缓冲所有权归传输层，对应的完成事件到达时调用 complete；
//   - 返回错误表示同步发送失败，complete 永远不会被调用，缓冲所有权
//     仍在调用方（由其释放）。
//
// 完成回调由读循环串行投递，同一时刻至多一个。
type Transport interface {
	hci.Allocator

	Send(op hci.Opcode, b *hci.Buffer, complete CompleteFunc) error
	Open(ctx context.Context) error
	Close() error
}
