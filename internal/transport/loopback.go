package transport

import (
	"context"
	"sync"
	"time"

	"github.com/taoyao-code/iot-btcfg/internal/hci"
)

// Loopback 进程内模拟控制器：记录发出的命令并自动回 Command Complete。
// 用于单元测试与 mock 设备模式。默认对任意命令回状态 0x00 的完成事件；
// 可按操作码改写状态、改回别的操作码（测意外完成）、丢弃完成（测停摆）
// 或直接让发送失败。
type Loopback struct {
	pool *hci.Pool

	mu        sync.Mutex
	opened    bool
	sent      []SentCommand
	status    map[hci.Opcode]byte
	respondAs map[hci.Opcode]hci.Opcode
	drop      map[hci.Opcode]bool
	failSend  map[hci.Opcode]error
	delay     time.Duration

	wg sync.WaitGroup
}

// SentCommand 已发出命令的副本记录
type SentCommand struct {
	Opcode hci.Opcode
	Packet []byte
	SentAt time.Time
}

// NewLoopback 创建模拟控制器
func NewLoopback() *Loopback {
	return &Loopback{
		pool:      hci.DefaultPool(),
		status:    make(map[hci.Opcode]byte),
		respondAs: make(map[hci.Opcode]hci.Opcode),
		drop:      make(map[hci.Opcode]bool),
		failSend:  make(map[hci.Opcode]error),
	}
}

func (l *Loopback) Open(ctx context.Context) error {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opened = true
	return nil
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	l.opened = false
	l.mu.Unlock()
	l.wg.Wait()
	return nil
}

func (l *Loopback) Alloc(n int) *hci.Buffer { return l.pool.Alloc(n) }
func (l *Loopback) Free(b *hci.Buffer)      { l.pool.Free(b) }

// Pool 暴露底层缓冲池，测试用于断言收支平衡
func (l *Loopback) Pool() *hci.Pool { return l.pool }

// Send 记录命令并异步投递完成事件（与真实读循环一致，不在调用栈内回调）
func (l *Loopback) Send(op hci.Opcode, b *hci.Buffer, complete CompleteFunc) error {
	l.mu.Lock()
	if !l.opened {
		l.mu.Unlock()
		return ErrClosed
	}
	if err := l.failSend[op]; err != nil {
		l.mu.Unlock()
		return err
	}

	pkt := append([]byte(nil), b.Bytes()...)
	l.sent = append(l.sent, SentCommand{Opcode: op, Packet: pkt, SentAt: time.Now()})

	dropped := l.drop[op]
	respOp := op
	if alt, ok := l.respondAs[op]; ok {
		respOp = alt
	}
	st := l.status[op]
	delay := l.delay
	// Add 必须在 opened 检查的同一临界区内，否则与 Close 的 Wait 竞争
	if !dropped {
		l.wg.Add(1)
	}
	l.mu.Unlock()

	// 命令缓冲由传输层消费
	b.Release()

	if dropped {
		return nil
	}

	go func() {
		defer l.wg.Done()
		if delay > 0 {
			time.Sleep(delay)
		}
		evt := l.completeEvent(respOp, st)
		if evt == nil {
			return
		}
		complete(evt)
	}()
	return nil
}

// completeEvent 构造 Command Complete 事件缓冲（所有权交给回调方）
func (l *Loopback) completeEvent(op hci.Opcode, status byte) *hci.Buffer {
	buf := l.pool.Alloc(6)
	if buf == nil {
		return nil
	}
	data := buf.Bytes()
	data[0] = hci.EvtCommandComplete
	data[1] = 0x04 // numPkts + opcode + status
	data[2] = 0x01
	data[3] = byte(op)
	data[4] = byte(op >> 8)
	data[5] = status
	return buf
}

// SetStatus 指定某操作码完成事件的状态字节
func (l *Loopback) SetStatus(op hci.Opcode, status byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status[op] = status
}

// RespondWith 让某操作码的完成事件携带别的操作码
func (l *Loopback) RespondWith(op, with hci.Opcode) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.respondAs[op] = with
}

// DropCompletion 丢弃某操作码的完成事件（模拟控制器不响应）
func (l *Loopback) DropCompletion(op hci.Opcode) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.drop[op] = true
}

// FailSend 让某操作码的发送同步失败
func (l *Loopback) FailSend(op hci.Opcode, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failSend[op] = err
}

// SetDelay 完成事件的投递延迟
func (l *Loopback) SetDelay(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.delay = d
}

// Sent 返回已发出命令的副本
func (l *Loopback) Sent() []SentCommand {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]SentCommand, len(l.sent))
	copy(out, l.sent)
	return out
}

// Reset 清空记录与行为改写
func (l *Loopback) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = l.sent[:0]
	l.status = make(map[hci.Opcode]byte)
	l.respondAs = make(map[hci.Opcode]hci.Opcode)
	l.drop = make(map[hci.Opcode]bool)
	l.failSend = make(map[hci.Opcode]error)
}
