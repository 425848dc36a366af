package hci

import (
	"sync"
	"sync/atomic"
)

// Buffer 池化的包缓冲。所有权单持有：谁拿到指针谁负责归还，且只归还一次。
type Buffer struct {
	raw      []byte
	n        int
	pool     *Pool
	released atomic.Bool
}

func (b *Buffer) Bytes() []byte { return b.raw[:b.n] }
func (b *Buffer) Len() int      { return b.n }

// Release 归还到所属池。重复归还会被计数拒绝而不是破坏池。
func (b *Buffer) Release() {
	if b == nil || b.pool == nil {
		return
	}
	b.pool.Free(b)
}

// Allocator 命令/事件缓冲分配器。传输层实现该契约并把缓冲所有权
// 在发送与完成回调之间移交。Alloc 失败返回 nil。
type Allocator interface {
	Alloc(n int) *Buffer
	Free(b *Buffer)
}

// Pool 固定槽宽的缓冲池，带在途上限与收支计数。
// HCI 包不超过 257 字节，默认槽宽足以覆盖。
type Pool struct {
	slab  int
	limit int64

	p      sync.Pool
	inUse  atomic.Int64
	allocs atomic.Int64
	frees  atomic.Int64
	denied atomic.Int64
	double atomic.Int64
}

const (
	defaultSlabSize  = 512
	defaultPoolInUse = 64
)

// NewPool 创建缓冲池。limit<=0 表示不限制在途数量。
func NewPool(slab int, limit int64) *Pool {
	if slab <= 0 {
		slab = defaultSlabSize
	}
	p := &Pool{slab: slab, limit: limit}
	p.p.New = func() any { return make([]byte, p.slab) }
	return p
}

// DefaultPool 运行期默认配置的池
func DefaultPool() *Pool { return NewPool(defaultSlabSize, defaultPoolInUse) }

// Alloc 取一块容量至少 n 的缓冲；超宽、超限时返回 nil（调用方按分配失败处理）。
func (p *Pool) Alloc(n int) *Buffer {
	if n < 0 || n > p.slab {
		p.denied.Add(1)
		return nil
	}
	if p.limit > 0 && p.inUse.Load() >= p.limit {
		p.denied.Add(1)
		return nil
	}
	raw := p.p.Get().([]byte)
	p.inUse.Add(1)
	p.allocs.Add(1)
	return &Buffer{raw: raw, n: n, pool: p}
}

// Free 归还缓冲。二次归还只计数，不二次入池。
func (p *Pool) Free(b *Buffer) {
	if b == nil {
		return
	}
	if !b.released.CompareAndSwap(false, true) {
		p.double.Add(1)
		return
	}
	p.inUse.Add(-1)
	p.frees.Add(1)
	p.p.Put(b.raw)
}

func (p *Pool) InUse() int64       { return p.inUse.Load() }
func (p *Pool) Limit() int64       { return p.limit }
func (p *Pool) Allocs() int64      { return p.allocs.Load() }
func (p *Pool) Frees() int64       { return p.frees.Load() }
func (p *Pool) Denied() int64      { return p.denied.Load() }
func (p *Pool) DoubleFrees() int64 { return p.double.Load() }
