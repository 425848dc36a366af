package transport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/taoyao-code/iot-btcfg/internal/hci"
)

// mbtchar 设备节点约定
const (
	DefaultDevicePath = "/dev/mbtchar0"

	defaultOpenRetries    = 20
	defaultOpenRetryDelay = 200 * time.Millisecond
	defaultReadBufSize    = 1024
	defaultMaxFrameLen    = 1024

	// mbtcharIoctlRelease 释放设备占用，_IO('M', 1)
	mbtcharIoctlRelease = 0x4D01

	// 关闭前给驱动一点时间消化 release
	closeSettleDelay = time.Millisecond
)

var ErrNotOpen = errors.New("device not open")

// ChardevConfig 字符设备传输配置
type ChardevConfig struct {
	Path           string
	OpenRetries    int
	OpenRetryDelay time.Duration
	WriteRate      float64 // 每秒命令数，<=0 不限速
	WriteBurst     int
	ReadBufSize    int
	MaxFrameLen    int
}

func (c *ChardevConfig) withDefaults() {
	if c.Path == "" {
		c.Path = DefaultDevicePath
	}
	if c.OpenRetries <= 0 {
		c.OpenRetries = defaultOpenRetries
	}
	if c.OpenRetryDelay <= 0 {
		c.OpenRetryDelay = defaultOpenRetryDelay
	}
	if c.ReadBufSize <= 0 {
		c.ReadBufSize = defaultReadBufSize
	}
	if c.MaxFrameLen <= 0 {
		c.MaxFrameLen = defaultMaxFrameLen
	}
	if c.WriteBurst <= 0 {
		c.WriteBurst = 1
	}
}

// Chardev H4 字符设备传输：命令下行加类型字节写入，读循环流式解码事件，
// 按操作码关联在途完成回调。
type Chardev struct {
	cfg     ChardevConfig
	log     *zap.Logger
	pool    *hci.Pool
	limiter *rate.Limiter

	mu      sync.Mutex
	f       *os.File
	opened  bool
	opening bool
	pending map[hci.Opcode]CompleteFunc
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	unmatched   atomic.Int64
	nonComplete atomic.Int64
}

// NewChardev 创建字符设备传输（未打开）
func NewChardev(cfg ChardevConfig, log *zap.Logger) *Chardev {
	cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	c := &Chardev{
		cfg:     cfg,
		log:     log,
		pool:    hci.DefaultPool(),
		pending: make(map[hci.Opcode]CompleteFunc),
	}
	if cfg.WriteRate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.WriteRate), cfg.WriteBurst)
	}
	return c
}

func (c *Chardev) Alloc(n int) *hci.Buffer { return c.pool.Alloc(n) }
func (c *Chardev) Free(b *hci.Buffer)      { c.pool.Free(b) }

// Pool 暴露底层缓冲池（指标采集用）
func (c *Chardev) Pool() *hci.Pool { return c.pool }

// Open 打开设备节点并启动读循环。驱动加载与节点出现之间有时间窗，
// 按固定间隔有限重试。
func (c *Chardev) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.opened {
		c.mu.Unlock()
		return nil
	}
	// 重试循环不持锁，用 opening 挡住并发 Open，避免双读循环与fd泄漏
	if c.opening {
		c.mu.Unlock()
		return ErrOpenInProgress
	}
	c.opening = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.opening = false
		c.mu.Unlock()
	}()

	var (
		f       *os.File
		lastErr error
	)
	for attempt := 1; attempt <= c.cfg.OpenRetries; attempt++ {
		var err error
		f, err = os.OpenFile(c.cfg.Path, os.O_RDWR|unix.O_NOCTTY, 0)
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		c.log.Debug("open device failed, retrying",
			zap.String("path", c.cfg.Path),
			zap.Int("attempt", attempt),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return fmt.Errorf("open %s: %w", c.cfg.Path, ctx.Err())
		case <-time.After(c.cfg.OpenRetryDelay):
		}
	}
	if lastErr != nil {
		return fmt.Errorf("open %s after %d attempts: %w", c.cfg.Path, c.cfg.OpenRetries, lastErr)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.f = f
	c.opened = true
	c.runCtx = runCtx
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop(f)

	c.log.Info("device opened", zap.String("path", c.cfg.Path))
	return nil
}

// Close 释放设备：先发 release ioctl，稍候关闭节点，读循环退出后
// 丢弃全部在途回调（不补发失败完成）。
func (c *Chardev) Close() error {
	c.mu.Lock()
	if !c.opened {
		c.mu.Unlock()
		return nil
	}
	c.opened = false
	f := c.f
	c.f = nil
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := unix.IoctlSetInt(int(f.Fd()), mbtcharIoctlRelease, 0); err != nil {
		// 老驱动可能不识别该 ioctl，不视为致命
		c.log.Debug("release ioctl failed", zap.Error(err))
	}
	time.Sleep(closeSettleDelay)
	cerr := f.Close()
	c.wg.Wait()

	c.mu.Lock()
	dropped := len(c.pending)
	c.pending = make(map[hci.Opcode]CompleteFunc)
	c.mu.Unlock()
	if dropped > 0 {
		c.log.Warn("pending completions dropped on close", zap.Int("count", dropped))
	}

	c.log.Info("device closed", zap.String("path", c.cfg.Path))
	return cerr
}

// Send 注册在途回调并写出 H4 命令包。同步失败时回调不会被调用，
// 缓冲所有权仍在调用方。
func (c *Chardev) Send(op hci.Opcode, b *hci.Buffer, complete CompleteFunc) error {
	c.mu.Lock()
	if !c.opened {
		c.mu.Unlock()
		return ErrNotOpen
	}
	if _, dup := c.pending[op]; dup {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrOpcodePending, op)
	}
	c.pending[op] = complete
	f := c.f
	runCtx := c.runCtx
	c.mu.Unlock()

	if c.limiter != nil {
		if err := c.limiter.Wait(runCtx); err != nil {
			c.dropPending(op)
			return ErrClosed
		}
	}

	out := make([]byte, 1+b.Len())
	out[0] = hci.PktCommand
	copy(out[1:], b.Bytes())
	if err := writeFull(f, out); err != nil {
		c.dropPending(op)
		return fmt.Errorf("write command: %w", err)
	}

	// 命令已进内核，缓冲由传输层消费
	b.Release()
	return nil
}

func (c *Chardev) dropPending(op hci.Opcode) {
	c.mu.Lock()
	delete(c.pending, op)
	c.mu.Unlock()
}

// readLoop 读取 H4 字节流，解出事件并派发完成回调
func (c *Chardev) readLoop(f *os.File) {
	defer c.wg.Done()

	dec := hci.NewStreamDecoder(c.cfg.MaxFrameLen)
	buf := make([]byte, c.cfg.ReadBufSize)
	for {
		n, err := f.Read(buf)
		if err != nil {
			c.mu.Lock()
			closing := !c.opened
			c.mu.Unlock()
			if !closing {
				c.log.Error("device read failed", zap.Error(err))
			}
			return
		}
		events, _ := dec.Feed(buf[:n])
		for _, pkt := range events {
			c.handleEvent(pkt)
		}
	}
}

// handleEvent 只对 Command Complete 做操作码关联；其余事件计数后丢弃
func (c *Chardev) handleEvent(pkt []byte) {
	ce, err := hci.ParseCommandComplete(pkt)
	if err != nil {
		c.nonComplete.Add(1)
		if len(pkt) > 0 {
			c.log.Debug("event ignored",
				zap.Uint8("evt_code", pkt[0]),
				zap.Int("len", len(pkt)))
		}
		return
	}

	c.mu.Lock()
	cb := c.pending[ce.Opcode]
	delete(c.pending, ce.Opcode)
	c.mu.Unlock()

	if cb == nil {
		c.unmatched.Add(1)
		c.log.Warn("completion without pending command",
			zap.String("opcode", ce.Opcode.String()),
			zap.Uint8("status", ce.Status))
		return
	}

	evt := c.pool.Alloc(len(pkt))
	if evt == nil {
		// 无缓冲可用，事件只能丢弃，对应链路将停摆并由追踪器暴露
		c.log.Error("event buffer alloc failed",
			zap.String("opcode", ce.Opcode.String()))
		return
	}
	copy(evt.Bytes(), pkt)
	cb(evt)
}

// Stats 传输侧计数快照
type Stats struct {
	Unmatched   int64 `json:"unmatched"`
	NonComplete int64 `json:"non_complete"`
	Pending     int   `json:"pending"`
}

func (c *Chardev) Stats() Stats {
	c.mu.Lock()
	pending := len(c.pending)
	c.mu.Unlock()
	return Stats{
		Unmatched:   c.unmatched.Load(),
		NonComplete: c.nonComplete.Load(),
		Pending:     pending,
	}
}

func writeFull(f *os.File, p []byte) error {
	for len(p) > 0 {
		n, err := f.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}
