package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/taoyao-code/iot-btcfg/internal/hci"
)

// pipeChardev 用管道顶替设备节点，覆盖读循环派发（无真实硬件）
func pipeChardev(t *testing.T) (*Chardev, *os.File) {
	t.Helper()
	devRead, hostWrite, err := os.Pipe() // 控制器 -> 主机 方向
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	c := NewChardev(ChardevConfig{Path: "/dev/null"}, nil)
	c.opened = true
	c.f = devRead

	c.wg.Add(1)
	go c.readLoop(devRead)

	t.Cleanup(func() {
		c.mu.Lock()
		c.opened = false
		c.mu.Unlock()
		_ = hostWrite.Close()
		_ = devRead.Close()
		c.wg.Wait()
	})
	return c, hostWrite
}

func TestChardev_SendWritesH4Frame(t *testing.T) {
	hostRead, devWrite, err := os.Pipe() // 主机 -> 控制器 方向
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer hostRead.Close()

	c := NewChardev(ChardevConfig{Path: "/dev/null"}, nil)
	c.opened = true
	c.f = devWrite

	cmd, err := hci.BuildCommand(c, 0xFC28, []byte{0x03, 0x00, 0x03})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := c.Send(0xFC28, cmd, func(*hci.Buffer) {}); err != nil {
		t.Fatalf("send: %v", err)
	}
	_ = devWrite.Close()

	wire, err := io.ReadAll(hostRead)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := []byte{hci.PktCommand, 0x28, 0xFC, 0x03, 0x03, 0x00, 0x03}
	if !bytes.Equal(wire, want) {
		t.Fatalf("wire mismatch:\n got % X\nwant % X", wire, want)
	}
	if c.Pool().InUse() != 0 {
		t.Fatalf("command buffer must be consumed on success")
	}
	if got := c.Stats().Pending; got != 1 {
		t.Fatalf("pending = %d, want 1", got)
	}
}

func TestChardev_DuplicatePendingRejected(t *testing.T) {
	_, devWrite, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer devWrite.Close()

	c := NewChardev(ChardevConfig{}, nil)
	c.opened = true
	c.f = devWrite

	first, _ := hci.BuildCommand(c, 0xFC22, nil)
	if err := c.Send(0xFC22, first, func(*hci.Buffer) {}); err != nil {
		t.Fatalf("first send: %v", err)
	}

	second, _ := hci.BuildCommand(c, 0xFC22, nil)
	err = c.Send(0xFC22, second, func(*hci.Buffer) {})
	if !errors.Is(err, ErrOpcodePending) {
		t.Fatalf("expected ErrOpcodePending, got %v", err)
	}
	second.Release()
}

func TestChardev_SendWhenNotOpen(t *testing.T) {
	c := NewChardev(ChardevConfig{}, nil)
	cmd, _ := hci.BuildCommand(c, 0xFC07, nil)
	if err := c.Send(0xFC07, cmd, nil); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
	cmd.Release()
}

func TestChardev_ReadLoopDispatchesCompletion(t *testing.T) {
	c, hostWrite := pipeChardev(t)

	ch := make(chan hci.CompleteEvent, 1)
	c.mu.Lock()
	c.pending[0xFC07] = func(evt *hci.Buffer) {
		ce, perr := hci.ParseCommandComplete(evt.Bytes())
		evt.Release()
		if perr != nil {
			t.Errorf("parse: %v", perr)
		}
		ch <- ce
	}
	c.mu.Unlock()

	// 分两段写入同一事件，验证半包重组
	evt := []byte{hci.PktEvent, hci.EvtCommandComplete, 0x04, 0x01, 0x07, 0xFC, 0x00}
	if _, err := hostWrite.Write(evt[:3]); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := hostWrite.Write(evt[3:]); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case ce := <-ch:
		if ce.Opcode != 0xFC07 || ce.Status != 0x00 {
			t.Fatalf("unexpected completion: %+v", ce)
		}
	case <-time.After(time.Second):
		t.Fatalf("completion not dispatched")
	}
	if c.Pool().InUse() != 0 {
		t.Fatalf("event buffer leak")
	}
}

func TestChardev_UnmatchedCompletionCounted(t *testing.T) {
	c, hostWrite := pipeChardev(t)

	evt := []byte{hci.PktEvent, hci.EvtCommandComplete, 0x04, 0x01, 0x22, 0xFC, 0x00}
	if _, err := hostWrite.Write(evt); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.After(time.Second)
	for c.Stats().Unmatched == 0 {
		select {
		case <-deadline:
			t.Fatalf("unmatched completion not counted")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestChardev_NonCompleteEventIgnored(t *testing.T) {
	c, hostWrite := pipeChardev(t)

	// Command Status 事件不参与关联
	evt := []byte{hci.PktEvent, hci.EvtCommandStatus, 0x04, 0x00, 0x01, 0x07, 0xFC}
	if _, err := hostWrite.Write(evt); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.After(time.Second)
	for c.Stats().NonComplete == 0 {
		select {
		case <-deadline:
			t.Fatalf("non-complete event not counted")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if c.Stats().Unmatched != 0 {
		t.Fatalf("command status must not count as unmatched")
	}
}

func TestChardev_OpenRetriesExhausted(t *testing.T) {
	c := NewChardev(ChardevConfig{
		Path:           "/nonexistent/mbtchar-test",
		OpenRetries:    3,
		OpenRetryDelay: 5 * time.Millisecond,
	}, nil)

	start := time.Now()
	err := c.Open(context.Background())
	if err == nil {
		t.Fatalf("expected open failure")
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Fatalf("retries too fast: %v", elapsed)
	}
}

func TestChardevConfig_Defaults(t *testing.T) {
	var cfg ChardevConfig
	cfg.withDefaults()
	if cfg.Path != DefaultDevicePath {
		t.Fatalf("path default: %s", cfg.Path)
	}
	if cfg.OpenRetries != 20 || cfg.OpenRetryDelay != 200*time.Millisecond {
		t.Fatalf("retry defaults: %d / %v", cfg.OpenRetries, cfg.OpenRetryDelay)
	}
}

func TestChardev_ConcurrentOpenRejected(t *testing.T) {
	c := NewChardev(ChardevConfig{
		Path:           "/nonexistent/mbtchar-test",
		OpenRetries:    100,
		OpenRetryDelay: 20 * time.Millisecond,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := make(chan error, 1)
	go func() { first <- c.Open(ctx) }()

	// 等首个 Open 进入重试循环
	deadline := time.Now().Add(time.Second)
	for {
		c.mu.Lock()
		inProgress := c.opening
		c.mu.Unlock()
		if inProgress {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("first open never marked in progress")
		}
		time.Sleep(time.Millisecond)
	}

	// 重试期间的第二次 Open 必须被挡住，而不是再起一个读循环
	if err := c.Open(context.Background()); !errors.Is(err, ErrOpenInProgress) {
		t.Fatalf("concurrent open: want ErrOpenInProgress, got %v", err)
	}

	cancel()
	if err := <-first; err == nil {
		t.Fatalf("first open should fail after cancel")
	}

	// 首个 Open 退出后窗口关闭，后续 Open 正常走重试路径
	c2 := context.Background()
	c.cfg.OpenRetries = 1
	if err := c.Open(c2); errors.Is(err, ErrOpenInProgress) {
		t.Fatalf("guard must clear after open returns: %v", err)
	}
}
