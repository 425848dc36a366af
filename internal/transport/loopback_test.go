package transport

import (
	"errors"
	"testing"
	"time"

	"github.com/taoyao-code/iot-btcfg/internal/hci"
)

func TestLoopback_AutoCompletes(t *testing.T) {
	lb := NewLoopback()
	if err := lb.Open(nil); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer lb.Close()

	cmd, err := hci.BuildCommand(lb, 0xFC07, []byte{0x02})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	ch := make(chan hci.CompleteEvent, 1)
	err = lb.Send(0xFC07, cmd, func(evt *hci.Buffer) {
		ce, perr := hci.ParseCommandComplete(evt.Bytes())
		evt.Release()
		if perr != nil {
			t.Errorf("parse: %v", perr)
		}
		ch <- ce
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case ce := <-ch:
		if ce.Opcode != 0xFC07 || ce.Status != 0x00 {
			t.Fatalf("unexpected completion: %+v", ce)
		}
	case <-time.After(time.Second):
		t.Fatalf("no completion delivered")
	}

	if got := len(lb.Sent()); got != 1 {
		t.Fatalf("sent records = %d", got)
	}
	if lb.Pool().InUse() != 0 {
		t.Fatalf("buffer leak: in-use = %d", lb.Pool().InUse())
	}
}

func TestLoopback_SendFailureKeepsOwnership(t *testing.T) {
	lb := NewLoopback()
	_ = lb.Open(nil)
	defer lb.Close()

	wantErr := errors.New("eio")
	lb.FailSend(0xFC22, wantErr)

	cmd, err := hci.BuildCommand(lb, 0xFC22, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := lb.Send(0xFC22, cmd, func(*hci.Buffer) {
		t.Errorf("completion must not fire on send failure")
	}); !errors.Is(err, wantErr) {
		t.Fatalf("expected eio, got %v", err)
	}

	// 失败时所有权在调用方，由调用方释放
	cmd.Release()
	if lb.Pool().InUse() != 0 {
		t.Fatalf("buffer leak after caller release")
	}
}

func TestLoopback_ClosedRejects(t *testing.T) {
	lb := NewLoopback()
	cmd, _ := hci.BuildCommand(lb, 0xFC07, nil)
	if err := lb.Send(0xFC07, cmd, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	cmd.Release()
}

func TestLoopback_DropCompletion(t *testing.T) {
	lb := NewLoopback()
	_ = lb.Open(nil)
	defer lb.Close()
	lb.DropCompletion(0xFC1D)

	cmd, _ := hci.BuildCommand(lb, 0xFC1D, []byte{0x01})
	fired := make(chan struct{}, 1)
	if err := lb.Send(0xFC1D, cmd, func(evt *hci.Buffer) {
		evt.Release()
		fired <- struct{}{}
	}); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case <-fired:
		t.Fatalf("completion must be dropped")
	case <-time.After(50 * time.Millisecond):
	}
	if lb.Pool().InUse() != 0 {
		t.Fatalf("command buffer must be consumed even when dropped")
	}
}

func TestLoopback_ConcurrentSendClose(t *testing.T) {
	// Send 通过 opened 检查后，Close 的 Wait 不得先于配套的 Add 执行；
	// 计数必须与检查同临界区，否则此压测在 -race 下报 WaitGroup 误用
	for i := 0; i < 50; i++ {
		lb := NewLoopback()
		if err := lb.Open(nil); err != nil {
			t.Fatalf("open: %v", err)
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				cmd := lb.Alloc(4)
				if cmd == nil {
					return
				}
				err := lb.Send(0xFC07, cmd, func(evt *hci.Buffer) { evt.Release() })
				if err != nil {
					cmd.Release()
					if !errors.Is(err, ErrClosed) {
						t.Errorf("send: %v", err)
					}
					return
				}
			}
		}()

		if err := lb.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
		<-done
		if n := lb.Pool().InUse(); n != 0 {
			t.Fatalf("buffers leaked: %d", n)
		}
	}
}
