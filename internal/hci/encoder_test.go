package hci

import (
	"bytes"
	"testing"
)

func TestBuildCommand_Layout(t *testing.T) {
	pool := NewPool(0, 0)
	b, err := BuildCommand(pool, 0xFC28, []byte{0x03, 0x00, 0x03})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer b.Release()

	want := []byte{0x28, 0xFC, 0x03, 0x03, 0x00, 0x03}
	if !bytes.Equal(b.Bytes(), want) {
		t.Fatalf("layout mismatch:\n got % X\nwant % X", b.Bytes(), want)
	}
}

func TestBuildCommand_EmptyParams(t *testing.T) {
	pool := NewPool(0, 0)
	b, err := BuildCommand(pool, 0xFC00, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer b.Release()

	if b.Len() != CmdPreambleSize {
		t.Fatalf("unexpected len: %d", b.Len())
	}
	if b.Bytes()[2] != 0x00 {
		t.Fatalf("param length byte must be zero")
	}
}

func TestBuildCommand_ParamsTooLong(t *testing.T) {
	pool := NewPool(0, 0)
	if _, err := BuildCommand(pool, 0xFC22, make([]byte, 256)); err != ErrParamsTooLong {
		t.Fatalf("expected ErrParamsTooLong, got %v", err)
	}
}

func TestBuildCommand_AllocFailure(t *testing.T) {
	pool := NewPool(64, 1)
	held := pool.Alloc(8) // 占满在途上限
	if held == nil {
		t.Fatalf("setup alloc failed")
	}
	defer held.Release()

	if _, err := BuildCommand(pool, 0xFC22, []byte{0x01}); err != ErrNoBuffer {
		t.Fatalf("expected ErrNoBuffer, got %v", err)
	}
}
