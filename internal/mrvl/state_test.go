package mrvl

import (
	"bytes"
	"testing"

	"github.com/taoyao-code/iot-btcfg/internal/hci"
)

func testParams() *Params {
	p := DefaultParams()
	p.BDAddr = BDAddress{0x20, 0x4E, 0xF6, 0xAA, 0xBB, 0xCC}
	return &p
}

func TestFirstCommand(t *testing.T) {
	p := testParams()

	spec, await := firstCommand(PipelineFirmware, p)
	if spec.Opcode != OpWriteBDAddress || await != StateAwaitBDAddress {
		t.Fatalf("firmware first: %s -> %s", spec.Opcode, await)
	}
	want := []byte{0xFE, 0x06, 0xCC, 0xBB, 0xAA, 0xF6, 0x4E, 0x20}
	if !bytes.Equal(spec.Params, want) {
		t.Fatalf("bd address params:\n got % X\nwant % X", spec.Params, want)
	}

	spec, await = firstCommand(PipelineSCO, p)
	if spec.Opcode != OpWritePCMSettings || await != StateAwaitPCMSettings {
		t.Fatalf("sco first: %s -> %s", spec.Opcode, await)
	}
	if !bytes.Equal(spec.Params, []byte{0x02}) {
		t.Fatalf("sco first params: % X", spec.Params)
	}
}

func TestTransition_FirmwareHappy(t *testing.T) {
	next, act := transition(PipelineFirmware, StateAwaitBDAddress, OpWriteBDAddress, 0x00, testParams())
	if next != StateSucceeded {
		t.Fatalf("next = %s", next)
	}
	if act.Kind != ActionReport || !act.Success {
		t.Fatalf("action = %+v", act)
	}
}

func TestTransition_FirmwareUnexpected(t *testing.T) {
	next, act := transition(PipelineFirmware, StateAwaitBDAddress, OpWritePCMSettings, 0x00, testParams())
	if next != StateFailed {
		t.Fatalf("next = %s", next)
	}
	if act.Kind != ActionReport || act.Success {
		t.Fatalf("action = %+v", act)
	}
}

func TestTransition_SCOHappyChain(t *testing.T) {
	p := testParams()
	steps := []struct {
		state      State
		completed  hci.Opcode
		wantState  State
		wantSend   hci.Opcode
		wantParams []byte
	}{
		{StateAwaitPCMSettings, OpWritePCMSettings, StateAwaitPCMSync, OpWritePCMSyncSettings, []byte{0x03, 0x00, 0x03}},
		{StateAwaitPCMSync, OpWritePCMSyncSettings, StateAwaitPCMLink, OpWritePCMLinkSettings, []byte{0x03, 0x00}},
		{StateAwaitPCMLink, OpWritePCMLinkSettings, StateAwaitSCOPath, OpSetSCODataPath, []byte{0x01}},
	}
	for _, s := range steps {
		next, act := transition(PipelineSCO, s.state, s.completed, 0x00, p)
		if next != s.wantState {
			t.Fatalf("state %s: next = %s, want %s", s.state, next, s.wantState)
		}
		if act.Kind != ActionSend {
			t.Fatalf("state %s: kind = %d", s.state, act.Kind)
		}
		if act.Command.Opcode != s.wantSend {
			t.Fatalf("state %s: send %s, want %s", s.state, act.Command.Opcode, s.wantSend)
		}
		if !bytes.Equal(act.Command.Params, s.wantParams) {
			t.Fatalf("state %s: params % X", s.state, act.Command.Params)
		}
	}

	next, act := transition(PipelineSCO, StateAwaitSCOPath, OpSetSCODataPath, 0x00, p)
	if next != StateSucceeded || act.Kind != ActionReport || !act.Success {
		t.Fatalf("final step: %s %+v", next, act)
	}
}

func TestTransition_SCOUnexpectedAtEachStep(t *testing.T) {
	p := testParams()
	for _, st := range []State{StateAwaitPCMSettings, StateAwaitPCMSync, StateAwaitPCMLink, StateAwaitSCOPath} {
		next, act := transition(PipelineSCO, st, OpWriteBDAddress, 0x00, p)
		if next != StateFailed {
			t.Fatalf("state %s: next = %s, want failed", st, next)
		}
		if act.Kind != ActionReport || act.Success {
			t.Fatalf("state %s: action = %+v", st, act)
		}
	}
}

func TestTransition_StatusDoesNotGate(t *testing.T) {
	// 状态字节非零也照常推进
	next, act := transition(PipelineSCO, StateAwaitPCMSettings, OpWritePCMSettings, 0x0C, testParams())
	if next != StateAwaitPCMSync || act.Kind != ActionSend {
		t.Fatalf("nonzero status must not gate: %s %+v", next, act)
	}
}

func TestTransition_TerminalInert(t *testing.T) {
	p := testParams()
	for _, st := range []State{StateSucceeded, StateFailed} {
		next, act := transition(PipelineSCO, st, OpSetSCODataPath, 0x00, p)
		if next != st || act.Kind != ActionNone {
			t.Fatalf("terminal %s: %s %+v", st, next, act)
		}
	}
}

func TestStateStrings(t *testing.T) {
	if StateAwaitPCMSync.String() != "await_pcm_sync" {
		t.Fatalf("unexpected: %s", StateAwaitPCMSync)
	}
	if !StateSucceeded.Terminal() || !StateFailed.Terminal() {
		t.Fatalf("terminal flags wrong")
	}
	if StateAwaitBDAddress.Terminal() {
		t.Fatalf("await must not be terminal")
	}
	if p, ok := ParsePipeline("sco"); !ok || p != PipelineSCO {
		t.Fatalf("parse pipeline failed")
	}
	if _, ok := ParsePipeline("bogus"); ok {
		t.Fatalf("bogus pipeline must not parse")
	}
}
