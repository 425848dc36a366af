package mrvl

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/iot-btcfg/internal/hci"
	"github.com/taoyao-code/iot-btcfg/internal/transport"
)

func newTestManager(t *testing.T) (*Manager, *transport.Loopback) {
	t.Helper()
	lb := transport.NewLoopback()
	require.NoError(t, lb.Open(nil))
	t.Cleanup(func() { _ = lb.Close() })

	params := DefaultParams()
	params.BDAddr = BDAddress{0x20, 0x4E, 0xF6, 0x01, 0x02, 0x03}
	m, err := New(lb, params, Callbacks{}, nil, nil)
	require.NoError(t, err)
	return m, lb
}

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for pipeline result")
		return Result{}
	}
}

func TestManager_FirmwareConfigSuccess(t *testing.T) {
	m, lb := newTestManager(t)

	ch := make(chan Result, 1)
	runID, err := m.StartFirmwareConfig(func(r Result) { ch <- r })
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	res := waitResult(t, ch)
	require.True(t, res.Success)
	require.Equal(t, runID, res.RunID)
	require.Equal(t, PipelineFirmware, res.Pipeline)
	require.Equal(t, StateSucceeded, res.FinalState)
	require.Equal(t, OpWriteBDAddress, res.LastOpcode)

	sent := lb.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, OpWriteBDAddress, sent[0].Opcode)
	// opcodeLE + len + paramID + paramLen + 地址反序
	require.Equal(t,
		[]byte{0x22, 0xFC, 0x08, 0xFE, 0x06, 0x03, 0x02, 0x01, 0xF6, 0x4E, 0x20},
		sent[0].Packet)

	require.EqualValues(t, 0, lb.Pool().InUse())
	require.EqualValues(t, 0, lb.Pool().DoubleFrees())
}

func TestManager_ScoConfigSuccess(t *testing.T) {
	m, lb := newTestManager(t)

	ch := make(chan Result, 1)
	_, err := m.StartScoConfig(func(r Result) { ch <- r })
	require.NoError(t, err)

	res := waitResult(t, ch)
	require.True(t, res.Success)
	require.Equal(t, PipelineSCO, res.Pipeline)
	require.Equal(t, OpSetSCODataPath, res.LastOpcode)

	sent := lb.Sent()
	require.Len(t, sent, 4)
	wantOps := []hci.Opcode{OpWritePCMSettings, OpWritePCMSyncSettings, OpWritePCMLinkSettings, OpSetSCODataPath}
	wantPayloads := [][]byte{{0x02}, {0x03, 0x00, 0x03}, {0x03, 0x00}, {0x01}}
	for i, sc := range sent {
		require.Equal(t, wantOps[i], sc.Opcode, "command %d", i)
		require.Equal(t, wantPayloads[i], sc.Packet[hci.CmdPreambleSize:], "payload %d", i)
	}

	require.EqualValues(t, 0, lb.Pool().InUse())
	require.EqualValues(t, 0, lb.Pool().DoubleFrees())
}

func TestManager_ScoUnexpectedOpcodeFails(t *testing.T) {
	m, lb := newTestManager(t)
	// 第二步完成事件带上无关操作码
	lb.RespondWith(OpWritePCMSyncSettings, 0xFC99)

	ch := make(chan Result, 1)
	_, err := m.StartScoConfig(func(r Result) { ch <- r })
	require.NoError(t, err)

	res := waitResult(t, ch)
	require.False(t, res.Success)
	require.Equal(t, StateFailed, res.FinalState)
	require.EqualValues(t, 0xFC99, res.LastOpcode)
	require.ErrorContains(t, res.Err, "unexpected completion")

	// 链路在失败处停住，不再发后续命令
	require.Len(t, lb.Sent(), 2)
	require.EqualValues(t, 0, lb.Pool().InUse())
}

func TestManager_SendFailureTerminal(t *testing.T) {
	m, lb := newTestManager(t)
	lb.FailSend(OpWriteBDAddress, errors.New("eio"))

	ch := make(chan Result, 1)
	_, err := m.StartFirmwareConfig(func(r Result) { ch <- r })
	require.Error(t, err)

	res := waitResult(t, ch)
	require.False(t, res.Success)
	require.Equal(t, OpWriteBDAddress, res.LastOpcode)

	// 发送失败路径也不得泄漏命令缓冲
	require.EqualValues(t, 0, lb.Pool().InUse())
	require.EqualValues(t, 0, lb.Pool().DoubleFrees())
}

func TestManager_BusyRejected(t *testing.T) {
	m, lb := newTestManager(t)
	lb.DropCompletion(OpWritePCMSettings)

	_, err := m.StartScoConfig(nil)
	require.NoError(t, err)

	_, err = m.StartScoConfig(nil)
	require.ErrorIs(t, err, ErrPipelineBusy)

	// 另一条流水线不受影响
	ch := make(chan Result, 1)
	_, err = m.StartFirmwareConfig(func(r Result) { ch <- r })
	require.NoError(t, err)
	require.True(t, waitResult(t, ch).Success)

	active := m.Active()
	require.Len(t, active, 1)
	require.Equal(t, "sco", active[0].Pipeline)
	require.Equal(t, "await_pcm_settings", active[0].State)
}

func TestManager_RestartAfterTerminal(t *testing.T) {
	m, _ := newTestManager(t)

	ch := make(chan Result, 1)
	first, err := m.StartFirmwareConfig(func(r Result) { ch <- r })
	require.NoError(t, err)
	require.True(t, waitResult(t, ch).Success)

	second, err := m.StartFirmwareConfig(func(r Result) { ch <- r })
	require.NoError(t, err)
	require.True(t, waitResult(t, ch).Success)
	require.NotEqual(t, first, second)
}

func TestManager_NoBDAddress(t *testing.T) {
	lb := transport.NewLoopback()
	require.NoError(t, lb.Open(nil))
	t.Cleanup(func() { _ = lb.Close() })

	m, err := New(lb, DefaultParams(), Callbacks{}, nil, nil)
	require.NoError(t, err)

	_, err = m.StartFirmwareConfig(nil)
	require.ErrorIs(t, err, ErrNoBDAddress)
}

func TestManager_AddressLockedInFlight(t *testing.T) {
	m, lb := newTestManager(t)
	lb.DropCompletion(OpWriteBDAddress)

	_, err := m.StartFirmwareConfig(nil)
	require.NoError(t, err)

	err = m.SetBDAddress(BDAddress{0x11, 0x22, 0x33, 0x44, 0x55, 0x66})
	require.ErrorIs(t, err, ErrAddressLocked)
}

func TestManager_StatusByteRecordedNotGated(t *testing.T) {
	m, lb := newTestManager(t)
	lb.SetStatus(OpWritePCMSettings, 0x0C)
	lb.SetStatus(OpSetSCODataPath, 0x42)

	ch := make(chan Result, 1)
	_, err := m.StartScoConfig(func(r Result) { ch <- r })
	require.NoError(t, err)

	res := waitResult(t, ch)
	require.True(t, res.Success)
	require.EqualValues(t, 0x42, res.Status)
	require.Len(t, lb.Sent(), 4)
}

func TestManager_RegisteredCallbacksFire(t *testing.T) {
	lb := transport.NewLoopback()
	require.NoError(t, lb.Open(nil))
	t.Cleanup(func() { _ = lb.Close() })

	params := DefaultParams()
	params.BDAddr = BDAddress{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}

	fwCh := make(chan Result, 1)
	m, err := New(lb, params, Callbacks{
		OnFirmwareResult: func(r Result) { fwCh <- r },
	}, nil, nil)
	require.NoError(t, err)

	_, err = m.StartFirmwareConfig(nil)
	require.NoError(t, err)
	require.True(t, waitResult(t, fwCh).Success)
}

type recordingObserver struct {
	mu         sync.Mutex
	states     []string
	sent       []hci.Opcode
	completed  []hci.Opcode
	statusSeen []uint8
}

func (r *recordingObserver) StateChanged(_ string, _ Pipeline, from, to State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, from.String()+">"+to.String())
}

func (r *recordingObserver) CommandSent(_ string, _ Pipeline, op hci.Opcode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, op)
}

func (r *recordingObserver) CommandCompleted(_ string, _ Pipeline, op hci.Opcode, status uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, op)
	r.statusSeen = append(r.statusSeen, status)
}

func TestManager_ObserverSeesFullChain(t *testing.T) {
	lb := transport.NewLoopback()
	require.NoError(t, lb.Open(nil))
	t.Cleanup(func() { _ = lb.Close() })

	obs := &recordingObserver{}
	params := DefaultParams()
	params.BDAddr = BDAddress{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	m, err := New(lb, params, Callbacks{}, nil, obs)
	require.NoError(t, err)

	ch := make(chan Result, 1)
	_, err = m.StartScoConfig(func(r Result) { ch <- r })
	require.NoError(t, err)
	require.True(t, waitResult(t, ch).Success)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.Equal(t, []string{
		"idle>await_pcm_settings",
		"await_pcm_settings>await_pcm_sync",
		"await_pcm_sync>await_pcm_link",
		"await_pcm_link>await_sco_path",
		"await_sco_path>succeeded",
	}, obs.states)
	require.Equal(t, []hci.Opcode{OpWritePCMSettings, OpWritePCMSyncSettings, OpWritePCMLinkSettings, OpSetSCODataPath}, obs.sent)
	require.Equal(t, obs.sent, obs.completed)
}
