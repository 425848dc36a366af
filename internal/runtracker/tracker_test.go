package runtracker

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/iot-btcfg/internal/mrvl"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker(opts ...Option) (*Tracker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)}
	opts = append(opts, WithNow(clk.now))
	return NewTracker(opts...), clk
}

func TestTracker_FullRunTrail(t *testing.T) {
	tr, clk := newTestTracker()

	runID := "run-1"
	tr.StateChanged(runID, mrvl.PipelineSCO, mrvl.StateIdle, mrvl.StateAwaitPCMSettings)
	tr.CommandSent(runID, mrvl.PipelineSCO, mrvl.OpWritePCMSettings)
	clk.advance(5 * time.Millisecond)
	tr.CommandCompleted(runID, mrvl.PipelineSCO, mrvl.OpWritePCMSettings, 0x00)
	tr.StateChanged(runID, mrvl.PipelineSCO, mrvl.StateAwaitPCMSettings, mrvl.StateAwaitPCMSync)
	tr.CommandSent(runID, mrvl.PipelineSCO, mrvl.OpWritePCMSyncSettings)
	tr.CommandCompleted(runID, mrvl.PipelineSCO, mrvl.OpWritePCMSyncSettings, 0x00)
	tr.StateChanged(runID, mrvl.PipelineSCO, mrvl.StateAwaitPCMSync, mrvl.StateSucceeded)
	tr.Finish(mrvl.Result{
		Pipeline:   mrvl.PipelineSCO,
		RunID:      runID,
		Success:    true,
		FinalState: mrvl.StateSucceeded,
	})

	require.Empty(t, tr.Active())

	recent := tr.Recent(10)
	require.Len(t, recent, 1)
	run := recent[0]
	require.Equal(t, runID, run.RunID)
	require.Equal(t, "sco", run.Pipeline)
	require.Equal(t, "succeeded", run.State)
	require.NotNil(t, run.Success)
	require.True(t, *run.Success)
	require.NotNil(t, run.FinishedAt)
	require.Len(t, run.Commands, 2)
	require.Equal(t, "write_pcm_settings", run.Commands[0].Name)
	require.NotNil(t, run.Commands[0].CompletedAt)
	require.NotNil(t, run.Commands[0].Status)
	require.Len(t, run.Transitions, 3)
}

func TestTracker_LazyUpsertOnAnyEvent(t *testing.T) {
	tr, _ := newTestTracker()
	tr.CommandSent("run-x", mrvl.PipelineFirmware, mrvl.OpWriteBDAddress)

	active := tr.Active()
	require.Len(t, active, 1)
	require.Equal(t, "firmware", active[0].Pipeline)
}

func TestTracker_StallFlag(t *testing.T) {
	tr, clk := newTestTracker(WithStallAfter(time.Second))

	tr.StateChanged("run-s", mrvl.PipelineSCO, mrvl.StateIdle, mrvl.StateAwaitPCMSettings)
	tr.CommandSent("run-s", mrvl.PipelineSCO, mrvl.OpWritePCMSettings)

	require.False(t, tr.Active()[0].Stalled)

	clk.advance(2 * time.Second)
	require.True(t, tr.Active()[0].Stalled)
}

func TestTracker_UnexpectedCompletionAnnotated(t *testing.T) {
	tr, _ := newTestTracker()
	runID := "run-u"
	tr.CommandSent(runID, mrvl.PipelineSCO, mrvl.OpWritePCMSyncSettings)
	tr.CommandCompleted(runID, mrvl.PipelineSCO, 0xFC99, 0x00)

	run, ok := tr.Get(runID)
	require.True(t, ok)
	require.Len(t, run.Commands, 1)
	require.Contains(t, run.Commands[0].Name, "unexpected 0xFC99")
	require.NotNil(t, run.Commands[0].CompletedAt)
}

func TestTracker_RecentCapacity(t *testing.T) {
	tr, _ := newTestTracker(WithCapacity(3))

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("run-%d", i)
		tr.StateChanged(id, mrvl.PipelineFirmware, mrvl.StateIdle, mrvl.StateAwaitBDAddress)
		tr.Finish(mrvl.Result{Pipeline: mrvl.PipelineFirmware, RunID: id, Success: true, FinalState: mrvl.StateSucceeded})
	}

	recent := tr.Recent(0)
	require.Len(t, recent, 3)
	// 新在前
	require.Equal(t, "run-4", recent[0].RunID)
	require.Equal(t, "run-2", recent[2].RunID)
}

func TestTracker_GetSearchesActiveThenRecent(t *testing.T) {
	tr, _ := newTestTracker()

	tr.StateChanged("live", mrvl.PipelineSCO, mrvl.StateIdle, mrvl.StateAwaitPCMSettings)
	tr.Finish(mrvl.Result{Pipeline: mrvl.PipelineFirmware, RunID: "done", Success: false,
		FinalState: mrvl.StateFailed, Err: errors.New("unexpected completion")})

	live, ok := tr.Get("live")
	require.True(t, ok)
	require.Equal(t, "await_pcm_settings", live.State)

	done, ok := tr.Get("done")
	require.True(t, ok)
	require.Equal(t, "failed", done.State)
	require.Contains(t, done.Error, "unexpected completion")

	_, ok = tr.Get("ghost")
	require.False(t, ok)
}

func TestTracker_ObserverRecords(t *testing.T) {
	var ops []string
	obs := ObserverFunc(func(operation, status string) {
		ops = append(ops, operation+":"+status)
	})
	tr, _ := newTestTracker(WithObserver(obs))

	tr.StateChanged("r", mrvl.PipelineFirmware, mrvl.StateIdle, mrvl.StateAwaitBDAddress)
	tr.Finish(mrvl.Result{Pipeline: mrvl.PipelineFirmware, RunID: "r", Success: true, FinalState: mrvl.StateSucceeded})

	require.Contains(t, ops, "run_track:ok")
	require.Contains(t, ops, "run_finish:success")
}
