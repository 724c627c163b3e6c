package stream

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStateTransitions(t *testing.T) {
	state := NewState(nil)
	now := time.Unix(1000, 0)
	state.now = func() time.Time { return now }

	snap := state.Snapshot()
	require.False(t, snap.Running)
	require.Zero(t, snap.UptimeSeconds)

	state.MarkStarted(4242, "music/a.mp4", 2)
	now = now.Add(30 * time.Second)

	snap = state.Snapshot()
	require.True(t, snap.Running)
	require.Equal(t, 4242, snap.ProcessID)
	require.Equal(t, "music/a.mp4", snap.CurrentMedia)
	require.Equal(t, 2, snap.DestinationCount)
	require.Equal(t, int64(30), snap.UptimeSeconds)

	state.MarkStopped()
	snap = state.Snapshot()
	require.False(t, snap.Running)
	require.Zero(t, snap.ProcessID)
	// Cumulative uptime survives the stop.
	require.Equal(t, int64(30), snap.UptimeSeconds)

	// A restart keeps accumulating.
	state.MarkStarted(4243, "music/a.mp4", 2)
	now = now.Add(10 * time.Second)
	require.Equal(t, int64(40), state.Snapshot().UptimeSeconds)
}

func TestStateErrorsAndRestarts(t *testing.T) {
	state := NewState(nil)

	state.RecordRestart()
	state.RecordRestart()
	state.RecordError("encoder exited with code 1")

	snap := state.Snapshot()
	require.Equal(t, uint(2), snap.Restarts)
	require.Equal(t, "encoder exited with code 1", snap.LastError)

	state.ClearError()
	require.Empty(t, state.Snapshot().LastError)
}

func TestStateResetInvokesHookOnce(t *testing.T) {
	calls := 0
	state := NewState(func() { calls++ })
	state.MarkStarted(1, "x", 1)
	state.RecordRestart()
	state.RecordError("boom")

	state.Reset()
	require.Equal(t, 1, calls)

	snap := state.Snapshot()
	require.False(t, snap.Running)
	require.Zero(t, snap.Restarts)
	require.Empty(t, snap.LastError)
	require.Empty(t, snap.CurrentMedia)
	require.Zero(t, snap.UptimeSeconds)
}

func TestStateBeginRunKeepsHookUntouched(t *testing.T) {
	calls := 0
	state := NewState(func() { calls++ })
	state.RecordRestart()
	state.RecordError("boom")

	state.beginRun()
	require.Zero(t, calls)

	snap := state.Snapshot()
	require.Zero(t, snap.Restarts)
	require.Empty(t, snap.LastError)
}

func TestStateSnapshotConsistencyUnderConcurrency(t *testing.T) {
	state := NewState(nil)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			state.MarkStarted(i+1, "x", 1)
			state.MarkStopped()
		}
	}()

	for i := 0; i < 1000; i++ {
		snap := state.Snapshot()
		// Invariant: a running snapshot always carries a PID and start time.
		if snap.Running {
			require.NotZero(t, snap.ProcessID)
			require.False(t, snap.StartedAt.IsZero())
		} else {
			require.Zero(t, snap.ProcessID)
		}
	}
	close(stop)
	wg.Wait()
}
