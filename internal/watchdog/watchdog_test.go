package watchdog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/calder-io/steward/internal/metrics"
)

func newTestWatchdog(t *testing.T) *Watchdog {
	t.Helper()
	w := New(metrics.New(), zap.NewNop())
	t.Cleanup(w.Dispose)
	return w
}

func TestCheckHealthTransitions(t *testing.T) {
	w := newTestWatchdog(t)
	w.StartMonitoring("task-1", 80*time.Millisecond)

	h := w.CheckHealth("task-1")
	require.True(t, h.Monitored)
	require.False(t, h.Stuck)

	require.Eventually(t, func() bool {
		return w.CheckHealth("task-1").Stuck
	}, 2*time.Second, 10*time.Millisecond)

	h = w.CheckHealth("task-1")
	require.True(t, h.Monitored)
	require.GreaterOrEqual(t, h.ElapsedMs, int64(80))
}

func TestUnknownTaskNotMonitored(t *testing.T) {
	w := newTestWatchdog(t)
	h := w.CheckHealth("ghost")
	require.False(t, h.Monitored)
	require.False(t, h.Stuck)
	require.Zero(t, h.ElapsedMs)
}

func TestRearmRestartsClock(t *testing.T) {
	w := newTestWatchdog(t)
	w.StartMonitoring("task-1", 60*time.Millisecond)

	require.Eventually(t, func() bool {
		return w.CheckHealth("task-1").Stuck
	}, 2*time.Second, 10*time.Millisecond)

	w.StartMonitoring("task-1", 60*time.Millisecond)
	require.False(t, w.CheckHealth("task-1").Stuck, "re-arm should restart the clock")

	require.Eventually(t, func() bool {
		return w.CheckHealth("task-1").Stuck
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStopMonitoring(t *testing.T) {
	w := newTestWatchdog(t)
	w.StartMonitoring("task-1", time.Second)
	require.True(t, w.CheckHealth("task-1").Monitored)

	w.StopMonitoring("task-1")
	require.False(t, w.CheckHealth("task-1").Monitored)

	w.StopMonitoring("task-1")
	w.StopMonitoring("never-armed")
}

func TestStuckTasksMatchesCheckHealth(t *testing.T) {
	w := newTestWatchdog(t)
	w.StartMonitoring("quick", 40*time.Millisecond)
	w.StartMonitoring("slow", 10*time.Second)

	require.Eventually(t, func() bool {
		stuck := w.StuckTasks()
		return len(stuck) == 1 && stuck[0] == "quick"
	}, 2*time.Second, 10*time.Millisecond)

	require.True(t, w.CheckHealth("quick").Stuck)
	require.False(t, w.CheckHealth("slow").Stuck)
}

func TestDispose(t *testing.T) {
	w := New(metrics.New(), zap.NewNop())
	w.StartMonitoring("a", time.Second)
	w.StartMonitoring("b", time.Second)

	w.Dispose()

	require.False(t, w.CheckHealth("a").Monitored)
	require.False(t, w.CheckHealth("b").Monitored)
	require.Empty(t, w.StuckTasks())

	w.StartMonitoring("c", time.Second)
	require.False(t, w.CheckHealth("c").Monitored, "disposed watchdog should not accept new tasks")
}
