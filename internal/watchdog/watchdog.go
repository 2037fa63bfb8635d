// Package watchdog flags tasks that run past an expected duration. It
// never manages the work itself; orchestration layers arm it with a task
// id and a deadline and query health or stuck-task lists.
package watchdog

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/calder-io/steward/internal/domain"
	"github.com/calder-io/steward/internal/metrics"
)

// maxCheckInterval bounds how coarse the periodic check may get for long
// deadlines. Shorter timeouts are checked at half their length.
const maxCheckInterval = 10 * time.Second

type entry struct {
	taskID    string
	startedAt time.Time
	timeout   time.Duration
	stopCh    chan struct{}
	notified  bool
}

func (e *entry) stuckAt(now time.Time) bool {
	return now.Sub(e.startedAt) >= e.timeout
}

// Watchdog tracks monitored tasks. Health answers are computed against
// the live clock at query time, not cached from the last tick.
type Watchdog struct {
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu       sync.Mutex
	entries  map[string]*entry
	disposed bool
}

func New(m *metrics.Metrics, logger *zap.Logger) *Watchdog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watchdog{
		metrics: m,
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// StartMonitoring arms (or re-arms) monitoring for a task. Re-arming
// replaces the previous entry and restarts its clock.
func (w *Watchdog) StartMonitoring(taskID string, timeout time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.disposed {
		return
	}
	if old, ok := w.entries[taskID]; ok {
		close(old.stopCh)
	}
	e := &entry{
		taskID:    taskID,
		startedAt: time.Now(),
		timeout:   timeout,
		stopCh:    make(chan struct{}),
	}
	w.entries[taskID] = e
	w.setMonitoredGauge()
	go w.watch(e)
}

// StopMonitoring disarms a task. Unknown ids are a no-op.
func (w *Watchdog) StopMonitoring(taskID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entries[taskID]
	if !ok {
		return
	}
	close(e.stopCh)
	delete(w.entries, taskID)
	w.setMonitoredGauge()
}

// CheckHealth reports live health for one task.
func (w *Watchdog) CheckHealth(taskID string) domain.TaskHealth {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entries[taskID]
	if !ok {
		return domain.TaskHealth{}
	}
	elapsed := time.Since(e.startedAt)
	return domain.TaskHealth{
		Monitored: true,
		Stuck:     elapsed >= e.timeout,
		ElapsedMs: elapsed.Milliseconds(),
	}
}

// StuckTasks returns the ids of monitored tasks past their deadline,
// sorted for stable output.
func (w *Watchdog) StuckTasks() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	stuck := make([]string, 0)
	for id, e := range w.entries {
		if e.stuckAt(now) {
			stuck = append(stuck, id)
		}
	}
	sort.Strings(stuck)
	return stuck
}

// Dispose stops every monitor. The watchdog accepts no new tasks after.
func (w *Watchdog) Dispose() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range w.entries {
		close(e.stopCh)
	}
	w.entries = make(map[string]*entry)
	w.disposed = true
	w.setMonitoredGauge()
}

// setMonitoredGauge mirrors the entry count to metrics. Callers hold w.mu.
func (w *Watchdog) setMonitoredGauge() {
	if w.metrics != nil {
		w.metrics.MonitoredTasks.Set(float64(len(w.entries)))
	}
}

func (w *Watchdog) checkInterval(timeout time.Duration) time.Duration {
	interval := timeout / 2
	if interval > maxCheckInterval {
		interval = maxCheckInterval
	}
	if interval <= 0 {
		interval = time.Millisecond
	}
	return interval
}

// watch ticks until the entry is stopped or replaced, logging once when
// the task first goes past its deadline.
func (w *Watchdog) watch(e *entry) {
	ticker := time.NewTicker(w.checkInterval(e.timeout))
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case now := <-ticker.C:
			w.mu.Lock()
			if w.entries[e.taskID] != e {
				w.mu.Unlock()
				return
			}
			if e.stuckAt(now) && !e.notified {
				e.notified = true
				w.logger.Warn("task exceeded its deadline",
					zap.String("task_id", e.taskID),
					zap.Duration("timeout", e.timeout),
					zap.Duration("elapsed", now.Sub(e.startedAt)),
				)
			}
			w.mu.Unlock()
		}
	}
}
