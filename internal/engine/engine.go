// Package engine admission-controls concurrent tool runs, owns their
// bookkeeping and emits their lifecycle events.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/calder-io/steward/internal/domain"
	"github.com/calder-io/steward/internal/metrics"
	"github.com/calder-io/steward/internal/runner"
)

var (
	// ErrConcurrencyLimit rejects a start while the engine is at capacity.
	// The caller must retry later; nothing is queued.
	ErrConcurrencyLimit = errors.New("concurrency limit reached")

	// ErrRunNotFound marks lookups of unknown run ids.
	ErrRunNotFound = errors.New("run not found")
)

// DefaultMaxConcurrent is used when no limit is configured.
const DefaultMaxConcurrent = 4

// maxFinishedRetained bounds how many terminal runs stay inspectable
// before the oldest are forgotten.
const maxFinishedRetained = 256

// Sink receives lifecycle events for distribution and returns the stored
// event with its assigned id.
type Sink interface {
	Emit(evtType domain.EventType, payload any) (domain.Event, error)
}

// Engine runs tools under a concurrency limit.
type Engine struct {
	maxConcurrent int
	sup           *runner.Supervisor
	sink          Sink
	metrics       *metrics.Metrics
	logger        *zap.Logger

	mu       sync.Mutex
	runs     map[string]*runState
	running  int
	finished []string // terminal run ids, oldest first
}

type runState struct {
	run     domain.ToolRun
	proc    *runner.Process
	onEvent func(domain.Event)
	// done closes once the run is terminal, its slot released and its
	// terminal event emitted.
	done      chan struct{}
	cancelled bool
}

// New creates an engine.
func New(sup *runner.Supervisor, sink Sink, m *metrics.Metrics, logger *zap.Logger, maxConcurrent int) *Engine {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		maxConcurrent: maxConcurrent,
		sup:           sup,
		sink:          sink,
		metrics:       m,
		logger:        logger,
		runs:          make(map[string]*runState),
	}
}

// Start admits and launches one tool run, returning its id. It fails with
// ErrConcurrencyLimit when the engine is at capacity, and with the spawn
// error when the process cannot be started (no run is recorded then).
func (e *Engine) Start(req domain.ToolRunRequest) (string, error) {
	e.mu.Lock()
	if e.running >= e.maxConcurrent {
		e.mu.Unlock()
		return "", fmt.Errorf("%w (%d running)", ErrConcurrencyLimit, e.maxConcurrent)
	}

	runID := "run_" + uuid.New().String()[:8]
	st := &runState{
		run: domain.ToolRun{
			RunID:     runID,
			ToolName:  req.ToolName,
			ToolLabel: req.ToolLabel,
			Args:      req.Args,
			Command:   req.Command,
			Status:    domain.RunStatusQueued,
			StartedAt: time.Now().UnixMilli(),
		},
		onEvent: req.OnEvent,
		done:    make(chan struct{}),
	}
	e.runs[runID] = st
	e.running++ // reserve the slot through spawn setup
	e.mu.Unlock()

	proc, err := e.sup.Spawn(context.Background(), runner.SpawnSpec{
		Runtime:        req.Runtime,
		Entrypoint:     req.Entrypoint,
		Args:           req.Args,
		Command:        req.Command,
		WorkingDir:     req.ToolDir,
		EnvAllowlist:   req.EnvAllowlist,
		Timeout:        time.Duration(req.TimeoutSeconds * float64(time.Second)),
		MaxOutputBytes: req.MaxOutputBytes,
	})
	if err != nil {
		e.mu.Lock()
		delete(e.runs, runID)
		e.running--
		e.mu.Unlock()
		return "", fmt.Errorf("start %s: %w", req.ToolName, err)
	}

	e.mu.Lock()
	st.proc = proc
	st.run.Status = domain.RunStatusRunning
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.RunsStarted.Inc()
		e.metrics.RunsActive.Inc()
	}
	e.logger.Info("tool run started",
		zap.String("run_id", runID),
		zap.String("tool", req.ToolName),
	)

	e.emitRunEvent(st, domain.EventTypeToolRunStarted, domain.ToolRunStartedPayload{
		RunID:     runID,
		ToolName:  req.ToolName,
		ToolLabel: req.ToolLabel,
	})

	go e.watch(st)

	return runID, nil
}

// watch collects the process result and performs the terminal transition.
func (e *Engine) watch(st *runState) {
	res := st.proc.Wait()

	e.mu.Lock()
	status := domain.RunStatusCompleted
	switch {
	case st.cancelled:
		status = domain.RunStatusCancelled
	case res.Err != nil:
		status = domain.RunStatusFailed
	}

	now := time.Now().UnixMilli()
	exitCode := res.ExitCode
	st.run.Status = status
	st.run.CompletedAt = &now
	st.run.ExitCode = &exitCode
	st.run.Stdout = res.Stdout
	st.run.Stderr = res.Stderr
	st.run.StdoutTruncated = res.StdoutTruncated
	st.run.StderrTruncated = res.StderrTruncated
	if status == domain.RunStatusFailed {
		st.run.Error = res.Err.Error()
	}
	run := st.run
	e.running--
	e.finished = append(e.finished, run.RunID)
	for len(e.finished) > maxFinishedRetained {
		delete(e.runs, e.finished[0])
		e.finished = e.finished[1:]
	}
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.RunsActive.Dec()
		e.metrics.RunsFinished.WithLabelValues(string(status)).Inc()
		e.metrics.RunDuration.Observe(float64(now-run.StartedAt) / 1000)
	}
	e.logger.Info("tool run finished",
		zap.String("run_id", run.RunID),
		zap.String("status", string(status)),
		zap.Int("exit_code", exitCode),
	)

	e.emitRunEvent(st, finishEventType(status), domain.ToolRunFinishedPayload{
		RunID:      run.RunID,
		ToolName:   run.ToolName,
		ExitCode:   run.ExitCode,
		Error:      run.Error,
		DurationMs: now - run.StartedAt,
		Truncated:  run.StdoutTruncated || run.StderrTruncated,
	})

	close(st.done)
}

func finishEventType(status domain.RunStatus) domain.EventType {
	switch status {
	case domain.RunStatusCancelled:
		return domain.EventTypeToolRunCancelled
	case domain.RunStatusFailed:
		return domain.EventTypeToolRunFailed
	default:
		return domain.EventTypeToolRunCompleted
	}
}

// emitRunEvent puts a lifecycle event on the sink and hands it to the
// run's own callback. A panicking callback is contained so it can never
// disturb other runs.
func (e *Engine) emitRunEvent(st *runState, evtType domain.EventType, payload any) {
	evt, err := e.sink.Emit(evtType, payload)
	if err != nil {
		e.logger.Error("emit run event", zap.String("type", string(evtType)), zap.Error(err))
		return
	}
	if st.onEvent == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("run event callback panicked",
				zap.String("run_id", st.run.RunID),
				zap.Any("panic", r),
			)
		}
	}()
	st.onEvent(evt)
}

// Cancel terminates a running run. It returns false without side effects
// when the run is unknown, not yet running, already terminal or already
// being cancelled; otherwise it waits for the process to actually exit
// before returning true.
func (e *Engine) Cancel(runID string) bool {
	e.mu.Lock()
	st, ok := e.runs[runID]
	if !ok || st.cancelled || st.run.Status != domain.RunStatusRunning {
		e.mu.Unlock()
		return false
	}
	st.cancelled = true
	proc := st.proc
	e.mu.Unlock()

	proc.Terminate()
	<-st.done
	return true
}

// CancelAll cancels every running run and waits for each to exit. Used for
// orderly shutdown.
func (e *Engine) CancelAll() {
	e.mu.Lock()
	ids := make([]string, 0, len(e.runs))
	for id, st := range e.runs {
		if st.run.Status == domain.RunStatusRunning && !st.cancelled {
			ids = append(ids, id)
		}
	}
	e.mu.Unlock()

	for _, id := range ids {
		e.Cancel(id)
	}
}

// ActiveRuns returns a snapshot of all currently running runs, most recent
// first. The copies share no mutable state with the engine.
func (e *Engine) ActiveRuns() []domain.ToolRun {
	e.mu.Lock()
	out := make([]domain.ToolRun, 0, e.running)
	for _, st := range e.runs {
		if st.run.Status == domain.RunStatusRunning {
			out = append(out, copyRun(st.run))
		}
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt != out[j].StartedAt {
			return out[i].StartedAt > out[j].StartedAt
		}
		return out[i].RunID < out[j].RunID
	})
	return out
}

// GetRun returns a copy of any known run, terminal or not.
func (e *Engine) GetRun(runID string) (domain.ToolRun, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.runs[runID]
	if !ok {
		return domain.ToolRun{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return copyRun(st.run), nil
}

// WaitForRun blocks until the run reaches a terminal status and returns
// its final state. It fails immediately on an unknown id.
func (e *Engine) WaitForRun(ctx context.Context, runID string) (domain.ToolRun, error) {
	e.mu.Lock()
	st, ok := e.runs[runID]
	e.mu.Unlock()
	if !ok {
		return domain.ToolRun{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	select {
	case <-st.done:
	case <-ctx.Done():
		return domain.ToolRun{}, ctx.Err()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return copyRun(st.run), nil
}

func copyRun(run domain.ToolRun) domain.ToolRun {
	out := run
	if run.Args != nil {
		out.Args = make(map[string]string, len(run.Args))
		for k, v := range run.Args {
			out.Args[k] = v
		}
	}
	if run.Command != nil {
		out.Command = append([]string(nil), run.Command...)
	}
	if run.CompletedAt != nil {
		v := *run.CompletedAt
		out.CompletedAt = &v
	}
	if run.ExitCode != nil {
		v := *run.ExitCode
		out.ExitCode = &v
	}
	return out
}
