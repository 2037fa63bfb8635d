// Package runner spawns and supervises external tool processes. Each run
// owns exactly one child process with an optional deadline, a filtered
// environment and bounded output capture.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ErrTimeout marks a run that exceeded its deadline.
var ErrTimeout = errors.New("process deadline exceeded")

// DefaultMaxOutputBytes caps each output stream when the SpawnSpec
// leaves the limit unset.
const DefaultMaxOutputBytes = 1 << 20

// killGrace is how long a child gets between SIGTERM and SIGKILL.
const killGrace = 3 * time.Second

// SpawnSpec describes one child process invocation.
type SpawnSpec struct {
	Runtime        string
	Entrypoint     string
	Args           map[string]string
	Command        []string
	WorkingDir     string
	EnvAllowlist   []string
	Timeout        time.Duration
	MaxOutputBytes int
}

// Result is the final state of an exited process.
type Result struct {
	ExitCode        int
	Stdout          string
	Stderr          string
	StdoutTruncated bool
	StderrTruncated bool
	TimedOut        bool
	// Err is nil for a clean zero exit. It wraps ErrTimeout when the
	// deadline fired, and carries the exit code otherwise.
	Err error
}

// Supervisor spawns processes. It holds no per-run state; every run lives
// in its own Process handle.
type Supervisor struct {
	logger *zap.Logger
}

// NewSupervisor creates a supervisor.
func NewSupervisor(logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{logger: logger}
}

// Process is the handle for one spawned child. The handle owns the child's
// context, deadline timer and output buffers; all are released once the
// child exits.
type Process struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdout *cappedBuffer
	stderr *cappedBuffer

	timeout    time.Duration
	timeoutCtx context.Context

	done chan struct{}

	mu     sync.Mutex
	result Result
}

// Spawn starts the child process described by spec. Only environment
// variables named in the allowlist are forwarded; the rest of the parent
// environment is withheld. The returned handle is live: the caller must
// Wait (or observe Done) to collect the result.
func (s *Supervisor) Spawn(ctx context.Context, spec SpawnSpec) (*Process, error) {
	if spec.Runtime == "" {
		return nil, errors.New("spawn: runtime is required")
	}
	argv := buildArgv(spec)
	if len(argv) == 0 {
		return nil, errors.New("spawn: no entrypoint or command")
	}

	maxOut := spec.MaxOutputBytes
	if maxOut <= 0 {
		maxOut = DefaultMaxOutputBytes
	}

	timeoutCtx := ctx
	var timeoutCancel context.CancelFunc = func() {}
	if spec.Timeout > 0 {
		timeoutCtx, timeoutCancel = context.WithTimeout(ctx, spec.Timeout)
	}
	procCtx, procCancel := context.WithCancel(timeoutCtx)

	cmd := exec.CommandContext(procCtx, spec.Runtime, argv...)
	cmd.Dir = spec.WorkingDir
	cmd.Env = filterEnv(spec.EnvAllowlist)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = killGrace

	p := &Process{
		cmd:        cmd,
		cancel:     procCancel,
		stdout:     newCappedBuffer(maxOut),
		stderr:     newCappedBuffer(maxOut),
		timeout:    spec.Timeout,
		timeoutCtx: timeoutCtx,
		done:       make(chan struct{}),
	}
	cmd.Stdout = p.stdout
	cmd.Stderr = p.stderr

	if err := cmd.Start(); err != nil {
		procCancel()
		timeoutCancel()
		return nil, fmt.Errorf("spawn %s: %w", spec.Runtime, err)
	}

	s.logger.Debug("process spawned",
		zap.String("runtime", spec.Runtime),
		zap.Int("pid", cmd.Process.Pid),
	)

	go func() {
		defer timeoutCancel()
		defer procCancel()
		waitErr := cmd.Wait()
		p.finish(waitErr)
	}()

	return p, nil
}

func (p *Process) finish(waitErr error) {
	p.mu.Lock()
	res := Result{
		ExitCode:        p.cmd.ProcessState.ExitCode(),
		Stdout:          p.stdout.String(),
		Stderr:          p.stderr.String(),
		StdoutTruncated: p.stdout.Truncated(),
		StderrTruncated: p.stderr.Truncated(),
	}
	if errors.Is(p.timeoutCtx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		res.Err = fmt.Errorf("%w (limit %s)", ErrTimeout, p.timeout)
	} else if waitErr != nil {
		if res.ExitCode > 0 {
			res.Err = fmt.Errorf("exited with code %d", res.ExitCode)
		} else {
			res.Err = waitErr
		}
	}
	p.result = res
	p.mu.Unlock()
	close(p.done)
}

// Terminate sends the termination signal to the child. It is idempotent
// and a no-op once the process has exited.
func (p *Process) Terminate() {
	select {
	case <-p.done:
		return
	default:
	}
	p.cancel()
}

// Wait blocks until the child has exited and returns its result.
func (p *Process) Wait() Result {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}

// Done is closed once the child has exited and its result is available.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// buildArgv assembles the argv passed to the runtime. A raw Command wins;
// otherwise the entrypoint is followed by --key value flags in sorted key
// order so invocations are deterministic.
func buildArgv(spec SpawnSpec) []string {
	if len(spec.Command) > 0 {
		return spec.Command
	}
	if spec.Entrypoint == "" {
		return nil
	}
	argv := []string{spec.Entrypoint}
	keys := make([]string, 0, len(spec.Args))
	for k := range spec.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		argv = append(argv, "--"+k, spec.Args[k])
	}
	return argv
}

// filterEnv builds the child environment from the allowlist. Unset parent
// variables are skipped rather than forwarded empty.
func filterEnv(allowlist []string) []string {
	env := make([]string, 0, len(allowlist))
	for _, name := range allowlist {
		if v, ok := os.LookupEnv(name); ok {
			env = append(env, name+"="+v)
		}
	}
	return env
}
