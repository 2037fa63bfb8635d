package service

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/calder-io/steward/internal/domain"
)

// watchdogGrace pads the run timeout before a run counts as stuck, so
// the runner's own deadline fires first.
const watchdogGrace = 30 * time.Second

// StartToolRun resolves the tool manifest, fills defaults, and admits
// the run to the engine. Callers see engine.ErrConcurrencyLimit when the
// engine is at capacity.
func (s *Service) StartToolRun(ctx context.Context, req domain.StartRunRequest) (domain.ToolRun, error) {
	manifest, err := s.registry.Resolve(req.ToolName)
	if err != nil {
		return domain.ToolRun{}, fmt.Errorf("failed to resolve tool: %w", err)
	}

	runReq := domain.ToolRunRequest{
		ToolName:       manifest.Name,
		ToolLabel:      manifest.Label,
		ToolDir:        filepath.Join(s.config.ToolsDir, manifest.Dir),
		Entrypoint:     manifest.Entrypoint,
		Runtime:        manifest.Runtime,
		Args:           req.Args,
		Command:        req.Command,
		EnvAllowlist:   manifest.EnvAllowlist,
		TimeoutSeconds: req.TimeoutSeconds,
		MaxOutputBytes: manifest.MaxOutputBytes,
	}
	if runReq.TimeoutSeconds <= 0 {
		runReq.TimeoutSeconds = manifest.TimeoutSeconds
	}
	if runReq.TimeoutSeconds <= 0 {
		runReq.TimeoutSeconds = s.config.DefaultTimeoutSeconds
	}
	if runReq.MaxOutputBytes <= 0 {
		runReq.MaxOutputBytes = s.config.DefaultMaxOutputBytes
	}

	runID, err := s.engine.Start(runReq)
	if err != nil {
		return domain.ToolRun{}, err
	}

	timeout := time.Duration(runReq.TimeoutSeconds * float64(time.Second))
	s.watchdog.StartMonitoring(runID, timeout+watchdogGrace)
	go func() {
		s.engine.WaitForRun(context.Background(), runID)
		s.watchdog.StopMonitoring(runID)
	}()

	return s.engine.GetRun(runID)
}

// CancelToolRun cancels a running run, blocking until the process has
// exited. It reports false when the run is unknown or already terminal.
func (s *Service) CancelToolRun(runID string) bool {
	return s.engine.Cancel(runID)
}

// GetRun returns a snapshot of one run.
func (s *Service) GetRun(runID string) (domain.ToolRun, error) {
	return s.engine.GetRun(runID)
}

// WaitForRun blocks until the run reaches a terminal status.
func (s *Service) WaitForRun(ctx context.Context, runID string) (domain.ToolRun, error) {
	return s.engine.WaitForRun(ctx, runID)
}

// ActiveRuns returns a detached snapshot of non-terminal runs.
func (s *Service) ActiveRuns() []domain.ToolRun {
	return s.engine.ActiveRuns()
}

// ListTools returns the registered tool manifests.
func (s *Service) ListTools() []domain.ToolManifest {
	return s.registry.List()
}
