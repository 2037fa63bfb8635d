package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/calder-io/steward/internal/domain"
)

// CreateTask checkpoints a new task on the queued column.
func (s *Service) CreateTask(ctx context.Context, req domain.CreateTaskRequest) (*domain.Task, error) {
	id := req.TaskID
	if id == "" {
		id = newID("task")
	}
	now := time.Now()
	task := &domain.Task{
		TaskID:    id,
		Column:    domain.ColumnQueued,
		Request:   req.Request,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.emitEvent(domain.EventTypeTaskColumnChanged, domain.TaskColumnChangedPayload{
		TaskID: id,
		To:     domain.ColumnQueued,
	})
	return task, nil
}

// SaveDecomposition records a task's plan, moves it to executing, emits
// subtask_started per planned subtask and arms the watchdog.
func (s *Service) SaveDecomposition(ctx context.Context, taskID string, decomposition json.RawMessage) (*domain.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	if task == nil {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}

	ok, err := s.store.SaveDecomposition(ctx, taskID, decomposition)
	if err != nil {
		return nil, fmt.Errorf("failed to save decomposition: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}

	from := task.Column
	task.Column = domain.ColumnExecuting
	task.Decomposition = decomposition
	task.UpdatedAt = time.Now()

	s.emitEvent(domain.EventTypeTaskColumnChanged, domain.TaskColumnChangedPayload{
		TaskID: taskID,
		From:   from,
		To:     domain.ColumnExecuting,
	})
	for _, subtaskID := range plannedSubtasks(decomposition) {
		s.emitEvent(domain.EventTypeSubtaskStarted, domain.SubtaskPayload{
			TaskID:    taskID,
			SubtaskID: subtaskID,
		})
	}

	s.watchdog.StartMonitoring(taskID, time.Duration(s.config.DefaultTimeoutSeconds*float64(time.Second)))
	return task, nil
}

// plannedSubtasks extracts subtask ids from a decomposition document,
// tolerating any shape that lacks them.
func plannedSubtasks(decomposition []byte) []string {
	var plan struct {
		Subtasks []struct {
			ID string `json:"id"`
		} `json:"subtasks"`
	}
	if err := json.Unmarshal(decomposition, &plan); err != nil {
		return nil
	}
	ids := make([]string, 0, len(plan.Subtasks))
	for _, sub := range plan.Subtasks {
		if sub.ID != "" {
			ids = append(ids, sub.ID)
		}
	}
	return ids
}

// SaveSubtaskResult checkpoints one subtask outcome and emits
// subtask_completed or subtask_failed.
func (s *Service) SaveSubtaskResult(ctx context.Context, taskID, subtaskID string, req domain.SubtaskResultRequest) error {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to get task: %w", err)
	}
	if task == nil {
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}

	res := &domain.SubtaskResult{
		TaskID:    taskID,
		SubtaskID: subtaskID,
		Result:    req.Result,
		Error:     req.Error,
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveSubtaskResult(ctx, res); err != nil {
		return fmt.Errorf("failed to save subtask result: %w", err)
	}

	evtType := domain.EventTypeSubtaskCompleted
	if req.Error != "" {
		evtType = domain.EventTypeSubtaskFailed
	}
	s.emitEvent(evtType, domain.SubtaskPayload{
		TaskID:    taskID,
		SubtaskID: subtaskID,
		Error:     req.Error,
	})
	return nil
}

// SaveFinal records a task's final result, moves it to its terminal
// column and disarms the watchdog.
func (s *Service) SaveFinal(ctx context.Context, taskID string, req domain.FinalResultRequest) (*domain.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	if task == nil {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}

	column := domain.ColumnDone
	if req.Failed {
		column = domain.ColumnFailed
	}
	ok, err := s.store.SaveFinal(ctx, taskID, req.Result, column)
	if err != nil {
		return nil, fmt.Errorf("failed to save final result: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}

	from := task.Column
	task.Column = column
	task.FinalResult = req.Result
	task.UpdatedAt = time.Now()

	s.emitEvent(domain.EventTypeTaskColumnChanged, domain.TaskColumnChangedPayload{
		TaskID: taskID,
		From:   from,
		To:     column,
	})
	s.watchdog.StopMonitoring(taskID)
	return task, nil
}

// GetTask returns one checkpointed task.
func (s *Service) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	if task == nil {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	return task, nil
}

// ListTasks returns every checkpointed task.
func (s *Service) ListTasks(ctx context.Context) ([]domain.Task, error) {
	return s.store.ListTasks(ctx)
}

// ListSubtaskResults returns a task's checkpointed subtask outcomes.
func (s *Service) ListSubtaskResults(ctx context.Context, taskID string) ([]domain.SubtaskResult, error) {
	return s.store.ListSubtaskResults(ctx, taskID)
}

// TaskHealth reports the watchdog's live view of one task.
func (s *Service) TaskHealth(taskID string) domain.TaskHealth {
	return s.watchdog.CheckHealth(taskID)
}

// StuckTasks lists monitored tasks past their deadline.
func (s *Service) StuckTasks() []string {
	return s.watchdog.StuckTasks()
}
