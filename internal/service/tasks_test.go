package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calder-io/steward/internal/domain"
)

func TestTaskLifecycleEmitsEvents(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()

	task, err := env.svc.CreateTask(ctx, domain.CreateTaskRequest{
		TaskID:  "task_video",
		Request: json.RawMessage(`{"idea":"rubber duck debugging"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ColumnQueued, task.Column)

	plan := json.RawMessage(`{"subtasks":[{"id":"sub_script"},{"id":"sub_render"}]}`)
	task, err = env.svc.SaveDecomposition(ctx, "task_video", plan)
	require.NoError(t, err)
	assert.Equal(t, domain.ColumnExecuting, task.Column)
	assert.True(t, env.svc.TaskHealth("task_video").Monitored)

	require.NoError(t, env.svc.SaveSubtaskResult(ctx, "task_video", "sub_script",
		domain.SubtaskResultRequest{Result: json.RawMessage(`{"script":"quack"}`)}))
	require.NoError(t, env.svc.SaveSubtaskResult(ctx, "task_video", "sub_render",
		domain.SubtaskResultRequest{Error: "renderer crashed"}))

	task, err = env.svc.SaveFinal(ctx, "task_video", domain.FinalResultRequest{
		Result: json.RawMessage(`{"published":false}`),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ColumnDone, task.Column)
	assert.False(t, env.svc.TaskHealth("task_video").Monitored)

	assert.Equal(t, []domain.EventType{
		domain.EventTypeTaskColumnChanged,
		domain.EventTypeTaskColumnChanged,
		domain.EventTypeSubtaskStarted,
		domain.EventTypeSubtaskStarted,
		domain.EventTypeSubtaskCompleted,
		domain.EventTypeSubtaskFailed,
		domain.EventTypeTaskColumnChanged,
	}, env.eventTypes())

	var moved domain.TaskColumnChangedPayload
	require.NoError(t, json.Unmarshal(env.lastEvent(t).Payload, &moved))
	assert.Equal(t, "task_video", moved.TaskID)
	assert.Equal(t, domain.ColumnExecuting, moved.From)
	assert.Equal(t, domain.ColumnDone, moved.To)

	results, err := env.svc.ListSubtaskResults(ctx, "task_video")
	require.NoError(t, err)
	require.Len(t, results, 2)
	errsByID := map[string]string{}
	for _, r := range results {
		errsByID[r.SubtaskID] = r.Error
	}
	assert.Equal(t, map[string]string{"sub_script": "", "sub_render": "renderer crashed"}, errsByID)
}

func TestSaveFinalFailedColumn(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()

	_, err := env.svc.CreateTask(ctx, domain.CreateTaskRequest{TaskID: "task_doomed"})
	require.NoError(t, err)

	task, err := env.svc.SaveFinal(ctx, "task_doomed", domain.FinalResultRequest{
		Result: json.RawMessage(`{"error":"planner gave up"}`),
		Failed: true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ColumnFailed, task.Column)
}

func TestCreateTaskGeneratesID(t *testing.T) {
	env := newTestService(t)

	task, err := env.svc.CreateTask(context.Background(), domain.CreateTaskRequest{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(task.TaskID, "task_"))

	got, err := env.svc.GetTask(context.Background(), task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, task.TaskID, got.TaskID)
}

func TestTaskOperationsOnUnknownTask(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()

	_, err := env.svc.GetTask(ctx, "task_ghost")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = env.svc.SaveDecomposition(ctx, "task_ghost", json.RawMessage(`{}`))
	assert.True(t, errors.Is(err, ErrNotFound))

	err = env.svc.SaveSubtaskResult(ctx, "task_ghost", "sub_a", domain.SubtaskResultRequest{})
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = env.svc.SaveFinal(ctx, "task_ghost", domain.FinalResultRequest{})
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.Empty(t, env.eventTypes(), "failed operations must not emit")
}

func TestDecompositionWithoutSubtaskIDs(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()

	_, err := env.svc.CreateTask(ctx, domain.CreateTaskRequest{TaskID: "task_flat"})
	require.NoError(t, err)

	_, err = env.svc.SaveDecomposition(ctx, "task_flat", json.RawMessage(`{"notes":"single step"}`))
	require.NoError(t, err)

	assert.Equal(t, []domain.EventType{
		domain.EventTypeTaskColumnChanged,
		domain.EventTypeTaskColumnChanged,
	}, env.eventTypes())
}

func TestStuckTasksSurfaceThroughService(t *testing.T) {
	env := newTestService(t)

	assert.Empty(t, env.svc.StuckTasks())
	health := env.svc.TaskHealth("task_nobody")
	assert.False(t, health.Monitored)
	assert.False(t, health.Stuck)
}
