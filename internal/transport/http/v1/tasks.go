package v1

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/calder-io/steward/internal/domain"
)

// CreateTask checkpoints a new task.
// POST /v1/tasks
func (h *Handler) CreateTask(c echo.Context) error {
	var req domain.CreateTaskRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	task, err := h.service.CreateTask(c.Request().Context(), req)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusCreated, task)
}

// ListTasks lists every checkpointed task.
// GET /v1/tasks
func (h *Handler) ListTasks(c echo.Context) error {
	tasks, err := h.service.ListTasks(c.Request().Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"tasks": tasks,
	})
}

// GetTask retrieves one task with its checkpointed subtask results.
// GET /v1/tasks/:task_id
func (h *Handler) GetTask(c echo.Context) error {
	taskID := c.Param("task_id")
	ctx := c.Request().Context()

	task, err := h.service.GetTask(ctx, taskID)
	if err != nil {
		return errorJSON(c, err)
	}
	results, err := h.service.ListSubtaskResults(ctx, taskID)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"task":            task,
		"subtask_results": results,
	})
}

// SaveDecomposition records a task's plan. The body is the decomposition
// document itself.
// POST /v1/tasks/:task_id/decomposition
func (h *Handler) SaveDecomposition(c echo.Context) error {
	taskID := c.Param("task_id")

	body, err := io.ReadAll(c.Request().Body)
	if err != nil || len(body) == 0 || !json.Valid(body) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "body must be a JSON decomposition"})
	}

	task, err := h.service.SaveDecomposition(c.Request().Context(), taskID, body)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, task)
}

// SaveSubtaskResult checkpoints one subtask outcome.
// POST /v1/tasks/:task_id/subtasks/:subtask_id/result
func (h *Handler) SaveSubtaskResult(c echo.Context) error {
	taskID := c.Param("task_id")
	subtaskID := c.Param("subtask_id")

	var req domain.SubtaskResultRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if err := h.service.SaveSubtaskResult(c.Request().Context(), taskID, subtaskID, req); err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{
		"task_id":    taskID,
		"subtask_id": subtaskID,
		"status":     "recorded",
	})
}

// SaveFinal records a task's final result and moves it off the board.
// POST /v1/tasks/:task_id/final
func (h *Handler) SaveFinal(c echo.Context) error {
	taskID := c.Param("task_id")

	var req domain.FinalResultRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	task, err := h.service.SaveFinal(c.Request().Context(), taskID, req)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, task)
}

// TaskHealth reports the watchdog's live view of one task.
// GET /v1/tasks/:task_id/health
func (h *Handler) TaskHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.TaskHealth(c.Param("task_id")))
}

// StuckTasks lists monitored tasks past their deadline.
// GET /v1/tasks/stuck
func (h *Handler) StuckTasks(c echo.Context) error {
	stuck := h.service.StuckTasks()
	if stuck == nil {
		stuck = []string{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"stuck": stuck,
	})
}
