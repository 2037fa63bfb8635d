// Package v1 provides the operator-facing HTTP handlers for steward.
package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/calder-io/steward/internal/engine"
	"github.com/calder-io/steward/internal/service"
	"github.com/calder-io/steward/internal/stream"
	"github.com/calder-io/steward/internal/tools"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers external routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Tool run API
	e.POST("/v1/tool-runs", h.StartRun)
	e.GET("/v1/tool-runs", h.ListRuns)
	e.GET("/v1/tool-runs/:run_id", h.GetRun)
	e.POST("/v1/tool-runs/:run_id/cancel", h.CancelRun)
	e.GET("/v1/tools", h.ListTools)

	// Event stream API
	e.GET("/v1/events/stream", h.StreamEvents)
	e.POST("/v1/events", h.PublishEvent)

	// Task board API
	e.POST("/v1/tasks", h.CreateTask)
	e.GET("/v1/tasks", h.ListTasks)
	e.GET("/v1/tasks/stuck", h.StuckTasks)
	e.GET("/v1/tasks/:task_id", h.GetTask)
	e.GET("/v1/tasks/:task_id/health", h.TaskHealth)
	e.POST("/v1/tasks/:task_id/decomposition", h.SaveDecomposition)
	e.POST("/v1/tasks/:task_id/subtasks/:subtask_id/result", h.SaveSubtaskResult)
	e.POST("/v1/tasks/:task_id/final", h.SaveFinal)

	// Approval API
	e.POST("/v1/messages", h.SubmitMessage)
	e.GET("/v1/approvals", h.ListApprovals)
	e.POST("/v1/approvals/:approval_id/decision", h.DecideApproval)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// errorJSON maps service errors onto transport statuses.
func errorJSON(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound),
		errors.Is(err, tools.ErrUnknownTool),
		errors.Is(err, engine.ErrRunNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, engine.ErrConcurrencyLimit):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, stream.ErrConnectionLimit):
		return c.JSON(http.StatusTooManyRequests, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
}
