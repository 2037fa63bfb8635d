package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/calder-io/steward/internal/domain"
)

// StartRun admits a new tool run.
// POST /v1/tool-runs
func (h *Handler) StartRun(c echo.Context) error {
	var req domain.StartRunRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.ToolName == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "tool_name is required"})
	}

	run, err := h.service.StartToolRun(c.Request().Context(), req)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusAccepted, domain.StartRunResponse{
		RunID:  run.RunID,
		Status: run.Status,
	})
}

// ListRuns lists runs currently counted against the concurrency limit.
// GET /v1/tool-runs
func (h *Handler) ListRuns(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"runs": h.service.ActiveRuns(),
	})
}

// GetRun retrieves one run. With ?wait=true the response is deferred
// until the run reaches a terminal status or the client gives up.
// GET /v1/tool-runs/:run_id
func (h *Handler) GetRun(c echo.Context) error {
	runID := c.Param("run_id")

	var (
		run domain.ToolRun
		err error
	)
	if c.QueryParam("wait") == "true" {
		run, err = h.service.WaitForRun(c.Request().Context(), runID)
	} else {
		run, err = h.service.GetRun(runID)
	}
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, run)
}

// CancelRun cancels a running execution.
// POST /v1/tool-runs/:run_id/cancel
func (h *Handler) CancelRun(c echo.Context) error {
	runID := c.Param("run_id")

	cancelled := h.service.CancelToolRun(runID)
	run, err := h.service.GetRun(runID)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"run_id":    runID,
		"status":    run.Status,
		"cancelled": cancelled,
	})
}

// ListTools lists the registered tool manifests.
// GET /v1/tools
func (h *Handler) ListTools(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"tools": h.service.ListTools(),
	})
}
