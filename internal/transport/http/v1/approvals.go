package v1

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/calder-io/steward/internal/domain"
)

// SubmitMessage runs an agent submission through the approval pipeline.
// POST /v1/messages
func (h *Handler) SubmitMessage(c echo.Context) error {
	var req domain.SubmitMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	resp, err := h.service.SubmitMessage(c.Request().Context(), req)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, resp)
}

// ListApprovals lists approvals, optionally filtered by ?status=.
// GET /v1/approvals
func (h *Handler) ListApprovals(c echo.Context) error {
	status := domain.ApprovalStatus(strings.ToUpper(c.QueryParam("status")))

	approvals, err := h.service.ListApprovals(c.Request().Context(), status)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"approvals": approvals,
	})
}

// DecideApproval applies an operator decision to a pending approval.
// POST /v1/approvals/:approval_id/decision
func (h *Handler) DecideApproval(c echo.Context) error {
	approvalID := c.Param("approval_id")

	var req domain.ApprovalDecisionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	approval, err := h.service.DecideApproval(c.Request().Context(), approvalID, req)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, approval)
}
