// Package opsapi provides the internal operations endpoints: liveness,
// metrics and run debugging. These are never exposed publicly.
package opsapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/calder-io/steward/internal/metrics"
	"github.com/calder-io/steward/internal/service"
)

// Handler handles internal HTTP requests.
type Handler struct {
	service *service.Service
	metrics *metrics.Metrics
}

// NewHandler creates a new internal handler.
func NewHandler(service *service.Service, m *metrics.Metrics) *Handler {
	return &Handler{
		service: service,
		metrics: m,
	}
}

// RegisterRoutes registers internal routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Healthz)
	e.GET("/metrics", echo.WrapHandler(h.metrics.Handler()))
	e.GET("/debug/runs", h.DebugRuns)
}

// Healthz returns liveness status.
func (h *Handler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// DebugRuns dumps the active run set.
func (h *Handler) DebugRuns(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"runs": h.service.ActiveRuns(),
	})
}
