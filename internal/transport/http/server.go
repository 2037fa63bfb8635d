// Package http provides the HTTP server implementation for steward.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/calder-io/steward/internal/metrics"
	"github.com/calder-io/steward/internal/service"
	"github.com/calder-io/steward/internal/transport/http/opsapi"
	v1 "github.com/calder-io/steward/internal/transport/http/v1"
)

// NewExternalServer creates and configures the external-facing HTTP server.
// This server handles tool runs, tasks, approvals and the event stream.
func NewExternalServer(svc *service.Service) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Register Routes
	v1.NewHandler(svc).RegisterRoutes(e)

	return e
}

// NewInternalServer creates and configures the internal-facing HTTP server.
// This server handles liveness probes, metrics scrapes and run debugging.
func NewInternalServer(svc *service.Service, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// Register Routes
	opsapi.NewHandler(svc, m).RegisterRoutes(e)

	return e
}
