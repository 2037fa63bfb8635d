package v1

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/calder-io/steward/internal/config"
	"github.com/calder-io/steward/internal/domain"
	"github.com/calder-io/steward/internal/engine"
	"github.com/calder-io/steward/internal/eventlog"
	"github.com/calder-io/steward/internal/metrics"
	"github.com/calder-io/steward/internal/runner"
	"github.com/calder-io/steward/internal/service"
	"github.com/calder-io/steward/internal/store"
	"github.com/calder-io/steward/internal/stream"
	"github.com/calder-io/steward/internal/tools"
	"github.com/calder-io/steward/internal/watchdog"
	"github.com/calder-io/steward/policy"
)

// newTestHandler wires a handler over a real service: in-memory store,
// default policy, a two-connection stream server and a two-slot engine
// with a shell probe tool.
func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	logger := zap.NewNop()

	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	policyEngine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	m := metrics.New()
	srv := stream.NewServer(eventlog.New(100), 2, time.Minute, m, logger)
	t.Cleanup(srv.CloseAll)

	eng := engine.New(runner.NewSupervisor(logger), srv, m, logger, 2)
	t.Cleanup(eng.CancelAll)

	wd := watchdog.New(m, logger)
	t.Cleanup(wd.Dispose)

	reg := tools.NewRegistry()
	reg.MustRegister(domain.ToolManifest{
		Name:           "probe.echo",
		Runtime:        "sh",
		Entrypoint:     "probe.sh",
		TimeoutSeconds: 10,
	})

	cfg := &config.Config{
		MaxConcurrentRuns:     2,
		MaxStreamConnections:  2,
		EventLogCapacity:      100,
		DefaultTimeoutSeconds: 10,
		DefaultMaxOutputBytes: 1 << 20,
	}

	svc := service.New(db, eng, srv, wd, policyEngine, reg, cfg, logger)
	return NewHandler(svc)
}

// jsonRequest builds an echo context for a JSON request.
func jsonRequest(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHealth(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	c, rec := jsonRequest(e, http.MethodGet, "/health", "")
	if err := h.Health(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "healthy") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestStuckRouteWinsOverTaskParam(t *testing.T) {
	// /v1/tasks/stuck must route to the stuck list, not GetTask with
	// task_id "stuck".
	e := echo.New()
	h := newTestHandler(t)
	h.RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodGet, "/v1/tasks/stuck", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "stuck") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}
