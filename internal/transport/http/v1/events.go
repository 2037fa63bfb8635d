package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/calder-io/steward/internal/domain"
)

// PublishEvent puts an externally produced event on the stream.
// POST /v1/events
func (h *Handler) PublishEvent(c echo.Context) error {
	var req domain.PublishEventRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	evt, err := h.service.PublishEvent(req)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusAccepted, evt)
}

// StreamEvents streams domain events via SSE.
// GET /v1/events/stream
//
// A reconnecting client passes its last seen event id through the
// Last-Event-ID header (or ?last_event_id= for clients that cannot set
// headers) and receives the retained backlog before any live event.
func (h *Handler) StreamEvents(c echo.Context) error {
	lastSeenID := int64(0)
	if v := c.Request().Header.Get("Last-Event-ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			lastSeenID = id
		}
	}
	if v := c.QueryParam("last_event_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			lastSeenID = id
		}
	}

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
	}

	conn, err := h.service.Subscribe(lastSeenID)
	if err != nil {
		return errorJSON(c, err)
	}
	defer conn.Close()

	// Set SSE headers
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-conn.Closed():
			return nil
		case frame := <-conn.Frames():
			if _, err := c.Response().Write(frame); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}
