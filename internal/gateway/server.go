package gateway

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	defaultPingInterval = 30 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultReadTimeout  = 60 * time.Second

	// Viewers are consumers; anything they send beyond control frames is
	// capped and discarded.
	maxMessageSize = 4096
)

// Server upgrades viewer connections and pumps hub frames to them.
type Server struct {
	hub      *Hub
	logger   *zap.Logger
	upgrader websocket.Upgrader

	pingInterval time.Duration
	writeTimeout time.Duration
	readTimeout  time.Duration
}

// NewServer creates a new WebSocket server over the hub.
func NewServer(h *Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		hub:    h,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// The stream is read-only, so any origin may watch.
				return true
			},
		},
		pingInterval: defaultPingInterval,
		writeTimeout: defaultWriteTimeout,
		readTimeout:  defaultReadTimeout,
	}
}

// HandleWebSocket handles WebSocket upgrade and connection lifecycle.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return err
	}

	viewer := s.hub.NewViewer(ws)
	s.hub.Register(viewer)

	ws.SetReadLimit(maxMessageSize)

	go s.writePump(viewer)
	go s.readPump(viewer)

	return nil
}

// readPump drains the viewer. Viewers never send application data; the
// read loop exists to process pongs and detect disconnects.
func (s *Server) readPump(v *Viewer) {
	defer func() {
		s.hub.Unregister(v)
		v.Close()
	}()

	v.SetReadDeadline(time.Now().Add(s.readTimeout))
	v.Conn.SetPongHandler(func(string) error {
		v.SetReadDeadline(time.Now().Add(s.readTimeout))
		return nil
	})

	for {
		if _, _, err := v.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Debug("viewer read error", zap.Error(err))
			}
			return
		}
	}
}

// writePump pushes hub frames and keep-alive pings to the viewer.
func (s *Server) writePump(v *Viewer) {
	ticker := time.NewTicker(s.pingInterval)
	defer func() {
		ticker.Stop()
		v.Close()
	}()

	for {
		select {
		case data, ok := <-v.Send:
			v.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if !ok {
				// Hub closed the channel
				v.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := v.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			v.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := v.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
