// Package gateway fans the steward event stream out to WebSocket viewers.
package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// sendBuffer is the per-viewer outbound queue. A viewer this far behind
// the stream is dropped rather than allowed to stall the hub.
const sendBuffer = 256

// Viewer represents a single WebSocket viewer connection.
type Viewer struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte

	mu sync.Mutex
}

// WriteMessage writes a frame to the viewer with proper locking.
func (v *Viewer) WriteMessage(messageType int, data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (v *Viewer) SetWriteDeadline(t time.Time) error {
	return v.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (v *Viewer) SetReadDeadline(t time.Time) error {
	return v.Conn.SetReadDeadline(t)
}

// Close closes the underlying connection.
func (v *Viewer) Close() error {
	return v.Conn.Close()
}

// Notify observes viewer arrivals and departures together with the
// resulting viewer count. Called from the hub loop; must not block.
type Notify func(viewerID string, connected bool, viewers int)

// Hub manages all viewer connections.
type Hub struct {
	logger *zap.Logger
	notify Notify

	viewers map[string]*Viewer

	register   chan *Viewer
	unregister chan *Viewer
	broadcast  chan []byte

	mu sync.RWMutex
}

// NewHub creates a new Hub. notify may be nil.
func NewHub(logger *zap.Logger, notify Notify) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:     logger,
		notify:     notify,
		viewers:    make(map[string]*Viewer),
		register:   make(chan *Viewer),
		unregister: make(chan *Viewer),
		broadcast:  make(chan []byte, 256),
	}
}

// Run starts the hub's main loop and blocks until ctx is done, at which
// point every viewer's send channel is closed.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case v := <-h.register:
			h.mu.Lock()
			h.viewers[v.ID] = v
			count := len(h.viewers)
			h.mu.Unlock()
			h.logger.Info("viewer registered",
				zap.String("viewer_id", v.ID),
				zap.Int("viewers", count),
			)
			if h.notify != nil {
				h.notify(v.ID, true, count)
			}

		case v := <-h.unregister:
			h.mu.Lock()
			_, known := h.viewers[v.ID]
			if known {
				delete(h.viewers, v.ID)
				close(v.Send)
			}
			count := len(h.viewers)
			h.mu.Unlock()
			if known {
				h.logger.Info("viewer unregistered",
					zap.String("viewer_id", v.ID),
					zap.Int("viewers", count),
				)
				if h.notify != nil {
					h.notify(v.ID, false, count)
				}
			}

		case data := <-h.broadcast:
			h.mu.RLock()
			var slow []*Viewer
			for _, v := range h.viewers {
				select {
				case v.Send <- data:
				default:
					slow = append(slow, v)
				}
			}
			h.mu.RUnlock()
			for _, v := range slow {
				h.logger.Warn("viewer buffer full, dropping",
					zap.String("viewer_id", v.ID),
				)
				go h.Unregister(v)
			}
		}
	}
}

// NewViewer creates a viewer around an upgraded connection. The caller
// must Register it.
func (h *Hub) NewViewer(ws *websocket.Conn) *Viewer {
	return &Viewer{
		ID:   "view_" + uuid.New().String()[:8],
		Conn: ws,
		Send: make(chan []byte, sendBuffer),
	}
}

// Register registers a viewer with the hub.
func (h *Hub) Register(v *Viewer) {
	h.register <- v
}

// Unregister unregisters a viewer from the hub.
func (h *Hub) Unregister(v *Viewer) {
	h.unregister <- v
}

// Broadcast sends a frame to every connected viewer.
func (h *Hub) Broadcast(data []byte) {
	h.broadcast <- data
}

// BroadcastJSON sends a JSON frame to every connected viewer.
func (h *Hub) BroadcastJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// ViewerCount returns the number of connected viewers.
func (h *Hub) ViewerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, v := range h.viewers {
		delete(h.viewers, id)
		close(v.Send)
	}
}
