// Package stream implements the event distribution server: broadcast with
// replay over a capacity-bounded set of long-lived push connections.
package stream

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/calder-io/steward/internal/domain"
	"github.com/calder-io/steward/internal/eventlog"
	"github.com/calder-io/steward/internal/metrics"
)

var (
	// ErrConnectionLimit refuses a subscriber while the server is at its
	// admission cap. Excess subscribers are never queued.
	ErrConnectionLimit = errors.New("connection limit reached")

	// ErrServerClosed refuses subscribers after CloseAll.
	ErrServerClosed = errors.New("stream server closed")
)

const (
	DefaultMaxConnections    = 5
	DefaultHeartbeatInterval = 30 * time.Second

	// liveBuffer is the per-connection slack for live events beyond the
	// preloaded replay; a consumer that falls this far behind is dropped.
	liveBuffer = 64
)

// ConnState tracks a connection through its lifecycle.
type ConnState string

const (
	ConnStateConnecting ConnState = "connecting"
	ConnStateOpen       ConnState = "open"
	ConnStateClosed     ConnState = "closed"
)

// Conn is one live push channel bound to a subscriber. Frames arrive on
// Frames() already SSE-encoded; Closed() signals the terminal state.
type Conn struct {
	server *Server
	frames chan []byte

	closeOnce sync.Once
	closedCh  chan struct{}

	mu    sync.Mutex
	state ConnState
}

// Frames delivers encoded frames in emit order.
func (c *Conn) Frames() <-chan []byte { return c.frames }

// Closed is closed once the connection has been removed from the server.
func (c *Conn) Closed() <-chan struct{} { return c.closedCh }

// State reports the connection's lifecycle state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close removes the connection from the server. Safe to call repeatedly;
// closed is terminal.
func (c *Conn) Close() {
	c.server.mu.Lock()
	c.server.dropLocked(c)
	c.server.mu.Unlock()
}

func (c *Conn) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// enqueue offers a frame without blocking. False means the consumer is
// too slow and the connection must be dropped.
func (c *Conn) enqueue(frame []byte) bool {
	select {
	case c.frames <- frame:
		return true
	default:
		return false
	}
}

// Server owns the event log, the live connection set and the heartbeat
// timer. One mutex covers log append and fan-out, so every subscriber
// observes the single global emit order and admission always sees an
// un-torn replay snapshot.
type Server struct {
	log       *eventlog.Log
	maxConns  int
	heartbeat time.Duration
	metrics   *metrics.Metrics
	logger    *zap.Logger

	mu     sync.Mutex
	conns  map[*Conn]struct{}
	closed bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewServer creates a distribution server over the given log and starts
// its heartbeat timer.
func NewServer(log *eventlog.Log, maxConns int, heartbeat time.Duration, m *metrics.Metrics, logger *zap.Logger) *Server {
	if maxConns <= 0 {
		maxConns = DefaultMaxConnections
	}
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		log:       log,
		maxConns:  maxConns,
		heartbeat: heartbeat,
		metrics:   m,
		logger:    logger,
		conns:     make(map[*Conn]struct{}),
		stopCh:    make(chan struct{}),
	}
	go s.heartbeatLoop()
	return s
}

// Emit appends the event to the log and delivers it to every open
// connection in emit order. A connection that cannot keep up is removed;
// the others are unaffected.
func (s *Server) Emit(evtType domain.EventType, payload any) (domain.Event, error) {
	s.mu.Lock()
	evt, err := s.log.Append(evtType, payload)
	if err != nil {
		s.mu.Unlock()
		return domain.Event{}, err
	}
	if s.metrics != nil {
		s.metrics.EventsEmitted.Inc()
	}

	frame := encodeFrame(evt)
	var slow []*Conn
	for c := range s.conns {
		if !c.enqueue(frame) {
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		s.logger.Warn("dropping slow stream subscriber")
		s.dropLocked(c)
	}
	s.mu.Unlock()

	return evt, nil
}

// AddConnection admits a subscriber. The connection's outbound sequence is
// the synthetic connected event, then the replay of everything after
// lastSeenID, then live events; replay strictly precedes anything emitted
// after admission.
func (s *Server) AddConnection(lastSeenID int64) (*Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrServerClosed
	}
	if len(s.conns) >= s.maxConns {
		if s.metrics != nil {
			s.metrics.ConnectionsRefused.Inc()
		}
		return nil, ErrConnectionLimit
	}

	replay, gap := s.log.ReplaySince(lastSeenID)

	conn := &Conn{
		server:   s,
		frames:   make(chan []byte, len(replay)+1+liveBuffer),
		closedCh: make(chan struct{}),
		state:    ConnStateConnecting,
	}

	connected := domain.ConnectedPayload{LastEventID: s.log.LastID(), ReplayGap: gap}
	connEvt, err := synthetic(domain.EventTypeConnected, connected)
	if err == nil {
		conn.frames <- encodeFrame(connEvt)
	}
	for _, evt := range replay {
		conn.frames <- encodeFrame(evt)
	}

	conn.setState(ConnStateOpen)
	s.conns[conn] = struct{}{}
	if s.metrics != nil {
		s.metrics.ConnectionsOpen.Inc()
	}
	return conn, nil
}

// OpenConnections reports the current number of admitted subscribers.
func (s *Server) OpenConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// LastEventID exposes the highest assigned event id.
func (s *Server) LastEventID() int64 {
	return s.log.LastID()
}

// CloseAll force-closes every connection, refuses future subscribers and
// stops the heartbeat timer.
func (s *Server) CloseAll() {
	s.mu.Lock()
	s.closed = true
	for c := range s.conns {
		s.dropLocked(c)
	}
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stopCh) })
}

// dropLocked removes a connection and marks it closed. Callers hold s.mu.
func (s *Server) dropLocked(c *Conn) {
	if _, ok := s.conns[c]; ok {
		delete(s.conns, c)
		if s.metrics != nil {
			s.metrics.ConnectionsOpen.Dec()
		}
	}
	c.closeOnce.Do(func() {
		c.setState(ConnStateClosed)
		close(c.closedCh)
	})
}

// heartbeatLoop sends the comment-only keep-alive frame to every open
// connection at the configured interval. A connection that cannot absorb
// the heartbeat is dropped through the same cleanup path as data frames.
func (s *Server) heartbeatLoop() {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.Lock()
			var slow []*Conn
			for c := range s.conns {
				if !c.enqueue(heartbeatFrame) {
					slow = append(slow, c)
				}
			}
			for _, c := range slow {
				s.logger.Warn("dropping stream subscriber on failed heartbeat")
				s.dropLocked(c)
			}
			s.mu.Unlock()
		}
	}
}

func synthetic(evtType domain.EventType, payload any) (domain.Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.Event{}, err
	}
	return domain.Event{Type: evtType, Payload: body, Ts: time.Now().UnixMilli()}, nil
}
