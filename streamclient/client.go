// Package streamclient maintains one logical connection to a steward
// event stream, reconnecting with exponential backoff and dispatching
// events to type-keyed and wildcard handlers.
package streamclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Wildcard subscribes a handler to every event regardless of type.
const Wildcard = "*"

const (
	DefaultBackoffInitial = 1 * time.Second
	DefaultBackoffMax     = 30 * time.Second
)

// Event is one dispatched stream event. Type is the effective type: the
// data body's own type field when present, else the SSE event name, else
// "message".
type Event struct {
	ID      int64           `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Ts      int64           `json:"ts"`
	// Raw is the complete data body as received on the wire.
	Raw json.RawMessage `json:"-"`
}

// Handler consumes dispatched events. A panicking handler is contained
// and does not stop later handlers.
type Handler func(Event)

type handlerEntry struct {
	id int64
	fn Handler
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithBackoff overrides the reconnect backoff bounds.
func WithBackoff(initial, max time.Duration) Option {
	return func(c *Client) {
		c.backoffInitial = initial
		c.backoffMax = max
	}
}

// WithHTTPClient overrides the HTTP client used for streaming requests.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// Client is a reconnecting stream subscriber.
type Client struct {
	endpoint string
	httpc    *http.Client
	logger   *zap.Logger

	backoffInitial time.Duration
	backoffMax     time.Duration

	mu          sync.Mutex
	running     bool
	closing     bool
	backoff     time.Duration
	timer       *time.Timer
	stopCh      chan struct{}
	cancelReq   context.CancelFunc
	lastEventID int64
	handlers    map[string][]handlerEntry
	nextHandler int64
}

// NewClient creates a client for the given SSE endpoint.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:       endpoint,
		httpc:          &http.Client{},
		logger:         zap.NewNop(),
		backoffInitial: DefaultBackoffInitial,
		backoffMax:     DefaultBackoffMax,
		handlers:       make(map[string][]handlerEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.backoff = c.backoffInitial
	return c
}

// Connect starts the streaming loop. It is a no-op while a loop is
// already running. Connecting right after Disconnect supersedes the old
// loop, which winds down without touching the new one's state.
func (c *Client) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running && !c.closing {
		return
	}
	c.running = true
	c.closing = false
	c.backoff = c.backoffInitial
	c.stopCh = make(chan struct{})
	go c.run(c.stopCh)
}

// Disconnect stops the loop: the intentional-close flag suppresses
// auto-reconnect, any pending reconnect timer is cancelled and the
// in-flight connection is torn down.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if !c.running || c.closing {
		c.mu.Unlock()
		return
	}
	c.closing = true
	cancel := c.cancelReq
	timer := c.timer
	stop := c.stopCh
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if timer != nil {
		timer.Stop()
	}
	close(stop)
}

// On registers a handler for an event type (or Wildcard) and returns its
// unsubscribe function. Handlers run in registration order.
func (c *Client) On(eventType string, h Handler) func() {
	c.mu.Lock()
	c.nextHandler++
	id := c.nextHandler
	c.handlers[eventType] = append(c.handlers[eventType], handlerEntry{id: id, fn: h})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		entries := c.handlers[eventType]
		for i, e := range entries {
			if e.id == id {
				c.handlers[eventType] = append(entries[:i:i], entries[i+1:]...)
				break
			}
		}
	}
}

// LastEventID returns the highest event id observed on the stream.
func (c *Client) LastEventID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastEventID
}

// shouldExit reports whether this loop generation is done, clearing the
// running flag when it is still the current one. Callers hold mu.
func (c *Client) shouldExit(stopCh chan struct{}) bool {
	if c.stopCh != stopCh {
		return true
	}
	if c.closing {
		c.running = false
		return true
	}
	return false
}

func (c *Client) run(stopCh chan struct{}) {
	for {
		c.mu.Lock()
		if c.shouldExit(stopCh) {
			c.mu.Unlock()
			return
		}
		reqCtx, cancel := context.WithCancel(context.Background())
		c.cancelReq = cancel
		lastID := c.lastEventID
		c.mu.Unlock()

		err := c.streamOnce(reqCtx, lastID)
		cancel()

		c.mu.Lock()
		c.cancelReq = nil
		if c.shouldExit(stopCh) {
			c.mu.Unlock()
			return
		}
		if err != nil {
			c.logger.Debug("stream interrupted", zap.Error(err))
		}
		delay := c.backoff
		c.backoff *= 2
		if c.backoff > c.backoffMax {
			c.backoff = c.backoffMax
		}
		timer := time.NewTimer(delay)
		c.timer = timer
		c.mu.Unlock()

		select {
		case <-timer.C:
		case <-stopCh:
			timer.Stop()
			c.mu.Lock()
			if c.stopCh == stopCh {
				c.timer = nil
				c.running = false
			}
			c.mu.Unlock()
			return
		}

		c.mu.Lock()
		if c.stopCh == stopCh {
			c.timer = nil
		}
		c.mu.Unlock()
	}
}

// streamOnce dials the endpoint and consumes frames until the connection
// drops. A successful open resets the backoff to its initial value.
func (c *Client) streamOnce(ctx context.Context, lastID int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if lastID > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatInt(lastID, 10))
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("stream status %d", resp.StatusCode)
	}

	c.mu.Lock()
	c.backoff = c.backoffInitial
	c.mu.Unlock()
	c.logger.Debug("stream connected", zap.String("endpoint", c.endpoint))

	return c.consume(resp.Body)
}

// consume parses the SSE byte stream: field lines accumulate until a
// blank line dispatches the pending frame. Comment lines are skipped, so
// heartbeats never reach handlers.
func (c *Client) consume(body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		frameID   int64
		eventName string
		data      strings.Builder
	)
	reset := func() {
		frameID = 0
		eventName = ""
		data.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if data.Len() > 0 {
				c.dispatch(frameID, eventName, []byte(data.String()))
			}
			reset()
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		switch {
		case strings.HasPrefix(line, "id:"):
			if id, err := strconv.ParseInt(strings.TrimSpace(line[3:]), 10, 64); err == nil {
				frameID = id
			}
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(line[6:])
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(line[5:]))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return io.EOF
}

// dispatch parses one frame body and invokes matching handlers. Frames
// that fail to parse are dropped silently.
func (c *Client) dispatch(frameID int64, eventName string, data []byte) {
	var env struct {
		ID      int64           `json:"id"`
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
		Ts      int64           `json:"ts"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Debug("dropping unparseable frame", zap.Error(err))
		return
	}

	evtType := env.Type
	if evtType == "" {
		evtType = eventName
	}
	if evtType == "" {
		evtType = "message"
	}

	id := env.ID
	if id == 0 {
		id = frameID
	}

	evt := Event{ID: id, Type: evtType, Payload: env.Payload, Ts: env.Ts, Raw: data}

	c.mu.Lock()
	if id > c.lastEventID {
		c.lastEventID = id
	}
	entries := make([]handlerEntry, 0, len(c.handlers[evtType])+len(c.handlers[Wildcard]))
	entries = append(entries, c.handlers[evtType]...)
	if evtType != Wildcard {
		entries = append(entries, c.handlers[Wildcard]...)
	}
	c.mu.Unlock()

	for _, e := range entries {
		c.invoke(e.fn, evt)
	}
}

func (c *Client) invoke(h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("event handler panicked",
				zap.String("type", evt.Type),
				zap.Any("panic", r),
			)
		}
	}()
	h(evt)
}
