package streamclient

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFrame(w http.ResponseWriter, frame string) {
	io.WriteString(w, frame)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func sseHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
}

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func recvLabel(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handler call")
	}
	return ""
}

func newTestClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	c := NewClient(endpoint, WithBackoff(10*time.Millisecond, 80*time.Millisecond))
	t.Cleanup(c.Disconnect)
	return c
}

func TestDispatchOrderAndWildcard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sseHeaders(w)
		writeFrame(w, ": keepalive\n\n")
		writeFrame(w, "id: 1\nevent: agent_log\ndata: {\"id\":1,\"type\":\"agent_log\",\"payload\":{\"line\":\"hi\"},\"ts\":10}\n\n")
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	calls := make(chan string, 8)
	c.On("agent_log", func(evt Event) { calls <- "first" })
	c.On("agent_log", func(evt Event) { calls <- "second" })
	c.On(Wildcard, func(evt Event) { calls <- "wild:" + evt.Type })

	c.Connect()

	require.Equal(t, "first", recvLabel(t, calls))
	require.Equal(t, "second", recvLabel(t, calls))
	require.Equal(t, "wild:agent_log", recvLabel(t, calls))

	select {
	case extra := <-calls:
		t.Fatalf("unexpected extra handler call %q", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sseHeaders(w)
		writeFrame(w, "id: 1\nevent: agent_log\ndata: {\"id\":1,\"type\":\"agent_log\",\"ts\":1}\n\n")
		<-release
		writeFrame(w, "id: 2\nevent: agent_log\ndata: {\"id\":2,\"type\":\"agent_log\",\"ts\":2}\n\n")
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	calls := make(chan string, 8)
	unsub := c.On("agent_log", func(evt Event) { calls <- "doomed" })
	c.On("agent_log", func(evt Event) { calls <- "kept" })

	c.Connect()

	require.Equal(t, "doomed", recvLabel(t, calls))
	require.Equal(t, "kept", recvLabel(t, calls))

	unsub()
	unsub() // second call is a no-op
	close(release)

	require.Equal(t, "kept", recvLabel(t, calls))
	select {
	case extra := <-calls:
		t.Fatalf("unsubscribed handler still ran: %q", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPanickingHandlerContained(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sseHeaders(w)
		writeFrame(w, "id: 1\nevent: cost_update\ndata: {\"id\":1,\"type\":\"cost_update\",\"ts\":1}\n\n")
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	calls := make(chan string, 8)
	c.On("cost_update", func(evt Event) { panic("handler exploded") })
	c.On("cost_update", func(evt Event) { calls <- "survivor" })
	c.On(Wildcard, func(evt Event) { calls <- "wild" })

	c.Connect()

	require.Equal(t, "survivor", recvLabel(t, calls))
	require.Equal(t, "wild", recvLabel(t, calls))
}

func TestUnparseableFrameDroppedSilently(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sseHeaders(w)
		writeFrame(w, "event: agent_log\ndata: {this is not json\n\n")
		writeFrame(w, "id: 1\nevent: agent_log\ndata: {\"id\":1,\"type\":\"agent_log\",\"ts\":1}\n\n")
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	events := make(chan Event, 8)
	c.On(Wildcard, func(evt Event) { events <- evt })

	c.Connect()

	evt := recv(t, events)
	require.Equal(t, int64(1), evt.ID)
	select {
	case extra := <-events:
		t.Fatalf("malformed frame was dispatched: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEffectiveTypeResolution(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sseHeaders(w)
		// Body type field wins over the SSE event name.
		writeFrame(w, "id: 1\nevent: outer\ndata: {\"id\":1,\"type\":\"inner\",\"ts\":1}\n\n")
		// No body type: fall back to the SSE event name.
		writeFrame(w, "id: 2\nevent: column_moved\ndata: {\"id\":2,\"ts\":2}\n\n")
		// Neither: generic message.
		writeFrame(w, "id: 3\ndata: {\"id\":3,\"ts\":3}\n\n")
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	events := make(chan Event, 8)
	c.On(Wildcard, func(evt Event) { events <- evt })

	c.Connect()

	require.Equal(t, "inner", recv(t, events).Type)
	require.Equal(t, "column_moved", recv(t, events).Type)
	require.Equal(t, "message", recv(t, events).Type)
}

func TestReconnectResendsLastEventID(t *testing.T) {
	var (
		mu      sync.Mutex
		lastIDs []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		lastIDs = append(lastIDs, r.Header.Get("Last-Event-ID"))
		n := len(lastIDs)
		mu.Unlock()

		sseHeaders(w)
		if n == 1 {
			// Drop the connection after one event to force a reconnect.
			writeFrame(w, "id: 5\nevent: agent_log\ndata: {\"id\":5,\"type\":\"agent_log\",\"ts\":5}\n\n")
			return
		}
		writeFrame(w, "id: 6\nevent: agent_log\ndata: {\"id\":6,\"type\":\"agent_log\",\"ts\":6}\n\n")
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	events := make(chan Event, 8)
	c.On("agent_log", func(evt Event) { events <- evt })

	c.Connect()

	require.Equal(t, int64(5), recv(t, events).ID)
	require.Equal(t, int64(6), recv(t, events).ID)
	require.Equal(t, int64(6), c.LastEventID())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, lastIDs, 2)
	require.Empty(t, lastIDs[0])
	require.Equal(t, "5", lastIDs[1])

	// A successful open resets the backoff to its floor.
	c.mu.Lock()
	backoff := c.backoff
	c.mu.Unlock()
	require.Equal(t, 10*time.Millisecond, backoff)
}

func TestDisconnectSuppressesReconnect(t *testing.T) {
	var (
		mu       sync.Mutex
		connects int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		connects++
		mu.Unlock()

		sseHeaders(w)
		writeFrame(w, "id: 1\nevent: agent_log\ndata: {\"id\":1,\"type\":\"agent_log\",\"ts\":1}\n\n")
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	events := make(chan Event, 8)
	c.On(Wildcard, func(evt Event) { events <- evt })

	c.Connect()
	recv(t, events)

	c.Disconnect()
	c.Disconnect() // idempotent

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return !c.running
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, connects)
}

func TestConnectIsIdempotent(t *testing.T) {
	var (
		mu       sync.Mutex
		connects int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		connects++
		mu.Unlock()
		sseHeaders(w)
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.Connect()
	c.Connect()
	c.Connect()

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, connects)
}

func TestBackoffDoublesUpToCap(t *testing.T) {
	// Nothing listens here, so every dial fails immediately.
	c := NewClient("http://127.0.0.1:1/v1/events/stream", WithBackoff(5*time.Millisecond, 20*time.Millisecond))
	t.Cleanup(c.Disconnect)

	c.Connect()

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.backoff == 20*time.Millisecond
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	c.mu.Lock()
	backoff := c.backoff
	c.mu.Unlock()
	require.Equal(t, 20*time.Millisecond, backoff)

	c.Disconnect()
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return !c.running
	}, 2*time.Second, 5*time.Millisecond)
}
