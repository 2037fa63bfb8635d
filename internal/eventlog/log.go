// Package eventlog provides a bounded in-memory event buffer with
// process-lifetime monotonic ids and range replay.
package eventlog

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/calder-io/steward/internal/domain"
)

// DefaultCapacity is the retained-window size used when none is configured.
const DefaultCapacity = 500

// Log is a bounded ring of the most recent events. Ids start at 1,
// increment by one per append and are never reused; eviction beyond
// capacity drops the oldest entry permanently.
type Log struct {
	mu       sync.Mutex
	capacity int
	nextID   int64
	events   []domain.Event
}

// New creates a log retaining at most capacity events.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		capacity: capacity,
		nextID:   1,
		events:   make([]domain.Event, 0, capacity),
	}
}

// Append assigns the next id to an event of the given type and buffers it.
// The payload is marshaled once here; a json.RawMessage payload is stored
// as-is.
func (l *Log) Append(evtType domain.EventType, payload any) (domain.Event, error) {
	body, err := marshalPayload(payload)
	if err != nil {
		return domain.Event{}, fmt.Errorf("marshal %s payload: %w", evtType, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	evt := domain.Event{
		ID:      l.nextID,
		Type:    evtType,
		Payload: body,
		Ts:      time.Now().UnixMilli(),
	}
	l.nextID++

	if len(l.events) >= l.capacity {
		l.events = l.events[1:]
	}
	l.events = append(l.events, evt)

	return evt, nil
}

// ReplaySince returns every retained event with id > lastID in ascending
// id order. The second result is true when lastID predates the retained
// window, i.e. events between lastID and the oldest retained entry were
// evicted and are unrecoverable.
func (l *Log) ReplaySince(lastID int64) ([]domain.Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.replaySinceLocked(lastID)
}

func (l *Log) replaySinceLocked(lastID int64) ([]domain.Event, bool) {
	if len(l.events) == 0 {
		return nil, false
	}

	oldest := l.events[0].ID
	gap := lastID < oldest-1

	start := 0
	for start < len(l.events) && l.events[start].ID <= lastID {
		start++
	}
	if start == len(l.events) {
		return nil, gap
	}

	out := make([]domain.Event, len(l.events)-start)
	copy(out, l.events[start:])
	return out, gap
}

// LastID returns the highest id assigned so far, 0 before the first append.
func (l *Log) LastID() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextID - 1
}

// Len returns the number of currently retained events.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func marshalPayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(p) > 0 && !json.Valid(p) {
			return nil, fmt.Errorf("invalid raw payload")
		}
		return p, nil
	case []byte:
		if len(p) > 0 && !json.Valid(p) {
			return nil, fmt.Errorf("invalid raw payload")
		}
		return json.RawMessage(p), nil
	default:
		return json.Marshal(payload)
	}
}
