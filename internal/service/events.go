package service

import (
	"fmt"

	"github.com/calder-io/steward/internal/domain"
	"github.com/calder-io/steward/internal/stream"
)

// PublishEvent puts an externally produced event on the stream. The
// connected type is reserved for the stream server's own handshake.
func (s *Service) PublishEvent(req domain.PublishEventRequest) (domain.Event, error) {
	if !domain.KnownEventTypes[req.Type] {
		return domain.Event{}, fmt.Errorf("%w: unknown event type %q", ErrInvalidArgument, req.Type)
	}
	if req.Type == domain.EventTypeConnected {
		return domain.Event{}, fmt.Errorf("%w: event type %q is reserved", ErrInvalidArgument, req.Type)
	}
	return s.stream.Emit(req.Type, req.Payload)
}

// Subscribe admits a stream subscriber, replaying everything after
// lastSeenID. Callers see stream.ErrConnectionLimit at capacity.
func (s *Service) Subscribe(lastSeenID int64) (*stream.Conn, error) {
	return s.stream.AddConnection(lastSeenID)
}
