// Package service ties the engine, stream, store, watchdog, policy
// engine and tool registry together behind the operations the transport
// layer exposes.
package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/calder-io/steward/internal/config"
	"github.com/calder-io/steward/internal/domain"
	"github.com/calder-io/steward/internal/engine"
	"github.com/calder-io/steward/internal/store"
	"github.com/calder-io/steward/internal/stream"
	"github.com/calder-io/steward/internal/tools"
	"github.com/calder-io/steward/internal/watchdog"
	"github.com/calder-io/steward/policy"
)

var (
	// ErrNotFound marks lookups for ids that do not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument marks requests the caller must fix.
	ErrInvalidArgument = errors.New("invalid argument")
)

type Service struct {
	store    store.Store
	engine   *engine.Engine
	stream   *stream.Server
	watchdog *watchdog.Watchdog
	policy   *policy.Engine
	registry *tools.Registry
	config   *config.Config
	logger   *zap.Logger
}

func New(st store.Store, eng *engine.Engine, srv *stream.Server, wd *watchdog.Watchdog, pol *policy.Engine, reg *tools.Registry, cfg *config.Config, logger *zap.Logger) *Service {
	return &Service{
		store:    st,
		engine:   eng,
		stream:   srv,
		watchdog: wd,
		policy:   pol,
		registry: reg,
		config:   cfg,
		logger:   logger,
	}
}

// emitEvent puts a domain event on the stream. Emit failures are logged
// and swallowed; checkpoint state is the source of truth, the stream is
// best-effort delivery.
func (s *Service) emitEvent(evtType domain.EventType, payload any) {
	if _, err := s.stream.Emit(evtType, payload); err != nil {
		s.logger.Warn("failed to emit event",
			zap.String("type", string(evtType)),
			zap.Error(err),
		)
	}
}

func newID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.New().String()[:8])
}
