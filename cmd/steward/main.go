package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/calder-io/steward/internal/config"
	"github.com/calder-io/steward/internal/engine"
	"github.com/calder-io/steward/internal/eventlog"
	"github.com/calder-io/steward/internal/metrics"
	"github.com/calder-io/steward/internal/runner"
	"github.com/calder-io/steward/internal/service"
	"github.com/calder-io/steward/internal/store"
	"github.com/calder-io/steward/internal/stream"
	"github.com/calder-io/steward/internal/tools"
	transporthttp "github.com/calder-io/steward/internal/transport/http"
	"github.com/calder-io/steward/internal/watchdog"
	"github.com/calder-io/steward/policy"
)

func main() {
	// Load configuration
	cfg := config.Load()

	logger := mustBuildLogger(cfg.LogLevel)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	logger.Info("starting steward",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("internal_port", cfg.InternalPort),
		zap.String("db_path", cfg.DBPath),
		zap.Int("max_concurrent_runs", cfg.MaxConcurrentRuns),
	)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to initialize store", zap.Error(err))
	}
	defer db.Close()

	// Initialize policy engine
	ctx := context.Background()
	policyContent := policy.DefaultPolicy
	if cfg.PolicyPath != "" {
		raw, err := os.ReadFile(cfg.PolicyPath)
		if err != nil {
			logger.Fatal("failed to read policy file", zap.String("path", cfg.PolicyPath), zap.Error(err))
		}
		policyContent = string(raw)
		logger.Info("loaded policy file", zap.String("path", cfg.PolicyPath))
	}
	policyEngine, err := policy.NewEngine(ctx, policyContent)
	if err != nil {
		logger.Fatal("failed to initialize policy engine", zap.Error(err))
	}

	// Initialize event pipeline
	m := metrics.New()
	log := eventlog.New(cfg.EventLogCapacity)
	streamServer := stream.NewServer(log, cfg.MaxStreamConnections, cfg.HeartbeatInterval, m, logger)

	// Initialize run engine
	supervisor := runner.NewSupervisor(logger)
	eng := engine.New(supervisor, streamServer, m, logger, cfg.MaxConcurrentRuns)

	// Initialize watchdog
	wd := watchdog.New(m, logger)

	// Initialize tool registry
	registry := tools.NewRegistry()
	tools.RegisterBuiltins(registry)

	// Initialize service
	svc := service.New(db, eng, streamServer, wd, policyEngine, registry, cfg, logger)

	// Create servers
	externalServer := transporthttp.NewExternalServer(svc)
	internalServer := transporthttp.NewInternalServer(svc, m)

	// Start external server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := externalServer.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start external server", zap.Error(err))
		}
	}()

	// Start internal server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.InternalPort)
		if err := internalServer.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start internal server", zap.Error(err))
		}
	}()

	logger.Info("external API started", zap.Int("port", cfg.HTTPPort))
	logger.Info("internal API started", zap.Int("port", cfg.InternalPort))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down steward")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown both servers
	if err := externalServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to shutdown external server gracefully", zap.Error(err))
	}
	if err := internalServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to shutdown internal server gracefully", zap.Error(err))
	}

	// Stop in-flight work and release watchers before closing the store.
	eng.CancelAll()
	streamServer.CloseAll()
	wd.Dispose()

	logger.Info("steward stopped")
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	zcfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zcfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}
