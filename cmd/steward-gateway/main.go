package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/calder-io/steward/internal/domain"
	"github.com/calder-io/steward/internal/gateway"
	"github.com/calder-io/steward/streamclient"
)

// Config holds the gateway configuration.
type Config struct {
	WSPort     int    // External WebSocket port for viewers
	StewardURL string // Base URL of the steward external API
	LogLevel   string
}

func loadConfig() *Config {
	return &Config{
		WSPort:     getEnvInt("GATEWAY_WS_PORT", 8090),
		StewardURL: getEnv("STEWARD_URL", "http://localhost:8080"),
		LogLevel:   getEnv("GATEWAY_LOG_LEVEL", "info"),
	}
}

func main() {
	cfg := loadConfig()

	logger := mustBuildLogger(cfg.LogLevel)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	logger.Info("starting steward gateway",
		zap.Int("ws_port", cfg.WSPort),
		zap.String("steward_url", cfg.StewardURL),
	)

	publisher := gateway.NewPublisher(cfg.StewardURL)

	// Viewer joins and leaves are reported back to the steward stream so
	// the board shows who is watching. The hub loop must not block, so
	// the reports go out on their own goroutine.
	notify := func(viewerID string, connected bool, viewers int) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			eventType := domain.EventTypeAgentConnected
			if !connected {
				eventType = domain.EventTypeAgentDisconnected
			}
			if err := publisher.Publish(ctx, eventType, domain.AgentStatusPayload{AgentID: viewerID}); err != nil {
				logger.Warn("failed to report viewer change", zap.Error(err))
			}
			if err := publisher.Publish(ctx, domain.EventTypeGatewayStatus, domain.GatewayStatusPayload{
				Status:  "serving",
				Viewers: viewers,
			}); err != nil {
				logger.Warn("failed to report gateway status", zap.Error(err))
			}
		}()
	}

	hub := gateway.NewHub(logger, notify)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	wsServer := gateway.NewServer(hub, logger)

	// Subscribe to the steward stream and fan every event out to viewers.
	client := streamclient.NewClient(cfg.StewardURL+"/v1/events/stream", streamclient.WithLogger(logger))
	client.On(streamclient.Wildcard, func(evt streamclient.Event) {
		// The connected frame describes this subscription, not board state.
		if evt.Type == string(domain.EventTypeConnected) {
			return
		}
		hub.Broadcast(evt.Raw)
	})
	client.Connect()

	// Create WebSocket Echo server
	wsEcho := echo.New()
	wsEcho.HideBanner = true
	wsEcho.HidePort = true
	wsEcho.Use(middleware.Logger())
	wsEcho.Use(middleware.Recover())
	wsEcho.GET("/ws", wsServer.HandleWebSocket)
	wsEcho.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	// Start WebSocket server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.WSPort)
		if err := wsEcho.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start WebSocket server", zap.Error(err))
		}
	}()

	logger.Info("WebSocket server started", zap.Int("port", cfg.WSPort))

	// Announce the gateway on the stream once it is up.
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 5*time.Second)
	if err := publisher.Publish(startupCtx, domain.EventTypeGatewayStatus, domain.GatewayStatusPayload{Status: "serving"}); err != nil {
		logger.Warn("failed to announce gateway startup", zap.Error(err))
	}
	cancelStartup()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Stop the inbound stream, then the viewer side.
	client.Disconnect()
	if err := wsEcho.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to shutdown WebSocket server gracefully", zap.Error(err))
	}
	stopHub()

	if err := publisher.Publish(shutdownCtx, domain.EventTypeGatewayStatus, domain.GatewayStatusPayload{Status: "stopped"}); err != nil {
		logger.Warn("failed to announce gateway shutdown", zap.Error(err))
	}

	logger.Info("gateway stopped")
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

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
