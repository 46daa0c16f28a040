package main

import (
	"chat-match/infrastructure/grpc"
	"chat-match/infrastructure/storage"
	"chat-match/infrastructure/ws"
	"chat-match/internal"
	"chat-match/lifecycle"
	"chat-match/observability"
	"chat-match/runtime"
	"chat-match/runtime/workers"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 5 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// Every deferred cleanup runs before main exits with the returned code.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Message log (BadgerDB, wiped on every start)
	db, err := storage.OpenMessageLogDB(config.MessageLogPath, logger.Enabled(ctx, slog.LevelDebug))
	if err != nil {
		return exitRuntime, err
	}
	defer func() {
		logger.Info("Closing message log...")
		_ = db.Close()
	}()

	if config.DebugPort > 0 {
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint))
		database.StartDebugServer(db, config.DebugPort, endpoint, storage.InspectMessage)
	}

	// 3. Core, supervision & orchestration
	monitoring := observability.NewMonitoringManager(logger)
	registry := runtime.NewRegistry(logger, monitoring)
	manager := lifecycle.NewManager(logger, registry, storage.NewMessageLog(db, logger), monitoring, config.ErrorAcks)
	orchestrator := runtime.NewOrchestrator(
		logger, workers.NewSupervisor(logger, config.RestartInterval),
		registry, manager, monitoring,
		config.BufferSize, config.DispatchTimeout, config.MetricInterval,
	)

	orchestratorDone := make(chan struct{})
	go func() {
		orchestrator.Start(ctx)
		close(orchestratorDone)
	}()

	// 4. WebSocket transport
	handler := ws.NewHandler(logger, orchestrator, registry, ws.Settings{
		ConnectionBufferSize: config.ConnectionBufferSize,
		PingInterval:         config.PingInterval,
		PongTimeout:          config.PongTimeout,
		WriteTimeout:         config.WriteTimeout,
		MaxMessageLength:     config.MaxMessageLength,
		AllowedOrigins:       config.Origins(),
	})
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{
		Addr:              address,
		Handler:           ws.NewMux(logger, handler, orchestrator.Stats),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errChan := make(chan error, 2)
	go func() {
		logger.Info("Starting WebSocket server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 5. Optional gRPC health service
	var healthServer *grpc.HealthServer
	if config.GrpcPort > 0 {
		grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.GrpcPort)
		listener, err := net.Listen("tcp", grpcAddress)
		if err != nil {
			return exitRuntime, fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
		}
		healthServer = grpc.NewHealthServer(logger)
		go func() {
			if err := healthServer.Serve(listener); err != nil {
				errChan <- fmt.Errorf("gRPC server error: %w", err)
			}
		}()
	}

	// 6. Wait for Stop or Error
	// The execution blocks here until either a signal is received or a server crashes.
	code := exitOK
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err = <-errChan:
		code = exitRuntime
	}

	// 7. Final Cleanup (Graceful Shutdown)
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("HTTP shutdown incomplete", "error", shutdownErr)
	}
	if healthServer != nil {
		healthServer.Stop()
	}
	stop()
	orchestrator.Stop()
	<-orchestratorDone
	logger.Info("Program stopped cleanly")

	return code, err
}
