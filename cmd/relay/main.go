package main

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	relaygrpc "chat-relay/grpc"
	"chat-relay/infrastructure/api"
	"chat-relay/infrastructure/storage"
	"chat-relay/infrastructure/websocket"
	"chat-relay/internal"
	"chat-relay/notification"
	"chat-relay/notification/fcm"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
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
	"github.com/dgraph-io/badger/v4"
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

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle and centralizes error reporting.
func run() (int, error) {
	// 1. Configuration & Logger
	// A missing .env file is fine, the environment may already be set
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if logger.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint))
		database.StartDebugServer(db, config.DebugPort, endpoint, RecordMapper)
	}

	messageRepository, err := storage.NewMessageRepository(db, logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("message repository: %w", err)
	}
	defer func() { _ = messageRepository.Close() }()
	userRepository := storage.NewUserRepository(db, logger)

	// 3. Push notifications, disabled when no credentials are usable
	telemetryChan := make(chan event.Event, config.BufferSize)
	tokenRegistry := runtime.NewTokenRegistry(logger, userRepository)
	notifier := buildNotifier(ctx, config, logger, tokenRegistry, telemetryChan)

	// 4. Supervision & Relay
	sup := workers.NewSupervisor(logger, telemetryChan, config.RestartInterval)
	registry := runtime.NewRegistry(logger, telemetryChan, config.SinkTimeout)
	relay := runtime.NewRelay(logger, sup, registry, messageRepository, tokenRegistry, notifier,
		telemetryChan,
		config.NotificationWorkers, config.BufferSize, config.HistoryLimit,
		config.MetricInterval, config.LowCapacityThreshold)
	if config.UploadsDir != "" {
		relay.WithImageCleaner(storage.NewFileImageCleaner(logger, config.UploadsDir))
	}

	// Bound before any goroutine starts: returning here leaves nothing running
	grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.GrpcPort)
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}
	healthServer := relaygrpc.NewHealthServer(logger, notifier.Enabled())

	errChan := make(chan error, 3)
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		if err := relay.Start(ctx); err != nil {
			errChan <- fmt.Errorf("relay error: %w", err)
		}
	}()

	// 5. HTTP & WebSocket
	chatService := services.NewChatService(relay)
	wsHandler := websocket.NewHandler(logger, chatService, config.ConnectionBufferSize, config.Origins())
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           api.NewRouter(logger, chatService, wsHandler, config.Origins(), config.HistoryLimit),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 6. gRPC health
	go func() {
		if err := healthServer.Serve(listener); err != nil {
			errChan <- err
		}
	}()

	// 7. Wait for Stop or Error
	exitCode, runErr := exitOK, error(nil)
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		exitCode, runErr = exitRuntime, err
	}

	// 8. Graceful shutdown: stop accepting, then stop workers
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	healthServer.Stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	relay.Stop()
	<-relayDone
	logger.Info("Telemetry totals", "counters", relay.Counters())
	logger.Info("Program stopped cleanly")

	return exitCode, runErr
}

// buildNotifier degrades to notification.Disabled when the service account
// is missing or unusable.
func buildNotifier(ctx context.Context, config internal.Config, logger *slog.Logger,
	tokenRegistry *runtime.TokenRegistry, telemetryChan chan event.Event) contract.Notifier {
	credentials, err := config.ServiceAccount()
	if err != nil {
		logger.Warn("Firebase service account unreadable, push notifications disabled", "error", err)
		return notification.Disabled{}
	}
	if credentials == nil {
		logger.Info("Firebase service account is not configured, push notifications disabled")
		return notification.Disabled{}
	}
	provider, err := fcm.New(ctx, logger, credentials)
	if err != nil {
		logger.Warn("Invalid Firebase service account, push notifications disabled", "error", err)
		return notification.Disabled{}
	}
	return notification.NewDispatcher(logger, tokenRegistry, provider, config.PushTimeout, telemetryChan)
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}

// RecordMapper renders relay records in the debug inspector.
func RecordMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	rec := storage.DescribeRecord(key, val)
	row.Type = rec.Kind
	row.Detail = rec.Detail
	row.EntityID = rec.Owner
	if !rec.At.IsZero() {
		row.Timestamp = rec.At.UTC().Format(time.RFC3339)
	}
	return row
}
