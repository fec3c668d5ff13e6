package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skypro1111/a2f-stream-service/internal/a2f"
	"github.com/skypro1111/a2f-stream-service/internal/audio"
	"github.com/skypro1111/a2f-stream-service/internal/config"
	"github.com/skypro1111/a2f-stream-service/internal/metrics"
	"github.com/skypro1111/a2f-stream-service/internal/server"
	"github.com/skypro1111/a2f-stream-service/internal/stream"
)

const (
	serviceName    = "a2f-stream-service"
	serviceVersion = "1.0.0"

	// in-flight streams get this long to finish after a shutdown signal
	shutdownTimeout = 30 * time.Second
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (built-in defaults when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		slog.String("a2f_base_url", cfg.A2F.BaseURL),
		slog.String("a2f_player_instance", cfg.A2F.PlayerInstance),
		slog.String("a2f_livelink_node", cfg.A2F.LivelinkNode),
		slog.Int("init_sample_length", cfg.Audio.InitSampleLength),
		slog.String("init_sample_unit", cfg.Audio.InitSampleUnit),
		slog.String("log_level", cfg.Logging.Level),
	)

	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	a2fClient, err := a2f.NewClient(a2f.Config{
		BaseURL:        cfg.A2F.BaseURL,
		PlayerInstance: cfg.A2F.PlayerInstance,
		LivelinkNode:   cfg.A2F.LivelinkNode,
		Timeout:        cfg.A2F.GetTimeoutDuration(),
	})
	if err != nil {
		logger.Error("Failed to create Audio2Face client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer a2fClient.Close()

	unit, err := audio.ParseSampleUnit(cfg.Audio.InitSampleUnit)
	if err != nil {
		logger.Error("Invalid audio configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	streamMgr := stream.NewManager(logger, a2fClient, stream.SessionConfig{
		InitSampleLength: cfg.Audio.InitSampleLength,
		InitSampleUnit:   unit,
		ReadBufferSize:   cfg.Audio.ReadBufferSize,
	}, appMetrics)
	logger.Info("Stream manager initialized",
		slog.Int("read_buffer_size", cfg.Audio.ReadBufferSize),
		slog.Duration("a2f_timeout", cfg.A2F.GetTimeoutDuration()),
	)

	httpServer := server.NewHTTPServer(logger, cfg, streamMgr, a2fClient, appMetrics)

	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("http_address", httpServer.Addr()),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop HTTP server first (stop accepting new requests)
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	if err := streamMgr.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping stream manager", slog.String("error", err.Error()))
	}

	stats := a2fClient.GetStats()
	logger.Info("Final Audio2Face client statistics",
		slog.Uint64("total_requests", stats.TotalRequests),
		slog.Uint64("success_requests", stats.SuccessRequests),
		slog.Uint64("failed_requests", stats.FailedRequests),
		slog.Duration("avg_response_time", stats.AvgResponseTime),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
