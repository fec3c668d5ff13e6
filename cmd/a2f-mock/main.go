// Command a2f-mock serves the Audio2Face endpoints used by the stream service,
// for running the service locally without an Audio2Face instance.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skypro1111/a2f-stream-service/internal/a2fmock"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8011", "Listen address")
	latency := flag.Duration("latency", 0, "Delay before every answer")
	failPushAt := flag.Int("fail-push-at", 0, "Fail the n-th push (1-based), 0 to never fail")
	failAct := flag.Bool("fail-act", false, "Fail every exporter call")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	mock := a2fmock.New(logger, a2fmock.Options{
		Latency:    *latency,
		FailPushAt: *failPushAt,
		FailAct:    *failAct,
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mock,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Audio2Face mock listening",
			slog.String("address", *addr),
			slog.String("push_endpoint", a2fmock.PushAudioPath),
			slog.String("exporter_endpoint", a2fmock.ExporterActPath),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Mock server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Error stopping mock server", slog.String("error", err.Error()))
	}

	logger.Info("Audio2Face mock stopped",
		slog.Int("pushes", mock.Count(a2fmock.KindPush)),
		slog.Int("exporter_calls", mock.Count(a2fmock.KindAct)),
	)
}
