package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/skypro1111/a2f-stream-service/internal/a2f"
	"github.com/skypro1111/a2f-stream-service/internal/config"
	"github.com/skypro1111/a2f-stream-service/internal/metrics"
	"github.com/skypro1111/a2f-stream-service/internal/stream"
)

const (
	serviceName    = "a2f-stream-service"
	serviceVersion = "1.0.0"

	// request bodies only carry a path
	maxRequestBody = 1 << 20
)

// HTTPServer serves the streaming gateway and the monitoring endpoints
type HTTPServer struct {
	server    *http.Server
	logger    *slog.Logger
	config    *config.Config
	streamMgr *stream.Manager
	a2fClient *a2f.Client
	metrics   *metrics.Metrics

	// Server state
	startTime time.Time
	mu        sync.RWMutex
	completed uint64
	failed    uint64
}

// StreamAudioRequest is the body of POST /stream-audio
type StreamAudioRequest struct {
	AudioPath string `json:"audioPath"`
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(logger *slog.Logger, appConfig *config.Config, streamMgr *stream.Manager,
	a2fClient *a2f.Client, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		streamMgr: streamMgr,
		a2fClient: a2fClient,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", appConfig.HTTP.Address, appConfig.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  appConfig.HTTP.GetReadTimeout(),
		WriteTimeout: appConfig.HTTP.GetWriteTimeout(),
		IdleTimeout:  appConfig.HTTP.GetIdleTimeout(),
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/stream-audio", h.withMetrics("/stream-audio", h.handleStreamAudio))

	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	mux.HandleFunc("/streams", h.withMetrics("/streams", h.handleStreams))
	mux.HandleFunc("/streams/", h.withMetrics("/streams/{id}", h.handleStreamDetail))

	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", h.metrics.Handler())

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// Handler returns the routed handler, for tests and embedding.
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// Addr returns the configured listen address.
func (h *HTTPServer) Addr() string {
	return h.server.Addr
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server, waiting for in-flight streams
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleStreamAudio implements POST /stream-audio. The request blocks until
// the whole file has been forwarded, so a 200 means every chunk was accepted.
func (h *HTTPServer) handleStreamAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	requestID := xid.New().String()
	w.Header().Set("X-Request-Id", requestID)
	logger := h.logger.With(slog.String("request_id", requestID))

	req, err := decodeStreamAudioRequest(w, r)
	if err != nil {
		h.respondError(w, logger, err)
		return
	}

	logger.Info("Stream requested", slog.String("audio_path", req.AudioPath))

	// a client disconnect must not cut a stream off half way
	ctx := context.WithoutCancel(r.Context())

	info, err := h.streamMgr.Run(ctx, req.AudioPath)
	if info.SessionID != "" {
		w.Header().Set("X-Session-Id", info.SessionID)
	}
	if err != nil {
		h.recordOutcome(false)
		h.respondError(w, logger.With(slog.String("session_id", info.SessionID)), err)
		return
	}

	h.recordOutcome(true)
	logger.Info("Stream finished",
		slog.String("session_id", info.SessionID),
		slog.Uint64("chunks_sent", info.ChunksSent),
		slog.Duration("duration", info.Duration),
	)

	writeJSON(w, http.StatusOK, map[string]string{"message": "Streaming started successfully"})
}

func decodeStreamAudioRequest(w http.ResponseWriter, r *http.Request) (StreamAudioRequest, error) {
	var req StreamAudioRequest

	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	err := json.NewDecoder(body).Decode(&req)
	switch {
	case errors.Is(err, io.EOF):
		// empty body, reported as a missing path below
	case err != nil:
		return req, &ValidationError{Field: "body", Message: "Invalid request body"}
	}

	if req.AudioPath == "" {
		return req, &ValidationError{Field: "audioPath", Message: "Audio path is required"}
	}

	return req, nil
}

// respondError maps validation errors to 400 and everything else to 500
func (h *HTTPServer) respondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		logger.Warn("Rejected stream request",
			slog.String("field", validationErr.Field),
			slog.String("error", validationErr.Message),
		)
		writeError(w, http.StatusBadRequest, validationErr.Message)
		return
	}

	logger.Error("Error streaming audio", slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, err.Error())
}

func (h *HTTPServer) recordOutcome(success bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if success {
		h.completed++
	} else {
		h.failed++
	}
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)
	clientStats := h.a2fClient.GetStats()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": map[string]interface{}{
			"stream_manager": map[string]interface{}{
				"status":          "running",
				"active_sessions": h.streamMgr.GetActiveSessionCount(),
			},
			"audio2face": map[string]interface{}{
				"base_url":       h.a2fClient.Config().BaseURL,
				"total_requests": clientStats.TotalRequests,
				"success_rate":   clientStats.SuccessRate,
			},
		},
	}

	writeJSON(w, http.StatusOK, health)
}

// handleStreams implements the /streams endpoint
func (h *HTTPServer) handleStreams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions := h.streamMgr.GetAllSessions()
	sessionInfos := make([]stream.SessionInfo, 0, len(sessions))

	for _, session := range sessions {
		sessionInfos = append(sessionInfos, session.Info())
	}

	response := map[string]interface{}{
		"total_streams": len(sessionInfos),
		"timestamp":     time.Now().UTC(),
		"streams":       sessionInfos,
	}

	writeJSON(w, http.StatusOK, response)
}

// handleStreamDetail implements the /streams/{session_id} endpoint
func (h *HTTPServer) handleStreamDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Path[len("/streams/"):]
	if sessionID == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	session, exists := h.streamMgr.GetSession(sessionID)
	if !exists {
		http.Error(w, "Stream not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, session.Info())
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sanitizedConfig := map[string]interface{}{
		"http": map[string]interface{}{
			"port":          h.config.HTTP.Port,
			"address":       h.config.HTTP.Address,
			"read_timeout":  h.config.HTTP.ReadTimeout,
			"write_timeout": h.config.HTTP.WriteTimeout,
			"idle_timeout":  h.config.HTTP.IdleTimeout,
		},
		"a2f": map[string]interface{}{
			"base_url":        h.config.A2F.BaseURL,
			"player_instance": h.config.A2F.PlayerInstance,
			"livelink_node":   h.config.A2F.LivelinkNode,
			"timeout":         h.config.A2F.Timeout,
		},
		"audio": map[string]interface{}{
			"init_sample_length": h.config.Audio.InitSampleLength,
			"init_sample_unit":   h.config.Audio.InitSampleUnit,
			"read_buffer_size":   h.config.Audio.ReadBufferSize,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	writeJSON(w, http.StatusOK, sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.mu.RLock()
	completed, failed := h.completed, h.failed
	h.mu.RUnlock()

	stats := map[string]interface{}{
		"uptime":     time.Since(h.startTime).String(),
		"timestamp":  time.Now().UTC(),
		"audio2face": h.a2fClient.GetStats(),
		"streams": map[string]interface{}{
			"active_count":    h.streamMgr.GetActiveSessionCount(),
			"completed_count": completed,
			"failed_count":    failed,
		},
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Audio2Face Streaming Service",
		"version": serviceVersion,
		"endpoints": map[string]interface{}{
			"POST /stream-audio":        "Stream a WAV file to Audio2Face",
			"GET /":                     "API documentation",
			"GET /health":               "Service health check",
			"GET /streams":              "List streams in flight",
			"GET /streams/{session_id}": "Get detailed stream information",
			"GET /config":               "Get service configuration",
			"GET /stats":                "Get service statistics",
			"GET /metrics":              "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
