package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/skypro1111/a2f-stream-service/internal/a2f"
	"github.com/skypro1111/a2f-stream-service/internal/a2ftest"
	"github.com/skypro1111/a2f-stream-service/internal/audio"
	"github.com/skypro1111/a2f-stream-service/internal/audiotest"
	"github.com/skypro1111/a2f-stream-service/internal/config"
	"github.com/skypro1111/a2f-stream-service/internal/metrics"
	"github.com/skypro1111/a2f-stream-service/internal/stream"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func newTestServer(t *testing.T) (*HTTPServer, *a2ftest.Server) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	fake := a2ftest.NewServer(t)

	cfg := config.Default()
	cfg.A2F.BaseURL = fake.URL

	client, err := a2f.NewClient(a2f.Config{
		BaseURL:        cfg.A2F.BaseURL,
		PlayerInstance: cfg.A2F.PlayerInstance,
		LivelinkNode:   cfg.A2F.LivelinkNode,
		Timeout:        cfg.A2F.GetTimeoutDuration(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	m := metrics.NewMetrics()
	mgr := stream.NewManager(logger, client, stream.SessionConfig{
		InitSampleLength: cfg.Audio.InitSampleLength,
		InitSampleUnit:   audio.UnitBytes,
		ReadBufferSize:   cfg.Audio.ReadBufferSize,
	}, m)

	return NewHTTPServer(logger, cfg, mgr, client, m), fake
}

func postStreamAudio(h *HTTPServer, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/stream-audio", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, req)
	return rec
}

func get(h *HTTPServer, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func audioPathBody(path string) string {
	b, _ := json.Marshal(StreamAudioRequest{AudioPath: path})
	return string(b)
}

func TestStreamAudioRequiresPath(t *testing.T) {
	for name, body := range map[string]string{
		"empty body":  "",
		"empty json":  "{}",
		"empty path":  `{"audioPath":""}`,
		"other field": `{"path":"/tmp/a.wav"}`,
	} {
		t.Run(name, func(t *testing.T) {
			h, fake := newTestServer(t)

			rec := postStreamAudio(h, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, map[string]any{"error": "Audio path is required"}, decodeBody(t, rec))
			assert.Empty(t, fake.Calls(), "validation failures never reach Audio2Face")

			_, err := xid.FromString(rec.Header().Get("X-Request-Id"))
			assert.NoError(t, err)
		})
	}
}

func TestStreamAudioMalformedBody(t *testing.T) {
	h, fake := newTestServer(t)

	rec := postStreamAudio(h, `{"audioPath":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", decodeBody(t, rec)["error"])
	assert.Empty(t, fake.Calls())
}

func TestStreamAudioSuccess(t *testing.T) {
	h, fake := newTestServer(t)
	path, pcm := audiotest.WriteMono16(t, 16000, 32000)

	rec := postStreamAudio(h, audioPathBody(path))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]any{"message": "Streaming started successfully"}, decodeBody(t, rec))

	_, err := uuid.Parse(rec.Header().Get("X-Session-Id"))
	assert.NoError(t, err)

	assert.Equal(t, []string{
		a2ftest.KindPush, a2ftest.KindAct, a2ftest.KindPush, a2ftest.KindPush,
	}, fake.Kinds())

	calls := fake.Calls()
	assert.Equal(t, pcm[:1000], calls[0].Data)
	assert.Equal(t, pcm, append(append([]byte{}, calls[2].Data...), calls[3].Data...))

	// the session is gone once the request returns
	streams := decodeBody(t, get(h, "/streams"))
	assert.Equal(t, float64(0), streams["total_streams"])
}

func TestStreamAudioUnreadableFile(t *testing.T) {
	h, fake := newTestServer(t)

	rec := postStreamAudio(h, audioPathBody(filepath.Join(t.TempDir(), "missing.wav")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "failed to initialize Audio2Face")
	assert.Empty(t, fake.Calls())
}

func TestStreamAudioInitializationFailure(t *testing.T) {
	h, fake := newTestServer(t)
	fake.FailAct()
	path, _ := audiotest.WriteMono16(t, 8000, 8000)

	rec := postStreamAudio(h, audioPathBody(path))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "failed to initialize Audio2Face")
	assert.Equal(t, []string{a2ftest.KindPush, a2ftest.KindAct}, fake.Kinds())
}

func TestStreamAudioStopsAtFirstFailedChunk(t *testing.T) {
	h, fake := newTestServer(t)
	fake.FailPushAt(3)
	path, _ := audiotest.WriteMono16(t, 8000, 24000) // three chunks

	rec := postStreamAudio(h, audioPathBody(path))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "HTTP error 500")

	assert.Equal(t, []string{
		a2ftest.KindPush, a2ftest.KindAct, a2ftest.KindPush, a2ftest.KindPush,
	}, fake.Kinds(), "the third chunk is never sent")

	stats := decodeBody(t, get(h, "/stats"))
	streams := stats["streams"].(map[string]any)
	assert.Equal(t, float64(1), streams["failed_count"])
}

func TestStreamAudioMethodNotAllowed(t *testing.T) {
	h, _ := newTestServer(t)

	rec := get(h, "/stream-audio")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
}

// Concurrent requests each get their own initialization sequence.
func TestConcurrentStreamRequests(t *testing.T) {
	h, fake := newTestServer(t)
	path, _ := audiotest.WriteMono16(t, 8000, 12000)

	const requests = 2
	var g errgroup.Group
	for i := 0; i < requests; i++ {
		g.Go(func() error {
			rec := postStreamAudio(h, audioPathBody(path))
			assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, requests, fake.Count(a2ftest.KindAct))
	assert.Equal(t, requests*3, fake.Count(a2ftest.KindPush))
}

func TestMonitoringEndpoints(t *testing.T) {
	h, _ := newTestServer(t)
	path, _ := audiotest.WriteMono16(t, 8000, 4000)
	require.Equal(t, http.StatusOK, postStreamAudio(h, audioPathBody(path)).Code)

	t.Run("health", func(t *testing.T) {
		rec := get(h, "/health")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "healthy", body["status"])
		assert.Contains(t, body["components"], "audio2face")
	})

	t.Run("stats", func(t *testing.T) {
		body := decodeBody(t, get(h, "/stats"))
		streams := body["streams"].(map[string]any)
		assert.Equal(t, float64(1), streams["completed_count"])
		assert.Equal(t, float64(0), streams["active_count"])

		client := body["audio2face"].(map[string]any)
		assert.Equal(t, float64(3), client["total_requests"])
	})

	t.Run("config", func(t *testing.T) {
		body := decodeBody(t, get(h, "/config"))
		audioCfg := body["audio"].(map[string]any)
		assert.Equal(t, float64(1000), audioCfg["init_sample_length"])
		assert.Equal(t, "bytes", audioCfg["init_sample_unit"])
	})

	t.Run("unknown stream", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, get(h, "/streams/"+uuid.NewString()).Code)
		assert.Equal(t, http.StatusBadRequest, get(h, "/streams/").Code)
	})

	t.Run("index", func(t *testing.T) {
		body := decodeBody(t, get(h, "/"))
		assert.Contains(t, body["endpoints"], "POST /stream-audio")
		assert.Equal(t, http.StatusNotFound, get(h, "/nope").Code)
	})

	t.Run("metrics", func(t *testing.T) {
		rec := get(h, "/metrics")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `a2f_http_requests_total{endpoint="/stream-audio",method="POST",status_code="200"} 1`)
		assert.Contains(t, rec.Body.String(), "a2f_sessions_completed_total 1")
	})
}

func TestStopShutsDownIdleServer(t *testing.T) {
	h, _ := newTestServer(t)
	assert.NoError(t, h.Stop(context.Background()))
}
