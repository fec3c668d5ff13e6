package a2fmock

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func post(m *Mock, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	return rec
}

func TestMockRecordsCalls(t *testing.T) {
	m := New(nil, Options{})

	audio := base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4})
	rec := post(m, PushAudioPath, `{"audio_data":"`+audio+`","sample_rate":16000,"instance":"/World/audio2face/Player"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"OK","message":"Set"}`, rec.Body.String())

	rec = post(m, ExporterActPath, `{"node_path":"/World/audio2face/StreamLivelink","value":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	calls := m.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []byte{1, 2, 3, 4}, calls[0].Data)
	assert.Equal(t, 16000, calls[0].SampleRate)
	assert.Equal(t, "/World/audio2face/StreamLivelink", calls[1].NodePath)
	assert.True(t, calls[1].Value)
	assert.Equal(t, []string{KindPush, KindAct}, m.Kinds())
}

func TestMockInjectsFailures(t *testing.T) {
	m := New(nil, Options{FailPushAt: 2})

	assert.Equal(t, http.StatusOK, post(m, PushAudioPath, `{"audio_data":""}`).Code)
	assert.Equal(t, http.StatusInternalServerError, post(m, PushAudioPath, `{"audio_data":""}`).Code)
	assert.Equal(t, http.StatusOK, post(m, PushAudioPath, `{"audio_data":""}`).Code)

	m.FailAct()
	assert.Equal(t, http.StatusInternalServerError, post(m, ExporterActPath, `{"node_path":"/n","value":true}`).Code)
	assert.Equal(t, 3, m.Count(KindPush))
	assert.Equal(t, 1, m.Count(KindAct))
}

func TestMockRejectsBadRequests(t *testing.T) {
	m := New(nil, Options{})

	assert.Equal(t, http.StatusBadRequest, post(m, PushAudioPath, `{"audio_data":"%%%"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(m, ExporterActPath, `not json`).Code)

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, PushAudioPath, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	assert.Empty(t, m.Calls(), "rejected requests are not recorded")
}

func TestMockLatency(t *testing.T) {
	m := New(nil, Options{Latency: 30 * time.Millisecond})

	start := time.Now()
	post(m, ExporterActPath, `{"node_path":"/n","value":true}`)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}
