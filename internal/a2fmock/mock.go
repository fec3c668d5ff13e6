// Package a2fmock implements a stand-in for the Audio2Face REST endpoints the
// service calls. It records every call and can inject failures, which makes it
// usable both for local development and as a test double.
package a2fmock

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	KindPush = "push"
	KindAct  = "act"

	PushAudioPath   = "/A2F/Player/PushAudioStream"
	ExporterActPath = "/A2F/Exporter/Act"
)

// Call is one request received by the mock.
type Call struct {
	Kind       string
	Data       []byte // decoded audio_data for pushes
	SampleRate int
	Instance   string
	NodePath   string
	Value      bool
	ReceivedAt time.Time
}

// Options tune how the mock answers.
type Options struct {
	// Latency is slept before every answer.
	Latency time.Duration
	// FailPushAt makes the n-th push (1-based) fail; 0 never fails.
	FailPushAt int
	// FailAct makes every exporter call fail.
	FailAct bool
}

// Mock serves the Audio2Face player and exporter endpoints.
type Mock struct {
	logger *slog.Logger
	mux    *http.ServeMux

	mu      sync.Mutex
	options Options
	calls   []Call
	pushes  int
}

type pushRequest struct {
	AudioData  string `json:"audio_data"`
	SampleRate int    `json:"sample_rate"`
	Instance   string `json:"instance"`
}

type actRequest struct {
	NodePath string `json:"node_path"`
	Value    bool   `json:"value"`
}

// New creates a mock. A nil logger discards request logs.
func New(logger *slog.Logger, options Options) *Mock {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	m := &Mock{
		logger:  logger,
		mux:     http.NewServeMux(),
		options: options,
	}
	m.mux.HandleFunc(PushAudioPath, m.handlePush)
	m.mux.HandleFunc(ExporterActPath, m.handleAct)

	return m
}

func (m *Mock) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mux.ServeHTTP(w, r)
}

func (m *Mock) handlePush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req pushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Error parsing body", http.StatusBadRequest)
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.AudioData)
	if err != nil {
		http.Error(w, "audio_data is not base64", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.pushes++
	index := m.pushes
	fail := m.options.FailPushAt != 0 && index == m.options.FailPushAt
	latency := m.options.Latency
	m.calls = append(m.calls, Call{
		Kind:       KindPush,
		Data:       data,
		SampleRate: req.SampleRate,
		Instance:   req.Instance,
		ReceivedAt: time.Now(),
	})
	m.mu.Unlock()

	m.logger.Info("Audio pushed",
		slog.Int("push", index),
		slog.Int("bytes", len(data)),
		slog.Int("sample_rate", req.SampleRate),
		slog.String("instance", req.Instance),
		slog.Bool("injected_failure", fail),
	)

	m.reply(w, latency, fail)
}

func (m *Mock) handleAct(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req actRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Error parsing body", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	fail := m.options.FailAct
	latency := m.options.Latency
	m.calls = append(m.calls, Call{
		Kind:       KindAct,
		NodePath:   req.NodePath,
		Value:      req.Value,
		ReceivedAt: time.Now(),
	})
	m.mu.Unlock()

	m.logger.Info("Exporter flag set",
		slog.String("node_path", req.NodePath),
		slog.Bool("value", req.Value),
		slog.Bool("injected_failure", fail),
	)

	m.reply(w, latency, fail)
}

func (m *Mock) reply(w http.ResponseWriter, latency time.Duration, fail bool) {
	if latency > 0 {
		time.Sleep(latency)
	}

	w.Header().Set("Content-Type", "application/json")
	if fail {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"status": "ERROR", "message": "injected failure"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "OK", "message": "Set"})
}

// FailPushAt makes the n-th push (1-based, counting initial samples) fail.
func (m *Mock) FailPushAt(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.options.FailPushAt = n
}

// FailAct makes every exporter call fail.
func (m *Mock) FailAct() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.options.FailAct = true
}

// Calls returns a copy of the calls received so far.
func (m *Mock) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Kinds returns the kind of every call, in arrival order.
func (m *Mock) Kinds() []string {
	calls := m.Calls()
	kinds := make([]string, len(calls))
	for i, c := range calls {
		kinds[i] = c.Kind
	}
	return kinds
}

// Count returns how many calls of kind were received.
func (m *Mock) Count(kind string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Kind == kind {
			n++
		}
	}
	return n
}
