package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/a2f-stream-service/internal/metrics"
)

// ErrManagerStopped is returned for sessions requested after Stop.
var ErrManagerStopped = errors.New("stream manager stopped")

// Manager creates a fresh Session for every request and tracks the ones in flight
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	logger   *slog.Logger

	remote  Remote
	config  SessionConfig
	metrics *metrics.Metrics

	inFlight sync.WaitGroup
	stopped  bool
}

// NewManager creates a new stream manager
func NewManager(logger *slog.Logger, remote Remote, config SessionConfig, m *metrics.Metrics) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		logger:   logger,
		remote:   remote,
		config:   config,
		metrics:  m,
	}
}

// CreateSession registers a new uninitialized session for audioPath
func (m *Manager) CreateSession(audioPath string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, ErrManagerStopped
	}

	id := uuid.New().String()
	session := NewSession(id, audioPath, m.remote, m.config, m.logger, m.metrics)
	m.sessions[id] = session
	m.inFlight.Add(1)
	m.metrics.RecordSessionCreated()

	m.logger.Info("Created new streaming session",
		slog.String("session_id", id),
		slog.String("audio_path", audioPath),
	)

	return session, nil
}

// Run streams audioPath through a new session and removes the session afterwards.
// It blocks until the whole file has been forwarded or the session failed.
func (m *Manager) Run(ctx context.Context, audioPath string) (SessionInfo, error) {
	session, err := m.CreateSession(audioPath)
	if err != nil {
		return SessionInfo{}, err
	}
	defer m.RemoveSession(session.ID)

	err = session.Stream(ctx)
	elapsed := time.Since(session.StartTime).Seconds()
	if err != nil {
		m.metrics.RecordSessionFailed(session.FailedStage(), elapsed)
	} else {
		m.metrics.RecordSessionCompleted(elapsed)
	}

	return session.Info(), err
}

// GetSession retrieves an existing session
func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	return session, exists
}

// GetActiveSessionCount returns the number of sessions in flight
func (m *Manager) GetActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// GetAllSessions returns the sessions in flight
func (m *Manager) GetAllSessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

// RemoveSession forgets a session; it reports whether the session existed
func (m *Manager) RemoveSession(id string) bool {
	m.mu.Lock()
	session, exists := m.sessions[id]
	if exists {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !exists {
		return false
	}

	m.inFlight.Done()

	info := session.Info()
	m.logger.Info("Removed streaming session",
		slog.String("session_id", id),
		slog.String("state", info.State),
		slog.Uint64("chunks_sent", info.ChunksSent),
		slog.Duration("duration", info.Duration),
	)

	return true
}

// Stop refuses new sessions and waits for in-flight ones until ctx is done
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.stopped = true
	active := len(m.sessions)
	m.mu.Unlock()

	m.logger.Info("Stopping stream manager...", slog.Int("active_sessions", active))

	done := make(chan struct{})
	go func() {
		m.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("Stream manager stopped")
		return nil
	case <-ctx.Done():
		m.logger.Warn("Stream manager stopped with sessions in flight",
			slog.Int("remaining_sessions", m.GetActiveSessionCount()),
		)
		return ctx.Err()
	}
}
