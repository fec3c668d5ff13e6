package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/skypro1111/a2f-stream-service/internal/a2f"
	"github.com/skypro1111/a2f-stream-service/internal/audio"
	"github.com/skypro1111/a2f-stream-service/internal/metrics"
)

var (
	ErrInitializationFailed = errors.New("failed to initialize Audio2Face")
	ErrStreamFailed         = errors.New("streaming failed")
	ErrSessionFinished      = errors.New("session already finished")
)

// State is the lifecycle stage of a Session
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateStreaming
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Remote is the part of the Audio2Face client a session talks to.
type Remote interface {
	PushAudio(ctx context.Context, data []byte, sampleRate int) (*a2f.Response, error)
	EnableLivelink(ctx context.Context) (*a2f.Response, error)
}

// SessionConfig controls how a session reads and initializes
type SessionConfig struct {
	InitSampleLength int
	InitSampleUnit   audio.SampleUnit
	ReadBufferSize   int
}

// Session streams one audio file to Audio2Face. Initialization state belongs
// to the session, so every request gets its own setup sequence.
type Session struct {
	ID        string
	AudioPath string
	StartTime time.Time

	remote  Remote
	config  SessionConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	state       State
	initialized bool
	format      audio.Format
	bytesRead   int64
	chunksSent  uint64
	bytesSent   uint64
	lastError   string
	failedStage string
	endTime     time.Time

	mu sync.RWMutex
}

// SessionInfo is a point-in-time view of a session for the monitoring API
type SessionInfo struct {
	SessionID   string        `json:"session_id"`
	AudioPath   string        `json:"audio_path"`
	State       string        `json:"state"`
	Initialized bool          `json:"initialized"`
	Format      *audio.Format `json:"format,omitempty"`
	StartTime   time.Time     `json:"start_time"`
	Duration    time.Duration `json:"duration"`
	BytesRead   int64         `json:"bytes_read"`
	ChunksSent  uint64        `json:"chunks_sent"`
	BytesSent   uint64        `json:"bytes_sent"`
	LastError   string        `json:"last_error,omitempty"`
}

// NewSession creates a session in the uninitialized state
func NewSession(id, audioPath string, remote Remote, config SessionConfig, logger *slog.Logger, m *metrics.Metrics) *Session {
	return &Session{
		ID:        id,
		AudioPath: audioPath,
		StartTime: time.Now(),
		remote:    remote,
		config:    config,
		logger: logger.With(
			slog.String("session_id", id),
			slog.String("audio_path", audioPath),
		),
		metrics: m,
		state:   StateUninitialized,
	}
}

// Initialize pushes the initial sample and enables livelink. It does nothing
// when the session is already initialized. On failure the session stays
// uninitialized and the error wraps ErrInitializationFailed.
func (s *Session) Initialize(ctx context.Context) error {
	if s.IsInitialized() {
		return nil
	}

	format, err := audio.ReadFormat(s.AudioPath)
	if err != nil {
		return s.initFailed(err)
	}

	size := audio.InitSampleSize(format, s.config.InitSampleLength, s.config.InitSampleUnit)
	sample, err := audio.ReadInitialSample(s.AudioPath, size)
	if err != nil {
		return s.initFailed(err)
	}

	return s.initialize(ctx, format, sample)
}

// Stream initializes the session if needed and forwards the whole file in
// chunks of format.ChunkSize() bytes, in file order, one request at a time.
// The file is read in a single pass: the buffers consumed for the initial
// sample are kept and streamed first.
func (s *Session) Stream(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateCompleted || s.state == StateFailed {
		s.mu.Unlock()
		return ErrSessionFinished
	}
	s.mu.Unlock()

	src, err := audio.Open(s.AudioPath, s.config.ReadBufferSize)
	if err != nil {
		if !s.IsInitialized() {
			return s.fail("initialize", fmt.Errorf("%w: %w", ErrStreamFailed, s.initFailed(err)))
		}
		return s.fail("stream", err)
	}
	defer src.Close()

	format := src.Format()

	var retained [][]byte
	if !s.IsInitialized() {
		size := audio.InitSampleSize(format, s.config.InitSampleLength, s.config.InitSampleUnit)

		var sample []byte
		sample, retained, err = readInitialBuffers(src, size)
		if err != nil {
			return s.fail("initialize", fmt.Errorf("%w: %w", ErrStreamFailed, s.initFailed(err)))
		}

		if err := s.initialize(ctx, format, sample); err != nil {
			return s.fail("initialize", fmt.Errorf("%w: %w", ErrStreamFailed, err))
		}
	}

	chunker, err := audio.NewChunker(format.ChunkSize())
	if err != nil {
		return s.fail("stream", fmt.Errorf("invalid format %+v: %w", format, err))
	}

	s.setState(StateStreaming)
	s.logger.Debug("Streaming audio",
		slog.Int("sample_rate", format.SampleRate),
		slog.Int("bytes_per_sample", format.BytesPerSample),
		slog.Int("chunk_size", chunker.Size()),
		slog.Int("data_size", src.DataSize()),
	)

	for _, buf := range retained {
		if err := s.forward(ctx, chunker, buf, format.SampleRate); err != nil {
			return s.fail("stream", err)
		}
	}

	for {
		buf, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return s.fail("stream", err)
		}

		s.mu.Lock()
		s.bytesRead = src.BytesRead()
		s.mu.Unlock()

		if err := s.forward(ctx, chunker, buf, format.SampleRate); err != nil {
			return s.fail("stream", err)
		}
	}

	if last := chunker.Flush(); last != nil {
		if err := s.pushChunk(ctx, last, format.SampleRate); err != nil {
			return s.fail("stream", err)
		}
	}

	s.mu.Lock()
	s.bytesRead = src.BytesRead()
	s.state = StateCompleted
	s.endTime = time.Now()
	s.mu.Unlock()

	stats := chunker.GetStats()
	s.logger.Info("Audio streamed to Audio2Face",
		slog.Uint64("chunks", stats.ChunksCreated),
		slog.Uint64("bytes", stats.BytesOut),
		slog.Duration("elapsed", time.Since(s.StartTime)),
	)

	return nil
}

// initialize runs the one-time setup sequence with an already read sample
func (s *Session) initialize(ctx context.Context, format audio.Format, sample []byte) error {
	s.setState(StateInitializing)

	if err := s.push(ctx, sample, format.SampleRate); err != nil {
		return s.initFailed(fmt.Errorf("push initial sample: %w", err))
	}

	start := time.Now()
	_, err := s.remote.EnableLivelink(ctx)
	s.metrics.RecordRemoteRequest("enable_livelink", err == nil, time.Since(start).Seconds())
	if err != nil {
		return s.initFailed(fmt.Errorf("enable livelink: %w", err))
	}

	s.mu.Lock()
	s.initialized = true
	s.format = format
	s.state = StateReady
	s.mu.Unlock()

	s.logger.Info("Audio2Face initialized",
		slog.Int("sample_rate", format.SampleRate),
		slog.Int("init_sample_bytes", len(sample)),
	)

	return nil
}

func (s *Session) initFailed(err error) error {
	s.mu.Lock()
	s.state = StateUninitialized
	s.lastError = err.Error()
	s.mu.Unlock()

	s.logger.Error("Initialization failed", slog.String("error", err.Error()))

	return fmt.Errorf("%w: %w", ErrInitializationFailed, err)
}

// forward feeds buf to the chunker and pushes every chunk it completes
func (s *Session) forward(ctx context.Context, chunker *audio.Chunker, buf []byte, sampleRate int) error {
	for _, chunk := range chunker.Write(buf) {
		if err := s.pushChunk(ctx, chunk, sampleRate); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) pushChunk(ctx context.Context, chunk []byte, sampleRate int) error {
	if err := s.push(ctx, chunk, sampleRate); err != nil {
		return fmt.Errorf("push chunk %d: %w", s.ChunksSent()+1, err)
	}

	s.mu.Lock()
	s.chunksSent++
	s.bytesSent += uint64(len(chunk))
	s.mu.Unlock()

	s.metrics.RecordChunkForwarded(len(chunk))
	return nil
}

func (s *Session) push(ctx context.Context, data []byte, sampleRate int) error {
	start := time.Now()
	_, err := s.remote.PushAudio(ctx, data, sampleRate)
	s.metrics.RecordRemoteRequest("push_audio", err == nil, time.Since(start).Seconds())
	return err
}

// fail moves the session to its terminal failed state
func (s *Session) fail(stage string, err error) error {
	s.mu.Lock()
	s.state = StateFailed
	s.failedStage = stage
	s.lastError = err.Error()
	s.endTime = time.Now()
	s.mu.Unlock()

	s.logger.Error("Streaming session failed",
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)

	return err
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsInitialized reports whether the setup sequence has completed for this session
func (s *Session) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// ChunksSent returns the number of stream chunks accepted by Audio2Face
func (s *Session) ChunksSent() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chunksSent
}

// FailedStage returns "initialize" or "stream" for failed sessions, empty otherwise
func (s *Session) FailedStage() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failedStage
}

// Info returns a snapshot of the session
func (s *Session) Info() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	end := s.endTime
	if end.IsZero() {
		end = time.Now()
	}

	info := SessionInfo{
		SessionID:   s.ID,
		AudioPath:   s.AudioPath,
		State:       s.state.String(),
		Initialized: s.initialized,
		StartTime:   s.StartTime,
		Duration:    end.Sub(s.StartTime),
		BytesRead:   s.bytesRead,
		ChunksSent:  s.chunksSent,
		BytesSent:   s.bytesSent,
		LastError:   s.lastError,
	}
	if s.initialized {
		format := s.format
		info.Format = &format
	}

	return info
}

// readInitialBuffers reads until size bytes are available (or the file ends)
// and returns the first size bytes along with every buffer consumed.
func readInitialBuffers(src *audio.Source, size int) ([]byte, [][]byte, error) {
	var (
		retained [][]byte
		total    int
	)

	for total < size {
		buf, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		retained = append(retained, buf)
		total += len(buf)
	}

	sample := make([]byte, 0, min(total, max(size, 0)))
	for _, buf := range retained {
		if len(sample) >= size {
			break
		}
		sample = append(sample, buf[:min(len(buf), size-len(sample))]...)
	}

	return sample, retained, nil
}
