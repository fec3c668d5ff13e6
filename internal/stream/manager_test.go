package stream

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/skypro1111/a2f-stream-service/internal/a2ftest"
	"github.com/skypro1111/a2f-stream-service/internal/audiotest"
	"github.com/skypro1111/a2f-stream-service/internal/metrics"
)

func newTestManager(t *testing.T) (*Manager, *a2ftest.Server, *metrics.Metrics) {
	t.Helper()

	client, fake := newTestRemote(t)
	m := metrics.NewMetrics()
	return NewManager(testLogger(), client, defaultSessionConfig(), m), fake, m
}

func TestNewManager(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	assert.Equal(t, 0, mgr.GetActiveSessionCount())
	assert.Empty(t, mgr.GetAllSessions())
}

func TestCreateSession(t *testing.T) {
	mgr, _, m := newTestManager(t)

	a, err := mgr.CreateSession("/tmp/a.wav")
	require.NoError(t, err)
	b, err := mgr.CreateSession("/tmp/a.wav")
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID, "every request gets its own session")
	assert.Equal(t, StateUninitialized, a.State())
	assert.Equal(t, 2, mgr.GetActiveSessionCount())
	assert.Equal(t, float64(2), testutil.ToFloat64(m.SessionsCreated))

	got, ok := mgr.GetSession(a.ID)
	require.True(t, ok)
	assert.Same(t, a, got)

	assert.True(t, mgr.RemoveSession(a.ID))
	assert.False(t, mgr.RemoveSession(a.ID))
	_, ok = mgr.GetSession(a.ID)
	assert.False(t, ok)

	assert.True(t, mgr.RemoveSession(b.ID))
	assert.Equal(t, 0, mgr.GetActiveSessionCount())
}

func TestRunStreamsAndForgetsSession(t *testing.T) {
	mgr, fake, m := newTestManager(t)
	path, pcm := audiotest.WriteMono16(t, 16000, 32000)

	info, err := mgr.Run(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "completed", info.State)
	assert.Equal(t, uint64(2), info.ChunksSent)
	assert.Equal(t, uint64(len(pcm)), info.BytesSent)
	assert.NotEmpty(t, info.SessionID)

	assert.Equal(t, 0, mgr.GetActiveSessionCount())
	assert.Equal(t, 4, len(fake.Calls()))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionsCompleted))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ChunksForwarded))
}

func TestRunRecordsFailureStage(t *testing.T) {
	mgr, fake, m := newTestManager(t)

	_, err := mgr.Run(context.Background(), filepath.Join(t.TempDir(), "missing.wav"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInitializationFailed)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionsFailed.WithLabelValues("initialize")))

	path, _ := audiotest.WriteMono16(t, 8000, 24000)
	fake.FailPushAt(2)
	info, err := mgr.Run(context.Background(), path)
	require.Error(t, err)
	assert.Equal(t, "failed", info.State)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionsFailed.WithLabelValues("stream")))

	assert.Equal(t, 0, mgr.GetActiveSessionCount())
}

// Concurrent requests must each run their own setup sequence.
func TestConcurrentRunsInitializeIndependently(t *testing.T) {
	mgr, fake, _ := newTestManager(t)
	path, _ := audiotest.WriteMono16(t, 8000, 16000)

	const requests = 4
	var g errgroup.Group
	for i := 0; i < requests; i++ {
		g.Go(func() error {
			_, err := mgr.Run(context.Background(), path)
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, requests, fake.Count(a2ftest.KindAct))
	// one initial sample plus two chunks per request
	assert.Equal(t, requests*3, fake.Count(a2ftest.KindPush))
}

func TestStopRejectsNewSessions(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	require.NoError(t, mgr.Stop(context.Background()))

	_, err := mgr.CreateSession("/tmp/a.wav")
	assert.ErrorIs(t, err, ErrManagerStopped)

	_, err = mgr.Run(context.Background(), "/tmp/a.wav")
	assert.ErrorIs(t, err, ErrManagerStopped)
}

func TestStopWaitsForInFlightSessions(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	session, err := mgr.CreateSession("/tmp/a.wav")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, mgr.Stop(ctx), context.DeadlineExceeded)

	mgr.RemoveSession(session.ID)
	assert.NoError(t, mgr.Stop(context.Background()))
}
