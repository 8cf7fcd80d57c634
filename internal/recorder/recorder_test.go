package recorder

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ScheduledRecorder/internal/models"
	"ScheduledRecorder/internal/repository"
	"ScheduledRecorder/pkg/capture"
	"ScheduledRecorder/pkg/errors"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRepo(t *testing.T) *repository.Repository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, models.Migrate(db))
	repo, err := repository.New(repository.Options{DB: db, Dir: t.TempDir(), Workers: 2})
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		sqlDB.Close()
	})
	return repo
}

func newTestRecorder(t *testing.T, repo *repository.Repository, mod func(*Options)) *Recorder {
	t.Helper()
	opts := Options{
		Repo:              repo,
		TickInterval:      20 * time.Millisecond,
		AmplitudeInterval: 20 * time.Millisecond,
	}
	if mod != nil {
		mod(&opts)
	}
	r := New(opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Shutdown(ctx)
	})
	return r
}

func nextEvent(t *testing.T, ch <-chan Event, kind EventKind) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "observer channel closed while waiting for %s", kind)
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event", kind)
		}
	}
}

type failingDevice struct{ capture.Device }

func (failingDevice) Ext() string                            { return ".wav" }
func (failingDevice) Prepare(string, capture.Quality) error { return fmt.Errorf("device busy") }
func (failingDevice) Release()                               {}

func TestRecordingSessionEndToEnd(t *testing.T) {
	repo := newTestRepo(t)
	r := newTestRecorder(t, repo, nil)
	events, detach := r.Attach()
	defer detach()

	st, err := r.StartRecording(0)
	require.NoError(t, err)
	assert.Equal(t, PhaseRecording, st.Phase)
	assert.Equal(t, OriginManual, st.Origin)
	assert.True(t, st.Bound)
	started := nextEvent(t, events, EventStarted)
	assert.Equal(t, st.SessionID, started.SessionID)

	tick := nextEvent(t, events, EventTick)
	assert.GreaterOrEqual(t, tick.Seconds, 1)
	nextEvent(t, events, EventAmplitude)

	time.Sleep(200 * time.Millisecond)
	_, err = r.StopRecording()
	require.NoError(t, err)
	stopped := nextEvent(t, events, EventStopped)
	assert.NotEmpty(t, stopped.Path)
	assert.Equal(t, PhaseIdle, r.Status().Phase)

	var all []models.SavedRecording
	require.Eventually(t, func() bool {
		all, err = repo.GetAllRecordings(context.Background())
		return err == nil && len(all) == 1
	}, 3*time.Second, 20*time.Millisecond)
	assert.Greater(t, all[0].Length, int64(0))
	assert.Equal(t, stopped.Path, all[0].FilePath)
	assert.Equal(t, filepath.Base(stopped.Path), all[0].Name+".wav")
	assert.FileExists(t, all[0].FilePath)
}

func TestInvalidTransitionsAreRejected(t *testing.T) {
	r := newTestRecorder(t, newTestRepo(t), nil)

	_, err := r.StopRecording()
	assert.True(t, errors.Is(err, ErrNotRecording))

	_, err = r.StartRecording(0)
	require.NoError(t, err)
	_, err = r.StartRecording(0)
	assert.True(t, errors.Is(err, ErrAlreadyRecording))
	assert.Equal(t, errors.CodeAlreadyRecording, errors.GetCode(err))

	_, err = r.StopRecording()
	require.NoError(t, err)
}

func TestCaptureFailureLeavesServiceIdle(t *testing.T) {
	repo := newTestRepo(t)
	r := newTestRecorder(t, repo, func(o *Options) {
		o.Factory = func() capture.Device { return failingDevice{} }
	})
	_, err := r.StartRecording(0)
	assert.Equal(t, errors.CodeCaptureFailed, errors.GetCode(err))
	assert.Equal(t, PhaseIdle, r.Status().Phase)

	n, err := repo.CountRecordings(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMaxDurationStopsAndReleasesWhenUnbound(t *testing.T) {
	repo := newTestRepo(t)
	idle := make(chan struct{}, 1)
	r := newTestRecorder(t, repo, func(o *Options) {
		o.OnIdle = func() { idle <- struct{}{} }
	})

	_, err := r.StartRecording(150 * time.Millisecond)
	require.NoError(t, err)
	select {
	case <-idle:
	case <-time.After(3 * time.Second):
		t.Fatal("recording did not auto-stop")
	}
	assert.Equal(t, PhaseIdle, r.Status().Phase)
}

func TestBoundStopDoesNotReleaseHold(t *testing.T) {
	var idled int32
	r := newTestRecorder(t, newTestRepo(t), func(o *Options) {
		o.OnIdle = func() { atomic.AddInt32(&idled, 1) }
	})
	_, detach := r.Attach()
	defer detach()
	_, err := r.StartRecording(0)
	require.NoError(t, err)
	_, err = r.StopRecording()
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&idled))
}

func TestAttachReplacesObserver(t *testing.T) {
	r := newTestRecorder(t, newTestRepo(t), nil)
	first, detachFirst := r.Attach()
	second, detachSecond := r.Attach()

	_, ok := <-first
	assert.False(t, ok, "replaced observer channel should be closed")

	// stale detach must not clear the newer observer
	detachFirst()
	assert.True(t, r.Status().Bound)

	_, err := r.StartRecording(0)
	require.NoError(t, err)
	nextEvent(t, second, EventStarted)

	detachSecond()
	assert.False(t, r.Status().Bound)
	assert.Equal(t, PhaseRecording, r.Status().Phase, "detach does not touch the recording")
}

func TestHeadlessSkipsWindowWithoutPermission(t *testing.T) {
	repo := newTestRepo(t)
	var triggers int32
	r := newTestRecorder(t, repo, func(o *Options) {
		o.Permissions = func() error { return fmt.Errorf("microphone revoked") }
		o.Trigger = func(string) { atomic.AddInt32(&triggers, 1) }
	})
	now := time.Now()
	require.NoError(t, repo.InsertScheduledRecording(context.Background(), &models.ScheduledRecording{
		Start: now.UnixMilli(), End: now.Add(time.Minute).UnixMilli(),
	}))

	require.NoError(t, r.StartHeadless(context.Background()))
	assert.Equal(t, PhaseIdle, r.Status().Phase)
	assert.Equal(t, int32(1), atomic.LoadInt32(&triggers))
	n, err := repo.CountScheduledRecordings(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "window is consumed even when skipped")
}

func TestHeadlessWithNothingScheduled(t *testing.T) {
	var triggers int32
	r := newTestRecorder(t, newTestRepo(t), func(o *Options) {
		o.Trigger = func(string) { atomic.AddInt32(&triggers, 1) }
	})
	require.NoError(t, r.StartHeadless(context.Background()))
	assert.Equal(t, PhaseIdle, r.Status().Phase)
	assert.Equal(t, int32(1), atomic.LoadInt32(&triggers))
}

func TestHeadlessRecordsWindow(t *testing.T) {
	repo := newTestRepo(t)
	r := newTestRecorder(t, repo, nil)
	now := time.Now()
	require.NoError(t, repo.InsertScheduledRecording(context.Background(), &models.ScheduledRecording{
		Start: now.UnixMilli(), End: now.Add(time.Minute).UnixMilli(),
	}))
	require.NoError(t, r.StartHeadless(context.Background()))
	st := r.Status()
	assert.Equal(t, PhaseRecording, st.Phase)
	assert.Equal(t, OriginScheduled, st.Origin)
	assert.InDelta(t, time.Minute.Seconds(), st.MaxDuration.Seconds(), 1)
}

func TestHeadlessLeavesFutureWindowForItsOwnWakeUp(t *testing.T) {
	repo := newTestRepo(t)
	var reasons []string
	var mu sync.Mutex
	r := newTestRecorder(t, repo, func(o *Options) {
		o.Trigger = func(reason string) {
			mu.Lock()
			reasons = append(reasons, reason)
			mu.Unlock()
		}
	})
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, repo.InsertScheduledRecording(ctx, &models.ScheduledRecording{
		Start: now.UnixMilli(), End: now.Add(time.Minute).UnixMilli(),
	}))
	later := &models.ScheduledRecording{Start: now.Add(time.Hour).UnixMilli(), End: now.Add(2 * time.Hour).UnixMilli()}
	require.NoError(t, repo.InsertScheduledRecording(ctx, later))

	// two wake-ups back to back, the second one stale
	require.NoError(t, r.StartHeadless(ctx))
	require.NoError(t, r.StartHeadless(ctx))

	assert.Equal(t, PhaseRecording, r.Status().Phase)
	n, err := repo.CountScheduledRecordings(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	got, err := repo.GetScheduledRecordingByID(ctx, later.ID)
	require.NoError(t, err)
	assert.Equal(t, later.Start, got.Start)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"schedule-consumed", "headless-early"}, reasons)
}

func TestShutdownStopsActiveRecording(t *testing.T) {
	repo := newTestRepo(t)
	r := New(Options{Repo: repo})
	_, err := r.StartRecording(0)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))
	require.NoError(t, r.Shutdown(ctx))

	_, err = r.StartRecording(0)
	assert.True(t, errors.Is(err, ErrShutdown))
	require.Eventually(t, func() bool {
		n, err := repo.CountRecordings(context.Background())
		return err == nil && n == 1
	}, 3*time.Second, 20*time.Millisecond)
}
