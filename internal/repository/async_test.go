package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ScheduledRecorder/internal/models"
	"ScheduledRecorder/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func await[T any](t *testing.T, call func(cb func(T, error))) (T, error) {
	t.Helper()
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 2)
	call(func(v T, err error) { ch <- result{v, err} })
	select {
	case res := <-ch:
		select {
		case <-ch:
			t.Fatal("callback delivered twice")
		case <-time.After(20 * time.Millisecond):
		}
		return res.v, res.err
	case <-time.After(2 * time.Second):
		t.Fatal("callback never delivered")
	}
	var zero T
	return zero, nil
}

func awaitErr(t *testing.T, call func(cb func(error))) error {
	t.Helper()
	_, err := await(t, func(cb func(struct{}, error)) {
		call(func(err error) { cb(struct{}{}, err) })
	})
	return err
}

func TestAsyncScheduleRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	a := r.Async()

	s := &models.ScheduledRecording{Start: 1000, End: 2000}
	require.NoError(t, awaitErr(t, func(cb func(error)) { a.InsertScheduledRecording(s, cb) }))

	got, err := await(t, func(cb func(*models.ScheduledRecording, error)) { a.GetScheduledRecordingByID(s.ID, cb) })
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.Start)

	s.End = 3000
	require.NoError(t, awaitErr(t, func(cb func(error)) { a.UpdateScheduledRecording(s, cb) }))

	n, err := await(t, func(cb func(int64, error)) { a.CountOverlapping(2500, 2600, models.NoExclusion, cb) })
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	list, err := await(t, func(cb func([]models.ScheduledRecording, error)) { a.ScheduledRecordingsBetween(0, 1000, cb) })
	require.NoError(t, err)
	assert.Len(t, list, 1)

	next, err := await(t, func(cb func(*models.ScheduledRecording, error)) { a.NextScheduledRecording(cb) })
	require.NoError(t, err)
	assert.Equal(t, s.ID, next.ID)

	require.NoError(t, awaitErr(t, func(cb func(error)) { a.DeleteScheduledRecording(s, cb) }))
	err = awaitErr(t, func(cb func(error)) { a.DeleteScheduledRecording(s, cb) })
	assert.True(t, errors.Is(err, models.ErrNotFound))

	_, err = await(t, func(cb func(*models.ScheduledRecording, error)) { a.NextScheduledRecording(cb) })
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestAsyncPolicyFailuresCarryCodes(t *testing.T) {
	r := newTestRepo(t)
	a := r.Async()

	_, err := await(t, func(cb func(*models.ScheduledRecording, error)) {
		a.ScheduleRecording(ms(-time.Hour), ms(time.Hour), cb)
	})
	assert.Equal(t, errors.CodeTimeInPast, errors.GetCode(err))

	s, err := await(t, func(cb func(*models.ScheduledRecording, error)) {
		a.ScheduleRecording(ms(time.Hour), ms(2*time.Hour), cb)
	})
	require.NoError(t, err)
	_, err = await(t, func(cb func(*models.ScheduledRecording, error)) {
		a.ScheduleRecording(ms(90*time.Minute), ms(3*time.Hour), cb)
	})
	assert.Equal(t, errors.CodeAlreadyScheduled, errors.GetCode(err))

	_, err = await(t, func(cb func(*models.ScheduledRecording, error)) {
		a.EditScheduledRecording(s.ID, ms(3*time.Hour), ms(4*time.Hour), cb)
	})
	require.NoError(t, err)
}

func TestAsyncCallbacksRunOnOneGoroutineInOrder(t *testing.T) {
	r := newTestRepo(t)
	a := r.Async()

	var mu sync.Mutex
	active := 0
	maxActive := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		a.CountScheduledRecordings(func(int64, error) {
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()
	assert.Equal(t, 1, maxActive)
}

func TestLiveViews(t *testing.T) {
	r := newTestRepo(t)
	a := r.Async()

	updates := make(chan []models.ScheduledRecording, 16)
	cancel := a.ScheduledRecordings(func(list []models.ScheduledRecording) { updates <- list })
	defer cancel()

	select {
	case list := <-updates:
		assert.Empty(t, list)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}

	require.NoError(t, awaitErr(t, func(cb func(error)) {
		a.InsertScheduledRecording(&models.ScheduledRecording{Start: 10, End: 20}, cb)
	}))
	require.Eventually(t, func() bool {
		for {
			select {
			case list := <-updates:
				if len(list) == 1 && list[0].Start == 10 {
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 10*time.Millisecond)

	recs := make(chan []models.SavedRecording, 16)
	cancelRecs := a.Recordings(func(list []models.SavedRecording) { recs <- list })
	<-recs
	cancelRecs()
	require.NoError(t, awaitErr(t, func(cb func(error)) {
		a.InsertRecording(&models.SavedRecording{Name: "r", FilePath: "/r", TimeAdded: 1}, cb)
	}))
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, recs, 0, "cancelled subscriber still notified")
}

func TestLiveViewDropsStaleSnapshot(t *testing.T) {
	r := newTestRepo(t)

	var calls atomic.Int32
	slowStarted := make(chan struct{})
	release := make(chan struct{})
	v := newLiveView(r, "stale", func(ctx context.Context) (int, error) {
		switch calls.Add(1) {
		case 1:
			return 0, nil
		case 2:
			close(slowStarted)
			<-release
			return 1, nil
		default:
			return 2, nil
		}
	})

	var mu sync.Mutex
	var got []int
	last := func() (int, int) {
		mu.Lock()
		defer mu.Unlock()
		if len(got) == 0 {
			return -1, 0
		}
		return got[len(got)-1], len(got)
	}
	cancel := v.subscribe(func(n int) {
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
	})
	defer cancel()
	require.Eventually(t, func() bool { n, _ := last(); return n == 0 }, 2*time.Second, 5*time.Millisecond)

	v.refresh()
	select {
	case <-slowStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("slow load never started")
	}
	v.refresh()
	require.Eventually(t, func() bool { n, _ := last(); return n == 2 }, 2*time.Second, 5*time.Millisecond)

	close(release)
	time.Sleep(100 * time.Millisecond)
	n, count := last()
	assert.Equal(t, 2, n, "older snapshot published after newer one")
	assert.Equal(t, 2, count)
	assert.Equal(t, int32(3), calls.Load())
}

func TestAsyncAfterCloseFailsWithClosed(t *testing.T) {
	r := newTestRepo(t)
	r.io.Close()
	err := awaitErr(t, func(cb func(error)) { r.Async().DeleteScheduledRecordingByID(1, cb) })
	assert.True(t, errors.Is(err, ErrClosed))
}
