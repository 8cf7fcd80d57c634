package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"ScheduledRecorder/internal/models"
	"ScheduledRecorder/pkg/capture"
	"ScheduledRecorder/pkg/errors"
	"ScheduledRecorder/pkg/metrics"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, models.Migrate(db))

	r, err := New(Options{
		DB:      db,
		Dir:     t.TempDir(),
		Workers: 2,
		Metrics: metrics.NewMetrics(),
		Now:     func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		r.Close()
		sqlDB.Close()
	})
	return r
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o644))
}

func ms(d time.Duration) int64 { return fixedNow.Add(d).UnixMilli() }

func TestScheduleRecordingPolicy(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	s, err := r.ScheduleRecording(ctx, ms(time.Hour), ms(time.Hour+time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.MinWindow, s.Duration(), "short window clamped up")

	_, err = r.ScheduleRecording(ctx, ms(time.Hour+2*time.Minute), ms(2*time.Hour))
	assert.Equal(t, errors.CodeAlreadyScheduled, errors.GetCode(err))

	_, err = r.ScheduleRecording(ctx, ms(-time.Minute), ms(time.Hour))
	assert.Equal(t, errors.CodeTimeInPast, errors.GetCode(err))

	_, err = r.ScheduleRecording(ctx, ms(5*time.Hour), ms(4*time.Hour))
	assert.Equal(t, errors.CodeStartAfterEnd, errors.GetCode(err))

	_, err = r.ScheduleRecording(ctx, ms(6*time.Hour), ms(6*time.Hour))
	assert.Equal(t, errors.CodeStartAfterEnd, errors.GetCode(err), "zero-length window")

	long, err := r.ScheduleRecording(ctx, ms(10*time.Hour), ms(20*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.MaxWindow, long.Duration(), "long window clamped down")

	// editing a window may overlap its own old range
	edited, err := r.EditScheduledRecording(ctx, long.ID, ms(10*time.Hour+time.Minute), ms(11*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, long.ID, edited.ID)

	// but not another window
	_, err = r.EditScheduledRecording(ctx, long.ID, ms(time.Hour), ms(2*time.Hour))
	assert.Equal(t, errors.CodeAlreadyScheduled, errors.GetCode(err))

	_, err = r.EditScheduledRecording(ctx, 999, ms(30*time.Hour), ms(31*time.Hour))
	assert.True(t, errors.Is(err, models.ErrNotFound))

	n, err := r.CountScheduledRecordings(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRenameRecording(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	path := filepath.Join(r.Dir(), "rec1.wav")
	writeFile(t, path)
	rec := &models.SavedRecording{Name: "rec1", FilePath: path, Length: 1000, TimeAdded: 1}
	require.NoError(t, r.InsertRecording(ctx, rec))

	require.NoError(t, r.RenameRecording(ctx, rec, "interview"))
	assert.Equal(t, filepath.Join(r.Dir(), "interview.wav"), rec.FilePath)
	assert.FileExists(t, rec.FilePath)
	assert.NoFileExists(t, path)

	got, err := r.GetRecordingByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "interview", got.Name)

	// collision leaves both sides untouched
	writeFile(t, filepath.Join(r.Dir(), "taken.wav"))
	err = r.RenameRecording(ctx, rec, "taken")
	assert.True(t, errors.Is(err, ErrFileConflict))
	assert.FileExists(t, rec.FilePath)

	assert.Error(t, r.RenameRecording(ctx, rec, "../escape"))
}

func TestRenameRollsBackFileWhenRowMissing(t *testing.T) {
	r := newTestRepo(t)
	path := filepath.Join(r.Dir(), "rec2.wav")
	writeFile(t, path)
	ghost := &models.SavedRecording{ID: 77, Name: "rec2", FilePath: path}

	err := r.RenameRecording(context.Background(), ghost, "other")
	assert.True(t, errors.Is(err, models.ErrNotFound))
	assert.FileExists(t, path)
	assert.NoFileExists(t, filepath.Join(r.Dir(), "other.wav"))
}

func TestDeleteRecordingRemovesFileThenRow(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	path := filepath.Join(r.Dir(), "rec3.wav")
	writeFile(t, path)
	rec := &models.SavedRecording{Name: "rec3", FilePath: path, Length: 1, TimeAdded: 1}
	require.NoError(t, r.InsertRecording(ctx, rec))

	require.NoError(t, r.DeleteRecording(ctx, rec))
	assert.NoFileExists(t, path)
	_, err := r.GetRecordingByID(ctx, rec.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestDeleteRecordingKeepsRowWhenFileCannotBeRemoved(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	// a non-empty directory cannot be removed with os.Remove
	dir := filepath.Join(r.Dir(), "rec4.wav")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "x"), 0o755))
	rec := &models.SavedRecording{Name: "rec4", FilePath: dir, Length: 1, TimeAdded: 1}
	require.NoError(t, r.InsertRecording(ctx, rec))

	err := r.DeleteRecording(ctx, rec)
	assert.Equal(t, errors.CodeFileOperation, errors.GetCode(err))
	_, err = r.GetRecordingByID(ctx, rec.ID)
	assert.NoError(t, err)
}

func TestDeleteAllRecordings(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		p := filepath.Join(r.Dir(), fmt.Sprintf("rec%d.wav", i))
		writeFile(t, p)
		require.NoError(t, r.InsertRecording(ctx, &models.SavedRecording{Name: "x", FilePath: p, TimeAdded: int64(i)}))
	}
	n, err := r.DeleteAllRecordings(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	entries, _ := os.ReadDir(r.Dir())
	assert.Empty(t, entries)
}

func TestReconcile(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	// row whose file vanished
	require.NoError(t, r.InsertRecording(ctx, &models.SavedRecording{Name: "gone", FilePath: filepath.Join(r.Dir(), "rec100.wav"), TimeAdded: 1}))
	// healthy row
	kept := filepath.Join(r.Dir(), "rec200.wav")
	writeFile(t, kept)
	require.NoError(t, r.InsertRecording(ctx, &models.SavedRecording{Name: "kept", FilePath: kept, TimeAdded: 2}))
	// orphan wav file with a real header
	orphan := filepath.Join(r.Dir(), "rec300.wav")
	dev := capture.NewSynthetic()
	require.NoError(t, dev.Prepare(orphan, capture.QualityStandard))
	require.NoError(t, dev.Start())
	time.Sleep(250 * time.Millisecond)
	require.NoError(t, dev.Stop())
	// file being captured right now
	active := filepath.Join(r.Dir(), "rec400.wav")
	writeFile(t, active)
	r.MarkActive(active)
	// unrelated file
	writeFile(t, filepath.Join(r.Dir(), "notes.txt"))

	rep, err := r.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.RowsRemoved)
	assert.Equal(t, 1, rep.FilesRegistered)

	all, err := r.GetAllRecordings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	var found *models.SavedRecording
	for i := range all {
		if all[i].FilePath == orphan {
			found = &all[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, "rec300", found.Name)
	assert.Greater(t, found.Length, int64(0))

	r.ClearActive(active)
	rep, err = r.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.FilesRegistered)
}

func TestReconcileDuringRenameLeavesRecordingAlone(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	path := filepath.Join(r.Dir(), "rec500.wav")
	writeFile(t, path)
	rec := &models.SavedRecording{Name: "rec500", FilePath: path, Length: 1, TimeAdded: 1}
	require.NoError(t, r.InsertRecording(ctx, rec))

	// 文件已改名、行尚未更新时运行一次对账
	var ran atomic.Bool
	var midway ReconcileReport
	var midwayErr error
	require.NoError(t, r.db.Callback().Update().Before("gorm:begin_transaction").
		Register("test:reconcile_midway", func(*gorm.DB) {
			if ran.CompareAndSwap(false, true) {
				midway, midwayErr = r.Reconcile(context.Background())
			}
		}))

	require.NoError(t, r.RenameRecording(ctx, rec, "rec123"))
	require.True(t, ran.Load())
	require.NoError(t, midwayErr)
	assert.Equal(t, 0, midway.RowsRemoved)
	assert.Equal(t, 0, midway.FilesRegistered)

	n, err := r.CountRecordings(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	got, err := r.GetRecordingByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(r.Dir(), "rec123.wav"), got.FilePath)
	assert.FileExists(t, got.FilePath)

	// 改名结束后对账无事可做
	rep, err := r.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.RowsRemoved)
	assert.Zero(t, rep.FilesRegistered)
}

func TestNewRecordingPathIsUnique(t *testing.T) {
	r := newTestRepo(t)
	name, path := r.NewRecordingPath(".wav")
	assert.Equal(t, fmt.Sprintf("rec%d", fixedNow.UnixMilli()), name)
	writeFile(t, path)

	name2, path2 := r.NewRecordingPath(".wav")
	assert.NotEqual(t, path, path2)
	assert.Equal(t, fmt.Sprintf("rec%d", fixedNow.UnixMilli()+1), name2)
}

func TestGetRecordingByIDCacheInvalidation(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	rec := &models.SavedRecording{Name: "a", FilePath: "/tmp/a", TimeAdded: 1}
	require.NoError(t, r.InsertRecording(ctx, rec))

	got, err := r.GetRecordingByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name)

	rec.Name = "b"
	require.NoError(t, r.UpdateRecording(ctx, rec))
	got, err = r.GetRecordingByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "b", got.Name)
}
