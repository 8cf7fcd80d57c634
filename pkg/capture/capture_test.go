package capture

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQualityPresets(t *testing.T) {
	assert.Equal(t, 44100, QualityFor(true).SampleRate)
	assert.Equal(t, 192000, QualityFor(true).BitRate)
	assert.Equal(t, 16000, QualityFor(false).SampleRate)
	assert.Equal(t, 1, QualityFor(false).Channels)
}

func TestSyntheticWritesPlayableWav(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec1700000000000.wav")
	dev := NewSynthetic()
	require.NoError(t, dev.Prepare(path, QualityStandard))
	require.NoError(t, dev.Start())
	time.Sleep(350 * time.Millisecond)
	assert.Greater(t, dev.MaxAmplitude(), 0)
	require.NoError(t, dev.Stop())
	dev.Release()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	d := wav.NewDecoder(f)
	require.True(t, d.IsValidFile())
	dur, err := d.Duration()
	require.NoError(t, err)
	assert.InDelta(t, 350*time.Millisecond, dur, float64(150*time.Millisecond))
}

func TestSyntheticRequiresPrepare(t *testing.T) {
	dev := NewSynthetic()
	assert.ErrorIs(t, dev.Start(), ErrNotPrepared)
	assert.ErrorIs(t, dev.Stop(), ErrNotStarted)
	dev.Release()
}

func TestNewFactory(t *testing.T) {
	f, err := NewFactory("synthetic", "")
	require.NoError(t, err)
	assert.Equal(t, ".wav", f().Ext())

	f, err = NewFactory("ffmpeg", "hw:0")
	require.NoError(t, err)
	assert.Equal(t, ".m4a", f().Ext())

	_, err = NewFactory("portaudio", "")
	assert.Error(t, err)
}

func TestCheckPermissions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "recordings")
	require.NoError(t, CheckPermissions(dir, "synthetic"))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIsRecordingFile(t *testing.T) {
	assert.True(t, IsRecordingFile("/data/rec1700000000000.wav"))
	assert.True(t, IsRecordingFile("rec1"))
	assert.False(t, IsRecordingFile("record.wav"))
	assert.False(t, IsRecordingFile("rec"))
	assert.False(t, IsRecordingFile(".perm-123"))
}
