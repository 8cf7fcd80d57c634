package i18n

import (
	"os"
	"path/filepath"
	"testing"

	"ScheduledRecorder/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	tr, err := NewTranslator("en")
	require.NoError(t, err)

	msg, ok := tr.ErrorMessage("zh-CN,zh;q=0.9", errors.CodeAlreadyScheduled)
	require.True(t, ok)
	assert.Equal(t, "该时段已有定时录音。", msg)

	msg, ok = tr.ErrorMessage("fr-FR", errors.CodeNotRecording)
	require.True(t, ok)
	assert.Equal(t, "No recording is in progress.", msg, "falls back to default language")

	_, ok = tr.ErrorMessage("en", 0)
	assert.False(t, ok)
	_, ok = tr.ErrorMessage("en", 42)
	assert.False(t, ok)
}

func TestLoadDir(t *testing.T) {
	tr, err := NewTranslator("en")
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "de.json"),
		[]byte(`{"error.1006": "Es läuft keine Aufnahme."}`), 0o644))
	require.NoError(t, tr.LoadDir(dir))

	msg, ok := tr.ErrorMessage("de", errors.CodeNotRecording)
	require.True(t, ok)
	assert.Equal(t, "Es läuft keine Aufnahme.", msg)

	assert.Error(t, tr.LoadDir(filepath.Join(dir, "missing")))
}
