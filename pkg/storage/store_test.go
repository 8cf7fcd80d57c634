package stores

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(t.TempDir())

	ok, err := s.Exists(ctx, "db/backup.db")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Write(ctx, "db/backup.db", strings.NewReader("sqlite")))
	ok, err = s.Exists(ctx, "db/backup.db")
	require.NoError(t, err)
	assert.True(t, ok)

	rc, size, err := s.Read(ctx, "db/backup.db")
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, int64(6), size)
	assert.Equal(t, "sqlite", string(b))

	require.NoError(t, s.Delete(ctx, "db/backup.db"))
	require.NoError(t, s.Delete(ctx, "db/backup.db"))
}

func TestMinioStoreKeyPrefix(t *testing.T) {
	m := &MinioStore{Prefix: "nightly/"}
	assert.Equal(t, "nightly/a.db", m.key("/a.db"))
	m.Prefix = ""
	assert.Equal(t, "a.db", m.key("a.db"))
}
