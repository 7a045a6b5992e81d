package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingWriter_Appends(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, []byte("existing\n"), 0o644))

	w, err := NewRotatingWriter(path, RotationConfig{MaxSize: 1 << 20})
	require.NoError(t, err)
	_, err = w.Write([]byte("appended\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "existing\nappended\n", string(data))
}

func TestRotatingWriter_RotatesOnSize(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	w, err := NewRotatingWriter(path, RotationConfig{MaxSize: 16})
	require.NoError(t, err)
	_, err = w.Write([]byte("0123456789\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("abcdefghij\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var rotated int
	for _, e := range entries {
		if e.Name() != "app.log" && strings.HasPrefix(e.Name(), "app.") {
			rotated++
		}
	}
	assert.Equal(t, 1, rotated)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abcdefghij\n", string(data))
}

func TestRotatingWriter_PrunesOldBackups(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	old := time.Now().Add(-72 * time.Hour)
	for _, name := range []string{"app.2024-01-01-000000.log", "app.2024-01-02-000000.log", "app.2024-01-03-000000.log"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
		require.NoError(t, os.Chtimes(p, old, old))
		old = old.Add(time.Hour)
	}

	w, err := NewRotatingWriter(path, RotationConfig{MaxBackups: 1})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = os.Stat(filepath.Join(dir, "app.2024-01-03-000000.log"))
	assert.NoError(t, err, "newest rotated file should be kept")
	_, err = os.Stat(filepath.Join(dir, "app.2024-01-01-000000.log"))
	assert.True(t, os.IsNotExist(err))
}
