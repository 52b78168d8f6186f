package sys

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileOperations(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "testfile")

	t.Run("CreateWriteAtReadAt", func(t *testing.T) {
		f, err := OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
		require.NoError(t, err)
		defer f.Close()

		_, err = f.WriteAt([]byte("hello world"), 0)
		require.NoError(t, err)
		require.NoError(t, f.Sync())

		buf := make([]byte, 5)
		_, err = f.ReadAt(buf, 6)
		require.NoError(t, err)
		assert.Equal(t, "world", string(buf))
		assert.NotZero(t, f.Fd())
	})

	t.Run("TruncateGrowsAndShrinks", func(t *testing.T) {
		f, err := OpenFile(path, os.O_RDWR, 0)
		require.NoError(t, err)
		defer f.Close()

		require.NoError(t, f.Truncate(4096))
		info, err := f.Stat()
		require.NoError(t, err)
		assert.Equal(t, int64(4096), info.Size())

		require.NoError(t, f.Truncate(5))
		info, err = f.Stat()
		require.NoError(t, err)
		assert.Equal(t, int64(5), info.Size())
	})

	t.Run("OpenReadOnlyRejectsWrite", func(t *testing.T) {
		f, err := Open(path)
		require.NoError(t, err)
		defer f.Close()

		_, err = f.WriteAt([]byte("x"), 0)
		assert.Error(t, err)
	})

	t.Run("RenameReplacesTarget", func(t *testing.T) {
		src := filepath.Join(tempDir, "src")
		dst := filepath.Join(tempDir, "dst")
		require.NoError(t, os.WriteFile(src, []byte("new"), 0644))
		require.NoError(t, os.WriteFile(dst, []byte("old"), 0644))

		require.NoError(t, Rename(src, dst))
		require.NoError(t, SyncDir(tempDir))

		data, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, "new", string(data))
		_, err = os.Stat(src)
		assert.True(t, os.IsNotExist(err))
	})
}

func TestDebugModeTracksOpenFiles(t *testing.T) {
	SetDebugMode(true)
	defer SetDebugMode(false)

	path := filepath.Join(t.TempDir(), "tracked")
	f, err := OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	require.NoError(t, err)
	_, isDebug := f.(*DebugFile)
	require.True(t, isDebug)
	assert.Contains(t, OpenDebugFiles(), path)

	require.NoError(t, f.Close())
	assert.NotContains(t, OpenDebugFiles(), path)
}

func TestPreallocateExtendsOrReportsUnsupported(t *testing.T) {
	f, err := OpenFile(filepath.Join(t.TempDir(), "prealloc"), os.O_RDWR|os.O_CREATE, 0600)
	require.NoError(t, err)
	defer f.Close()

	err = Preallocate(f, 0, 64*1024)
	if err == ErrPreallocNotSupported {
		t.Skip("preallocation not supported on this filesystem")
	}
	require.NoError(t, err)

	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(64*1024), info.Size())
}
