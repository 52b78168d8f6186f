package sys

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSentinel(t *testing.T, path string, ts time.Time) {
	t.Helper()
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], 99999)
	binary.LittleEndian.PutUint64(buf[4:12], uint64(ts.UnixNano()))
	require.NoError(t, os.WriteFile(path, buf, 0644))
}

func TestAcquireSentinel_StaleBreak(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "lock")
	writeSentinel(t, lockPath, time.Now().Add(-2*time.Minute))

	release, err := acquireSentinel(lockPath, time.Second)
	require.NoError(t, err, "stale sentinel should be broken")
	_, err = os.Stat(lockPath)
	require.NoError(t, err, "sentinel should exist while held")

	require.NoError(t, release())
	_, err = os.Stat(lockPath)
	assert.True(t, os.IsNotExist(err), "sentinel should be removed on release")
}

func TestAcquireSentinel_FreshPreventsAcquisition(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "lock")
	writeSentinel(t, lockPath, time.Now())

	_, err := acquireSentinel(lockPath, time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)
}

func TestAcquireSentinel_ReleaseKeepsForeignSentinel(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "lock")
	release, err := acquireSentinel(lockPath, 0)
	require.NoError(t, err)

	// Someone broke our lock and took it over.
	writeSentinel(t, lockPath, time.Now())
	require.NoError(t, release())

	_, err = os.Stat(lockPath)
	assert.NoError(t, err, "release must not remove a sentinel it does not own")
}

func TestAcquireFileLock_Exclusive(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "lock")

	release, err := AcquireFileLock(lockPath, DefaultLockStaleTTL)
	require.NoError(t, err)

	_, err = AcquireFileLock(lockPath, DefaultLockStaleTTL)
	require.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, release())

	release, err = AcquireFileLock(lockPath, DefaultLockStaleTTL)
	require.NoError(t, err, "lock should be free after release")
	require.NoError(t, release())
}
