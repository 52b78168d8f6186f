package sys

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireOSFileLock_SingleWriter(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "lock")

	release, err := AcquireOSFileLock(lockPath, 0)
	if errors.Is(err, ErrOSFileLockNotSupported) {
		t.Skip("flock not available")
	}
	require.NoError(t, err)

	// a second writer of the same volume is turned away at once
	start := time.Now()
	_, err = AcquireOSFileLock(lockPath, 0)
	assert.ErrorIs(t, err, ErrLockHeld)
	assert.Less(t, time.Since(start), time.Second)

	// with a timeout it waits, then gives up
	_, err = AcquireOSFileLock(lockPath, 60*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, release())
	assert.FileExists(t, lockPath, "the lock file outlives the lock")

	release, err = AcquireOSFileLock(lockPath, 0)
	require.NoError(t, err)
	require.NoError(t, release())
}
