//go:build !unix

package sys

import (
	"errors"
	"time"
)

// ErrLockHeld is returned when another process holds the lock.
var ErrLockHeld = errors.New("lock held by another process")

// AcquireOSFileLock is not available here; AcquireFileLock falls back to an
// exclusive-create sentinel file.
func AcquireOSFileLock(lockPath string, timeout time.Duration) (func() error, error) {
	return nil, ErrOSFileLockNotSupported
}
