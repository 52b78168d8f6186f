//go:build unix

package sys

import (
	"errors"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// ErrLockHeld is returned when another open file description holds the lock.
var ErrLockHeld = errors.New("lock held by another process")

// AcquireOSFileLock attempts to acquire an advisory exclusive lock on
// lockPath using flock. It opens (or creates) the file and locks the
// descriptor, retrying until timeout elapses. A zero timeout tries once.
// The returned release function unlocks and closes the file. The file is
// left in place: unlinking it would let a waiter lock an orphaned inode
// while a newcomer locks a fresh one.
func AcquireOSFileLock(lockPath string, timeout time.Duration) (func() error, error) {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}

	fd := int(f.Fd())
	deadline := time.Now().Add(timeout)
	for {
		err = unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			rel := func() error {
				_ = unix.Flock(fd, unix.LOCK_UN)
				return f.Close()
			}
			return rel, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			_ = f.Close()
			return nil, err
		}
		if time.Now().After(deadline) {
			_ = f.Close()
			return nil, ErrLockHeld
		}
		time.Sleep(25 * time.Millisecond)
	}
}
