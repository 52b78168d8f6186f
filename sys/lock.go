package sys

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrOSFileLockNotSupported is returned by AcquireOSFileLock on platforms
// without advisory locks.
var ErrOSFileLockNotSupported = errors.New("OS file locking not supported on this platform")

// DefaultLockStaleTTL is the age after which a sentinel lock file left by a
// crashed process is broken.
var DefaultLockStaleTTL = 30 * time.Second

// SetDefaultLockStaleTTL updates the package default TTL.
func SetDefaultLockStaleTTL(d time.Duration) {
	DefaultLockStaleTTL = d
}

// AcquireFileLock takes an exclusive lock on lockPath. It prefers an OS
// advisory lock; where those are unsupported it atomically creates the file
// (O_EXCL) and records pid and timestamp in it. A sentinel older than
// staleTTL is considered abandoned and removed. The lock is tried once;
// ErrLockHeld means someone else owns it.
func AcquireFileLock(lockPath string, staleTTL time.Duration) (func() error, error) {
	rel, err := AcquireOSFileLock(lockPath, 0)
	if err == nil {
		return rel, nil
	}
	if !errors.Is(err, ErrOSFileLockNotSupported) {
		return nil, err
	}
	return acquireSentinel(lockPath, staleTTL)
}

func acquireSentinel(lockPath string, staleTTL time.Duration) (func() error, error) {
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			ourPid := uint32(os.Getpid())
			ourTimestamp := uint64(time.Now().UTC().UnixNano())
			buf := make([]byte, 12)
			binary.LittleEndian.PutUint32(buf[0:4], ourPid)
			binary.LittleEndian.PutUint64(buf[4:12], ourTimestamp)
			_, _ = f.Write(buf)
			f.Close()

			release := func() error {
				// Only remove the sentinel if it is still ours.
				b, err := os.ReadFile(lockPath)
				if err != nil {
					if os.IsNotExist(err) {
						return nil
					}
					return err
				}
				if len(b) >= 12 && binary.LittleEndian.Uint32(b[0:4]) == ourPid &&
					binary.LittleEndian.Uint64(b[4:12]) == ourTimestamp {
					return os.Remove(lockPath)
				}
				return nil
			}
			return release, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("AcquireFileLock: %w", err)
		}
		if staleTTL <= 0 || !sentinelIsStale(lockPath, staleTTL) {
			return nil, ErrLockHeld
		}
		_ = os.Remove(lockPath)
	}
	return nil, ErrLockHeld
}

func sentinelIsStale(lockPath string, staleTTL time.Duration) bool {
	now := time.Now().UTC()
	if b, err := os.ReadFile(lockPath); err == nil && len(b) >= 12 {
		ts := int64(binary.LittleEndian.Uint64(b[4:12]))
		return now.Sub(time.Unix(0, ts)) > staleTTL
	}
	info, err := os.Stat(lockPath)
	if err != nil {
		return os.IsNotExist(err)
	}
	return now.Sub(info.ModTime()) > staleTTL
}
