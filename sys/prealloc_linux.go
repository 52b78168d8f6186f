//go:build linux

package sys

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Preallocate reserves disk blocks for [offset, offset+length) with
// fallocate and extends the file size to cover the range, so running out of
// space is reported while growing instead of on a later write. Filesystems
// that cannot do this yield ErrPreallocNotSupported and the caller falls
// back to a plain truncate.
func Preallocate(f FileHandle, offset, length int64) error {
	if length <= 0 {
		return nil
	}
	fd := int(f.Fd())

	// Decisions are cached per device to avoid an fstatfs for every growth.
	var stat unix.Stat_t
	var dev uint64
	if err := unix.Fstat(fd, &stat); err == nil {
		dev = uint64(stat.Dev)
		if allow, ok := preallocCacheLoad(dev); ok {
			preallocCacheHit()
			if !allow {
				preallocUnsupportedInc()
				return ErrPreallocNotSupported
			}
			return fallocate(fd, dev, offset, length)
		}
		preallocCacheMiss()
	}

	var st unix.Statfs_t
	if err := unix.Fstatfs(fd, &st); err != nil {
		preallocUnsupportedInc()
		return ErrPreallocNotSupported
	}

	switch st.Type {
	case 0xEF53, // EXT2/3/4
		0x58465342, // XFS
		0x9123683E, // BTRFS
		0x01021994, // TMPFS
		0xF2F52010, // F2FS
		0x2FC12FC1: // ZFS on Linux
	default:
		if dev != 0 {
			preallocCacheStore(dev, false)
		}
		preallocUnsupportedInc()
		return ErrPreallocNotSupported
	}

	if dev != 0 {
		preallocCacheStore(dev, true)
	}
	return fallocate(fd, dev, offset, length)
}

func fallocate(fd int, dev uint64, offset, length int64) error {
	err := unix.Fallocate(fd, 0, offset, length)
	if err == nil {
		preallocSuccessInc()
		return nil
	}
	if errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.EINVAL) || errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.ENOTTY) {
		if dev != 0 {
			preallocCacheStore(dev, false)
		}
		preallocUnsupportedInc()
		return ErrPreallocNotSupported
	}
	preallocFailureInc()
	return fmt.Errorf("preallocation failed for fd=%d: %w", fd, err)
}
