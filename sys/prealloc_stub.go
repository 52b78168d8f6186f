//go:build !linux

package sys

// Preallocate is unavailable on this platform; callers grow files with
// Truncate instead.
func Preallocate(f FileHandle, offset, length int64) error {
	preallocUnsupportedInc()
	return ErrPreallocNotSupported
}
