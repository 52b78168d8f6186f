// file_unix.go
//go:build unix

package sys

import (
	"os"
)

// unixFile implements File for Unix-like systems using the os package directly.
type unixFile struct{}

// NewFile returns the platform-specific File.
func NewFile() File {
	return &unixFile{}
}

func (ufo *unixFile) OpenFile(name string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(name, flag, perm)
}

// Rename is atomic on POSIX filesystems when both paths share a directory.
func (ufo *unixFile) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

func (ufo *unixFile) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (ufo *unixFile) SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	syncErr := d.Sync()
	closeErr := d.Close()
	if syncErr != nil {
		return syncErr
	}
	return closeErr
}
