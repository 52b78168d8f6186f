//go:build !unix

package sys

import (
	"os"
)

type otherFile struct{}

// NewFile returns the platform-specific File.
func NewFile() File {
	return &otherFile{}
}

func (o *otherFile) OpenFile(name string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(name, flag, perm)
}

func (o *otherFile) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

func (o *otherFile) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// SyncDir is a no-op: directory handles cannot be synced on every platform
// (Windows returns "Access is denied"). The rename itself is still atomic.
func (o *otherFile) SyncDir(dir string) error {
	return nil
}
